package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/shone114/alternate-history/internal/client"
	"github.com/shone114/alternate-history/internal/events"
	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Print new timeline events as days are committed",
	GroupID: "views",
	Long: `Print each newly committed day. With a NATS URL (--nats, ALTHIST_NATS_URL
or the active remote) the timeline is re-read whenever the server publishes
an event; otherwise it is polled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = os.Getenv("ALTHIST_NATS_URL")
		}
		if natsURL == "" {
			natsURL = activeRemoteNATSURL()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		w := &timelineWatcher{client: apiClient, out: stdout}
		if err := w.prime(ctx); err != nil {
			return err
		}
		if natsURL != "" {
			return w.watchNATS(ctx, natsURL)
		}
		return w.watchPoll(ctx, interval)
	},
}

// timelineWatcher prints timeline events newer than the last day it saw.
type timelineWatcher struct {
	client  client.Client
	out     io.Writer
	lastDay int
}

// prime records the current latest day and prints it.
func (w *timelineWatcher) prime(ctx context.Context) error {
	e, err := w.client.LatestEvent(ctx)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			fmt.Fprintln(w.out, "no events yet; waiting for day 1")
			return nil
		}
		return err
	}
	w.lastDay = e.DayIndex
	w.print(e)
	return nil
}

// refresh fetches the newest page of the timeline and prints unseen days in
// ascending order.
func (w *timelineWatcher) refresh(ctx context.Context) error {
	recent, err := w.client.Timeline(ctx, &client.ListRequest{Limit: model.MaxPageLimit, Order: model.SortDesc})
	if err != nil {
		return err
	}
	var fresh []*model.TimelineEvent
	for _, e := range recent {
		if e.DayIndex > w.lastDay {
			fresh = append(fresh, e)
		}
	}
	slices.SortFunc(fresh, func(a, b *model.TimelineEvent) int { return a.DayIndex - b.DayIndex })
	for _, e := range fresh {
		w.print(e)
		w.lastDay = e.DayIndex
	}
	return nil
}

func (w *timelineWatcher) print(e *model.TimelineEvent) {
	if jsonOutput {
		_ = printJSON(w.out, e)
		return
	}
	fmt.Fprintf(w.out, "[day %d] %s: %s\n", e.DayIndex, e.Subtopic, headline(e.Event))
}

func (w *timelineWatcher) printFailure(msg events.Message) {
	var f events.DayFailed
	if err := msg.Decode(&f); err != nil {
		return
	}
	fmt.Fprintf(w.out, "[day %d] %s at %s: %s\n", f.DayIndex, ui.RenderState(f.State), f.Step, f.Error)
}

// watchNATS re-reads the timeline after server events, debounced.
func (w *timelineWatcher) watchNATS(ctx context.Context, natsURL string) error {
	// reconnectCh triggers an immediate refresh after a reconnect so days
	// committed while disconnected are not missed.
	reconnectCh := make(chan struct{}, 1)

	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	debounce := time.NewTimer(0)
	debounce.Stop()
	select {
	case <-debounce.C:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Topic == events.TopicDayFailed {
				w.printFailure(msg)
			}
			debounce.Reset(200 * time.Millisecond)
		case <-reconnectCh:
			debounce.Reset(0)
		case <-debounce.C:
			if err := w.refresh(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}

// watchPoll re-reads the timeline every interval.
func (w *timelineWatcher) watchPoll(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := w.refresh(ctx); err != nil && ctx.Err() == nil {
			return err
		}
	}
}

func init() {
	watchCmd.Flags().Duration("interval", 30*time.Second, "poll interval when NATS is not configured")
	watchCmd.Flags().String("nats", "", "NATS URL for event-driven updates")
}
