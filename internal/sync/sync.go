// Package sync exports the timeline of a universe as JSONL to S3 or a local
// file, on demand or on an interval.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shone114/alternate-history/internal/events"
	"github.com/shone114/alternate-history/internal/store"
)

// Destination is the interface for an export target (S3, file, etc.).
type Destination interface {
	// Name identifies the destination in logs and events.
	Name() string
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// ErrNoDestinations is returned by ExportOnce when nothing is configured.
var ErrNoDestinations = errors.New("no export destinations configured")

// Report summarises one export run.
type Report struct {
	Records      int      `json:"records"`
	Bytes        int      `json:"bytes"`
	Destinations []string `json:"destinations"`
	Failed       []string `json:"failed,omitempty"`
}

// Exporter writes a universe export to every destination.
type Exporter struct {
	store        store.Store
	universeID   string
	destinations []Destination
	publisher    events.Publisher
	logger       *zap.Logger
}

func NewExporter(s store.Store, universeID string, destinations []Destination, publisher events.Publisher, logger *zap.Logger) *Exporter {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		store:        s,
		universeID:   universeID,
		destinations: destinations,
		publisher:    publisher,
		logger:       logger,
	}
}

// Enabled reports whether at least one destination is configured.
func (e *Exporter) Enabled() bool { return len(e.destinations) > 0 }

// ExportOnce exports and writes to every destination. A failing destination
// does not stop the others; the returned error joins all failures.
func (e *Exporter) ExportOnce(ctx context.Context) (*Report, error) {
	if !e.Enabled() {
		return nil, ErrNoDestinations
	}
	var buf bytes.Buffer
	n, err := ExportJSONL(ctx, e.store, e.universeID, &buf)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	data := buf.Bytes()

	rep := &Report{Records: n, Bytes: len(data)}
	var errs []error
	for _, dest := range e.destinations {
		rep.Destinations = append(rep.Destinations, dest.Name())
		if err := dest.Write(ctx, data); err != nil {
			e.logger.Error("export destination write failed", zap.String("destination", dest.Name()), zap.Error(err))
			rep.Failed = append(rep.Failed, dest.Name())
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
			continue
		}
		if err := e.publisher.Publish(ctx, events.TopicExported, events.Exported{
			UniverseID: e.universeID, Destination: dest.Name(), Records: n,
		}); err != nil {
			e.logger.Warn("publishing export event", zap.Error(err))
		}
	}

	e.logger.Info("export completed",
		zap.Int("destinations", len(e.destinations)),
		zap.Int("records", n),
		zap.Int("bytes", len(data)))
	return rep, errors.Join(errs...)
}

// Scheduler runs periodic exports.
type Scheduler struct {
	exporter *Exporter
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that runs exporter at the given interval.
func NewScheduler(exporter *Exporter, interval time.Duration) *Scheduler {
	return &Scheduler{exporter: exporter, interval: interval}
}

// Start begins periodic export. It runs an initial export immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current export (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	// Run once immediately at startup.
	s.exportOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.exportOnce(ctx)
		}
	}
}

func (s *Scheduler) exportOnce(ctx context.Context) {
	if _, err := s.exporter.ExportOnce(ctx); err != nil {
		s.exporter.logger.Error("scheduled export failed", zap.Error(err))
	}
}
