// Package scheduler triggers one day-cycle per day at a fixed wall-clock
// time in a configured time zone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/pipeline"
)

// Runner runs one day-cycle. *pipeline.Orchestrator implements it.
type Runner interface {
	RunDay(ctx context.Context) (*model.CycleResult, error)
}

// Daily fires Runner once a day at hour:minute in loc.
type Daily struct {
	runner Runner
	hour   int
	minute int
	loc    *time.Location
	log    *zap.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("schedule time %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// New creates a daily trigger at clock ("HH:MM") in the IANA zone tz.
func New(runner Runner, clock, tz string, log *zap.Logger) (*Daily, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("schedule time zone %q: %w", tz, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Daily{
		runner: runner,
		hour:   hour,
		minute: minute,
		loc:    loc,
		log:    log,
		now:    time.Now,
	}, nil
}

// Next returns the first firing time strictly after from.
func (d *Daily) Next(from time.Time) time.Time {
	local := from.In(d.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, d.hour, d.minute, 0, 0, d.loc)
	}
	return next
}

// Start begins waiting for the next firing time.
func (d *Daily) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
	d.log.Info("daily scheduler started",
		zap.String("at", fmt.Sprintf("%02d:%02d", d.hour, d.minute)),
		zap.String("timezone", d.loc.String()),
		zap.Time("next", d.Next(d.now())))
}

// Stop cancels the scheduler and waits for a running cycle to finish.
func (d *Daily) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

func (d *Daily) run(ctx context.Context) {
	for {
		wait := d.Next(d.now()).Sub(d.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			d.fire(ctx)
		}
	}
}

func (d *Daily) fire(ctx context.Context) {
	d.log.Info("scheduler triggering day-cycle")
	res, err := d.runner.RunDay(ctx)
	switch {
	case err == nil:
		d.log.Info("scheduled day-cycle committed", zap.Int("day_index", res.DayIndex))
	case errors.Is(err, pipeline.ErrCycleInProgress):
		d.log.Warn("scheduled day-cycle skipped: cycle already running")
	default:
		d.log.Error("scheduled day-cycle failed", zap.Error(err))
	}
}
