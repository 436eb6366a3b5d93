// Package pipeline runs the day-cycle: allocate a day index, build context,
// select a subtopic, gather two proposals, arbitrate and commit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shone114/alternate-history/internal/events"
	"github.com/shone114/alternate-history/internal/gateway"
	"github.com/shone114/alternate-history/internal/metrics"
	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/prompt"
	"github.com/shone114/alternate-history/internal/store"
)

// Config holds the tunables of a cycle.
type Config struct {
	UniverseID        string
	RecentLimit       int
	Subtopic          RetryPolicy
	ProposalA         RetryPolicy
	ProposalB         RetryPolicy
	ParallelProposals bool
	// CycleTimeout bounds a whole cycle; zero means no bound.
	CycleTimeout time.Duration
}

// DefaultConfig returns the stock policies: three subtopic attempts, three
// for proposal A, one for proposal B, 2s apart.
func DefaultConfig(universeID string) Config {
	return Config{
		UniverseID:        universeID,
		RecentLimit:       DefaultRecentLimit,
		Subtopic:          RetryPolicy{Attempts: 3, Delay: 2 * time.Second},
		ProposalA:         RetryPolicy{Attempts: 3, Delay: 2 * time.Second},
		ProposalB:         SingleAttempt,
		ParallelProposals: true,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func WithPublisher(p events.Publisher) Option { return func(o *Orchestrator) { o.publisher = p } }

func WithMetrics(m *metrics.Collector) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithClock overrides the time source used for created_at stamps.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// Orchestrator is the single writer of day records. HTTP handlers, the
// scheduler and the CLI share one instance per process.
type Orchestrator struct {
	cfg       Config
	store     store.Store
	gateway   gateway.Gateway
	prompts   *prompt.Renderer
	seq       *Sequencer
	context   *ContextBuilder
	publisher events.Publisher
	metrics   *metrics.Collector
	observers []Observer
	log       *zap.Logger
	now       func() time.Time

	busy atomic.Bool
}

func New(cfg Config, st store.Store, gw gateway.Gateway, prompts *prompt.Renderer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		store:     st,
		gateway:   gw,
		prompts:   prompts,
		seq:       NewSequencer(st),
		publisher: &events.NoopPublisher{},
		log:       zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	o.context = NewContextBuilder(st, cfg.RecentLimit, o.log)
	return o
}

// AddObserver registers obs for subsequent cycles. It must not be called
// while a cycle is running.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.observers = append(o.observers, obs)
}

// UniverseID is the universe this orchestrator writes to.
func (o *Orchestrator) UniverseID() string { return o.cfg.UniverseID }

// Running reports whether a cycle or reset is in progress.
func (o *Orchestrator) Running() bool { return o.busy.Load() }

// cycle tracks one RunDay invocation.
type cycle struct {
	o       *Orchestrator
	runID   string
	day     int
	state   State
	log     *zap.Logger
	started time.Time
}

func (c *cycle) transition(ctx context.Context, to State, step Step, err error, result *model.CycleResult) {
	if !CanTransition(c.state, to) {
		c.log.Error("illegal state transition", zap.String("from", string(c.state)), zap.String("to", string(to)))
	}
	t := Transition{
		RunID:      c.runID,
		UniverseID: c.o.cfg.UniverseID,
		DayIndex:   c.day,
		From:       c.state,
		To:         to,
		Step:       step,
		Result:     result,
		At:         c.o.now(),
	}
	if err != nil {
		t.Error = err.Error()
	}
	c.log.Info("cycle state",
		zap.String("from", string(c.state)),
		zap.String("to", string(to)))
	c.state = to

	for _, obs := range c.o.observers {
		obs.CycleTransition(t)
	}
	c.o.publish(ctx, events.TopicDayState, events.DayState{
		RunID: c.runID, UniverseID: t.UniverseID, DayIndex: c.day, From: string(t.From), To: string(to),
	})
}

func (c *cycle) fail(ctx context.Context, step Step, err error) error {
	c.transition(ctx, StateFailed, step, err, nil)
	ce := &CycleError{RunID: c.runID, DayIndex: c.day, State: StateFailed, Step: step, Err: err}
	c.log.Error("day-cycle failed", zap.String("step", string(step)), zap.Error(err))
	c.o.metrics.ObserveCycle(false, string(step), c.day, time.Since(c.started))
	c.o.publish(ctx, events.TopicDayFailed, events.DayFailed{
		RunID: c.runID, UniverseID: c.o.cfg.UniverseID, DayIndex: c.day,
		State: string(StateFailed), Step: string(step), Error: err.Error(),
	})
	return ce
}

// RunDay executes one full day-cycle. It returns ErrCycleInProgress when
// another cycle is running in this process, or a *CycleError when the cycle
// ends in FAILED. Records written before a failure are kept.
func (o *Orchestrator) RunDay(ctx context.Context) (*model.CycleResult, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer o.busy.Store(false)

	if o.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.CycleTimeout)
		defer cancel()
	}

	c := &cycle{
		o:       o,
		runID:   uuid.NewString(),
		state:   StateAllocating,
		started: time.Now(),
	}
	c.log = o.log.With(zap.String("run_id", c.runID), zap.String("universe_id", o.cfg.UniverseID))

	day, err := o.seq.NextDayIndex(ctx, o.cfg.UniverseID)
	if err != nil {
		return nil, c.fail(ctx, StepSequencer, fmt.Errorf("%w: %w", ErrSequencer, err))
	}
	c.day = day
	c.log = c.log.With(zap.Int("day_index", day))
	c.log.Info("starting day-cycle")
	o.publish(ctx, events.TopicDayStarted, events.DayStarted{RunID: c.runID, UniverseID: o.cfg.UniverseID, DayIndex: day})

	win := o.context.Build(ctx, o.cfg.UniverseID)

	c.transition(ctx, StateSubtopicPending, StepSubtopic, nil, nil)
	sub, err := o.selectSubtopic(ctx, c, win)
	if err != nil {
		return nil, c.fail(ctx, StepSubtopic, err)
	}
	c.transition(ctx, StateSubtopicReady, StepSubtopic, nil, nil)

	c.transition(ctx, StateProposalsCollecting, StepProposals, nil, nil)
	propA, propB := o.collectProposals(ctx, c, win, sub)
	c.transition(ctx, StateProposalsDone, StepProposals, nil, nil)
	if propA == nil && propB == nil {
		return nil, c.fail(ctx, StepProposals, ErrNoProposals)
	}

	c.transition(ctx, StateJudging, StepArbiter, nil, nil)
	judgment, event, err := o.judge(ctx, c, win, sub, propA, propB)
	if err != nil {
		return nil, c.fail(ctx, StepArbiter, err)
	}

	result := &model.CycleResult{
		RunID:         c.runID,
		DayIndex:      day,
		Subtopic:      sub,
		ProposalA:     propA,
		ProposalB:     propB,
		Judgment:      judgment,
		TimelineEvent: event,
	}
	c.transition(ctx, StateCommitted, StepCommit, nil, result)
	o.metrics.ObserveCycle(true, string(StepCommit), day, time.Since(c.started))
	o.publish(ctx, events.TopicDayCommitted, events.DayCommitted{UniverseID: o.cfg.UniverseID, Result: result})
	c.log.Info("day-cycle committed",
		zap.String("subtopic", sub.SelectedSubtopic),
		zap.String("decision", judgment.Decision),
		zap.Duration("elapsed", time.Since(c.started)))
	return result, nil
}

// Reset deletes every per-day record of the universe. The universe record
// itself is kept.
func (o *Orchestrator) Reset(ctx context.Context) (*model.ResetResult, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer o.busy.Store(false)

	res := &model.ResetResult{
		UniverseID: o.cfg.UniverseID,
		Deleted:    make(map[model.Collection]int64, len(model.DayCollections)),
	}
	filter := model.Filter{UniverseID: o.cfg.UniverseID}
	for _, coll := range model.DayCollections {
		n, err := o.store.DeleteMany(ctx, coll, filter)
		if err != nil {
			return res, fmt.Errorf("reset %s: %w", coll, err)
		}
		res.Deleted[coll] = n
	}
	o.log.Warn("universe reset", zap.String("universe_id", o.cfg.UniverseID), zap.Any("deleted", res.Deleted))
	o.publish(ctx, events.TopicUniverseReset, events.UniverseReset{Result: res})
	return res, nil
}

func (o *Orchestrator) publish(ctx context.Context, topic string, event any) {
	if err := o.publisher.Publish(ctx, topic, event); err != nil {
		o.log.Warn("publishing event", zap.String("topic", topic), zap.Error(err))
	}
}

// insertErr classifies an insert failure. A duplicate key means another
// writer owns the day and is never retried.
func insertErr(what string, day int, err error) error {
	if errors.Is(err, store.ErrDuplicate) {
		return Permanent(fmt.Errorf("%w: %s for day %d: %w", ErrDayConflict, what, day, err))
	}
	return fmt.Errorf("inserting %s: %w", what, err)
}
