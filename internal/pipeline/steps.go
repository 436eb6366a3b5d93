package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shone114/alternate-history/internal/gateway"
	"github.com/shone114/alternate-history/internal/idgen"
	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/prompt"
)

// errMissingAcceptedLog is an arbiter parse failure.
var errMissingAcceptedLog = errors.New("arbiter response has no accepted_log")

// generate renders a template, calls the gateway and extracts the JSON object.
func (o *Orchestrator) generate(ctx context.Context, role gateway.Role, template string, values map[string]string) (model.Payload, error) {
	text, err := o.prompts.Render(template, values)
	if err != nil {
		return nil, err
	}
	raw, err := o.gateway.Call(ctx, role, text)
	if err != nil {
		return nil, err
	}
	return gateway.ExtractJSON(raw)
}

// timed runs a step and records its duration.
func (o *Orchestrator) timed(step Step, fn func() error) error {
	start := time.Now()
	err := fn()
	o.metrics.ObserveStep(string(step), err == nil, time.Since(start))
	return err
}

func (o *Orchestrator) newID(c model.Collection) (string, error) {
	id, err := idgen.New(c)
	if err != nil {
		return "", fmt.Errorf("generating %s id: %w", c, err)
	}
	return id, nil
}

// selectSubtopic asks the selector for the day's focus and stores it. Call,
// parse and insert are retried together under the subtopic policy.
func (o *Orchestrator) selectSubtopic(ctx context.Context, c *cycle, win Window) (*model.Subtopic, error) {
	values := map[string]string{
		prompt.UniverseSeed:      win.Seed,
		prompt.RecentTimeline:    win.RecentTimeline,
		prompt.PreviousSubtopics: win.Subtopics,
	}

	var out Outcome[*model.Subtopic]
	_ = o.timed(StepSubtopic, func() error {
		out = Retry(ctx, o.cfg.Subtopic, func(ctx context.Context, attempt int) (*model.Subtopic, error) {
			sub, err := o.trySubtopic(ctx, c.day, values)
			o.metrics.ObserveAttempt(string(StepSubtopic), err == nil)
			if err != nil {
				c.log.Warn("subtopic attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			}
			return sub, err
		})
		return out.Err
	})
	if out.Err != nil {
		if errors.Is(out.Err, ErrDayConflict) {
			return nil, out.Err
		}
		return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrSubtopicFailed, out.Attempts, out.Err)
	}
	c.log.Info("subtopic selected", zap.String("subtopic", out.Value.SelectedSubtopic), zap.Int("attempts", out.Attempts))
	return out.Value, nil
}

func (o *Orchestrator) trySubtopic(ctx context.Context, day int, values map[string]string) (*model.Subtopic, error) {
	data, err := o.generate(ctx, gateway.RoleSubtopic, prompt.SubtopicFile, values)
	if err != nil {
		return nil, err
	}
	id, err := o.newID(model.CollectionSubtopics)
	if err != nil {
		return nil, err
	}
	sub := &model.Subtopic{
		ID:               id,
		UniverseID:       o.cfg.UniverseID,
		DayIndex:         day,
		SelectedSubtopic: data.Get("selected_subtopic", "Unknown"),
		Reason:           data.Get("reason", ""),
		Tags:             data.Strings("expected_focus_tags"),
		CreatedAt:        o.now(),
	}
	if err := o.store.Insert(ctx, sub); err != nil {
		return nil, insertErr("subtopic", day, err)
	}
	return sub, nil
}

// collectProposals runs both generators. A failed generator yields nil and
// never aborts the other.
func (o *Orchestrator) collectProposals(ctx context.Context, c *cycle, win Window, sub *model.Subtopic) (a, b *model.Proposal) {
	values := map[string]string{
		prompt.UniverseSeed:   win.Seed,
		prompt.Subtopic:       sub.SelectedSubtopic,
		prompt.RecentTimeline: win.RecentTimeline,
	}
	runA := func() { a = o.propose(ctx, c, sub, model.RoleA, values) }
	runB := func() { b = o.propose(ctx, c, sub, model.RoleB, values) }

	if !o.cfg.ParallelProposals {
		runA()
		runB()
		return a, b
	}

	var g errgroup.Group
	g.Go(func() error { runA(); return nil })
	g.Go(func() error { runB(); return nil })
	_ = g.Wait()
	return a, b
}

type proposalRoute struct {
	step     Step
	role     gateway.Role
	template string
	policy   RetryPolicy
}

func (o *Orchestrator) proposalRoute(role model.ProposalRole) proposalRoute {
	if role == model.RoleA {
		return proposalRoute{StepProposalA, gateway.RoleProposalA, prompt.ProposalAFile, o.cfg.ProposalA}
	}
	return proposalRoute{StepProposalB, gateway.RoleProposalB, prompt.ProposalBFile, o.cfg.ProposalB}
}

func (o *Orchestrator) propose(ctx context.Context, c *cycle, sub *model.Subtopic, role model.ProposalRole, values map[string]string) *model.Proposal {
	rt := o.proposalRoute(role)
	log := c.log.With(zap.String("step", string(rt.step)))

	var out Outcome[*model.Proposal]
	_ = o.timed(rt.step, func() error {
		out = Retry(ctx, rt.policy, func(ctx context.Context, attempt int) (*model.Proposal, error) {
			p, err := o.tryProposal(ctx, c.day, sub, role, rt, values)
			o.metrics.ObserveAttempt(string(rt.step), err == nil)
			if err != nil {
				log.Warn("proposal attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			}
			return p, err
		})
		return out.Err
	})
	if out.Err != nil {
		log.Error("proposal unavailable", zap.Int("attempts", out.Attempts), zap.Error(out.Err))
		return nil
	}
	log.Info("proposal stored", zap.Int("attempts", out.Attempts))
	return out.Value
}

func (o *Orchestrator) tryProposal(ctx context.Context, day int, sub *model.Subtopic, role model.ProposalRole, rt proposalRoute, values map[string]string) (*model.Proposal, error) {
	data, err := o.generate(ctx, rt.role, rt.template, values)
	if err != nil {
		return nil, err
	}
	id, err := o.newID(model.CollectionProposals)
	if err != nil {
		return nil, err
	}
	p := &model.Proposal{
		ID:         id,
		UniverseID: o.cfg.UniverseID,
		DayIndex:   day,
		Role:       role,
		Subtopic:   sub.SelectedSubtopic,
		CreatedAt:  o.now(),
		Payload:    data.Stripped(),
	}
	if err := o.store.Insert(ctx, p); err != nil {
		return nil, insertErr("proposal "+string(role), day, err)
	}
	return p, nil
}

// judge asks the arbiter to pick between the proposals and commits the
// judgment followed by the timeline event. There is no retry and no rollback:
// a judgment stays even if the timeline insert then fails.
func (o *Orchestrator) judge(ctx context.Context, c *cycle, win Window, sub *model.Subtopic, a, b *model.Proposal) (*model.Judgment, *model.TimelineEvent, error) {
	values := map[string]string{
		prompt.UniverseSeed:   win.Seed,
		prompt.Subtopic:       sub.SelectedSubtopic,
		prompt.RecentTimeline: win.RecentTimeline,
		prompt.ModelA:         a.Context().String(),
		prompt.ModelB:         b.Context().String(),
	}

	var (
		judgment *model.Judgment
		event    *model.TimelineEvent
	)
	err := o.timed(StepArbiter, func() error {
		var err error
		judgment, event, err = o.tryJudge(ctx, c.day, sub, values)
		o.metrics.ObserveAttempt(string(StepArbiter), err == nil)
		return err
	})
	if err != nil {
		var perm *permanentError
		if errors.As(err, &perm) {
			err = perm.err
		}
		if errors.Is(err, ErrDayConflict) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrArbiterFailed, err)
	}
	c.log.Info("arbiter decided", zap.String("decision", judgment.Decision))
	return judgment, event, nil
}

func (o *Orchestrator) tryJudge(ctx context.Context, day int, sub *model.Subtopic, values map[string]string) (*model.Judgment, *model.TimelineEvent, error) {
	data, err := o.generate(ctx, gateway.RoleArbiter, prompt.ArbiterFile, values)
	if err != nil {
		return nil, nil, err
	}
	accepted, ok := data.Value("accepted_log")
	if !ok {
		return nil, nil, errMissingAcceptedLog
	}

	jid, err := o.newID(model.CollectionJudgments)
	if err != nil {
		return nil, nil, err
	}
	tid, err := o.newID(model.CollectionTimeline)
	if err != nil {
		return nil, nil, err
	}

	judgment := &model.Judgment{
		ID:         jid,
		UniverseID: o.cfg.UniverseID,
		DayIndex:   day,
		Decision:   data.Get("decision", "N/A"),
		Reason:     data.Get("reason", "N/A"),
		CreatedAt:  o.now(),
	}
	if err := o.store.Insert(ctx, judgment); err != nil {
		return nil, nil, insertErr("judgment", day, err)
	}

	event := &model.TimelineEvent{
		ID:         tid,
		UniverseID: o.cfg.UniverseID,
		DayIndex:   day,
		Subtopic:   sub.SelectedSubtopic,
		Event:      accepted,
		CreatedAt:  o.now(),
	}
	if err := o.store.Insert(ctx, event); err != nil {
		return nil, nil, insertErr("timeline event", day, err)
	}
	return judgment, event, nil
}
