package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/store"
)

// DefaultRecentLimit is how many timeline events feed each prompt.
const DefaultRecentLimit = 15

// ContextBuilder assembles the generation context from stored history.
type ContextBuilder struct {
	store store.Store
	limit int
	log   *zap.Logger
}

func NewContextBuilder(s store.Store, limit int, log *zap.Logger) *ContextBuilder {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ContextBuilder{store: s, limit: limit, log: log}
}

// RecentEvents returns the newest events, oldest first, without identity fields.
func (b *ContextBuilder) RecentEvents(ctx context.Context, universeID string) ([]model.TimelineContext, error) {
	events, err := store.FindAs[*model.TimelineEvent](ctx, b.store, model.CollectionTimeline,
		model.Filter{UniverseID: universeID}, model.SortDesc, 0, b.limit)
	if err != nil {
		return nil, fmt.Errorf("reading recent timeline: %w", err)
	}
	out := make([]model.TimelineContext, len(events))
	for i, e := range events {
		out[len(events)-1-i] = e.Context()
	}
	return out, nil
}

// AllSubtopics returns every subtopic ascending by day without identity fields.
func (b *ContextBuilder) AllSubtopics(ctx context.Context, universeID string) ([]model.SubtopicContext, error) {
	subs, err := store.FindAs[*model.Subtopic](ctx, b.store, model.CollectionSubtopics,
		model.Filter{UniverseID: universeID}, model.SortAsc, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("reading subtopics: %w", err)
	}
	out := make([]model.SubtopicContext, len(subs))
	for i, s := range subs {
		out[i] = s.Context()
	}
	return out, nil
}

// Window is the rendered context shared by every step of one cycle.
type Window struct {
	Seed           string
	RecentTimeline string
	Subtopics      string
}

// Build renders the context window. A read failure is logged and the
// affected part falls back to an empty value; it never fails the cycle.
func (b *ContextBuilder) Build(ctx context.Context, universeID string) Window {
	w := Window{RecentTimeline: "[]", Subtopics: "[]"}

	u, err := b.store.GetUniverse(ctx, universeID)
	if err != nil {
		b.log.Warn("universe seed unavailable", zap.String("universe_id", universeID), zap.Error(err))
	} else {
		w.Seed = u.SeedJSON()
	}

	if recent, err := b.RecentEvents(ctx, universeID); err != nil {
		b.log.Warn("recent timeline unavailable", zap.Error(err))
	} else {
		w.RecentTimeline = renderJSON(recent)
	}

	if subs, err := b.AllSubtopics(ctx, universeID); err != nil {
		b.log.Warn("previous subtopics unavailable", zap.Error(err))
	} else {
		w.Subtopics = renderJSON(subs)
	}
	return w
}

// renderJSON indents v by two spaces. Empty slices render as "[]".
func renderJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
