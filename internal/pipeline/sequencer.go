package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/store"
)

// Sequencer derives the next day index from the subtopics collection. It
// takes no lock: two callers may get the same index, and the store's
// uniqueness constraint rejects the second subtopic insert.
type Sequencer struct {
	store store.Store
}

func NewSequencer(s store.Store) *Sequencer {
	return &Sequencer{store: s}
}

// NextDayIndex returns 1 for an empty universe, otherwise the highest
// subtopic day_index plus one.
func (s *Sequencer) NextDayIndex(ctx context.Context, universeID string) (int, error) {
	last, err := store.FindOneAs[*model.Subtopic](ctx, s.store, model.CollectionSubtopics,
		model.Filter{UniverseID: universeID}, model.SortDesc)
	if errors.Is(err, store.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading latest subtopic: %w", err)
	}
	return last.DayIndex + 1, nil
}
