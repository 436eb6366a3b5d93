package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/store"
)

func seedSubtopics(t *testing.T, s *Store, universe string, days ...int) {
	t.Helper()
	for _, d := range days {
		if err := s.Insert(context.Background(), &model.Subtopic{UniverseID: universe, DayIndex: d, SelectedSubtopic: "s"}); err != nil {
			t.Fatalf("insert day %d: %v", d, err)
		}
	}
}

func TestInsert_DuplicateDayRejected(t *testing.T) {
	s := New()
	seedSubtopics(t, s, "u", 1)

	err := s.Insert(context.Background(), &model.Subtopic{UniverseID: "u", DayIndex: 1})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Same day in another universe is fine.
	if err := s.Insert(context.Background(), &model.Subtopic{UniverseID: "other", DayIndex: 1}); err != nil {
		t.Fatalf("insert other universe: %v", err)
	}
}

func TestInsert_ProposalKeyIncludesRole(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Insert(ctx, &model.Proposal{UniverseID: "u", DayIndex: 1, Role: model.RoleA}); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, &model.Proposal{UniverseID: "u", DayIndex: 1, Role: model.RoleB}); err != nil {
		t.Fatalf("role B on same day should be allowed: %v", err)
	}
	if err := s.Insert(ctx, &model.Proposal{UniverseID: "u", DayIndex: 1, Role: model.RoleA}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second A, got %v", err)
	}
}

func TestFind_OrderSkipLimit(t *testing.T) {
	s := New()
	seedSubtopics(t, s, "u", 3, 1, 2, 5, 4)
	ctx := context.Background()

	desc, err := store.FindAs[*model.Subtopic](ctx, s, model.CollectionSubtopics, model.Filter{UniverseID: "u"}, model.SortDesc, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(desc) != 2 || desc[0].DayIndex != 4 || desc[1].DayIndex != 3 {
		t.Fatalf("desc skip=1 limit=2 got days %v", days(desc))
	}

	asc, err := store.FindAs[*model.Subtopic](ctx, s, model.CollectionSubtopics, model.Filter{UniverseID: "u"}, model.SortAsc, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := days(asc); len(got) != 5 || got[0] != 1 || got[4] != 5 {
		t.Fatalf("asc got days %v", got)
	}

	empty, err := s.Find(ctx, model.CollectionSubtopics, model.Filter{UniverseID: "u"}, model.SortAsc, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("skip past end should give empty non-nil slice, got %#v", empty)
	}
}

func TestFindOne_NotFound(t *testing.T) {
	s := New()
	_, err := s.FindOne(context.Background(), model.CollectionTimeline, model.Filter{UniverseID: "u"}, model.SortDesc)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMany_ScopedByUniverse(t *testing.T) {
	s := New()
	seedSubtopics(t, s, "u", 1, 2)
	seedSubtopics(t, s, "keep", 1)

	n, err := s.DeleteMany(context.Background(), model.CollectionSubtopics, model.Filter{UniverseID: "u"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("deleted %d, want 2", n)
	}
	rest, _ := s.Find(context.Background(), model.CollectionSubtopics, model.Filter{UniverseID: "keep"}, model.SortAsc, 0, 0)
	if len(rest) != 1 {
		t.Fatalf("other universe lost records: %d left", len(rest))
	}
}

func TestEnsureUniverse_Immutable(t *testing.T) {
	s := New()
	ctx := context.Background()
	first, err := s.EnsureUniverse(ctx, &model.Universe{ID: "u", Title: "first"})
	if err != nil {
		t.Fatal(err)
	}
	if first.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on insert")
	}
	second, err := s.EnsureUniverse(ctx, &model.Universe{ID: "u", Title: "second"})
	if err != nil {
		t.Fatal(err)
	}
	if second.Title != "first" {
		t.Fatalf("universe was overwritten: title=%q", second.Title)
	}
	if _, err := s.GetUniverse(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func days(subs []*model.Subtopic) []int {
	out := make([]int, len(subs))
	for i, s := range subs {
		out[i] = s.DayIndex
	}
	return out
}
