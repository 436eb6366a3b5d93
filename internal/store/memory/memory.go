// Package memory implements store.Store in process memory. It enforces the
// same uniqueness rules as the postgres store and is used for local runs
// (ALTHIST_DATABASE_URL=memory://) and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/store"
)

// Store is an in-memory store.Store.
type Store struct {
	mu        sync.RWMutex
	records   map[model.Collection][]model.Record
	universes map[string]*model.Universe
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		records:   make(map[model.Collection][]model.Record),
		universes: make(map[string]*model.Universe),
	}
}

// recordKey is the uniqueness key of a record within its collection.
func recordKey(rec model.Record) string {
	key := fmt.Sprintf("%s/%d", rec.RecordUniverse(), rec.RecordDay())
	if p, ok := rec.(*model.Proposal); ok {
		key += "/" + string(p.Role)
	}
	return key
}

func matches(rec model.Record, f model.Filter) bool {
	if rec.RecordUniverse() != f.UniverseID {
		return false
	}
	if f.DayIndex != 0 && rec.RecordDay() != f.DayIndex {
		return false
	}
	if f.Role != "" {
		p, ok := rec.(*model.Proposal)
		if !ok || p.Role != f.Role {
			return false
		}
	}
	return true
}

func roleOf(rec model.Record) model.ProposalRole {
	if p, ok := rec.(*model.Proposal); ok {
		return p.Role
	}
	return ""
}

func (s *Store) Insert(_ context.Context, rec model.Record) error {
	coll := rec.RecordCollection()
	if !coll.IsValid() {
		return fmt.Errorf("insert: unknown collection %q", coll)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(rec)
	for _, existing := range s.records[coll] {
		if recordKey(existing) == key {
			return fmt.Errorf("insert %s %s: %w", coll, key, store.ErrDuplicate)
		}
	}
	s.records[coll] = append(s.records[coll], rec)
	return nil
}

func (s *Store) FindOne(ctx context.Context, coll model.Collection, filter model.Filter, order model.SortOrder) (model.Record, error) {
	recs, err := s.Find(ctx, coll, filter, order, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return recs[0], nil
}

func (s *Store) Find(_ context.Context, coll model.Collection, filter model.Filter, order model.SortOrder, skip, limit int) ([]model.Record, error) {
	if !coll.IsValid() {
		return nil, fmt.Errorf("find: unknown collection %q", coll)
	}
	s.mu.RLock()
	var out []model.Record
	for _, rec := range s.records[coll] {
		if matches(rec, filter) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].RecordDay(), out[j].RecordDay()
		if di == dj {
			return roleOf(out[i]) < roleOf(out[j])
		}
		if order == model.SortAsc {
			return di < dj
		}
		return di > dj
	})

	if skip > 0 {
		if skip >= len(out) {
			return []model.Record{}, nil
		}
		out = out[skip:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []model.Record{}
	}
	return out, nil
}

func (s *Store) DeleteMany(_ context.Context, coll model.Collection, filter model.Filter) (int64, error) {
	if !coll.IsValid() {
		return 0, fmt.Errorf("delete: unknown collection %q", coll)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[coll][:0]
	var deleted int64
	for _, rec := range s.records[coll] {
		if matches(rec, filter) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records[coll] = kept
	return deleted, nil
}

func (s *Store) GetUniverse(_ context.Context, id string) (*model.Universe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.universes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

// EnsureUniverse inserts u unless a universe with the same ID exists, and
// returns the stored universe either way.
func (s *Store) EnsureUniverse(_ context.Context, u *model.Universe) (*model.Universe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.universes[u.ID]; ok {
		return existing, nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.universes[u.ID] = u
	return u, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
