// Package store defines the collection-based persistence contract used by
// the pipeline and the read API.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shone114/alternate-history/internal/model"
)

var (
	// ErrDuplicate is returned when a record with the same
	// (universe_id, day_index[, role]) key already exists.
	ErrDuplicate = errors.New("store: duplicate key")

	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("store: not found")
)

// Store is the persistence contract. All per-day records are append-only;
// nothing is updated after insert. Every call is scoped by the universe in
// the filter.
type Store interface {
	// Insert persists rec into its collection.
	Insert(ctx context.Context, rec model.Record) error
	// FindOne returns the first record matching filter in sort order.
	FindOne(ctx context.Context, coll model.Collection, filter model.Filter, sort model.SortOrder) (model.Record, error)
	// Find returns the records matching filter ordered by day_index. A limit
	// of zero means no limit.
	Find(ctx context.Context, coll model.Collection, filter model.Filter, sort model.SortOrder, skip, limit int) ([]model.Record, error)
	// DeleteMany removes every record matching filter and returns the count.
	DeleteMany(ctx context.Context, coll model.Collection, filter model.Filter) (int64, error)

	// Universe bootstrap.
	GetUniverse(ctx context.Context, id string) (*model.Universe, error)
	EnsureUniverse(ctx context.Context, u *model.Universe) (*model.Universe, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// FindOneAs is FindOne with the result asserted to T.
func FindOneAs[T model.Record](ctx context.Context, s Store, coll model.Collection, filter model.Filter, sort model.SortOrder) (T, error) {
	var zero T
	rec, err := s.FindOne(ctx, coll, filter, sort)
	if err != nil {
		return zero, err
	}
	v, ok := rec.(T)
	if !ok {
		return zero, fmt.Errorf("store: %s record has type %T", coll, rec)
	}
	return v, nil
}

// FindAs is Find with every result asserted to T. The result is never nil.
func FindAs[T model.Record](ctx context.Context, s Store, coll model.Collection, filter model.Filter, sort model.SortOrder, skip, limit int) ([]T, error) {
	recs, err := s.Find(ctx, coll, filter, sort, skip, limit)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, ok := rec.(T)
		if !ok {
			return nil, fmt.Errorf("store: %s record has type %T", coll, rec)
		}
		out = append(out, v)
	}
	return out, nil
}
