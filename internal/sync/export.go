package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string                   `json:"version"`
	Type       string                   `json:"type"`
	Timestamp  time.Time                `json:"timestamp"`
	UniverseID string                   `json:"universe_id"`
	Counts     map[model.Collection]int `json:"counts"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// recordTypes maps each collection to its line type.
var recordTypes = map[model.Collection]string{
	model.CollectionSubtopics: "subtopic",
	model.CollectionProposals: "proposal",
	model.CollectionJudgments: "judgment",
	model.CollectionTimeline:  "timeline",
}

// ExportJSONL writes the universe record and every per-day record as JSONL
// to w. Collections are written in cycle order, each ascending by day. It
// returns the number of records written, excluding the header.
func ExportJSONL(ctx context.Context, s store.Store, universeID string, w io.Writer) (int, error) {
	universe, err := s.GetUniverse(ctx, universeID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("get universe: %w", err)
	}

	filter := model.Filter{UniverseID: universeID}
	byColl := make(map[model.Collection][]model.Record, len(model.DayCollections))
	counts := make(map[model.Collection]int, len(model.DayCollections))
	for _, coll := range model.DayCollections {
		recs, err := s.Find(ctx, coll, filter, model.SortAsc, 0, 0)
		if err != nil {
			return 0, fmt.Errorf("list %s: %w", coll, err)
		}
		byColl[coll] = recs
		counts[coll] = len(recs)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		UniverseID: universeID,
		Counts:     counts,
	}); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}

	n := 0
	if universe != nil {
		if err := enc.Encode(record{Type: "universe", Data: universe}); err != nil {
			return n, fmt.Errorf("encode universe: %w", err)
		}
		n++
	}
	for _, coll := range model.DayCollections {
		for _, rec := range byColl[coll] {
			if err := enc.Encode(record{Type: recordTypes[coll], Data: rec}); err != nil {
				return n, fmt.Errorf("encode %s day %d: %w", coll, rec.RecordDay(), err)
			}
			n++
		}
	}
	return n, nil
}
