package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/store/memory"
)

const testUniverse = "cold_war_no_moon_landing"

// newTestStore returns a memory store holding two committed days, inserted
// out of order to check sorting.
func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	ms := memory.New()
	now := time.Now().UTC()
	if _, err := ms.EnsureUniverse(ctx, &model.Universe{ID: testUniverse, Title: "Cold War", Seed: json.RawMessage(`{"year":1969}`)}); err != nil {
		t.Fatal(err)
	}
	for _, day := range []int{2, 1} {
		recs := []model.Record{
			&model.Subtopic{ID: "st-" + string(rune('0'+day)), UniverseID: testUniverse, DayIndex: day, SelectedSubtopic: "topic", CreatedAt: now},
			&model.Proposal{ID: "pr-a" + string(rune('0'+day)), UniverseID: testUniverse, DayIndex: day, Role: model.RoleA, Payload: model.Payload{"headline": "a"}, CreatedAt: now},
			&model.Judgment{ID: "jd-" + string(rune('0'+day)), UniverseID: testUniverse, DayIndex: day, Decision: "A", CreatedAt: now},
			&model.TimelineEvent{ID: "tl-" + string(rune('0'+day)), UniverseID: testUniverse, DayIndex: day, Event: model.Payload{"headline": "a"}, CreatedAt: now},
		}
		for _, r := range recs {
			if err := ms.Insert(ctx, r); err != nil {
				t.Fatal(err)
			}
		}
	}
	// Another universe must not leak into the export.
	if err := ms.Insert(ctx, &model.Subtopic{ID: "st-x", UniverseID: "other", DayIndex: 1}); err != nil {
		t.Fatal(err)
	}
	return ms
}

func TestExportJSONL_Empty(t *testing.T) {
	var buf bytes.Buffer
	n, err := ExportJSONL(context.Background(), memory.New(), testUniverse, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("records = %d, want 0", n)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}
	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != "1" || h.Type != "header" || h.UniverseID != testUniverse {
		t.Fatalf("unexpected header: %+v", h)
	}
	for _, coll := range model.DayCollections {
		if h.Counts[coll] != 0 {
			t.Errorf("count[%s] = %d, want 0", coll, h.Counts[coll])
		}
	}
}

func TestExportJSONL_WithDays(t *testing.T) {
	ms := newTestStore(t)

	var buf bytes.Buffer
	n, err := ExportJSONL(context.Background(), ms, testUniverse, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// universe + 2 days x 4 records
	if n != 9 {
		t.Fatalf("records = %d, want 9", n)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 10 {
		t.Fatalf("expected 10 lines, got %d:\n%s", len(lines), buf.String())
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Counts[model.CollectionTimeline] != 2 || h.Counts[model.CollectionSubtopics] != 2 {
		t.Fatalf("header counts: %+v", h.Counts)
	}

	wantTypes := []string{"universe", "subtopic", "subtopic", "proposal", "proposal", "judgment", "judgment", "timeline", "timeline"}
	for i, want := range wantTypes {
		var rec struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		if err := json.Unmarshal([]byte(lines[i+1]), &rec); err != nil {
			t.Fatalf("unmarshal line %d: %v", i+1, err)
		}
		if rec.Type != want {
			t.Fatalf("line %d type = %q, want %q", i+1, rec.Type, want)
		}
		if want == "universe" {
			continue
		}
		// Records within a collection ascend by day.
		wantDay := float64(1 + (i-1)%2)
		if rec.Data["day_index"] != wantDay {
			t.Errorf("line %d day_index = %v, want %v", i+1, rec.Data["day_index"], wantDay)
		}
		if want == "proposal" && rec.Data["headline"] != "a" {
			t.Errorf("proposal payload not flattened: %v", rec.Data)
		}
	}
}

func nonEmptyLines(s string) []string {
	var result []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
