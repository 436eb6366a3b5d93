package idgen

import (
	"regexp"
	"testing"

	"github.com/shone114/alternate-history/internal/model"
)

func TestNew(t *testing.T) {
	for coll, prefix := range map[model.Collection]string{
		model.CollectionSubtopics: "st",
		model.CollectionProposals: "pr",
		model.CollectionJudgments: "jd",
		model.CollectionTimeline:  "tl",
		model.Collection("other"): "rec",
	} {
		id, err := New(coll)
		if err != nil {
			t.Fatalf("New(%q): %v", coll, err)
		}
		if !regexp.MustCompile(`^` + prefix + `-[0-9A-Za-z]{12}$`).MatchString(id) {
			t.Errorf("New(%q) = %q", coll, id)
		}
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 2000)
	for range 2000 {
		id, err := New(model.CollectionTimeline)
		if err != nil {
			t.Fatal(err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = struct{}{}
	}
}
