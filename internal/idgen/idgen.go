// Package idgen mints record IDs of the form "<prefix>-<nanoid>", where the
// prefix names the collection ("tl-Xk3...").
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/shone114/alternate-history/internal/model"
)

const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	size     = 12
)

// fallbackPrefix is used for collections without their own prefix.
const fallbackPrefix = "rec"

var prefixes = map[model.Collection]string{
	model.CollectionSubtopics: "st",
	model.CollectionProposals: "pr",
	model.CollectionJudgments: "jd",
	model.CollectionTimeline:  "tl",
}

// New returns a fresh ID for a record in c.
func New(c model.Collection) (string, error) {
	prefix, ok := prefixes[c]
	if !ok {
		prefix = fallbackPrefix
	}
	suffix, err := nanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + "-" + suffix, nil
}
