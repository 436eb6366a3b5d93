package model

import (
	"encoding/json"
	"time"
)

// Universe is one alternate-history narrative instance. It is created once
// at bootstrap and never modified afterwards.
type Universe struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Seed      json.RawMessage `json:"seed"`
	CreatedAt time.Time       `json:"created_at"`
}

// SeedJSON returns the seed rendered for prompt substitution. A universe
// without a seed renders as an empty string.
func (u *Universe) SeedJSON() string {
	if u == nil || len(u.Seed) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(u.Seed, &v); err != nil {
		return string(u.Seed)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(u.Seed)
	}
	return string(out)
}
