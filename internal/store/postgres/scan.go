package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/shone114/alternate-history/internal/model"
)

// Column lists, in scan order.
const (
	universeColumns = `id, title, seed, created_at`
	subtopicColumns = `id, universe_id, day_index, selected_subtopic, reason, tags, created_at`
	proposalColumns = `id, universe_id, day_index, role, subtopic, payload, created_at`
	judgmentColumns = `id, universe_id, day_index, decision, reason, created_at`
	timelineColumns = `id, universe_id, day_index, subtopic, event, created_at`
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanUniverse(row scannable) (*model.Universe, error) {
	var u model.Universe
	var seed []byte
	if err := row.Scan(&u.ID, &u.Title, &seed, &u.CreatedAt); err != nil {
		return nil, err
	}
	if len(seed) > 0 {
		u.Seed = json.RawMessage(seed)
	}
	return &u, nil
}

func scanSubtopic(row scannable) (*model.Subtopic, error) {
	var s model.Subtopic
	var tags pq.StringArray
	if err := row.Scan(&s.ID, &s.UniverseID, &s.DayIndex, &s.SelectedSubtopic, &s.Reason, &tags, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Tags = nonNilStrings(tags)
	return &s, nil
}

func scanProposal(row scannable) (*model.Proposal, error) {
	var p model.Proposal
	var role string
	var payload []byte
	if err := row.Scan(&p.ID, &p.UniverseID, &p.DayIndex, &role, &p.Subtopic, &payload, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Role = model.ProposalRole(role)
	pl, err := decodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("proposal %s payload: %w", p.ID, err)
	}
	p.Payload = pl
	return &p, nil
}

func scanJudgment(row scannable) (*model.Judgment, error) {
	var j model.Judgment
	if err := row.Scan(&j.ID, &j.UniverseID, &j.DayIndex, &j.Decision, &j.Reason, &j.CreatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func scanTimelineEvent(row scannable) (*model.TimelineEvent, error) {
	var e model.TimelineEvent
	var event []byte
	if err := row.Scan(&e.ID, &e.UniverseID, &e.DayIndex, &e.Subtopic, &event, &e.CreatedAt); err != nil {
		return nil, err
	}
	pl, err := decodePayload(event)
	if err != nil {
		return nil, fmt.Errorf("timeline %s event: %w", e.ID, err)
	}
	e.Event = pl
	return &e, nil
}

func decodePayload(data []byte) (model.Payload, error) {
	p := model.Payload{}
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// payloadBytes encodes a payload for a JSONB column; nil encodes as {}.
func payloadBytes(p model.Payload) []byte {
	if len(p) == 0 {
		return []byte(`{}`)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return []byte(`{}`)
	}
	return data
}

// jsonbBytes returns nil for empty JSON so the column stores NULL.
func jsonbBytes(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
