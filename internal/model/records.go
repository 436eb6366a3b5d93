package model

import (
	"encoding/json"
	"time"
)

// Collection names one of the append-only record collections.
type Collection string

const (
	CollectionSubtopics Collection = "subtopics"
	CollectionProposals Collection = "proposals"
	CollectionJudgments Collection = "judgments"
	CollectionTimeline  Collection = "timeline"
)

// DayCollections lists the collections that hold per-day records, in the
// order they are written during a cycle.
var DayCollections = []Collection{
	CollectionSubtopics,
	CollectionProposals,
	CollectionJudgments,
	CollectionTimeline,
}

// IsValid reports whether c is a known collection.
func (c Collection) IsValid() bool {
	switch c {
	case CollectionSubtopics, CollectionProposals, CollectionJudgments, CollectionTimeline:
		return true
	}
	return false
}

// ProposalRole identifies which generator produced a proposal.
type ProposalRole string

const (
	RoleA ProposalRole = "A"
	RoleB ProposalRole = "B"
)

// Record is implemented by every per-day record type.
type Record interface {
	RecordCollection() Collection
	RecordDay() int
	RecordUniverse() string
}

// Subtopic is the focus chosen for a day.
type Subtopic struct {
	ID               string    `json:"id"`
	UniverseID       string    `json:"universe_id"`
	DayIndex         int       `json:"day_index"`
	SelectedSubtopic string    `json:"selected_subtopic"`
	Reason           string    `json:"reason"`
	Tags             []string  `json:"tags"`
	CreatedAt        time.Time `json:"created_at"`
}

func (s *Subtopic) RecordCollection() Collection { return CollectionSubtopics }
func (s *Subtopic) RecordDay() int               { return s.DayIndex }
func (s *Subtopic) RecordUniverse() string       { return s.UniverseID }

// SubtopicContext is a Subtopic without identity fields.
type SubtopicContext struct {
	DayIndex         int      `json:"day_index"`
	SelectedSubtopic string   `json:"selected_subtopic"`
	Reason           string   `json:"reason"`
	Tags             []string `json:"tags"`
}

// Context strips identity and bookkeeping fields.
func (s *Subtopic) Context() SubtopicContext {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	return SubtopicContext{
		DayIndex:         s.DayIndex,
		SelectedSubtopic: s.SelectedSubtopic,
		Reason:           s.Reason,
		Tags:             tags,
	}
}

// Proposal is one candidate continuation. Payload carries whatever fields the
// generator returned; on the wire they are flattened next to the known fields.
type Proposal struct {
	ID         string
	UniverseID string
	DayIndex   int
	Role       ProposalRole
	Subtopic   string
	CreatedAt  time.Time
	Payload    Payload
}

func (p *Proposal) RecordCollection() Collection { return CollectionProposals }
func (p *Proposal) RecordDay() int               { return p.DayIndex }
func (p *Proposal) RecordUniverse() string       { return p.UniverseID }

// proposalKnownKeys are reserved for the known fields and never taken from
// the payload.
var proposalKnownKeys = []string{"id", "universe_id", "day_index", "role", "subtopic", "created_at"}

// MarshalJSON flattens the payload; known fields win on key collisions.
func (p Proposal) MarshalJSON() ([]byte, error) {
	out := p.Payload.Clone()
	out["id"] = p.ID
	out["universe_id"] = p.UniverseID
	out["day_index"] = p.DayIndex
	out["role"] = p.Role
	out["subtopic"] = p.Subtopic
	out["created_at"] = p.CreatedAt
	return json.Marshal(map[string]any(out))
}

// UnmarshalJSON splits a flattened document back into known fields and payload.
func (p *Proposal) UnmarshalJSON(data []byte) error {
	var known struct {
		ID         string       `json:"id"`
		UniverseID string       `json:"universe_id"`
		DayIndex   int          `json:"day_index"`
		Role       ProposalRole `json:"role"`
		Subtopic   string       `json:"subtopic"`
		CreatedAt  time.Time    `json:"created_at"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range proposalKnownKeys {
		delete(all, k)
	}
	*p = Proposal{
		ID:         known.ID,
		UniverseID: known.UniverseID,
		DayIndex:   known.DayIndex,
		Role:       known.Role,
		Subtopic:   known.Subtopic,
		CreatedAt:  known.CreatedAt,
		Payload:    Payload(all),
	}
	return nil
}

// Context returns only the narrative payload, which is what the arbiter sees.
// A nil proposal yields an empty payload so both arbiter inputs keep the same
// shape.
func (p *Proposal) Context() Payload {
	if p == nil {
		return Payload{}
	}
	return p.Payload.Stripped()
}

// Judgment records the arbiter's decision for a committed day.
type Judgment struct {
	ID         string    `json:"id"`
	UniverseID string    `json:"universe_id"`
	DayIndex   int       `json:"day_index"`
	Decision   string    `json:"decision"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

func (j *Judgment) RecordCollection() Collection { return CollectionJudgments }
func (j *Judgment) RecordDay() int               { return j.DayIndex }
func (j *Judgment) RecordUniverse() string       { return j.UniverseID }

// TimelineEvent is the canonical narrative record for a day.
type TimelineEvent struct {
	ID         string    `json:"id"`
	UniverseID string    `json:"universe_id"`
	DayIndex   int       `json:"day_index"`
	Subtopic   string    `json:"subtopic"`
	Event      Payload   `json:"event"`
	CreatedAt  time.Time `json:"created_at"`
}

func (e *TimelineEvent) RecordCollection() Collection { return CollectionTimeline }
func (e *TimelineEvent) RecordDay() int               { return e.DayIndex }
func (e *TimelineEvent) RecordUniverse() string       { return e.UniverseID }

// TimelineContext is a TimelineEvent without identity fields.
type TimelineContext struct {
	DayIndex int     `json:"day_index"`
	Subtopic string  `json:"subtopic"`
	Event    Payload `json:"event"`
}

// Context strips identity and bookkeeping fields.
func (e *TimelineEvent) Context() TimelineContext {
	event := e.Event
	if event == nil {
		event = Payload{}
	}
	return TimelineContext{
		DayIndex: e.DayIndex,
		Subtopic: e.Subtopic,
		Event:    event,
	}
}
