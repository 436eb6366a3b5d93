package model

// CycleResult is what a committed day-cycle produced. ProposalA or ProposalB
// may be nil when that generator failed.
type CycleResult struct {
	RunID         string         `json:"run_id"`
	DayIndex      int            `json:"day_index"`
	Subtopic      *Subtopic      `json:"subtopic"`
	ProposalA     *Proposal      `json:"proposal_a,omitempty"`
	ProposalB     *Proposal      `json:"proposal_b,omitempty"`
	Judgment      *Judgment      `json:"judgment"`
	TimelineEvent *TimelineEvent `json:"timeline_event"`
}

// ResetResult reports how many records were deleted per collection.
type ResetResult struct {
	UniverseID string               `json:"universe_id"`
	Deleted    map[Collection]int64 `json:"deleted"`
}
