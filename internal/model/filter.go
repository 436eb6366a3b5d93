package model

// SortOrder orders records by day_index.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder maps a query value to a SortOrder, defaulting to descending.
func ParseSortOrder(s string) SortOrder {
	if s == string(SortAsc) {
		return SortAsc
	}
	return SortDesc
}

// Filter selects records within one universe. Zero values mean "any".
type Filter struct {
	UniverseID string       `json:"universe_id"`
	DayIndex   int          `json:"day_index,omitempty"`
	Role       ProposalRole `json:"role,omitempty"`
}

// Page bounds for listing endpoints.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page is a skip/limit window.
type Page struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

// Clamp returns p with skip >= 0 and 1 <= limit <= MaxPageLimit. A zero
// limit becomes DefaultPageLimit.
func (p Page) Clamp() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}
