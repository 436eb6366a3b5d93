package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrCycleInProgress is returned when a cycle or reset is already
	// running in this process.
	ErrCycleInProgress = errors.New("a day-cycle is already in progress")

	ErrSequencer      = errors.New("day index allocation failed")
	ErrSubtopicFailed = errors.New("subtopic selection failed")
	ErrNoProposals    = errors.New("both proposals failed")
	ErrArbiterFailed  = errors.New("arbiter failed")
	// ErrDayConflict means another writer already claimed the day index.
	ErrDayConflict = errors.New("day index already taken")
)

// CycleError describes a day-cycle that ended in FAILED.
type CycleError struct {
	RunID    string
	DayIndex int
	State    State
	Step     Step
	Err      error
}

func (e *CycleError) Error() string {
	if e.DayIndex == 0 {
		return fmt.Sprintf("cycle failed at %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("day %d failed at %s: %v", e.DayIndex, e.Step, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// AsCycleError unwraps err to a *CycleError.
func AsCycleError(err error) (*CycleError, bool) {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
