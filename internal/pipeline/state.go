package pipeline

import (
	"time"

	"github.com/shone114/alternate-history/internal/model"
)

// State is a position in the day-cycle state machine.
type State string

const (
	StateAllocating          State = "ALLOCATING"
	StateSubtopicPending     State = "SUBTOPIC_PENDING"
	StateSubtopicReady       State = "SUBTOPIC_READY"
	StateProposalsCollecting State = "PROPOSALS_COLLECTING"
	StateProposalsDone       State = "PROPOSALS_DONE"
	StateJudging             State = "JUDGING"
	StateCommitted           State = "COMMITTED"
	StateFailed              State = "FAILED"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed
}

// transitions lists the legal successor states.
var transitions = map[State][]State{
	StateAllocating:          {StateSubtopicPending, StateFailed},
	StateSubtopicPending:     {StateSubtopicReady, StateFailed},
	StateSubtopicReady:       {StateProposalsCollecting},
	StateProposalsCollecting: {StateProposalsDone},
	StateProposalsDone:       {StateJudging, StateFailed},
	StateJudging:             {StateCommitted, StateFailed},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Step names the unit of work a failure is attributed to.
type Step string

const (
	StepSequencer Step = "sequencer"
	StepSubtopic  Step = "subtopic"
	StepProposalA Step = "proposal_a"
	StepProposalB Step = "proposal_b"
	StepProposals Step = "proposals"
	StepArbiter   Step = "arbiter"
	StepCommit    Step = "commit"
)

// Transition is delivered to observers on every state change.
type Transition struct {
	RunID      string             `json:"run_id"`
	UniverseID string             `json:"universe_id"`
	DayIndex   int                `json:"day_index"`
	From       State              `json:"from"`
	To         State              `json:"to"`
	Step       Step               `json:"step,omitempty"`
	Error      string             `json:"error,omitempty"`
	Result     *model.CycleResult `json:"result,omitempty"`
	At         time.Time          `json:"at"`
}

// Observer receives state transitions synchronously from the cycle
// goroutine. Implementations must not block.
type Observer interface {
	CycleTransition(Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Transition)

func (f ObserverFunc) CycleTransition(t Transition) { f(t) }
