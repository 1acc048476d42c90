package workflow

import (
	"fmt"
	"strings"
)

// State represents an application status in the review lifecycle
type State string

const (
	StatePending          State = "PENDING"
	StateChecked          State = "CHECKED"
	StateRecommended      State = "RECOMMENDED"
	StateNotRecommended   State = "NOT_RECOMMENDED"
	StateApproved         State = "APPROVED"
	StateRejected         State = "REJECTED"
	StateResubmitRequired State = "RESUBMIT_REQUIRED"
	StateResubmitPending  State = "RESUBMIT_PENDING"
)

// InitialState is the status every application is created with
const InitialState = StatePending

// AllStates lists every state in pipeline order
var AllStates = []State{
	StatePending,
	StateChecked,
	StateRecommended,
	StateNotRecommended,
	StateApproved,
	StateRejected,
	StateResubmitRequired,
	StateResubmitPending,
}

var validStates = map[State]bool{
	StatePending:          true,
	StateChecked:          true,
	StateRecommended:      true,
	StateNotRecommended:   true,
	StateApproved:         true,
	StateRejected:         true,
	StateResubmitRequired: true,
	StateResubmitPending:  true,
}

var terminalStates = map[State]bool{
	StateNotRecommended: true,
	StateApproved:       true,
	StateRejected:       true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}

// CanEdit reports whether an application in the given status may still be edited.
// An unset status counts as not yet submitted for review.
func CanEdit(s State) bool {
	switch s {
	case "", StatePending, StateResubmitPending:
		return true
	default:
		return false
	}
}

// ParseState converts a stored or displayed status into a State.
// Matching ignores case and treats spaces and dashes as underscores, so
// "Not Recommended" and "resubmit-pending" are both accepted.
func ParseState(raw string) (State, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)

	s := State(normalized)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, raw)
	}
	return s, nil
}
