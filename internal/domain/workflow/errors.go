package workflow

import "errors"

var (
	// ErrIllegalTransition is returned when an action is not legal from the current state
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrUnauthorized is returned when the actor lacks the permission for a (state, action) pair
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRemarkRequired is returned when a transition needs a remark and none was given
	ErrRemarkRequired = errors.New("remark required")

	// ErrNotFound is returned when the application does not exist
	ErrNotFound = errors.New("application not found")

	// ErrConflict is returned when a concurrent transition changed the status first
	ErrConflict = errors.New("concurrent status change")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidAction is returned when an action name is not known
	ErrInvalidAction = errors.New("invalid action")
)
