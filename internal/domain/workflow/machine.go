package workflow

import (
	"fmt"
	"strings"
)

// Transition describes a resolved, validated state change
type Transition struct {
	From           State
	To             State
	Action         Action
	Permission     Permission
	RemarkRequired bool
}

// StateMachine represents a state machine that tracks current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the action is legal in the current state
	CanFire(action Action) bool

	// Evaluate checks legality, authorization and remark rules without moving
	Evaluate(action Action, perms PermissionSet, remark string) (Transition, error)

	// Fire evaluates the action and moves to the resulting state on success
	Fire(action Action, perms PermissionSet, remark string) (Transition, error)

	// PermittedTriggers returns all actions legal in the current state
	PermittedTriggers() []Action

	// AuthorizedActions returns the actor-requestable actions that are both legal and authorized
	AuthorizedActions(perms PermissionSet) []Action
}

// stateMachine implements StateMachine
type stateMachine struct {
	currentState   State
	configurations map[State]*stateConfig
}

// State returns the current state
func (m *stateMachine) State() State {
	return m.currentState
}

// CanFire returns true if the action is legal in the current state
func (m *stateMachine) CanFire(action Action) bool {
	_, ok := m.lookup(action)
	return ok
}

// Evaluate checks, in order, legality, authorization and the remark rule
func (m *stateMachine) Evaluate(action Action, perms PermissionSet, remark string) (Transition, error) {
	t, ok := m.lookup(action)
	if !ok {
		return Transition{}, fmt.Errorf("%w: cannot apply %s from state %s", ErrIllegalTransition, action, m.currentState)
	}

	required := requiredPermission(action, t)
	if !perms.Has(required) {
		return Transition{}, fmt.Errorf("%w: %s from state %s requires %s", ErrUnauthorized, action, m.currentState, required)
	}

	if t.remarkRequired && strings.TrimSpace(remark) == "" {
		return Transition{}, fmt.Errorf("%w: %s from state %s", ErrRemarkRequired, action, m.currentState)
	}

	return Transition{
		From:           m.currentState,
		To:             t.toState,
		Action:         action,
		Permission:     required,
		RemarkRequired: t.remarkRequired,
	}, nil
}

// Fire evaluates the action and moves to the resulting state on success
func (m *stateMachine) Fire(action Action, perms PermissionSet, remark string) (Transition, error) {
	t, err := m.Evaluate(action, perms, remark)
	if err != nil {
		return Transition{}, err
	}
	m.currentState = t.To
	return t, nil
}

// PermittedTriggers returns all actions legal in the current state
func (m *stateMachine) PermittedTriggers() []Action {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []Action{}
	}

	legal := make(map[Action]bool, len(config.transitions))
	for action := range config.transitions {
		legal[action] = true
	}
	return sortActions(legal)
}

// AuthorizedActions returns the actor-requestable actions that are both legal and authorized.
// It applies the same predicate as Evaluate, minus the remark rule.
func (m *stateMachine) AuthorizedActions(perms PermissionSet) []Action {
	allowed := make([]Action, 0)
	for _, action := range m.PermittedTriggers() {
		if action.IsSystem() {
			continue
		}
		t, _ := m.lookup(action)
		if perms.Has(requiredPermission(action, t)) {
			allowed = append(allowed, action)
		}
	}
	return allowed
}

func (m *stateMachine) lookup(action Action) (transition, bool) {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return transition{}, false
	}
	t, exists := config.transitions[action]
	return t, exists
}

// requiredPermission resolves the capability for a transition. A resubmission
// request without a stage permission falls back to PermissionRequireResubmit.
func requiredPermission(action Action, t transition) Permission {
	if t.permission != PermissionNone {
		return t.permission
	}
	if action.RequestsResubmission() {
		return PermissionRequireResubmit
	}
	return PermissionNone
}
