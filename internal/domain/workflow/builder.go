package workflow

import (
	"fmt"
)

// TransitionOption configures a single permitted transition
type TransitionOption func(*transition)

// RequirePermission sets the capability the actor must hold to fire the transition
func RequirePermission(p Permission) TransitionOption {
	return func(t *transition) {
		t.permission = p
	}
}

// RequireRemark makes a non-blank remark mandatory for the transition
func RequireRemark() TransitionOption {
	return func(t *transition) {
		t.remarkRequired = true
	}
}

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Build creates a new state machine instance with the given initial state
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows an action to transition to the target state
	Permit(action Action, toState State, opts ...TransitionOption) StateConfiguration
}

// transition represents a permitted state transition and its requirements
type transition struct {
	toState        State
	permission     Permission
	remarkRequired bool
}

// stateConfig implements StateConfiguration
type stateConfig struct {
	fromState   State
	transitions map[Action]transition
}

// stateMachineBuilder implements StateMachineBuilder
type stateMachineBuilder struct {
	configurations map[State]*stateConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if state.IsTerminal() {
		panic(fmt.Sprintf("terminal state cannot have transitions: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			fromState:   state,
			transitions: make(map[Action]transition),
		}
		b.configurations[state] = config
	}

	return config
}

// Build creates a new state machine instance with the given initial state
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	// Copy so later Configure calls do not leak into built machines
	configsCopy := make(map[State]*stateConfig, len(b.configurations))
	for state, config := range b.configurations {
		transitionsCopy := make(map[Action]transition, len(config.transitions))
		for action, t := range config.transitions {
			transitionsCopy[action] = t
		}
		configsCopy[state] = &stateConfig{
			fromState:   state,
			transitions: transitionsCopy,
		}
	}

	return &stateMachine{
		currentState:   initialState,
		configurations: configsCopy,
	}
}

// Permit allows an action to transition to the target state
func (c *stateConfig) Permit(action Action, toState State, opts ...TransitionOption) StateConfiguration {
	if !action.IsValid() {
		panic(fmt.Sprintf("invalid action: %s", action))
	}
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	if _, exists := c.transitions[action]; exists {
		panic(fmt.Sprintf("duplicate transition: %s from %s", action, c.fromState))
	}

	t := transition{toState: toState}
	for _, opt := range opts {
		opt(&t)
	}
	c.transitions[action] = t

	return c
}
