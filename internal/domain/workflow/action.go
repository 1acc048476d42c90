package workflow

import (
	"fmt"
	"strings"
)

// Action represents a named review step that can cause a state transition
type Action string

const (
	ActionCheck                        Action = "CHECK"
	ActionRecommend                    Action = "RECOMMEND"
	ActionDoNotRecommend               Action = "DO_NOT_RECOMMEND"
	ActionRequireResubmitAtChecked     Action = "REQUIRE_RESUBMIT_AT_CHECKED"
	ActionApprove                      Action = "APPROVE"
	ActionReject                       Action = "REJECT"
	ActionRequireResubmitAtRecommended Action = "REQUIRE_RESUBMIT_AT_RECOMMENDED"
	ActionResubmit                     Action = "RESUBMIT"
)

// ResubmittedRemark is recorded on every resubmission regardless of caller input
const ResubmittedRemark = "Application resubmitted"

// actionOrder is the canonical ordering used when listing actions
var actionOrder = []Action{
	ActionCheck,
	ActionRecommend,
	ActionDoNotRecommend,
	ActionRequireResubmitAtChecked,
	ActionApprove,
	ActionReject,
	ActionRequireResubmitAtRecommended,
	ActionResubmit,
}

var validActions = map[Action]bool{
	ActionCheck:                        true,
	ActionRecommend:                    true,
	ActionDoNotRecommend:               true,
	ActionRequireResubmitAtChecked:     true,
	ActionApprove:                      true,
	ActionReject:                       true,
	ActionRequireResubmitAtRecommended: true,
	ActionResubmit:                     true,
}

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}

// IsValid returns true if the action is known to the workflow
func (a Action) IsValid() bool {
	return validActions[a]
}

// IsSystem reports whether the action is raised by the system rather than requested by an actor
func (a Action) IsSystem() bool {
	return a == ActionResubmit
}

// RequestsResubmission reports whether the action sends an application back to its applicant
func (a Action) RequestsResubmission() bool {
	return a == ActionRequireResubmitAtChecked || a == ActionRequireResubmitAtRecommended
}

// ParseAction converts a client supplied action name into an Action
func ParseAction(raw string) (Action, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)

	a := Action(normalized)
	if !a.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, raw)
	}
	return a, nil
}

// sortActions orders actions canonically
func sortActions(actions map[Action]bool) []Action {
	result := make([]Action, 0, len(actions))
	for _, a := range actionOrder {
		if actions[a] {
			result = append(result, a)
		}
	}
	return result
}
