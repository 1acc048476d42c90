package event

// Type identifies the type of domain event
type Type string

const (
	// TypeStatusChanged is emitted after a transition commits
	TypeStatusChanged Type = "application.status_changed"

	// TypeApplicationEdited is raised by the form collaborator after an applicant edits content
	TypeApplicationEdited Type = "application.edited"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeStatusChanged, TypeApplicationEdited:
		return true
	default:
		return false
	}
}
