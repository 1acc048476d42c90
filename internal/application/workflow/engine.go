package workflow

import (
	"context"

	"github.com/garyjia/travel-approval/internal/domain/event"
	domainwf "github.com/garyjia/travel-approval/internal/domain/workflow"
)

// WorkflowEngine drives travel applications through the review workflow
type WorkflowEngine interface {
	// RequestTransition applies an actor's review action to an application and
	// returns the new status. Failures leave the application untouched.
	RequestTransition(ctx context.Context, applicationID int64, action domainwf.Action, remark string, actor domainwf.Actor) (domainwf.State, error)

	// NotifyResubmission moves an application the applicant has edited from
	// RESUBMIT_REQUIRED to RESUBMIT_PENDING
	NotifyResubmission(ctx context.Context, applicationID int64, actorID string) (domainwf.State, error)

	// CanRequestTransition lists the actions an actor may request from status
	CanRequestTransition(status domainwf.State, perms domainwf.PermissionSet) []domainwf.Action

	// CanEdit reports whether the applicant may edit an application in status
	CanEdit(status domainwf.State) bool

	// GetCurrentState returns the stored status of an application
	GetCurrentState(ctx context.Context, applicationID int64) (domainwf.State, error)

	// HandleEvent processes a domain event through the workflow
	HandleEvent(ctx context.Context, evt *event.Event) error
}
