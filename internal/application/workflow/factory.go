package workflow

import (
	domainwf "github.com/garyjia/travel-approval/internal/domain/workflow"
)

// BuildApplicationStateMachine creates a state machine configured for the
// travel application review workflow. PO and PM applications share it.
func BuildApplicationStateMachine(initialState domainwf.State) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	// PENDING state transitions
	builder.Configure(domainwf.StatePending).
		Permit(domainwf.ActionCheck, domainwf.StateChecked,
			domainwf.RequirePermission(domainwf.PermissionChecking))

	// RESUBMIT_PENDING behaves like PENDING
	builder.Configure(domainwf.StateResubmitPending).
		Permit(domainwf.ActionCheck, domainwf.StateChecked,
			domainwf.RequirePermission(domainwf.PermissionChecking))

	// CHECKED state transitions
	builder.Configure(domainwf.StateChecked).
		Permit(domainwf.ActionRecommend, domainwf.StateRecommended,
			domainwf.RequirePermission(domainwf.PermissionRecommending)).
		Permit(domainwf.ActionDoNotRecommend, domainwf.StateNotRecommended,
			domainwf.RequirePermission(domainwf.PermissionRecommending),
			domainwf.RequireRemark()).
		Permit(domainwf.ActionRequireResubmitAtChecked, domainwf.StateResubmitRequired,
			domainwf.RequirePermission(domainwf.PermissionRecommending),
			domainwf.RequireRemark())

	// RECOMMENDED state transitions
	builder.Configure(domainwf.StateRecommended).
		Permit(domainwf.ActionApprove, domainwf.StateApproved,
			domainwf.RequirePermission(domainwf.PermissionApproving)).
		Permit(domainwf.ActionReject, domainwf.StateRejected,
			domainwf.RequirePermission(domainwf.PermissionApproving),
			domainwf.RequireRemark()).
		Permit(domainwf.ActionRequireResubmitAtRecommended, domainwf.StateResubmitRequired,
			domainwf.RequirePermission(domainwf.PermissionApproving),
			domainwf.RequireRemark())

	// RESUBMIT_REQUIRED only leaves through the applicant's edit
	builder.Configure(domainwf.StateResubmitRequired).
		Permit(domainwf.ActionResubmit, domainwf.StateResubmitPending)

	// NOT_RECOMMENDED, APPROVED and REJECTED are terminal states - no outgoing transitions

	return builder.Build(initialState)
}
