package entity

import (
	"time"

	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

// StatusHistory is one append-only audit record of a status transition.
// PreviousStatus holds the status the application had before the transition.
type StatusHistory struct {
	ID             int64           `json:"id"`
	ApplicationID  int64           `json:"application_id"`
	PreviousStatus workflow.State  `json:"previous_status"`
	NewStatus      workflow.State  `json:"new_status"`
	Action         workflow.Action `json:"action"`
	Remark         string          `json:"remark"`
	Actor          string          `json:"actor"`
	Timestamp      time.Time       `json:"timestamp"`
}
