package port

import (
	"context"
	"time"

	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

// StatusChange describes a committed transition for downstream consumers
type StatusChange struct {
	ApplicationID  int64
	PreviousStatus workflow.State
	NewStatus      workflow.State
	Action         workflow.Action
	Remark         string
	Actor          string
	Timestamp      time.Time
}

// StatusNotifier tells reviewers about committed transitions
type StatusNotifier interface {
	NotifyStatusChanged(ctx context.Context, change StatusChange) error
}

// HistoryExporter renders an application's audit trail as a downloadable document
type HistoryExporter interface {
	WriteHistory(app *entity.Application, records []*entity.StatusHistory) ([]byte, error)
	ContentType() string
}
