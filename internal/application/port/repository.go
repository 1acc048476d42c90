package port

import (
	"context"
	"time"

	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

// ApplicationStore is the persistence contract the workflow engine depends on
type ApplicationStore interface {
	// GetStatus returns the current status, or workflow.ErrNotFound
	GetStatus(ctx context.Context, id int64) (workflow.State, error)

	// ConditionalWriteStatus sets status, remark and attribution only if the
	// stored status still equals expected. It returns false, without writing,
	// when the status has changed since it was read.
	ConditionalWriteStatus(ctx context.Context, id int64, expected, next workflow.State, remark, actor string, at time.Time) (bool, error)

	// AppendHistory appends an audit record. Records are never updated or deleted.
	AppendHistory(ctx context.Context, id int64, record *entity.StatusHistory) error
}

// ApplicationRepository defines persistence operations for Application
type ApplicationRepository interface {
	ApplicationStore

	// Create stores a new application in the initial state
	Create(ctx context.Context, app *entity.Application) error

	// GetByID returns the application, or workflow.ErrNotFound
	GetByID(ctx context.Context, id int64) (*entity.Application, error)

	// List returns applications of one kind, newest first
	List(ctx context.Context, kind entity.Kind, limit, offset int) ([]*entity.Application, error)

	// ListHistory returns the audit trail oldest first
	ListHistory(ctx context.Context, id int64) ([]*entity.StatusHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
