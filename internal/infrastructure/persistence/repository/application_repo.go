package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
	"github.com/garyjia/travel-approval/internal/infrastructure/persistence/sqlite"
)

const applicationColumns = `
	id, kind, title, applicant_id, status, status_remark,
	status_updated_by, status_updated_at, created_at, updated_at
`

// ApplicationRepository implements port.ApplicationRepository
type ApplicationRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db *sqlite.DB, logger *zap.Logger) port.ApplicationRepository {
	return &ApplicationRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new application. Every application starts in the initial
// state whatever status the caller set.
func (r *ApplicationRepository) Create(ctx context.Context, app *entity.Application) error {
	if !app.Kind.IsValid() {
		return fmt.Errorf("unknown application kind: %q", app.Kind)
	}

	now := time.Now().UTC()
	app.Status = workflow.InitialState
	app.StatusRemark = ""
	app.StatusUpdatedBy = ""
	app.StatusUpdatedAt = time.Time{}
	app.CreatedAt = now
	app.UpdatedAt = now

	query := `
		INSERT INTO applications (
			kind, title, applicant_id, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		string(app.Kind),
		app.Title,
		app.ApplicantID,
		app.Status.String(),
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create application", zap.Error(err))
		return fmt.Errorf("failed to create application: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	app.ID = id
	return nil
}

// GetByID retrieves an application by ID
func (r *ApplicationRepository) GetByID(ctx context.Context, id int64) (*entity.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = ?`

	app, err := scanApplication(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", workflow.ErrNotFound, id)
		}
		r.logger.Error("Failed to get application", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	return app, nil
}

// List returns applications of one kind, newest first
func (r *ApplicationRepository) List(ctx context.Context, kind entity.Kind, limit, offset int) ([]*entity.Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM applications
		WHERE kind = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, string(kind), limit, offset)
	if err != nil {
		r.logger.Error("Failed to list applications", zap.String("kind", string(kind)), zap.Error(err))
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	apps := make([]*entity.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}

	return apps, rows.Err()
}

// GetStatus returns the current status of an application
func (r *ApplicationRepository) GetStatus(ctx context.Context, id int64) (workflow.State, error) {
	var raw string
	err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT status FROM applications WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: id %d", workflow.ErrNotFound, id)
		}
		r.logger.Error("Failed to get application status", zap.Int64("id", id), zap.Error(err))
		return "", fmt.Errorf("failed to get application status: %w", err)
	}

	status, err := workflow.ParseState(raw)
	if err != nil {
		return "", fmt.Errorf("application %d: %w", id, err)
	}
	return status, nil
}

// ConditionalWriteStatus updates status and attribution only while the stored
// status equals expected
func (r *ApplicationRepository) ConditionalWriteStatus(ctx context.Context, id int64, expected, next workflow.State, remark, actor string, at time.Time) (bool, error) {
	query := `
		UPDATE applications
		SET status = ?, status_remark = ?, status_updated_by = ?,
			status_updated_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		next.String(),
		remark,
		actor,
		at.UTC(),
		at.UTC(),
		id,
		expected.String(),
	)
	if err != nil {
		r.logger.Error("Failed to write application status",
			zap.Int64("id", id),
			zap.String("expected", expected.String()),
			zap.String("next", next.String()),
			zap.Error(err))
		return false, fmt.Errorf("failed to write application status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

// AppendHistory inserts an audit record for application id
func (r *ApplicationRepository) AppendHistory(ctx context.Context, id int64, record *entity.StatusHistory) error {
	query := `
		INSERT INTO application_status_history (
			application_id, previous_status, new_status, action,
			remark, actor, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		id,
		record.PreviousStatus.String(),
		record.NewStatus.String(),
		record.Action.String(),
		record.Remark,
		record.Actor,
		record.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append status history", zap.Int64("application_id", id), zap.Error(err))
		return fmt.Errorf("failed to append status history: %w", err)
	}

	historyID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	record.ID = historyID
	record.ApplicationID = id
	return nil
}

// ListHistory returns the audit trail of an application, oldest first
func (r *ApplicationRepository) ListHistory(ctx context.Context, id int64) ([]*entity.StatusHistory, error) {
	query := `
		SELECT id, application_id, previous_status, new_status, action,
			remark, actor, timestamp
		FROM application_status_history
		WHERE application_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to list status history", zap.Int64("application_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	defer rows.Close()

	records := make([]*entity.StatusHistory, 0)
	for rows.Next() {
		var (
			record                 entity.StatusHistory
			previous, next, action string
		)
		if err := rows.Scan(
			&record.ID,
			&record.ApplicationID,
			&previous,
			&next,
			&action,
			&record.Remark,
			&record.Actor,
			&record.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		record.PreviousStatus = workflow.State(previous)
		record.NewStatus = workflow.State(next)
		record.Action = workflow.Action(action)
		records = append(records, &record)
	}

	return records, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*entity.Application, error) {
	var (
		app             entity.Application
		kind, status    string
		statusUpdatedAt sql.NullTime
	)

	if err := row.Scan(
		&app.ID,
		&kind,
		&app.Title,
		&app.ApplicantID,
		&status,
		&app.StatusRemark,
		&app.StatusUpdatedBy,
		&statusUpdatedAt,
		&app.CreatedAt,
		&app.UpdatedAt,
	); err != nil {
		return nil, err
	}

	app.Kind = entity.Kind(strings.ToUpper(kind))
	app.Status = workflow.State(status)
	if statusUpdatedAt.Valid {
		app.StatusUpdatedAt = statusUpdatedAt.Time
	}

	return &app, nil
}

// Verify interface compliance
var _ port.ApplicationRepository = (*ApplicationRepository)(nil)
