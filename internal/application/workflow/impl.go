package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/travel-approval/internal/application/dispatcher"
	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/event"
	domainwf "github.com/garyjia/travel-approval/internal/domain/workflow"
)

// Outcome labels reported to the Recorder
const (
	OutcomeOK             = "ok"
	OutcomeIllegal        = "illegal"
	OutcomeUnauthorized   = "unauthorized"
	OutcomeRemarkRequired = "remark_required"
	OutcomeConflict       = "conflict"
	OutcomeNotFound       = "not_found"
	OutcomeError          = "error"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Recorder receives one observation per transition request
type Recorder interface {
	ObserveTransition(action, outcome string, elapsed time.Duration)
}

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	store      port.ApplicationStore
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     Logger
	recorder   Recorder
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(logger Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithRecorder sets the transition metrics recorder
func WithRecorder(r Recorder) EngineOption {
	return func(e *engineImpl) {
		e.recorder = r
	}
}

// WithClock overrides the clock used for status and history timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(store port.ApplicationStore, txManager port.TransactionManager, opts ...EngineOption) WorkflowEngine {
	e := &engineImpl{
		store:     store,
		txManager: txManager,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RequestTransition applies an actor's review action to an application
func (e *engineImpl) RequestTransition(ctx context.Context, applicationID int64, action domainwf.Action, remark string, actor domainwf.Actor) (domainwf.State, error) {
	started := time.Now()
	next, err := e.requestTransition(ctx, applicationID, action, remark, actor)
	e.observe(action, err, started)
	return next, err
}

func (e *engineImpl) requestTransition(ctx context.Context, applicationID int64, action domainwf.Action, remark string, actor domainwf.Actor) (domainwf.State, error) {
	if !action.IsValid() {
		return "", fmt.Errorf("%w: %s", domainwf.ErrInvalidAction, action)
	}

	current, err := e.loadStatus(ctx, applicationID)
	if err != nil {
		return "", err
	}

	// RESUBMIT is raised by the applicant's edit, never requested by a reviewer
	if action.IsSystem() {
		err := fmt.Errorf("%w: %s cannot be requested directly", domainwf.ErrIllegalTransition, action)
		e.logRejected(applicationID, current, action, actor.ID, err)
		return "", err
	}

	machine := BuildApplicationStateMachine(current)
	t, err := machine.Fire(action, actor.Permissions, remark)
	if err != nil {
		e.logRejected(applicationID, current, action, actor.ID, err)
		return "", err
	}

	if err := e.commit(ctx, applicationID, t, remark, actor.ID); err != nil {
		return "", err
	}

	return t.To, nil
}

// NotifyResubmission moves an edited application back into review
func (e *engineImpl) NotifyResubmission(ctx context.Context, applicationID int64, actorID string) (domainwf.State, error) {
	started := time.Now()
	next, err := e.notifyResubmission(ctx, applicationID, actorID)
	e.observe(domainwf.ActionResubmit, err, started)
	return next, err
}

func (e *engineImpl) notifyResubmission(ctx context.Context, applicationID int64, actorID string) (domainwf.State, error) {
	current, err := e.loadStatus(ctx, applicationID)
	if err != nil {
		return "", err
	}

	machine := BuildApplicationStateMachine(current)
	t, err := machine.Fire(domainwf.ActionResubmit, domainwf.PermissionSet(0), domainwf.ResubmittedRemark)
	if err != nil {
		e.logRejected(applicationID, current, domainwf.ActionResubmit, actorID, err)
		return "", err
	}

	if err := e.commit(ctx, applicationID, t, domainwf.ResubmittedRemark, actorID); err != nil {
		return "", err
	}

	return t.To, nil
}

// CanRequestTransition lists the actions an actor may request from status
func (e *engineImpl) CanRequestTransition(status domainwf.State, perms domainwf.PermissionSet) []domainwf.Action {
	if !status.IsValid() {
		return []domainwf.Action{}
	}
	return BuildApplicationStateMachine(status).AuthorizedActions(perms)
}

// CanEdit reports whether the applicant may edit an application in status
func (e *engineImpl) CanEdit(status domainwf.State) bool {
	return domainwf.CanEdit(status)
}

// GetCurrentState returns the stored status of an application
func (e *engineImpl) GetCurrentState(ctx context.Context, applicationID int64) (domainwf.State, error) {
	return e.loadStatus(ctx, applicationID)
}

// HandleEvent processes a domain event through the workflow
func (e *engineImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if evt.ApplicationID == 0 {
		return fmt.Errorf("event %s has no application ID", evt.ID)
	}

	switch evt.Type {
	case event.TypeApplicationEdited:
		current, err := e.loadStatus(ctx, evt.ApplicationID)
		if err != nil {
			return err
		}
		// Edits outside RESUBMIT_REQUIRED are ordinary form updates
		if !BuildApplicationStateMachine(current).CanFire(domainwf.ActionResubmit) {
			return nil
		}

		_, err = e.NotifyResubmission(ctx, evt.ApplicationID, evt.Actor)
		// Another edit event may have resubmitted first
		if errors.Is(err, domainwf.ErrConflict) || errors.Is(err, domainwf.ErrIllegalTransition) {
			return nil
		}
		return err

	case event.TypeStatusChanged:
		// Status changed events are results of transitions
		return nil

	default:
		return fmt.Errorf("unknown event type: %s", evt.Type)
	}
}

func (e *engineImpl) loadStatus(ctx context.Context, applicationID int64) (domainwf.State, error) {
	current, err := e.store.GetStatus(ctx, applicationID)
	if err != nil {
		if !errors.Is(err, domainwf.ErrNotFound) {
			e.logError("Failed to load application status", "application_id", applicationID, "error", err)
		}
		return "", err
	}
	if !current.IsValid() {
		return "", fmt.Errorf("%w: application %d has stored status %q", domainwf.ErrInvalidState, applicationID, current)
	}
	return current, nil
}

// commit writes the new status and its history record in one transaction.
// The write only lands if the status is still t.From.
func (e *engineImpl) commit(ctx context.Context, applicationID int64, t domainwf.Transition, remark, actorID string) error {
	at := e.now()

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		written, err := e.store.ConditionalWriteStatus(txCtx, applicationID, t.From, t.To, remark, actorID, at)
		if err != nil {
			return fmt.Errorf("failed to write application status: %w", err)
		}
		if !written {
			return fmt.Errorf("%w: application %d is no longer %s", domainwf.ErrConflict, applicationID, t.From)
		}

		record := &entity.StatusHistory{
			ApplicationID:  applicationID,
			PreviousStatus: t.From,
			NewStatus:      t.To,
			Action:         t.Action,
			Remark:         remark,
			Actor:          actorID,
			Timestamp:      at,
		}
		if err := e.store.AppendHistory(txCtx, applicationID, record); err != nil {
			return fmt.Errorf("failed to append status history: %w", err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, domainwf.ErrConflict) {
			e.logRejected(applicationID, t.From, t.Action, actorID, err)
		} else {
			e.logError("Failed to commit transition",
				"application_id", applicationID,
				"action", t.Action,
				"error", err,
			)
		}
		return err
	}

	e.logInfo("Application status changed",
		"application_id", applicationID,
		"from", t.From,
		"to", t.To,
		"action", t.Action,
		"actor", actorID,
	)

	if e.dispatcher != nil {
		statusEvent := event.NewEvent(
			event.TypeStatusChanged,
			applicationID,
			actorID,
			map[string]interface{}{
				event.PayloadPreviousStatus: t.From.String(),
				event.PayloadNewStatus:      t.To.String(),
				event.PayloadAction:         t.Action.String(),
				event.PayloadRemark:         remark,
			},
		)
		statusEvent.Timestamp = at
		// Fire async to avoid blocking
		e.dispatcher.DispatchAsync(ctx, statusEvent)
	}

	return nil
}

func (e *engineImpl) observe(action domainwf.Action, err error, started time.Time) {
	if e.recorder == nil {
		return
	}
	e.recorder.ObserveTransition(action.String(), Outcome(err), time.Since(started))
}

// Outcome classifies a transition result for metrics
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domainwf.ErrIllegalTransition), errors.Is(err, domainwf.ErrInvalidAction):
		return OutcomeIllegal
	case errors.Is(err, domainwf.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, domainwf.ErrRemarkRequired):
		return OutcomeRemarkRequired
	case errors.Is(err, domainwf.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, domainwf.ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

func (e *engineImpl) logRejected(applicationID int64, from domainwf.State, action domainwf.Action, actorID string, err error) {
	e.logInfo("Transition rejected",
		"application_id", applicationID,
		"from", from,
		"action", action,
		"actor", actorID,
		"outcome", Outcome(err),
		"reason", err.Error(),
	)
}

func (e *engineImpl) logInfo(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, keysAndValues...)
	}
}

func (e *engineImpl) logError(msg string, keysAndValues ...interface{}) {
	if e.logger != nil {
		e.logger.Error(msg, keysAndValues...)
	}
}
