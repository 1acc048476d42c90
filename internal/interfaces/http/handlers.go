package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/travel-approval/internal/application/dispatcher"
	"github.com/garyjia/travel-approval/internal/application/port"
	appworkflow "github.com/garyjia/travel-approval/internal/application/workflow"
	"github.com/garyjia/travel-approval/internal/container"
	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/event"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
	"github.com/garyjia/travel-approval/pkg/utils"
)

// Actor headers. Authentication happens upstream; these carry its result.
const (
	HeaderActorID          = "X-Actor-ID"
	HeaderActorPermissions = "X-Actor-Permissions"
)

// Error codes returned in Response.Code
const (
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeIllegalTransition = "illegal_transition"
	CodeConflict          = "conflict"
	CodeUnauthorized      = "unauthorized"
	CodeRemarkRequired    = "remark_required"
	CodeInternal          = "internal_error"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RoutePrefix returns the route group of an application kind, e.g. "/po-applications"
func RoutePrefix(kind entity.Kind) string {
	return "/" + strings.ToLower(string(kind)) + "-applications"
}

// Handlers serves one application kind
type Handlers struct {
	kind     entity.Kind
	engine   appworkflow.WorkflowEngine
	repo     port.ApplicationRepository
	exporter port.HistoryExporter
	events   dispatcher.Dispatcher
	logger   Logger
}

// NewHandlers creates a new Handlers instance scoped to kind
func NewHandlers(
	kind entity.Kind,
	engine appworkflow.WorkflowEngine,
	repo port.ApplicationRepository,
	exporter port.HistoryExporter,
	events dispatcher.Dispatcher,
	logger Logger,
) *Handlers {
	return &Handlers{
		kind:     kind,
		engine:   engine,
		repo:     repo,
		exporter: exporter,
		events:   events,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                               `json:"status"`
	Timestamp  string                               `json:"timestamp"`
	Components map[string]container.ComponentHealth `json:"components,omitempty"`
}

// ApplicationResponse represents an application in API responses
type ApplicationResponse struct {
	ID              int64    `json:"id"`
	Kind            string   `json:"kind"`
	Title           string   `json:"title"`
	ApplicantID     string   `json:"applicant_id"`
	Status          string   `json:"status"`
	StatusRemark    string   `json:"status_remark,omitempty"`
	StatusUpdatedBy string   `json:"status_updated_by,omitempty"`
	StatusUpdatedAt *string  `json:"status_updated_at,omitempty"`
	Editable        bool     `json:"editable"`
	AllowedActions  []string `json:"allowed_actions"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

// HistoryResponse represents one audit record in API responses
type HistoryResponse struct {
	ID             int64  `json:"id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	Action         string `json:"action"`
	Remark         string `json:"remark,omitempty"`
	Actor          string `json:"actor"`
	Timestamp      string `json:"timestamp"`
}

// TransitionResponse reports the status after a transition
type TransitionResponse struct {
	ApplicationID int64  `json:"application_id"`
	Action        string `json:"action"`
	Status        string `json:"status"`
}

// EditResponse reports the status after an applicant edit was recorded
type EditResponse struct {
	ApplicationID  int64  `json:"application_id"`
	PreviousStatus string `json:"previous_status"`
	Status         string `json:"status"`
	Resubmitted    bool   `json:"resubmitted"`
}

// CreateApplicationRequest is the body of POST /api/{kind}-applications
type CreateApplicationRequest struct {
	Title       string `json:"title"`
	ApplicantID string `json:"applicant_id"`
}

// TransitionRequest is the body of POST /api/{kind}-applications/:id/transitions
type TransitionRequest struct {
	Action string `json:"action"`
	Remark string `json:"remark"`
}

// ListApplicationsRequest represents query parameters for listing applications
type ListApplicationsRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// CreateApplication handles POST /api/{kind}-applications
func (h *Handlers) CreateApplication(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	var req CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	title := strings.TrimSpace(utils.SanitizeString(req.Title))
	if err := utils.ValidateTitle(title); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	applicantID := strings.TrimSpace(req.ApplicantID)
	if applicantID == "" {
		applicantID = actor.ID
	}
	if err := utils.ValidateActorID(applicantID); err != nil {
		h.badRequest(c, "invalid applicant_id")
		return
	}

	app := &entity.Application{
		Kind:        h.kind,
		Title:       title,
		ApplicantID: applicantID,
	}
	if err := h.repo.Create(c.Request.Context(), app); err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Application created", "id", app.ID, "kind", string(h.kind), "actor", actor.ID)

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    h.toApplicationResponse(app, actor.Permissions),
	})
}

// ListApplications handles GET /api/{kind}-applications
func (h *Handlers) ListApplications(c *gin.Context) {
	var req ListApplicationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	// Set defaults
	if req.Limit <= 0 || req.Limit > maxListLimit {
		req.Limit = defaultListLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	apps, err := h.repo.List(c.Request.Context(), h.kind, req.Limit, req.Offset)
	if err != nil {
		h.writeError(c, err)
		return
	}

	perms := actorPermissions(c)
	result := make([]ApplicationResponse, 0, len(apps))
	for _, app := range apps {
		result = append(result, h.toApplicationResponse(app, perms))
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// GetApplication handles GET /api/{kind}-applications/:id
func (h *Handlers) GetApplication(c *gin.Context) {
	app, ok := h.loadApplication(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.toApplicationResponse(app, actorPermissions(c)),
	})
}

// GetHistory handles GET /api/{kind}-applications/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	app, ok := h.loadApplication(c)
	if !ok {
		return
	}

	records, err := h.repo.ListHistory(c.Request.Context(), app.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	result := make([]HistoryResponse, 0, len(records))
	for _, record := range records {
		result = append(result, toHistoryResponse(record))
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// ExportHistory handles GET /api/{kind}-applications/:id/history.xlsx
func (h *Handlers) ExportHistory(c *gin.Context) {
	app, ok := h.loadApplication(c)
	if !ok {
		return
	}

	records, err := h.repo.ListHistory(c.Request.Context(), app.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	data, err := h.exporter.WriteHistory(app, records)
	if err != nil {
		h.writeError(c, err)
		return
	}

	filename := fmt.Sprintf("%s-application-%d-history.xlsx", strings.ToLower(string(h.kind)), app.ID)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, h.exporter.ContentType(), data)
}

// RequestTransition handles POST /api/{kind}-applications/:id/transitions
func (h *Handlers) RequestTransition(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	action, err := workflow.ParseAction(req.Action)
	if err != nil {
		h.writeError(c, err)
		return
	}

	app, ok := h.loadApplication(c)
	if !ok {
		return
	}

	status, err := h.engine.RequestTransition(c.Request.Context(), app.ID, action, req.Remark, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: TransitionResponse{
			ApplicationID: app.ID,
			Action:        action.String(),
			Status:        status.String(),
		},
	})
}

// NotifyResubmission handles POST /api/{kind}-applications/:id/resubmission.
// The form service calls it after the applicant saves their edits.
func (h *Handlers) NotifyResubmission(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	app, ok := h.loadApplication(c)
	if !ok {
		return
	}

	status, err := h.engine.NotifyResubmission(c.Request.Context(), app.ID, actor.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: TransitionResponse{
			ApplicationID: app.ID,
			Action:        workflow.ActionResubmit.String(),
			Status:        status.String(),
		},
	})
}

// RecordEdit handles POST /api/{kind}-applications/:id/edits. The form
// service calls it after saving an applicant's changes; the edit is published
// as application.edited and the workflow decides whether it resubmits.
func (h *Handlers) RecordEdit(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	app, ok := h.loadApplication(c)
	if !ok {
		return
	}

	evt := event.NewEvent(event.TypeApplicationEdited, app.ID, actor.ID, map[string]interface{}{
		event.PayloadPreviousStatus: app.Status.String(),
	})
	if err := h.events.Dispatch(c.Request.Context(), evt); err != nil {
		h.writeError(c, err)
		return
	}

	status, err := h.engine.GetCurrentState(c.Request.Context(), app.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: EditResponse{
			ApplicationID:  app.ID,
			PreviousStatus: app.Status.String(),
			Status:         status.String(),
			Resubmitted:    status != app.Status,
		},
	})
}

// loadApplication resolves :id within this handler's kind. Applications of
// the other kind are reported as not found.
func (h *Handlers) loadApplication(c *gin.Context) (*entity.Application, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid application ID")
		return nil, false
	}

	app, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	if app.Kind != h.kind {
		h.writeError(c, fmt.Errorf("%w: id %d", workflow.ErrNotFound, id))
		return nil, false
	}

	return app, true
}

// requireActor reads the calling actor from the request headers
func (h *Handlers) requireActor(c *gin.Context) (workflow.Actor, bool) {
	id := strings.TrimSpace(c.GetHeader(HeaderActorID))
	if id == "" {
		h.badRequest(c, HeaderActorID+" header is required")
		return workflow.Actor{}, false
	}
	if err := utils.ValidateActorID(id); err != nil {
		h.badRequest(c, "invalid "+HeaderActorID+" header")
		return workflow.Actor{}, false
	}

	return workflow.Actor{ID: id, Permissions: actorPermissions(c)}, true
}

func actorPermissions(c *gin.Context) workflow.PermissionSet {
	raw := c.GetHeader(HeaderActorPermissions)
	if raw == "" {
		return workflow.PermissionSet(0)
	}
	return workflow.ParsePermissions(strings.Split(raw, ","))
}

func (h *Handlers) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   message,
		Code:    CodeInvalidRequest,
	})
}

// writeError maps workflow errors to HTTP status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	status, code := classifyError(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		message = "internal server error"
	}

	c.JSON(status, Response{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, workflow.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, workflow.ErrIllegalTransition):
		return http.StatusConflict, CodeIllegalTransition
	case errors.Is(err, workflow.ErrUnauthorized):
		return http.StatusForbidden, CodeUnauthorized
	case errors.Is(err, workflow.ErrRemarkRequired):
		return http.StatusUnprocessableEntity, CodeRemarkRequired
	case errors.Is(err, workflow.ErrInvalidAction):
		return http.StatusBadRequest, CodeInvalidRequest
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (h *Handlers) toApplicationResponse(app *entity.Application, perms workflow.PermissionSet) ApplicationResponse {
	actions := h.engine.CanRequestTransition(app.Status, perms)
	allowed := make([]string, 0, len(actions))
	for _, a := range actions {
		allowed = append(allowed, a.String())
	}

	resp := ApplicationResponse{
		ID:              app.ID,
		Kind:            string(app.Kind),
		Title:           app.Title,
		ApplicantID:     app.ApplicantID,
		Status:          app.Status.String(),
		StatusRemark:    app.StatusRemark,
		StatusUpdatedBy: app.StatusUpdatedBy,
		Editable:        h.engine.CanEdit(app.Status),
		AllowedActions:  allowed,
		CreatedAt:       app.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       app.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if !app.StatusUpdatedAt.IsZero() {
		updatedAt := app.StatusUpdatedAt.UTC().Format(time.RFC3339)
		resp.StatusUpdatedAt = &updatedAt
	}

	return resp
}

func toHistoryResponse(record *entity.StatusHistory) HistoryResponse {
	return HistoryResponse{
		ID:             record.ID,
		PreviousStatus: record.PreviousStatus.String(),
		NewStatus:      record.NewStatus.String(),
		Action:         record.Action.String(),
		Remark:         record.Remark,
		Actor:          record.Actor,
		Timestamp:      record.Timestamp.UTC().Format(time.RFC3339),
	}
}
