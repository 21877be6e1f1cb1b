package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/finpilot/finpilot/internal/schedule"
	"github.com/finpilot/finpilot/internal/store"
	"github.com/finpilot/finpilot/pkg/finpilot/domain"
	"github.com/finpilot/finpilot/pkg/finpilot/models"
)

// WorkflowStore is the slice of the store the workflow endpoints use.
type WorkflowStore interface {
	Create(def domain.WorkflowDefinition) (string, error)
	Get(id string) (*domain.WorkflowDefinition, error)
	List() []domain.WorkflowDefinition
	ListEnabled() []domain.WorkflowDefinition
	Update(id string, patch models.UpdateWorkflowRequest) error
	Delete(id string) error
}

// Executor is the slice of the execution engine the workflow endpoints use.
type Executor interface {
	Execute(ctx context.Context, workflowID string, payload map[string]string) (string, error)
	CancelExecution(executionID string) error
	GetExecution(id string) (*domain.Execution, error)
	ListExecutions(workflowID string) ([]domain.Execution, error)
	GetRecentExecutions(limit int) ([]domain.Execution, error)
}

// Waker pokes the scheduler loop for an immediate due scan.
type Waker interface {
	Wakeup()
}

// WorkflowsController holds dependencies for workflow HTTP endpoints.
type WorkflowsController struct {
	AuthController
	Store     WorkflowStore
	Engine    Executor
	Scheduler Waker
}

func NewWorkflowsController(st WorkflowStore, engine Executor, scheduler Waker, userRepo UserRepo) *WorkflowsController {
	return &WorkflowsController{Store: st, Engine: engine, Scheduler: scheduler, AuthController: AuthController{
		UserRepo: userRepo,
	}}
}

func (c *WorkflowsController) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req models.CreateWorkflowRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	def, err := definitionFromRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := c.Store.Create(*def)
	if err != nil {
		writeError(w, err, "failed to create workflow")
		return
	}
	if def.Recurring {
		c.Scheduler.Wakeup()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.CreateWorkflowResponse{ID: id})
}

func definitionFromRequest(req models.CreateWorkflowRequest) (*domain.WorkflowDefinition, error) {
	steps, err := store.StepsFromRequest(req.Steps)
	if err != nil {
		return nil, err
	}
	def := &domain.WorkflowDefinition{
		Name:        req.Name,
		Description: req.Description,
		Enabled:     true,
		Steps:       steps,
		Recurring:   req.Recurring,
		Frequency:   domain.Frequency(req.Frequency),
		Anchor:      domain.Anchor{DayOfMonth: req.DayOfMonth},
	}
	if req.Enabled != nil {
		def.Enabled = *req.Enabled
	}
	if req.DayOfWeek != nil {
		day, err := schedule.ParseWeekday(*req.DayOfWeek)
		if err != nil {
			return nil, err
		}
		def.Anchor.DayOfWeek = &day
	}
	if req.Conditions != nil {
		cond := *req.Conditions
		def.Conditions = &cond
	}
	return def, nil
}

func (c *WorkflowsController) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	var defs []domain.WorkflowDefinition
	if r.URL.Query().Get("active") == "true" {
		defs = c.Store.ListEnabled()
	} else {
		defs = c.Store.List()
	}
	out := make([]models.WorkflowApiResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, mapDefinitionToApi(&def))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(out)
}

func (c *WorkflowsController) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	def, err := c.Store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err, "workflow not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(mapDefinitionToApi(def))
}

func (c *WorkflowsController) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateWorkflowRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if err := c.Store.Update(r.PathValue("id"), req); err != nil {
		writeError(w, err, "failed to update workflow")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (c *WorkflowsController) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := c.Store.Delete(r.PathValue("id")); err != nil {
		writeError(w, err, "failed to delete workflow")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *WorkflowsController) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	var req models.ExecuteWorkflowRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	execID, err := c.Engine.Execute(r.Context(), r.PathValue("id"), req.Payload)
	if err != nil {
		writeError(w, err, "failed to execute workflow")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.ExecuteWorkflowResponse{ExecutionID: execID})
}

func (c *WorkflowsController) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	if _, err := c.Store.Get(workflowID); err != nil {
		writeError(w, err, "workflow not found")
		return
	}
	execs, err := c.Engine.ListExecutions(workflowID)
	if err != nil {
		slog.Error("Failed to list executions", "workflow_id", workflowID, "error", err)
		http.Error(w, "failed to list executions", http.StatusInternalServerError)
		return
	}
	if execs == nil {
		execs = []domain.Execution{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(execs)
}

func (c *WorkflowsController) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	ex, err := c.Engine.GetExecution(r.PathValue("id"))
	if err != nil {
		writeError(w, err, "execution not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ex)
}

func (c *WorkflowsController) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	if err := c.Engine.CancelExecution(r.PathValue("id")); err != nil {
		writeError(w, err, "failed to cancel execution")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (c *WorkflowsController) handleRecentExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			http.Error(w, "limit is a positive integer", http.StatusBadRequest)
			return
		}
		limit = v
	}
	execs, err := c.Engine.GetRecentExecutions(limit)
	if err != nil {
		slog.Error("Failed to list recent executions", "error", err)
		http.Error(w, "failed to list executions", http.StatusInternalServerError)
		return
	}
	if execs == nil {
		execs = []domain.Execution{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(execs)
}

func mapDefinitionToApi(def *domain.WorkflowDefinition) models.WorkflowApiResponse {
	return models.WorkflowApiResponse{
		ID:             def.ID,
		Name:           def.Name,
		Description:    def.Description,
		Enabled:        def.Enabled,
		Steps:          def.Steps,
		Recurring:      def.Recurring,
		Frequency:      string(def.Frequency),
		Created:        def.Created,
		LastExecuted:   def.LastExecuted,
		NextExecution:  def.NextExecution,
		ExecutionCount: def.ExecutionCount,
		SuccessRate:    def.SuccessRate,
	}
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrDisabled), errors.Is(err, domain.ErrAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error(fallback, "error", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}
