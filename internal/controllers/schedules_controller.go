package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
	"github.com/finpilot/finpilot/pkg/finpilot/models"
)

// ScheduleStore is the slice of the store the scheduled-transaction
// endpoints use.
type ScheduleStore interface {
	CreateScheduledTransaction(req models.CreateScheduledTransactionRequest) (*domain.ScheduledTransaction, error)
	GetScheduledTransaction(id string) (*domain.ScheduledTransaction, error)
	ListScheduledTransactions(userID string) []domain.ScheduledTransaction
	UpdateScheduledTransaction(id string, patch models.UpdateScheduledTransactionRequest) error
	DeleteScheduledTransaction(id string) error
	ToggleScheduledTransaction(id string) (*domain.ScheduledTransaction, error)
}

// ScheduleRunner executes a scheduled transaction outside its schedule.
type ScheduleRunner interface {
	RunScheduledTransactionNow(ctx context.Context, scheduleID string) (models.ExecutionResult, error)
}

type SchedulesController struct {
	AuthController
	Store  ScheduleStore
	Runner ScheduleRunner
}

func NewSchedulesController(st ScheduleStore, runner ScheduleRunner, userRepo UserRepo) *SchedulesController {
	return &SchedulesController{Store: st, Runner: runner, AuthController: AuthController{
		UserRepo: userRepo,
	}}
}

func (c *SchedulesController) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req models.CreateScheduledTransactionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	st, err := c.Store.CreateScheduledTransaction(req)
	if err != nil {
		writeError(w, err, "failed to create scheduled transaction")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(st)
}

func (c *SchedulesController) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	out := c.Store.ListScheduledTransactions(r.URL.Query().Get("userId"))
	if out == nil {
		out = []domain.ScheduledTransaction{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(out)
}

func (c *SchedulesController) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	st, err := c.Store.GetScheduledTransaction(r.PathValue("id"))
	if err != nil {
		writeError(w, err, "scheduled transaction not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(st)
}

func (c *SchedulesController) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateScheduledTransactionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if err := c.Store.UpdateScheduledTransaction(r.PathValue("id"), req); err != nil {
		writeError(w, err, "failed to update scheduled transaction")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (c *SchedulesController) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := c.Store.DeleteScheduledTransaction(r.PathValue("id")); err != nil {
		writeError(w, err, "failed to delete scheduled transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *SchedulesController) handleToggleSchedule(w http.ResponseWriter, r *http.Request) {
	st, err := c.Store.ToggleScheduledTransaction(r.PathValue("id"))
	if err != nil {
		writeError(w, err, "failed to toggle scheduled transaction")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(st)
}

func (c *SchedulesController) handleExecuteSchedule(w http.ResponseWriter, r *http.Request) {
	result, err := c.Runner.RunScheduledTransactionNow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, "failed to execute scheduled transaction")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}
