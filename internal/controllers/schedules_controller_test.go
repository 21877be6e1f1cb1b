package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
	"github.com/finpilot/finpilot/pkg/finpilot/models"
)

type MockScheduleStore struct {
	CreateFunc func(req models.CreateScheduledTransactionRequest) (*domain.ScheduledTransaction, error)
	GetFunc    func(id string) (*domain.ScheduledTransaction, error)
	ListFunc   func(userID string) []domain.ScheduledTransaction
	UpdateFunc func(id string, patch models.UpdateScheduledTransactionRequest) error
	DeleteFunc func(id string) error
	ToggleFunc func(id string) (*domain.ScheduledTransaction, error)
}

func (m *MockScheduleStore) CreateScheduledTransaction(req models.CreateScheduledTransactionRequest) (*domain.ScheduledTransaction, error) {
	return m.CreateFunc(req)
}
func (m *MockScheduleStore) GetScheduledTransaction(id string) (*domain.ScheduledTransaction, error) {
	return m.GetFunc(id)
}
func (m *MockScheduleStore) ListScheduledTransactions(userID string) []domain.ScheduledTransaction {
	return m.ListFunc(userID)
}
func (m *MockScheduleStore) UpdateScheduledTransaction(id string, patch models.UpdateScheduledTransactionRequest) error {
	return m.UpdateFunc(id, patch)
}
func (m *MockScheduleStore) DeleteScheduledTransaction(id string) error { return m.DeleteFunc(id) }
func (m *MockScheduleStore) ToggleScheduledTransaction(id string) (*domain.ScheduledTransaction, error) {
	return m.ToggleFunc(id)
}

type MockScheduleRunner struct {
	RunFunc func(ctx context.Context, scheduleID string) (models.ExecutionResult, error)
}

func (m *MockScheduleRunner) RunScheduledTransactionNow(ctx context.Context, scheduleID string) (models.ExecutionResult, error) {
	return m.RunFunc(ctx, scheduleID)
}

func TestSchedulesController_CreateSchedule(t *testing.T) {
	mockStore := &MockScheduleStore{
		CreateFunc: func(req models.CreateScheduledTransactionRequest) (*domain.ScheduledTransaction, error) {
			return &domain.ScheduledTransaction{ID: "sched-1", Type: domain.TransactionType(req.Type)}, nil
		},
	}
	c := NewSchedulesController(mockStore, &MockScheduleRunner{}, nil)

	body := `{"userId":"u1","type":"Deposit","amount":100,"targetAccount":"acc-1","frequency":"Monthly"}`
	req := httptest.NewRequest("POST", "/api/schedules", strings.NewReader(body))
	w := httptest.NewRecorder()
	c.handleCreateSchedule(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Result().StatusCode)
	}
	var out domain.ScheduledTransaction
	if err := json.NewDecoder(w.Result().Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out.ID != "sched-1" || out.Type != domain.TransactionDeposit {
		t.Errorf("Unexpected response %+v", out)
	}
}

func TestSchedulesController_CreateScheduleValidation(t *testing.T) {
	mockStore := &MockScheduleStore{
		CreateFunc: func(req models.CreateScheduledTransactionRequest) (*domain.ScheduledTransaction, error) {
			return nil, domain.ErrValidation
		},
	}
	c := NewSchedulesController(mockStore, &MockScheduleRunner{}, nil)

	req := httptest.NewRequest("POST", "/api/schedules", strings.NewReader(`{"type":"Sideways"}`))
	w := httptest.NewRecorder()
	c.handleCreateSchedule(w, req)
	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Result().StatusCode)
	}
}

func TestSchedulesController_ToggleSchedule(t *testing.T) {
	mockStore := &MockScheduleStore{
		ToggleFunc: func(id string) (*domain.ScheduledTransaction, error) {
			if id == "sched-1" {
				return &domain.ScheduledTransaction{ID: id, Enabled: false}, nil
			}
			return nil, domain.ErrNotFound
		},
	}
	c := NewSchedulesController(mockStore, &MockScheduleRunner{}, nil)

	req := httptest.NewRequest("POST", "/api/schedules/sched-1/toggle", nil)
	req.SetPathValue("id", "sched-1")
	w := httptest.NewRecorder()
	c.handleToggleSchedule(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Result().StatusCode)
	}
	var out domain.ScheduledTransaction
	if err := json.NewDecoder(w.Result().Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out.Enabled {
		t.Error("Expected schedule disabled after toggle")
	}

	req = httptest.NewRequest("POST", "/api/schedules/missing/toggle", nil)
	req.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	c.handleToggleSchedule(w, req)
	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Result().StatusCode)
	}
}

func TestSchedulesController_ExecuteSchedule(t *testing.T) {
	mockRunner := &MockScheduleRunner{
		RunFunc: func(ctx context.Context, scheduleID string) (models.ExecutionResult, error) {
			return models.ExecutionResult{Skipped: true, Reason: "below minimum balance"}, nil
		},
	}
	c := NewSchedulesController(&MockScheduleStore{}, mockRunner, nil)

	req := httptest.NewRequest("POST", "/api/schedules/sched-1/execute", nil)
	req.SetPathValue("id", "sched-1")
	w := httptest.NewRecorder()
	c.handleExecuteSchedule(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Result().StatusCode)
	}
	var out models.ExecutionResult
	if err := json.NewDecoder(w.Result().Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !out.Skipped || out.Reason != "below minimum balance" {
		t.Errorf("Unexpected result %+v", out)
	}
}

func TestSchedulesController_ListSchedules(t *testing.T) {
	var gotUserID string
	mockStore := &MockScheduleStore{
		ListFunc: func(userID string) []domain.ScheduledTransaction {
			gotUserID = userID
			return []domain.ScheduledTransaction{{ID: "sched-1"}}
		},
	}
	c := NewSchedulesController(mockStore, &MockScheduleRunner{}, nil)

	req := httptest.NewRequest("GET", "/api/schedules?userId=u1", nil)
	w := httptest.NewRecorder()
	c.handleListSchedules(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Result().StatusCode)
	}
	if gotUserID != "u1" {
		t.Errorf("Expected userId filter u1, got %q", gotUserID)
	}
}
