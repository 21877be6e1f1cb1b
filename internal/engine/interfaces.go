package engine

import (
	"github.com/finpilot/finpilot/pkg/finpilot/domain"
	"github.com/finpilot/finpilot/pkg/finpilot/models"
)

// WorkflowStore is the slice of the store the engine depends on. The store
// stays the single writer of workflow state; the engine only reads
// definitions and reports outcomes.
type WorkflowStore interface {
	Get(id string) (*domain.WorkflowDefinition, error)
	RecordExecutionOutcome(id string, outcome domain.ExecutionOutcome) error
}

// ExecutionHistory persists terminal executions.
type ExecutionHistory interface {
	Save(ex *domain.Execution) error
	FindByID(id string) (*domain.Execution, error)
	FindByWorkflowID(workflowID string) ([]domain.Execution, error)
	FindRecent(limit int) ([]domain.Execution, error)
	TrimHistory(limit int) error
}

// Publisher is the slice of the propagation bus the engine publishes
// lifecycle events through.
type Publisher interface {
	Publish(ev domain.Event) domain.Event
}

// ScheduleStore is what the scheduler loop needs beyond the engine: due
// scans and schedule bookkeeping, all through the single-writer store.
type ScheduleStore interface {
	DueWorkflows() []domain.WorkflowDefinition
	DueScheduledTransactions() []domain.ScheduledTransaction
	AdvanceSchedule(id string) error
	MarkScheduleExecuted(id string) error
	GetScheduledTransaction(id string) (*domain.ScheduledTransaction, error)
	ToggleScheduledTransaction(id string) (*domain.ScheduledTransaction, error)
	CreateScheduledTransaction(req models.CreateScheduledTransactionRequest) (*domain.ScheduledTransaction, error)
	UpdateScheduledTransaction(id string, patch models.UpdateScheduledTransactionRequest) error
	DeleteScheduledTransaction(id string) error
	ListScheduledTransactions(userID string) []domain.ScheduledTransaction
}
