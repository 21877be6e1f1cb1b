package domain

import "time"

type EventKind string

const (
	EventWorkflowCreated    EventKind = "WORKFLOW_CREATED"
	EventWorkflowUpdated    EventKind = "WORKFLOW_UPDATED"
	EventWorkflowDeleted    EventKind = "WORKFLOW_DELETED"
	EventExecutionStarted   EventKind = "EXECUTION_STARTED"
	EventStepCompleted      EventKind = "STEP_COMPLETED"
	EventExecutionCompleted EventKind = "EXECUTION_COMPLETED"
	EventExecutionFailed    EventKind = "EXECUTION_FAILED"
	EventExecutionSkipped   EventKind = "EXECUTION_SKIPPED"
	EventScheduleExecuted   EventKind = "SCHEDULE_EXECUTED"
)

// Event is a workflow lifecycle notification. Sequence is assigned by the
// propagation bus and is strictly monotonic within a process; WorkflowID plus
// Sequence is the identity observers deduplicate on.
type Event struct {
	Sequence    int64             `json:"sequence"`
	Kind        EventKind         `json:"kind"`
	WorkflowID  string            `json:"workflowId,omitempty"`
	ExecutionID string            `json:"executionId,omitempty"`
	StepID      string            `json:"stepId,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Detail      map[string]string `json:"detail,omitempty"`
}
