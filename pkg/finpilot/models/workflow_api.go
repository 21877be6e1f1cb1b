package models

import (
	"time"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// CreateWorkflowRequest is the payload for creating a workflow definition.
type CreateWorkflowRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Enabled     *bool              `json:"enabled,omitempty"`
	Steps       []CreateStep       `json:"steps"`
	Recurring   bool               `json:"recurring"`
	Frequency   string             `json:"frequency,omitempty"`
	DayOfWeek   *string            `json:"dayOfWeek,omitempty"`
	DayOfMonth  int                `json:"dayOfMonth,omitempty"`
	Conditions  *domain.Conditions `json:"conditions,omitempty"`
}

type CreateStep struct {
	Kind   string            `json:"kind"`
	Name   string            `json:"name"`
	Config map[string]string `json:"config,omitempty"`
}

type CreateWorkflowResponse struct {
	ID string `json:"id"`
}

// UpdateWorkflowRequest is a partial merge; nil fields are left untouched.
type UpdateWorkflowRequest struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Enabled     *bool              `json:"enabled,omitempty"`
	Steps       *[]CreateStep      `json:"steps,omitempty"`
	Conditions  *domain.Conditions `json:"conditions,omitempty"`
}

type ExecuteWorkflowRequest struct {
	Payload map[string]string `json:"payload,omitempty"`
}

type ExecuteWorkflowResponse struct {
	ExecutionID string `json:"executionId"`
}

type WorkflowApiResponse struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Enabled        bool          `json:"enabled"`
	Steps          []domain.Step `json:"steps"`
	Recurring      bool          `json:"recurring"`
	Frequency      string        `json:"frequency,omitempty"`
	Created        time.Time     `json:"created"`
	LastExecuted   *time.Time    `json:"lastExecuted,omitempty"`
	NextExecution  *time.Time    `json:"nextExecution,omitempty"`
	ExecutionCount int           `json:"executionCount"`
	SuccessRate    int           `json:"successRate"`
}
