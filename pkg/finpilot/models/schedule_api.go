package models

import (
	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// CreateScheduledTransactionRequest is the payload for creating a recurring
// single-action job.
type CreateScheduledTransactionRequest struct {
	UserID        string             `json:"userId"`
	Type          string             `json:"type"`
	Amount        float64            `json:"amount"`
	Currency      string             `json:"currency"`
	TargetAccount string             `json:"targetAccount"`
	Frequency     string             `json:"frequency"`
	DayOfWeek     *string            `json:"dayOfWeek,omitempty"`
	DayOfMonth    int                `json:"dayOfMonth,omitempty"`
	Enabled       *bool              `json:"enabled,omitempty"`
	Conditions    *domain.Conditions `json:"conditions,omitempty"`
}

// UpdateScheduledTransactionRequest is a partial merge.
type UpdateScheduledTransactionRequest struct {
	Amount        *float64           `json:"amount,omitempty"`
	Currency      *string            `json:"currency,omitempty"`
	TargetAccount *string            `json:"targetAccount,omitempty"`
	Frequency     *string            `json:"frequency,omitempty"`
	DayOfWeek     *string            `json:"dayOfWeek,omitempty"`
	DayOfMonth    *int               `json:"dayOfMonth,omitempty"`
	Enabled       *bool              `json:"enabled,omitempty"`
	Conditions    *domain.Conditions `json:"conditions,omitempty"`
}

// ExecutionResult is returned by the run-now endpoint for a scheduled
// transaction. Skipped means the condition gate denied the run; that is a
// planned outcome, not a failure.
type ExecutionResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error,omitempty"`
	Skipped       bool   `json:"skipped,omitempty"`
	Reason        string `json:"reason,omitempty"`
}
