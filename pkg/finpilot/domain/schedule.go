package domain

import "time"

type Frequency string

const (
	FrequencyDaily     Frequency = "Daily"
	FrequencyWeekly    Frequency = "Weekly"
	FrequencyMonthly   Frequency = "Monthly"
	FrequencyQuarterly Frequency = "Quarterly"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	}
	return false
}

// Anchor pins a recurring schedule to a weekday (Weekly) or a day of the
// month (Monthly/Quarterly). Zero values mean "no anchor given".
type Anchor struct {
	DayOfWeek  *time.Weekday `json:"dayOfWeek,omitempty"`
	DayOfMonth int           `json:"dayOfMonth,omitempty"`
}

type TransactionType string

const (
	TransactionDeposit    TransactionType = "Deposit"
	TransactionWithdrawal TransactionType = "Withdrawal"
)

// Conditions are the optional preconditions gating a job. Nil pointers mean
// the bound is not declared.
type Conditions struct {
	MinBalance      *float64 `json:"minBalance,omitempty"`
	MaxBalance      *float64 `json:"maxBalance,omitempty"`
	ProfitThreshold *float64 `json:"profitThreshold,omitempty"`
}

// ScheduledTransaction is a simple recurring single-action job, distinct
// from the full workflow model but sharing the schedule calculator and the
// condition gate.
type ScheduledTransaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Type          TransactionType `json:"type"`
	Amount        float64         `json:"amount"`
	Currency      string          `json:"currency"`
	TargetAccount string          `json:"targetAccount"`
	Frequency     Frequency       `json:"frequency"`
	Anchor        Anchor          `json:"anchor,omitempty"`
	Enabled       bool            `json:"enabled"`
	Conditions    *Conditions     `json:"conditions,omitempty"`
	Created       time.Time       `json:"created"`
	NextExecution time.Time       `json:"nextExecution"`
	LastExecution *time.Time      `json:"lastExecution,omitempty"`
}

func (s ScheduledTransaction) Clone() ScheduledTransaction {
	c := s
	if s.Anchor.DayOfWeek != nil {
		d := *s.Anchor.DayOfWeek
		c.Anchor.DayOfWeek = &d
	}
	if s.Conditions != nil {
		cc := *s.Conditions
		c.Conditions = &cc
	}
	if s.LastExecution != nil {
		t := *s.LastExecution
		c.LastExecution = &t
	}
	return c
}
