package domain

import "time"

type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "Running"
	ExecutionCompleted ExecutionStatus = "Completed"
	ExecutionFailed    ExecutionStatus = "Failed"
	ExecutionCancelled ExecutionStatus = "Cancelled"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// Execution is one concrete run of a workflow. It carries its own copy of
// the step list; once the status is terminal the record is never mutated.
type Execution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflowId"`
	Status     ExecutionStatus `json:"status"`
	Steps      []Step          `json:"steps"`
	Started    time.Time       `json:"started"`
	Ended      *time.Time      `json:"ended,omitempty"`
	Error      string          `json:"error,omitempty"`
	// Skipped marks a run that ended at a condition gate denial. It is
	// recorded distinct from a failure and does not affect success rate.
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (e Execution) Clone() Execution {
	c := e
	if e.Steps != nil {
		c.Steps = make([]Step, len(e.Steps))
		for i, s := range e.Steps {
			cs := s
			if s.Config != nil {
				cs.Config = make(map[string]string, len(s.Config))
				for k, v := range s.Config {
					cs.Config[k] = v
				}
			}
			c.Steps[i] = cs
		}
	}
	if e.Ended != nil {
		t := *e.Ended
		c.Ended = &t
	}
	return c
}

// ExecutionOutcome is reported to the workflow store when a run terminates.
type ExecutionOutcome string

const (
	OutcomeSuccess ExecutionOutcome = "success"
	OutcomeFailure ExecutionOutcome = "failure"
	OutcomeSkipped ExecutionOutcome = "skipped"
)
