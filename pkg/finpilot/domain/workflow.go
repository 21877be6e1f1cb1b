package domain

import "time"

type StepKind string

const (
	StepTrigger   StepKind = "Trigger"
	StepCondition StepKind = "Condition"
	StepAction    StepKind = "Action"
)

type StepStatus string

const (
	StepPending   StepStatus = "Pending"
	StepRunning   StepStatus = "Running"
	StepCompleted StepStatus = "Completed"
	StepFailed    StepStatus = "Failed"
)

// Step is an immutable template on a WorkflowDefinition. Each execution
// works on its own copy, so Status and Result here are only ever mutated
// on the per-run copies held by an Execution.
type Step struct {
	ID     string            `json:"id"`
	Kind   StepKind          `json:"kind"`
	Name   string            `json:"name"`
	Config map[string]string `json:"config,omitempty"`
	Status StepStatus        `json:"status"`
	Result string            `json:"result,omitempty"`
}

// Clone returns a deep copy of the step with status reset to Pending.
func (s Step) Clone() Step {
	c := s
	c.Status = StepPending
	c.Result = ""
	if s.Config != nil {
		c.Config = make(map[string]string, len(s.Config))
		for k, v := range s.Config {
			c.Config[k] = v
		}
	}
	return c
}

type WorkflowDefinition struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Enabled        bool       `json:"enabled"`
	Steps          []Step     `json:"steps"`
	Recurring      bool       `json:"recurring"`
	Frequency      Frequency  `json:"frequency,omitempty"`
	Anchor         Anchor     `json:"anchor,omitempty"`
	Conditions     *Conditions `json:"conditions,omitempty"`
	Created        time.Time  `json:"created"`
	LastExecuted   *time.Time `json:"lastExecuted,omitempty"`
	NextExecution  *time.Time `json:"nextExecution,omitempty"`
	ExecutionCount int        `json:"executionCount"`
	Succeeded      int        `json:"succeeded"`
	SuccessRate    int        `json:"successRate"`
}

// Clone returns a deep copy safe to hand to callers outside the store.
func (w WorkflowDefinition) Clone() WorkflowDefinition {
	c := w
	if w.Steps != nil {
		c.Steps = make([]Step, len(w.Steps))
		for i, s := range w.Steps {
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
	if w.Conditions != nil {
		cc := *w.Conditions
		c.Conditions = &cc
	}
	if w.LastExecuted != nil {
		t := *w.LastExecuted
		c.LastExecuted = &t
	}
	if w.NextExecution != nil {
		t := *w.NextExecution
		c.NextExecution = &t
	}
	return c
}
