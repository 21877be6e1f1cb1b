package store

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/finpilot/finpilot/internal/schedule"
	"github.com/finpilot/finpilot/pkg/finpilot/core"
	"github.com/finpilot/finpilot/pkg/finpilot/domain"
	"github.com/finpilot/finpilot/pkg/finpilot/models"
)

// DefinitionRepo is the write-through persistence for workflow definitions.
type DefinitionRepo interface {
	Save(def *domain.WorkflowDefinition) error
	Update(def *domain.WorkflowDefinition) error
	Delete(id string) error
	FindAll() ([]domain.WorkflowDefinition, error)
}

// ScheduleRepo is the write-through persistence for scheduled transactions.
type ScheduleRepo interface {
	Save(st *domain.ScheduledTransaction) error
	Update(st *domain.ScheduledTransaction) error
	Delete(id string) error
	FindAll() ([]domain.ScheduledTransaction, error)
}

// Publisher is the slice of the propagation bus the store needs.
type Publisher interface {
	Publish(ev domain.Event) domain.Event
}

// WorkflowStore is the single writer of workflow and scheduled-transaction
// state. All records are held in memory as the authority and mirrored to the
// injected repositories; callers only ever see deep copies, so nothing
// outside the store can mutate a record it handed out.
type WorkflowStore struct {
	mu        sync.RWMutex
	workflows map[string]*domain.WorkflowDefinition
	schedules map[string]*domain.ScheduledTransaction
	deleted   map[string]bool // deletes are final for the process lifetime

	defRepo   DefinitionRepo
	schedRepo ScheduleRepo
	publisher Publisher
	clock     core.Clock
}

func NewWorkflowStore(defRepo DefinitionRepo, schedRepo ScheduleRepo, publisher Publisher, clock core.Clock) *WorkflowStore {
	return &WorkflowStore{
		workflows: make(map[string]*domain.WorkflowDefinition),
		schedules: make(map[string]*domain.ScheduledTransaction),
		deleted:   make(map[string]bool),
		defRepo:   defRepo,
		schedRepo: schedRepo,
		publisher: publisher,
		clock:     clock,
	}
}

// Load resynchronizes the in-memory state from the repositories. Called once
// at startup, before the scheduler or any API traffic.
func (s *WorkflowStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.defRepo != nil {
		defs, err := s.defRepo.FindAll()
		if err != nil {
			return fmt.Errorf("loading workflow definitions: %w", err)
		}
		for _, def := range defs {
			d := def.Clone()
			s.workflows[d.ID] = &d
		}
	}
	if s.schedRepo != nil {
		scheds, err := s.schedRepo.FindAll()
		if err != nil {
			return fmt.Errorf("loading scheduled transactions: %w", err)
		}
		for _, st := range scheds {
			c := st.Clone()
			s.schedules[c.ID] = &c
		}
	}
	slog.Info("Workflow store loaded", "workflows", len(s.workflows), "schedules", len(s.schedules))
	return nil
}

// Create assigns a fresh id and timestamps, zeroes the counters and stores a
// deep copy of the definition.
func (s *WorkflowStore) Create(def domain.WorkflowDefinition) (string, error) {
	if def.Name == "" {
		return "", fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	for i, step := range def.Steps {
		switch step.Kind {
		case domain.StepTrigger, domain.StepCondition, domain.StepAction:
		default:
			return "", fmt.Errorf("%w: step %d has unknown kind %q", domain.ErrValidation, i, step.Kind)
		}
	}
	if def.Recurring && !def.Frequency.Valid() {
		return "", fmt.Errorf("%w: recurring workflow needs a valid frequency", domain.ErrValidation)
	}

	now := s.clock.Now()
	d := def.Clone()
	d.ID = uuid.NewString()
	d.Created = now
	d.LastExecuted = nil
	d.ExecutionCount = 0
	d.Succeeded = 0
	d.SuccessRate = 100
	for i := range d.Steps {
		if d.Steps[i].ID == "" {
			d.Steps[i].ID = uuid.NewString()
		}
		d.Steps[i].Status = domain.StepPending
		d.Steps[i].Result = ""
	}
	if d.Recurring {
		next := schedule.NextExecution(d.Frequency, d.Anchor, now)
		d.NextExecution = &next
	}

	s.mu.Lock()
	s.workflows[d.ID] = &d
	s.mu.Unlock()

	if s.defRepo != nil {
		if err := s.defRepo.Save(&d); err != nil {
			slog.Error("Failed to persist workflow definition", "workflow_id", d.ID, "error", err)
		}
	}
	s.publish(domain.Event{Kind: domain.EventWorkflowCreated, WorkflowID: d.ID,
		Detail: map[string]string{"name": d.Name}})
	return d.ID, nil
}

func (s *WorkflowStore) Get(id string) (*domain.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.workflows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := def.Clone()
	return &c, nil
}

func (s *WorkflowStore) List() []domain.WorkflowDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.WorkflowDefinition, 0, len(s.workflows))
	for _, def := range s.workflows {
		out = append(out, def.Clone())
	}
	return out
}

func (s *WorkflowStore) ListEnabled() []domain.WorkflowDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.WorkflowDefinition
	for _, def := range s.workflows {
		if def.Enabled {
			out = append(out, def.Clone())
		}
	}
	return out
}

// Update merges the non-nil patch fields into the stored record. Updating a
// deleted id fails with NotFound; deletes are never resurrected.
func (s *WorkflowStore) Update(id string, patch models.UpdateWorkflowRequest) error {
	s.mu.Lock()
	def, ok := s.workflows[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	if patch.Name != nil {
		def.Name = *patch.Name
	}
	if patch.Description != nil {
		def.Description = *patch.Description
	}
	if patch.Enabled != nil {
		def.Enabled = *patch.Enabled
	}
	if patch.Steps != nil {
		steps, err := StepsFromRequest(*patch.Steps)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		def.Steps = steps
	}
	if patch.Conditions != nil {
		c := *patch.Conditions
		def.Conditions = &c
	}
	snapshot := def.Clone()
	s.mu.Unlock()

	if s.defRepo != nil {
		if err := s.defRepo.Update(&snapshot); err != nil {
			slog.Error("Failed to persist workflow update", "workflow_id", id, "error", err)
		}
	}
	s.publish(domain.Event{Kind: domain.EventWorkflowUpdated, WorkflowID: id})
	return nil
}

// Delete removes the workflow. The id is remembered so a later Update or
// Execute cannot bring it back.
func (s *WorkflowStore) Delete(id string) error {
	s.mu.Lock()
	if _, ok := s.workflows[id]; !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(s.workflows, id)
	s.deleted[id] = true
	s.mu.Unlock()

	if s.defRepo != nil {
		if err := s.defRepo.Delete(id); err != nil {
			slog.Error("Failed to delete persisted workflow", "workflow_id", id, "error", err)
		}
	}
	s.publish(domain.Event{Kind: domain.EventWorkflowDeleted, WorkflowID: id})
	return nil
}

// RecordExecutionOutcome updates the execution counters after a terminal
// run. The success rate is one formula everywhere:
// round(100 * succeeded / executions), clamped to [0, 100]. A skipped
// outcome (condition gate denial) touches neither counter.
func (s *WorkflowStore) RecordExecutionOutcome(id string, outcome domain.ExecutionOutcome) error {
	s.mu.Lock()
	def, ok := s.workflows[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	now := s.clock.Now()
	def.LastExecuted = &now
	if outcome != domain.OutcomeSkipped {
		def.ExecutionCount++
		if outcome == domain.OutcomeSuccess {
			def.Succeeded++
		}
		def.SuccessRate = successRate(def.Succeeded, def.ExecutionCount)
	}
	snapshot := def.Clone()
	s.mu.Unlock()

	if s.defRepo != nil {
		if err := s.defRepo.Update(&snapshot); err != nil {
			slog.Error("Failed to persist execution outcome", "workflow_id", id, "error", err)
		}
	}
	return nil
}

// AdvanceSchedule moves a recurring workflow's next execution past now.
// Called by the scheduler loop whether the run executed or was skipped, so a
// persistently false condition costs one skip per period instead of a hot
// loop.
func (s *WorkflowStore) AdvanceSchedule(id string) error {
	s.mu.Lock()
	def, ok := s.workflows[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	if !def.Recurring {
		s.mu.Unlock()
		return nil
	}
	next := schedule.NextExecution(def.Frequency, def.Anchor, s.clock.Now())
	def.NextExecution = &next
	snapshot := def.Clone()
	s.mu.Unlock()

	if s.defRepo != nil {
		if err := s.defRepo.Update(&snapshot); err != nil {
			slog.Error("Failed to persist schedule advance", "workflow_id", id, "error", err)
		}
	}
	return nil
}

// DueWorkflows returns enabled recurring workflows whose next execution is
// at or before now.
func (s *WorkflowStore) DueWorkflows() []domain.WorkflowDefinition {
	now := s.clock.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.WorkflowDefinition
	for _, def := range s.workflows {
		if def.Enabled && def.Recurring && def.NextExecution != nil && !def.NextExecution.After(now) {
			out = append(out, def.Clone())
		}
	}
	return out
}

func (s *WorkflowStore) publish(ev domain.Event) {
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}

func successRate(succeeded, executions int) int {
	if executions <= 0 {
		return 100
	}
	rate := int(float64(succeeded)/float64(executions)*100 + 0.5)
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return rate
}

// StepsFromRequest converts API step payloads into domain steps, assigning
// ids and validating kinds.
func StepsFromRequest(in []models.CreateStep) ([]domain.Step, error) {
	steps := make([]domain.Step, 0, len(in))
	for i, cs := range in {
		kind := domain.StepKind(cs.Kind)
		switch kind {
		case domain.StepTrigger, domain.StepCondition, domain.StepAction:
		default:
			return nil, fmt.Errorf("%w: step %d has unknown kind %q", domain.ErrValidation, i, cs.Kind)
		}
		cfg := make(map[string]string, len(cs.Config))
		for k, v := range cs.Config {
			cfg[k] = v
		}
		steps = append(steps, domain.Step{
			ID:     uuid.NewString(),
			Kind:   kind,
			Name:   cs.Name,
			Config: cfg,
			Status: domain.StepPending,
		})
	}
	return steps, nil
}
