package store

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/finpilot/finpilot/internal/schedule"
	"github.com/finpilot/finpilot/pkg/finpilot/domain"
	"github.com/finpilot/finpilot/pkg/finpilot/models"
)

// Scheduled transactions share the store's single-writer rule: every
// mutation goes through these methods and is mirrored to the repository.

func (s *WorkflowStore) CreateScheduledTransaction(req models.CreateScheduledTransactionRequest) (*domain.ScheduledTransaction, error) {
	txType := domain.TransactionType(req.Type)
	if txType != domain.TransactionDeposit && txType != domain.TransactionWithdrawal {
		return nil, fmt.Errorf("%w: unknown transaction type %q", domain.ErrValidation, req.Type)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	freq := domain.Frequency(req.Frequency)
	if !freq.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", domain.ErrValidation, req.Frequency)
	}
	anchor := domain.Anchor{DayOfMonth: req.DayOfMonth}
	if req.DayOfWeek != nil {
		d, err := schedule.ParseWeekday(*req.DayOfWeek)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		anchor.DayOfWeek = &d
	}

	now := s.clock.Now()
	st := domain.ScheduledTransaction{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		Type:          txType,
		Amount:        req.Amount,
		Currency:      req.Currency,
		TargetAccount: req.TargetAccount,
		Frequency:     freq,
		Anchor:        anchor,
		Enabled:       true,
		Created:       now,
		NextExecution: schedule.NextExecution(freq, anchor, now),
	}
	if st.Currency == "" {
		st.Currency = "USD"
	}
	if req.Enabled != nil {
		st.Enabled = *req.Enabled
	}
	if req.Conditions != nil {
		c := *req.Conditions
		st.Conditions = &c
	}

	s.mu.Lock()
	s.schedules[st.ID] = &st
	s.mu.Unlock()

	if s.schedRepo != nil {
		if err := s.schedRepo.Save(&st); err != nil {
			slog.Error("Failed to persist scheduled transaction", "schedule_id", st.ID, "error", err)
		}
	}
	out := st.Clone()
	return &out, nil
}

func (s *WorkflowStore) GetScheduledTransaction(id string) (*domain.ScheduledTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.schedules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := st.Clone()
	return &c, nil
}

// ListScheduledTransactions returns the jobs owned by userID, or all jobs
// when userID is empty.
func (s *WorkflowStore) ListScheduledTransactions(userID string) []domain.ScheduledTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScheduledTransaction
	for _, st := range s.schedules {
		if userID == "" || st.UserID == userID {
			out = append(out, st.Clone())
		}
	}
	return out
}

func (s *WorkflowStore) UpdateScheduledTransaction(id string, patch models.UpdateScheduledTransactionRequest) error {
	s.mu.Lock()
	st, ok := s.schedules[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	if patch.Amount != nil {
		if *patch.Amount <= 0 {
			s.mu.Unlock()
			return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
		}
		st.Amount = *patch.Amount
	}
	if patch.Currency != nil {
		st.Currency = *patch.Currency
	}
	if patch.TargetAccount != nil {
		st.TargetAccount = *patch.TargetAccount
	}
	rescheduled := false
	if patch.Frequency != nil {
		freq := domain.Frequency(*patch.Frequency)
		if !freq.Valid() {
			s.mu.Unlock()
			return fmt.Errorf("%w: unknown frequency %q", domain.ErrValidation, *patch.Frequency)
		}
		st.Frequency = freq
		rescheduled = true
	}
	if patch.DayOfWeek != nil {
		d, err := schedule.ParseWeekday(*patch.DayOfWeek)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		st.Anchor.DayOfWeek = &d
		rescheduled = true
	}
	if patch.DayOfMonth != nil {
		st.Anchor.DayOfMonth = *patch.DayOfMonth
		rescheduled = true
	}
	if patch.Enabled != nil {
		st.Enabled = *patch.Enabled
	}
	if patch.Conditions != nil {
		c := *patch.Conditions
		st.Conditions = &c
	}
	if rescheduled {
		st.NextExecution = schedule.NextExecution(st.Frequency, st.Anchor, s.clock.Now())
	}
	snapshot := st.Clone()
	s.mu.Unlock()

	if s.schedRepo != nil {
		if err := s.schedRepo.Update(&snapshot); err != nil {
			slog.Error("Failed to persist scheduled transaction update", "schedule_id", id, "error", err)
		}
	}
	return nil
}

func (s *WorkflowStore) DeleteScheduledTransaction(id string) error {
	s.mu.Lock()
	if _, ok := s.schedules[id]; !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(s.schedules, id)
	s.mu.Unlock()

	if s.schedRepo != nil {
		if err := s.schedRepo.Delete(id); err != nil {
			slog.Error("Failed to delete persisted scheduled transaction", "schedule_id", id, "error", err)
		}
	}
	return nil
}

// ToggleScheduledTransaction flips the enabled flag and returns the updated
// record.
func (s *WorkflowStore) ToggleScheduledTransaction(id string) (*domain.ScheduledTransaction, error) {
	s.mu.Lock()
	st, ok := s.schedules[id]
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	st.Enabled = !st.Enabled
	snapshot := st.Clone()
	s.mu.Unlock()

	if s.schedRepo != nil {
		if err := s.schedRepo.Update(&snapshot); err != nil {
			slog.Error("Failed to persist scheduled transaction toggle", "schedule_id", id, "error", err)
		}
	}
	return &snapshot, nil
}

// MarkScheduleExecuted records a run attempt: last execution is now and the
// next execution advances one period, whether the run executed or the gate
// skipped it.
func (s *WorkflowStore) MarkScheduleExecuted(id string) error {
	s.mu.Lock()
	st, ok := s.schedules[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	now := s.clock.Now()
	st.LastExecution = &now
	st.NextExecution = schedule.NextExecution(st.Frequency, st.Anchor, now)
	snapshot := st.Clone()
	s.mu.Unlock()

	if s.schedRepo != nil {
		if err := s.schedRepo.Update(&snapshot); err != nil {
			slog.Error("Failed to persist schedule execution", "schedule_id", id, "error", err)
		}
	}
	return nil
}

// DueScheduledTransactions returns enabled jobs whose next execution is at
// or before now.
func (s *WorkflowStore) DueScheduledTransactions() []domain.ScheduledTransaction {
	now := s.clock.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScheduledTransaction
	for _, st := range s.schedules {
		if st.Enabled && !st.NextExecution.After(now) {
			out = append(out, st.Clone())
		}
	}
	return out
}
