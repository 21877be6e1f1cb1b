package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finpilot/finpilot/internal/conditions"
	"github.com/finpilot/finpilot/internal/config"
	"github.com/finpilot/finpilot/internal/engine"
	"github.com/finpilot/finpilot/internal/gateway"
	"github.com/finpilot/finpilot/pkg/finpilot/core"
	"github.com/finpilot/finpilot/pkg/finpilot/domain"
	"github.com/finpilot/finpilot/pkg/finpilot/models"
)

// ExecutionRunner is the slice of the execution engine the scheduler
// dispatches workflow runs through.
type ExecutionRunner interface {
	Execute(ctx context.Context, workflowID string, payload map[string]string) (string, error)
}

type Publisher interface {
	Publish(ev domain.Event) domain.Event
}

type jobKind int

const (
	jobWorkflow jobKind = iota
	jobScheduledTransaction
)

type job struct {
	kind jobKind
	id   string
}

// Scheduler polls the store for due workflows and scheduled transactions and
// hands each one to a worker. A schedule advances at dispatch time, before
// the run happens, so a slow run never causes the same due item to be picked
// up twice.
type Scheduler struct {
	engine   ExecutionRunner
	store    engine.ScheduleStore
	gateway  gateway.BankTransferGateway
	accounts gateway.AccountStateProvider
	bus      Publisher
	clock    core.Clock

	wakeup chan struct{}
	queue  chan job
}

func NewScheduler(runner ExecutionRunner, store engine.ScheduleStore, gw gateway.BankTransferGateway,
	accounts gateway.AccountStateProvider, bus Publisher, clock core.Clock) *Scheduler {
	queueSize := config.GetSystemSettingInteger(config.SCHEDULER_QUEUE_SIZE)
	if queueSize <= 0 {
		queueSize = 20
	}
	return &Scheduler{
		engine:   runner,
		store:    store,
		gateway:  gw,
		accounts: accounts,
		bus:      bus,
		clock:    clock,
		wakeup:   make(chan struct{}, 1),
		queue:    make(chan job, queueSize),
	}
}

// Start runs the due-scan loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	workers := config.GetSystemSettingInteger(config.SCHEDULER_WORKER_SIZE)
	if workers <= 0 {
		workers = 5
	}
	slog.Info("Starting scheduler", "workers", workers, "queue_size", cap(s.queue), "poll_interval", pollInterval.String())
	for i := 0; i < workers; i++ {
		go s.worker(ctx, i)
	}

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Scheduler stopping due to context cancel")
			return
		case <-ticker.C:
			s.poll(ctx)
		case <-s.wakeup:
			s.poll(ctx)
		}
	}
}

// Wakeup triggers an immediate due scan outside the poll interval.
func (s *Scheduler) Wakeup() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			slog.Debug("Worker starting job", "worker_id", id)
			switch j.kind {
			case jobWorkflow:
				s.runWorkflow(ctx, j.id)
			case jobScheduledTransaction:
				s.runScheduledTransaction(ctx, j.id)
			}
			slog.Debug("Worker finished job", "worker_id", id)
		}
	}
}

// poll finds everything due and dispatches it. Each item's schedule advances
// here, before the job is queued.
func (s *Scheduler) poll(ctx context.Context) {
	slog.Debug("Polling for due schedules")

	if len(s.queue) >= cap(s.queue) {
		slog.Warn("Scheduler queue full, skipping due scan, possibly long running jobs")
		return
	}

	for _, wf := range s.store.DueWorkflows() {
		slog.InfoContext(ctx, "Workflow due", "workflow_id", wf.ID, "name", wf.Name)
		if err := s.store.AdvanceSchedule(wf.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to advance workflow schedule", "workflow_id", wf.ID, "error", err)
			continue
		}
		s.queue <- job{kind: jobWorkflow, id: wf.ID}
	}

	for _, st := range s.store.DueScheduledTransactions() {
		slog.InfoContext(ctx, "Scheduled transaction due", "schedule_id", st.ID, "type", st.Type)
		if err := s.store.MarkScheduleExecuted(st.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to advance scheduled transaction", "schedule_id", st.ID, "error", err)
			continue
		}
		s.queue <- job{kind: jobScheduledTransaction, id: st.ID}
	}
}

func (s *Scheduler) runWorkflow(ctx context.Context, workflowID string) {
	execID, err := s.engine.Execute(ctx, workflowID, nil)
	if err != nil {
		// AlreadyRunning just means the previous run is still going; the
		// schedule already advanced so the workflow fires again next period
		if errors.Is(err, domain.ErrAlreadyRunning) {
			slog.WarnContext(ctx, "Skipping scheduled run, previous execution still in flight", "workflow_id", workflowID)
			return
		}
		slog.ErrorContext(ctx, "Scheduled workflow run failed", "workflow_id", workflowID, "error", err)
		return
	}
	slog.InfoContext(ctx, "Scheduled workflow run finished", "workflow_id", workflowID, "execution_id", execID)
}

func (s *Scheduler) runScheduledTransaction(ctx context.Context, scheduleID string) {
	st, err := s.store.GetScheduledTransaction(scheduleID)
	if err != nil {
		slog.ErrorContext(ctx, "Scheduled transaction vanished before run", "schedule_id", scheduleID, "error", err)
		return
	}
	result := s.execute(ctx, st)
	detail := map[string]string{"type": string(st.Type)}
	switch {
	case result.Skipped:
		detail["skipped"] = "true"
		detail["reason"] = result.Reason
	case result.Success:
		detail["transactionId"] = result.TransactionID
	default:
		detail["error"] = result.Error
	}
	s.publish(domain.Event{Kind: domain.EventScheduleExecuted, ExecutionID: scheduleID, Detail: detail})
}

// RunScheduledTransactionNow executes a scheduled transaction immediately,
// outside its schedule. The gate still applies; the next execution date is
// left alone.
func (s *Scheduler) RunScheduledTransactionNow(ctx context.Context, scheduleID string) (models.ExecutionResult, error) {
	st, err := s.store.GetScheduledTransaction(scheduleID)
	if err != nil {
		return models.ExecutionResult{}, err
	}
	result := s.execute(ctx, st)
	detail := map[string]string{"type": string(st.Type), "manual": "true"}
	if result.Skipped {
		detail["skipped"] = "true"
		detail["reason"] = result.Reason
	}
	s.publish(domain.Event{Kind: domain.EventScheduleExecuted, ExecutionID: scheduleID, Detail: detail})
	return result, nil
}

// execute runs the gate then the transfer for one scheduled transaction.
func (s *Scheduler) execute(ctx context.Context, st *domain.ScheduledTransaction) models.ExecutionResult {
	if st.Conditions != nil {
		snap, err := s.accounts.GetSnapshot(ctx, st.UserID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to fetch account snapshot", "schedule_id", st.ID, "error", err)
			return models.ExecutionResult{Error: fmt.Sprintf("fetching account snapshot: %v", err)}
		}
		if ok, reason := conditions.CanExecute(st.Conditions, *snap); !ok {
			slog.InfoContext(ctx, "Scheduled transaction skipped by condition gate", "schedule_id", st.ID, "reason", reason)
			return models.ExecutionResult{Skipped: true, Reason: reason}
		}
	}

	var result *domain.TransactionResult
	var err error
	switch st.Type {
	case domain.TransactionDeposit:
		result, err = s.gateway.InitiateDeposit(ctx, st.TargetAccount, st.Amount)
	case domain.TransactionWithdrawal:
		result, err = s.gateway.InitiateWithdrawal(ctx, st.TargetAccount, st.Amount)
	default:
		return models.ExecutionResult{Error: fmt.Sprintf("unknown transaction type %q", st.Type)}
	}
	if err != nil {
		slog.ErrorContext(ctx, "Scheduled transaction failed", "schedule_id", st.ID, "error", err)
		return models.ExecutionResult{Error: err.Error()}
	}
	if result.Status == domain.TransactionFailed {
		slog.ErrorContext(ctx, "Scheduled transaction rejected by gateway", "schedule_id", st.ID, "error", result.Error)
		return models.ExecutionResult{Error: result.Error}
	}
	slog.InfoContext(ctx, "Scheduled transaction executed", "schedule_id", st.ID, "transaction_id", result.ID)
	return models.ExecutionResult{Success: true, TransactionID: result.ID}
}

func (s *Scheduler) publish(ev domain.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
