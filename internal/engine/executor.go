package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/finpilot/finpilot/internal/conditions"
	"github.com/finpilot/finpilot/internal/gateway"
	"github.com/finpilot/finpilot/pkg/finpilot/core"
	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// Engine runs workflow executions. It enforces at most one concurrent
// execution per workflow: the run lock is taken at Execute entry and
// released when the execution reaches a terminal state, and a second call
// for the same workflow fails immediately with AlreadyRunning instead of
// queuing.
type Engine struct {
	store    WorkflowStore
	gateway  gateway.BankTransferGateway
	accounts gateway.AccountStateProvider
	history  ExecutionHistory
	bus      Publisher
	clock    core.Clock

	historyLimit int

	mu         sync.Mutex
	running    map[string]string // workflow id -> in-flight execution id
	cancelled  map[string]bool   // execution id -> cancel requested
	executions map[string]*domain.Execution
	recent     []string // execution ids, oldest first
}

func NewEngine(store WorkflowStore, gw gateway.BankTransferGateway, accounts gateway.AccountStateProvider,
	history ExecutionHistory, bus Publisher, clock core.Clock, historyLimit int) *Engine {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &Engine{
		store:        store,
		gateway:      gw,
		accounts:     accounts,
		history:      history,
		bus:          bus,
		clock:        clock,
		historyLimit: historyLimit,
		running:      make(map[string]string),
		cancelled:    make(map[string]bool),
		executions:   make(map[string]*domain.Execution),
	}
}

// Execute runs the workflow's steps in declared order and returns the
// execution id once the run is terminal. The returned error is only about
// admission: NotFound, Disabled or AlreadyRunning. Step failures are
// recorded on the execution itself.
func (e *Engine) Execute(ctx context.Context, workflowID string, payload map[string]string) (string, error) {
	def, err := e.store.Get(workflowID)
	if err != nil {
		return "", err
	}
	if !def.Enabled {
		return "", fmt.Errorf("workflow %s: %w", workflowID, domain.ErrDisabled)
	}

	e.mu.Lock()
	if execID, ok := e.running[workflowID]; ok {
		e.mu.Unlock()
		return "", fmt.Errorf("workflow %s has execution %s in flight: %w", workflowID, execID, domain.ErrAlreadyRunning)
	}
	ex := &domain.Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Status:     domain.ExecutionRunning,
		Started:    e.clock.Now(),
		Steps:      make([]domain.Step, len(def.Steps)),
	}
	for i, step := range def.Steps {
		ex.Steps[i] = step.Clone()
	}
	e.running[workflowID] = ex.ID
	e.executions[ex.ID] = ex
	e.mu.Unlock()

	slog.InfoContext(ctx, "Execution started", "workflow_id", workflowID, "execution_id", ex.ID)
	e.publish(domain.Event{Kind: domain.EventExecutionStarted, WorkflowID: workflowID, ExecutionID: ex.ID})

	runCtx := make(map[string]string, len(payload))
	for k, v := range payload {
		runCtx[k] = v
	}

	outcome := domain.OutcomeSuccess
	for i := range ex.Steps {
		if e.cancelRequested(ex.ID) {
			name := ex.Steps[i].Name
			e.withLock(func() {
				ex.Status = domain.ExecutionCancelled
				ex.Reason = "cancelled before step " + name
			})
			outcome = domain.OutcomeSkipped
			break
		}
		step := &ex.Steps[i]
		e.withLock(func() { step.Status = domain.StepRunning })

		var stepErr error
		var denied bool
		switch step.Kind {
		case domain.StepTrigger:
			e.runTrigger(step, runCtx)
		case domain.StepCondition:
			denied, stepErr = e.runCondition(ctx, step, runCtx)
		case domain.StepAction:
			stepErr = e.runAction(ctx, step, runCtx)
		default:
			stepErr = fmt.Errorf("%w: unknown step kind %q", domain.ErrValidation, step.Kind)
		}

		if denied {
			// a gate denial is a planned skip, not a failure: stop here,
			// run nothing after the gate, and leave the success rate alone
			e.withLock(func() {
				step.Status = domain.StepFailed
				ex.Status = domain.ExecutionFailed
				ex.Skipped = true
				ex.Reason = step.Result
			})
			outcome = domain.OutcomeSkipped
			break
		}
		if stepErr != nil {
			slog.ErrorContext(ctx, "Step failed", "workflow_id", workflowID, "execution_id", ex.ID,
				"step", step.Name, "error", stepErr)
			e.withLock(func() {
				step.Result = stepErr.Error()
				step.Status = domain.StepFailed
				ex.Status = domain.ExecutionFailed
				ex.Error = stepErr.Error()
			})
			outcome = domain.OutcomeFailure
			break
		}

		e.withLock(func() { step.Status = domain.StepCompleted })
		e.publish(domain.Event{Kind: domain.EventStepCompleted, WorkflowID: workflowID,
			ExecutionID: ex.ID, StepID: step.ID, Detail: map[string]string{"step": step.Name}})
	}

	e.withLock(func() {
		if ex.Status == domain.ExecutionRunning {
			ex.Status = domain.ExecutionCompleted
		}
	})
	e.finish(ctx, ex, outcome)
	return ex.ID, nil
}

func (e *Engine) runTrigger(step *domain.Step, runCtx map[string]string) {
	// triggers have no side effect; the payload just becomes context for
	// the steps after it
	for k, v := range step.Config {
		if _, ok := runCtx[k]; !ok {
			runCtx[k] = v
		}
	}
	e.withLock(func() { step.Result = "triggered" })
}

func (e *Engine) runCondition(ctx context.Context, step *domain.Step, runCtx map[string]string) (bool, error) {
	cond, err := parseConditions(step.Config)
	if err != nil {
		return false, err
	}
	userID := resolve(step.Config, runCtx, "userId")
	snap, err := e.accounts.GetSnapshot(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: fetching account snapshot: %v", domain.ErrGateway, err)
	}
	ok, reason := conditions.CanExecute(cond, *snap)
	if !ok {
		e.withLock(func() { step.Result = reason })
		return true, nil
	}
	e.withLock(func() { step.Result = "allowed" })
	return false, nil
}

func (e *Engine) runAction(ctx context.Context, step *domain.Step, runCtx map[string]string) error {
	operation := resolve(step.Config, runCtx, "operation")
	account := resolve(step.Config, runCtx, "account")
	switch operation {
	case "deposit", "withdrawal":
		amountStr := resolve(step.Config, runCtx, "amount")
		amount, err := strconv.ParseFloat(amountStr, 64)
		if err != nil {
			return fmt.Errorf("%w: bad amount %q", domain.ErrValidation, amountStr)
		}
		var result *domain.TransactionResult
		if operation == "deposit" {
			result, err = e.gateway.InitiateDeposit(ctx, account, amount)
		} else {
			result, err = e.gateway.InitiateWithdrawal(ctx, account, amount)
		}
		if err != nil {
			return err
		}
		if result.Status == domain.TransactionFailed {
			return fmt.Errorf("%w: %s", domain.ErrGateway, result.Error)
		}
		e.withLock(func() { step.Result = result.ID })
		runCtx["transactionId"] = result.ID
		return nil
	case "notification":
		slog.InfoContext(ctx, "Notification step", "message", resolve(step.Config, runCtx, "message"))
		e.withLock(func() { step.Result = "sent" })
		return nil
	}
	return fmt.Errorf("%w: unknown action operation %q", domain.ErrValidation, operation)
}

func (e *Engine) finish(ctx context.Context, ex *domain.Execution, outcome domain.ExecutionOutcome) {
	now := e.clock.Now()
	e.mu.Lock()
	ex.Ended = &now
	delete(e.running, ex.WorkflowID)
	delete(e.cancelled, ex.ID)
	e.recent = append(e.recent, ex.ID)
	for len(e.recent) > e.historyLimit {
		delete(e.executions, e.recent[0])
		e.recent = e.recent[1:]
	}
	snapshot := ex.Clone()
	e.mu.Unlock()

	if e.history != nil {
		if err := e.history.Save(&snapshot); err != nil {
			slog.ErrorContext(ctx, "Failed to persist execution", "execution_id", ex.ID, "error", err)
		}
		if err := e.history.TrimHistory(e.historyLimit); err != nil {
			slog.ErrorContext(ctx, "Failed to trim execution history", "error", err)
		}
	}

	if err := e.store.RecordExecutionOutcome(ex.WorkflowID, outcome); err != nil {
		slog.ErrorContext(ctx, "Failed to record execution outcome", "workflow_id", ex.WorkflowID, "error", err)
	}

	kind := domain.EventExecutionCompleted
	switch {
	case ex.Skipped || ex.Status == domain.ExecutionCancelled:
		kind = domain.EventExecutionSkipped
	case ex.Status == domain.ExecutionFailed:
		kind = domain.EventExecutionFailed
	}
	detail := map[string]string{"status": string(ex.Status)}
	if ex.Error != "" {
		detail["error"] = ex.Error
	}
	if ex.Reason != "" {
		detail["reason"] = ex.Reason
	}
	e.publish(domain.Event{Kind: kind, WorkflowID: ex.WorkflowID, ExecutionID: ex.ID, Detail: detail})
	slog.InfoContext(ctx, "Execution finished", "workflow_id", ex.WorkflowID,
		"execution_id", ex.ID, "status", ex.Status)
}

// CancelExecution requests cancellation of an in-flight execution. The
// current step finishes; steps after it do not start. A side effect already
// submitted to the gateway is never undone.
func (e *Engine) CancelExecution(executionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ex, ok := e.executions[executionID]
	if !ok {
		return domain.ErrNotFound
	}
	if ex.Status.Terminal() {
		return fmt.Errorf("execution %s is already terminal: %w", executionID, domain.ErrValidation)
	}
	e.cancelled[executionID] = true
	return nil
}

func (e *Engine) GetExecution(id string) (*domain.Execution, error) {
	e.mu.Lock()
	ex, ok := e.executions[id]
	if ok {
		c := ex.Clone()
		e.mu.Unlock()
		return &c, nil
	}
	e.mu.Unlock()
	if e.history != nil {
		ex, err := e.history.FindByID(id)
		if err != nil {
			return nil, err
		}
		if ex != nil {
			return ex, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ListExecutions returns the runs of one workflow, newest first, merging
// anything in flight with the persisted history.
func (e *Engine) ListExecutions(workflowID string) ([]domain.Execution, error) {
	var out []domain.Execution
	seen := map[string]bool{}
	e.mu.Lock()
	for i := len(e.recent) - 1; i >= 0; i-- {
		if ex, ok := e.executions[e.recent[i]]; ok && ex.WorkflowID == workflowID {
			out = append(out, ex.Clone())
			seen[ex.ID] = true
		}
	}
	if execID, ok := e.running[workflowID]; ok && !seen[execID] {
		if ex, ok := e.executions[execID]; ok {
			out = append([]domain.Execution{ex.Clone()}, out...)
			seen[execID] = true
		}
	}
	e.mu.Unlock()

	if e.history != nil {
		persisted, err := e.history.FindByWorkflowID(workflowID)
		if err != nil {
			return nil, err
		}
		for _, ex := range persisted {
			if !seen[ex.ID] {
				out = append(out, ex)
			}
		}
	}
	return out, nil
}

func (e *Engine) GetRecentExecutions(limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []domain.Execution
	e.mu.Lock()
	for i := len(e.recent) - 1; i >= 0 && len(out) < limit; i-- {
		if ex, ok := e.executions[e.recent[i]]; ok {
			out = append(out, ex.Clone())
		}
	}
	e.mu.Unlock()
	if len(out) < limit && e.history != nil {
		persisted, err := e.history.FindRecent(limit)
		if err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		for _, ex := range out {
			seen[ex.ID] = true
		}
		for _, ex := range persisted {
			if len(out) >= limit {
				break
			}
			if !seen[ex.ID] {
				out = append(out, ex)
			}
		}
	}
	return out, nil
}

func (e *Engine) cancelRequested(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[executionID]
}

func (e *Engine) withLock(fn func()) {
	e.mu.Lock()
	fn()
	e.mu.Unlock()
}

func (e *Engine) publish(ev domain.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func parseConditions(config map[string]string) (*domain.Conditions, error) {
	var cond domain.Conditions
	found := false
	for key, target := range map[string]**float64{
		"minBalance":      &cond.MinBalance,
		"maxBalance":      &cond.MaxBalance,
		"profitThreshold": &cond.ProfitThreshold,
	} {
		if raw, ok := config[key]; ok && raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad %s %q", domain.ErrValidation, key, raw)
			}
			*target = &v
			found = true
		}
	}
	if !found {
		return nil, nil
	}
	return &cond, nil
}

func resolve(config, runCtx map[string]string, key string) string {
	if v, ok := config[key]; ok && v != "" {
		return v
	}
	return runCtx[key]
}
