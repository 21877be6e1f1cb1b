package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time                         { return f.now }
func (f *fakeClock) After(d time.Duration) <-chan time.Time { return time.After(0) }
func (f *fakeClock) Sleep(d time.Duration)                  {}

type mockStore struct {
	mu       sync.Mutex
	defs     map[string]*domain.WorkflowDefinition
	outcomes []domain.ExecutionOutcome
}

func (m *mockStore) Get(id string) (*domain.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.defs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := def.Clone()
	return &c, nil
}

func (m *mockStore) RecordExecutionOutcome(id string, outcome domain.ExecutionOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
	return nil
}

func (m *mockStore) recorded() []domain.ExecutionOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ExecutionOutcome(nil), m.outcomes...)
}

type mockGateway struct {
	mu           sync.Mutex
	calls        int
	depositFn    func(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error)
	withdrawalFn func(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error)
}

func (m *mockGateway) InitiateDeposit(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.depositFn(ctx, accountID, amount)
}

func (m *mockGateway) InitiateWithdrawal(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.withdrawalFn(ctx, accountID, amount)
}

func (m *mockGateway) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	return &domain.Balance{}, nil
}

func (m *mockGateway) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockAccounts struct {
	snapshot domain.AccountSnapshot
	err      error
}

func (m *mockAccounts) GetSnapshot(ctx context.Context, userID string) (*domain.AccountSnapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	s := m.snapshot
	return &s, nil
}

type mockHistory struct {
	mu    sync.Mutex
	saved []domain.Execution
}

func (m *mockHistory) Save(ex *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, ex.Clone())
	return nil
}

func (m *mockHistory) FindByID(id string) (*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.saved {
		if ex.ID == id {
			c := ex.Clone()
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockHistory) FindByWorkflowID(workflowID string) ([]domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Execution
	for i := len(m.saved) - 1; i >= 0; i-- {
		if m.saved[i].WorkflowID == workflowID {
			out = append(out, m.saved[i].Clone())
		}
	}
	return out, nil
}

func (m *mockHistory) FindRecent(limit int) ([]domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Execution
	for i := len(m.saved) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.saved[i].Clone())
	}
	return out, nil
}

func (m *mockHistory) TrimHistory(limit int) error { return nil }

type mockBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockBus) Publish(ev domain.Event) domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.Sequence = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return ev
}

func (m *mockBus) kinds() []domain.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventKind, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Kind
	}
	return out
}

func okGateway() *mockGateway {
	ok := func(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
		return &domain.TransactionResult{ID: "txn-1", Status: domain.TransactionCompleted}, nil
	}
	return &mockGateway{depositFn: ok, withdrawalFn: ok}
}

func transferWorkflow(enabled bool) *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		ID:      "wf-1",
		Name:    "monthly transfer",
		Enabled: enabled,
		Steps: []domain.Step{
			{ID: "s1", Kind: domain.StepTrigger, Name: "schedule fired", Config: map[string]string{"account": "acc-1"}},
			{ID: "s2", Kind: domain.StepAction, Name: "move funds", Config: map[string]string{"operation": "deposit", "amount": "250"}},
		},
	}
}

func newTestEngine(def *domain.WorkflowDefinition, gw *mockGateway, accounts *mockAccounts) (*Engine, *mockStore, *mockHistory, *mockBus) {
	store := &mockStore{defs: map[string]*domain.WorkflowDefinition{}}
	if def != nil {
		store.defs[def.ID] = def
	}
	history := &mockHistory{}
	bus := &mockBus{}
	clock := &fakeClock{now: time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)}
	if accounts == nil {
		accounts = &mockAccounts{}
	}
	return NewEngine(store, gw, accounts, history, bus, clock, 10), store, history, bus
}

func TestExecuteUnknownWorkflow(t *testing.T) {
	e, _, _, _ := newTestEngine(nil, okGateway(), nil)

	_, err := e.Execute(context.Background(), "missing", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExecuteDisabledWorkflow(t *testing.T) {
	e, _, _, _ := newTestEngine(transferWorkflow(false), okGateway(), nil)

	_, err := e.Execute(context.Background(), "wf-1", nil)
	if !errors.Is(err, domain.ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	gw := okGateway()
	e, store, history, bus := newTestEngine(transferWorkflow(true), gw, nil)

	execID, err := e.Execute(context.Background(), "wf-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ex, err := e.GetExecution(execID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Status != domain.ExecutionCompleted {
		t.Errorf("expected Completed, got %s", ex.Status)
	}
	if ex.Ended == nil {
		t.Error("expected Ended to be set")
	}
	if ex.Steps[0].Status != domain.StepCompleted || ex.Steps[0].Result != "triggered" {
		t.Errorf("unexpected trigger step: %+v", ex.Steps[0])
	}
	if ex.Steps[1].Status != domain.StepCompleted || ex.Steps[1].Result != "txn-1" {
		t.Errorf("unexpected action step: %+v", ex.Steps[1])
	}
	if gw.callCount() != 1 {
		t.Errorf("expected 1 gateway call, got %d", gw.callCount())
	}

	outcomes := store.recorded()
	if len(outcomes) != 1 || outcomes[0] != domain.OutcomeSuccess {
		t.Errorf("expected one success outcome, got %v", outcomes)
	}
	if len(history.saved) != 1 {
		t.Errorf("expected execution persisted once, got %d", len(history.saved))
	}

	want := []domain.EventKind{
		domain.EventExecutionStarted,
		domain.EventStepCompleted,
		domain.EventStepCompleted,
		domain.EventExecutionCompleted,
	}
	got := bus.kinds()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestExecuteTriggerPayloadFlowsIntoActions(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID: "wf-ctx", Name: "payload flow", Enabled: true,
		Steps: []domain.Step{
			{ID: "s1", Kind: domain.StepTrigger, Name: "start"},
			{ID: "s2", Kind: domain.StepAction, Name: "deposit", Config: map[string]string{"operation": "deposit"}},
		},
	}
	var gotAccount string
	var gotAmount float64
	gw := okGateway()
	gw.depositFn = func(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
		gotAccount = accountID
		gotAmount = amount
		return &domain.TransactionResult{ID: "txn-9", Status: domain.TransactionCompleted}, nil
	}
	e, _, _, _ := newTestEngine(def, gw, nil)

	_, err := e.Execute(context.Background(), "wf-ctx", map[string]string{"account": "acc-7", "amount": "42.5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAccount != "acc-7" {
		t.Errorf("expected account acc-7, got %s", gotAccount)
	}
	if gotAmount != 42.5 {
		t.Errorf("expected amount 42.5, got %v", gotAmount)
	}
}

func TestExecuteConditionDenialSkips(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID: "wf-gate", Name: "gated transfer", Enabled: true,
		Steps: []domain.Step{
			{ID: "s1", Kind: domain.StepTrigger, Name: "start"},
			{ID: "s2", Kind: domain.StepCondition, Name: "balance floor", Config: map[string]string{"minBalance": "100", "userId": "u1"}},
			{ID: "s3", Kind: domain.StepAction, Name: "deposit", Config: map[string]string{"operation": "deposit", "account": "acc-1", "amount": "50"}},
		},
	}
	gw := okGateway()
	accounts := &mockAccounts{snapshot: domain.AccountSnapshot{AvailableBalance: 50}}
	e, store, _, bus := newTestEngine(def, gw, accounts)

	execID, err := e.Execute(context.Background(), "wf-gate", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ex, _ := e.GetExecution(execID)
	if ex.Status != domain.ExecutionFailed {
		t.Errorf("expected Failed, got %s", ex.Status)
	}
	if !ex.Skipped {
		t.Error("expected execution marked skipped")
	}
	if ex.Reason != "below minimum balance" {
		t.Errorf("unexpected reason %q", ex.Reason)
	}
	if ex.Steps[2].Status != domain.StepPending {
		t.Errorf("expected action untouched, got %s", ex.Steps[2].Status)
	}
	if gw.callCount() != 0 {
		t.Errorf("gateway must not be called on denial, got %d calls", gw.callCount())
	}

	outcomes := store.recorded()
	if len(outcomes) != 1 || outcomes[0] != domain.OutcomeSkipped {
		t.Errorf("expected one skipped outcome, got %v", outcomes)
	}
	kinds := bus.kinds()
	if kinds[len(kinds)-1] != domain.EventExecutionSkipped {
		t.Errorf("expected terminal skipped event, got %s", kinds[len(kinds)-1])
	}
}

func TestExecuteConditionAllowsWhenMet(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID: "wf-gate", Name: "gated transfer", Enabled: true,
		Steps: []domain.Step{
			{ID: "s1", Kind: domain.StepCondition, Name: "balance floor", Config: map[string]string{"minBalance": "100", "userId": "u1"}},
			{ID: "s2", Kind: domain.StepAction, Name: "deposit", Config: map[string]string{"operation": "deposit", "account": "acc-1", "amount": "50"}},
		},
	}
	gw := okGateway()
	accounts := &mockAccounts{snapshot: domain.AccountSnapshot{AvailableBalance: 150}}
	e, _, _, _ := newTestEngine(def, gw, accounts)

	execID, err := e.Execute(context.Background(), "wf-gate", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ex, _ := e.GetExecution(execID)
	if ex.Status != domain.ExecutionCompleted {
		t.Errorf("expected Completed, got %s", ex.Status)
	}
	if ex.Steps[0].Result != "allowed" {
		t.Errorf("expected condition result allowed, got %q", ex.Steps[0].Result)
	}
	if gw.callCount() != 1 {
		t.Errorf("expected 1 gateway call, got %d", gw.callCount())
	}
}

func TestExecuteGatewayFailure(t *testing.T) {
	gw := okGateway()
	gw.depositFn = func(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
		return &domain.TransactionResult{ID: "txn-2", Status: domain.TransactionFailed, Error: "insufficient funds"}, nil
	}
	e, store, _, bus := newTestEngine(transferWorkflow(true), gw, nil)

	execID, err := e.Execute(context.Background(), "wf-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ex, _ := e.GetExecution(execID)
	if ex.Status != domain.ExecutionFailed {
		t.Errorf("expected Failed, got %s", ex.Status)
	}
	if ex.Skipped {
		t.Error("gateway failure is not a skip")
	}
	if ex.Error == "" {
		t.Error("expected execution error recorded")
	}
	outcomes := store.recorded()
	if len(outcomes) != 1 || outcomes[0] != domain.OutcomeFailure {
		t.Errorf("expected one failure outcome, got %v", outcomes)
	}
	kinds := bus.kinds()
	if kinds[len(kinds)-1] != domain.EventExecutionFailed {
		t.Errorf("expected terminal failed event, got %s", kinds[len(kinds)-1])
	}
}

func TestExecuteRejectsConcurrentRun(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := okGateway()
	gw.depositFn = func(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
		close(entered)
		<-release
		return &domain.TransactionResult{ID: "txn-3", Status: domain.TransactionCompleted}, nil
	}
	e, _, _, _ := newTestEngine(transferWorkflow(true), gw, nil)

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), "wf-1", nil)
		done <- err
	}()
	<-entered

	_, err := e.Execute(context.Background(), "wf-1", nil)
	if !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// the run lock is released once the first run is terminal
	gw.depositFn = func(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
		return &domain.TransactionResult{ID: "txn-3", Status: domain.TransactionCompleted}, nil
	}
	if _, err := e.Execute(context.Background(), "wf-1", nil); err != nil {
		t.Errorf("expected rerun to be admitted, got %v", err)
	}
}

func TestPollInFlightExecutionWhileStepRuns(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := okGateway()
	gw.depositFn = func(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
		close(entered)
		<-release
		return &domain.TransactionResult{ID: "txn-8", Status: domain.TransactionCompleted}, nil
	}
	e, _, _, _ := newTestEngine(transferWorkflow(true), gw, nil)

	done := make(chan string, 1)
	go func() {
		id, _ := e.Execute(context.Background(), "wf-1", nil)
		done <- id
	}()
	<-entered

	list, err := e.ListExecutions("wf-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one in-flight execution, got %d", len(list))
	}
	execID := list[0].ID

	// keep polling while the action step is still inside the gateway; every
	// read must see a consistent clone of the running execution
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			ex, err := e.GetExecution(execID)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ex.Status != domain.ExecutionRunning && !ex.Status.Terminal() {
				t.Errorf("unexpected status %s", ex.Status)
				return
			}
			if _, err := e.ListExecutions("wf-1"); err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
		}
	}()

	close(release)
	finalID := <-done
	close(stop)
	wg.Wait()

	if finalID != execID {
		t.Errorf("expected execution %s, got %s", execID, finalID)
	}
	ex, _ := e.GetExecution(execID)
	if ex.Status != domain.ExecutionCompleted {
		t.Errorf("expected Completed, got %s", ex.Status)
	}
	if ex.Steps[1].Result != "txn-8" {
		t.Errorf("unexpected action result %q", ex.Steps[1].Result)
	}
}

func TestCancelExecutionStopsBeforeNextStep(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID: "wf-cancel", Name: "two transfers", Enabled: true,
		Steps: []domain.Step{
			{ID: "s1", Kind: domain.StepAction, Name: "first", Config: map[string]string{"operation": "deposit", "account": "acc-1", "amount": "10"}},
			{ID: "s2", Kind: domain.StepAction, Name: "second", Config: map[string]string{"operation": "deposit", "account": "acc-1", "amount": "20"}},
		},
	}
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := okGateway()
	gw.depositFn = func(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
		close(entered)
		<-release
		return &domain.TransactionResult{ID: "txn-4", Status: domain.TransactionCompleted}, nil
	}
	e, store, _, _ := newTestEngine(def, gw, nil)

	done := make(chan string, 1)
	go func() {
		id, _ := e.Execute(context.Background(), "wf-cancel", nil)
		done <- id
	}()
	<-entered

	list, err := e.ListExecutions("wf-cancel")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one in-flight execution, got %d", len(list))
	}
	if err := e.CancelExecution(list[0].ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	close(release)
	execID := <-done

	ex, _ := e.GetExecution(execID)
	if ex.Status != domain.ExecutionCancelled {
		t.Errorf("expected Cancelled, got %s", ex.Status)
	}
	if ex.Steps[0].Status != domain.StepCompleted {
		t.Errorf("in-flight step should finish, got %s", ex.Steps[0].Status)
	}
	if ex.Steps[1].Status != domain.StepPending {
		t.Errorf("step after cancel must not run, got %s", ex.Steps[1].Status)
	}
	if gw.callCount() != 1 {
		t.Errorf("expected 1 gateway call, got %d", gw.callCount())
	}
	outcomes := store.recorded()
	if len(outcomes) != 1 || outcomes[0] != domain.OutcomeSkipped {
		t.Errorf("expected one skipped outcome, got %v", outcomes)
	}
}

func TestCancelTerminalExecutionRejected(t *testing.T) {
	e, _, _, _ := newTestEngine(transferWorkflow(true), okGateway(), nil)

	execID, err := e.Execute(context.Background(), "wf-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.CancelExecution(execID); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if err := e.CancelExecution("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetExecutionFallsBackToHistory(t *testing.T) {
	e, _, history, _ := newTestEngine(transferWorkflow(true), okGateway(), nil)

	ended := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	history.saved = append(history.saved, domain.Execution{
		ID: "old-exec", WorkflowID: "wf-1", Status: domain.ExecutionCompleted, Ended: &ended,
	})

	ex, err := e.GetExecution("old-exec")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.ID != "old-exec" || ex.Status != domain.ExecutionCompleted {
		t.Errorf("unexpected execution %+v", ex)
	}

	if _, err := e.GetExecution("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListExecutionsNewestFirst(t *testing.T) {
	e, _, _, _ := newTestEngine(transferWorkflow(true), okGateway(), nil)

	first, err := e.Execute(context.Background(), "wf-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.Execute(context.Background(), "wf-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list, err := e.ListExecutions("wf-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(list))
	}
	if list[0].ID != second || list[1].ID != first {
		t.Errorf("expected newest first, got %s then %s", list[0].ID, list[1].ID)
	}
}

func TestExecuteUnknownStepKindFails(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID: "wf-bad", Name: "bad step", Enabled: true,
		Steps: []domain.Step{{ID: "s1", Kind: "Mystery", Name: "what"}},
	}
	e, store, _, _ := newTestEngine(def, okGateway(), nil)

	execID, err := e.Execute(context.Background(), "wf-bad", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ex, _ := e.GetExecution(execID)
	if ex.Status != domain.ExecutionFailed {
		t.Errorf("expected Failed, got %s", ex.Status)
	}
	outcomes := store.recorded()
	if len(outcomes) != 1 || outcomes[0] != domain.OutcomeFailure {
		t.Errorf("expected failure outcome, got %v", outcomes)
	}
}
