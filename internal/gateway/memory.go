package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// MemoryGateway is an in-process gateway used for local runs and tests. It
// settles transfers immediately against per-account balances.
type MemoryGateway struct {
	mu       sync.Mutex
	balances map[string]*domain.AccountSnapshot
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{balances: make(map[string]*domain.AccountSnapshot)}
}

// SetBalance seeds or replaces an account's snapshot.
func (g *MemoryGateway) SetBalance(accountID string, snap domain.AccountSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := snap
	g.balances[accountID] = &s
}

func (g *MemoryGateway) account(accountID string) *domain.AccountSnapshot {
	if s, ok := g.balances[accountID]; ok {
		return s
	}
	s := &domain.AccountSnapshot{}
	g.balances[accountID] = s
	return s
}

func (g *MemoryGateway) InitiateDeposit(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: deposit amount must be positive", domain.ErrValidation)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	acc := g.account(accountID)
	acc.AvailableBalance += amount
	acc.TotalBalance += amount
	return &domain.TransactionResult{ID: uuid.NewString(), Status: domain.TransactionCompleted}, nil
}

func (g *MemoryGateway) InitiateWithdrawal(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", domain.ErrValidation)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	acc := g.account(accountID)
	if acc.AvailableBalance < amount {
		return &domain.TransactionResult{
			ID:     uuid.NewString(),
			Status: domain.TransactionFailed,
			Error:  "insufficient funds",
		}, nil
	}
	acc.AvailableBalance -= amount
	acc.TotalBalance -= amount
	return &domain.TransactionResult{ID: uuid.NewString(), Status: domain.TransactionCompleted}, nil
}

func (g *MemoryGateway) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	acc := g.account(accountID)
	return &domain.Balance{Available: acc.AvailableBalance, Current: acc.TotalBalance}, nil
}

func (g *MemoryGateway) GetSnapshot(ctx context.Context, userID string) (*domain.AccountSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	acc := g.account(userID)
	s := *acc
	return &s, nil
}
