package gateway

import (
	"context"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// BankTransferGateway is the external boundary performing real money
// movement. Implementations may block; callers treat any returned error or
// a Failed result status as a gateway failure.
type BankTransferGateway interface {
	InitiateDeposit(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error)
	InitiateWithdrawal(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error)
	GetBalance(ctx context.Context, accountID string) (*domain.Balance, error)
}

// AccountStateProvider supplies the consistent snapshot the condition gate
// evaluates against.
type AccountStateProvider interface {
	GetSnapshot(ctx context.Context, userID string) (*domain.AccountSnapshot, error)
}
