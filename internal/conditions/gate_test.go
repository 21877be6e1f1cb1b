package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

func f(v float64) *float64 { return &v }

func TestCanExecuteNoConditionsAllows(t *testing.T) {
	ok, reason := CanExecute(nil, domain.AccountSnapshot{})
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = CanExecute(&domain.Conditions{}, domain.AccountSnapshot{AvailableBalance: -10})
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestCanExecuteMinBalance(t *testing.T) {
	cond := &domain.Conditions{MinBalance: f(100)}

	ok, reason := CanExecute(cond, domain.AccountSnapshot{AvailableBalance: 50})
	assert.False(t, ok)
	assert.Equal(t, ReasonBelowMinBalance, reason)

	ok, _ = CanExecute(cond, domain.AccountSnapshot{AvailableBalance: 100})
	assert.True(t, ok)
}

func TestCanExecuteMaxBalanceSuppressesDeposits(t *testing.T) {
	cond := &domain.Conditions{MaxBalance: f(1000)}

	ok, reason := CanExecute(cond, domain.AccountSnapshot{AvailableBalance: 1500})
	assert.False(t, ok)
	assert.Equal(t, ReasonAboveMaxBalance, reason)

	ok, _ = CanExecute(cond, domain.AccountSnapshot{AvailableBalance: 1000})
	assert.True(t, ok)
}

func TestCanExecuteProfitThreshold(t *testing.T) {
	cond := &domain.Conditions{ProfitThreshold: f(200)}

	ok, reason := CanExecute(cond, domain.AccountSnapshot{TotalBalance: 1100, InvestedAmount: 1000})
	assert.False(t, ok)
	assert.Equal(t, ReasonBelowProfit, reason)

	ok, _ = CanExecute(cond, domain.AccountSnapshot{TotalBalance: 1200, InvestedAmount: 1000})
	assert.True(t, ok)
}

func TestCanExecuteChecksInDeclaredOrder(t *testing.T) {
	// when several bounds fail the min-balance reason wins
	cond := &domain.Conditions{MinBalance: f(100), ProfitThreshold: f(500)}
	ok, reason := CanExecute(cond, domain.AccountSnapshot{AvailableBalance: 10})
	assert.False(t, ok)
	assert.Equal(t, ReasonBelowMinBalance, reason)
}
