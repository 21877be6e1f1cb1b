package conditions

import (
	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// Deny reasons surfaced to callers and recorded on skipped outcomes.
const (
	ReasonBelowMinBalance = "below minimum balance"
	ReasonAboveMaxBalance = "above maximum balance"
	ReasonBelowProfit     = "profit below threshold"
)

// CanExecute evaluates the declared preconditions against a single account
// snapshot. The snapshot is taken once by the caller and never re-fetched
// mid-evaluation. No declared conditions means always allow.
func CanExecute(cond *domain.Conditions, snap domain.AccountSnapshot) (bool, string) {
	if cond == nil {
		return true, ""
	}
	if cond.MinBalance != nil && snap.AvailableBalance < *cond.MinBalance {
		return false, ReasonBelowMinBalance
	}
	if cond.MaxBalance != nil && snap.AvailableBalance > *cond.MaxBalance {
		return false, ReasonAboveMaxBalance
	}
	if cond.ProfitThreshold != nil && (snap.TotalBalance-snap.InvestedAmount) < *cond.ProfitThreshold {
		return false, ReasonBelowProfit
	}
	return true, ""
}
