package domain

// AccountSnapshot is a single consistent view of an account used for
// condition evaluation. It is captured once per evaluation and never
// re-fetched mid-check.
type AccountSnapshot struct {
	TotalBalance     float64 `json:"totalBalance"`
	AvailableBalance float64 `json:"availableBalance"`
	InvestedAmount   float64 `json:"investedAmount"`
}

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "Pending"
	TransactionProcessing TransactionStatus = "Processing"
	TransactionCompleted  TransactionStatus = "Completed"
	TransactionFailed     TransactionStatus = "Failed"
	TransactionCancelled  TransactionStatus = "Cancelled"
)

// TransactionResult is what the bank gateway reports back for an initiated
// deposit or withdrawal.
type TransactionResult struct {
	ID     string            `json:"id"`
	Status TransactionStatus `json:"status"`
	Error  string            `json:"error,omitempty"`
}

// Balance is the gateway's view of an account.
type Balance struct {
	Available float64 `json:"available"`
	Current   float64 `json:"current"`
}
