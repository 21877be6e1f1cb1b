package gateway

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// HTTPGateway talks to the bank transfer provider over its REST interface.
// Requests carry a hash signature computed over the alphabetically ordered
// field values plus the integration key.
type HTTPGateway struct {
	IntegrationID  string
	IntegrationKey string
	baseURL        string
	HTTPClient     *http.Client // optional
}

// NewHTTPGateway creates a gateway client with sane defaults.
func NewHTTPGateway(baseURL, integrationID, integrationKey string) *HTTPGateway {
	return &HTTPGateway{
		IntegrationID:  integrationID,
		IntegrationKey: integrationKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		HTTPClient:     &http.Client{Timeout: 25 * time.Second},
	}
}

type transferRequest struct {
	Id        string  `json:"id"`
	AccountID string  `json:"accountId"`
	Amount    float64 `json:"amount"`
	Direction string  `json:"direction"`
	Hash      string  `json:"hash"`
}

type transferResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
}

type balanceResponse struct {
	Available float64 `json:"available"`
	Current   float64 `json:"current"`
	Total     float64 `json:"total"`
	Invested  float64 `json:"invested"`
}

func computeTransferHash(req transferRequest, integrationKey string) string {
	// the provider verifies against the alphabetically ordered values
	fields := map[string]string{
		"accountid": req.AccountID,
		"amount":    fmt.Sprintf("%.2f", req.Amount),
		"direction": req.Direction,
		"id":        req.Id,
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	sum := sha512.Sum512([]byte(strings.Join(parts, "") + integrationKey))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func (c *HTTPGateway) transfer(ctx context.Context, accountID string, amount float64, direction string) (*domain.TransactionResult, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	if c.IntegrationID == "" || c.IntegrationKey == "" {
		return nil, errors.New("missing integration credentials")
	}
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountId is required", domain.ErrValidation)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be > 0", domain.ErrValidation)
	}

	req := transferRequest{Id: c.IntegrationID, AccountID: accountID, Amount: amount, Direction: direction}
	req.Hash = computeTransferHash(req, c.IntegrationKey)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: transfer returned %d: %s", domain.ErrGateway, resp.StatusCode, string(b))
	}

	var tr transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decoding transfer response: %v", domain.ErrGateway, err)
	}
	return &domain.TransactionResult{
		ID:     tr.TransactionID,
		Status: mapTransactionStatus(tr.Status),
		Error:  tr.Error,
	}, nil
}

func (c *HTTPGateway) InitiateDeposit(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
	return c.transfer(ctx, accountID, amount, "deposit")
}

func (c *HTTPGateway) InitiateWithdrawal(ctx context.Context, accountID string, amount float64) (*domain.TransactionResult, error) {
	return c.transfer(ctx, accountID, amount, "withdrawal")
}

func (c *HTTPGateway) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	b, err := c.fetchBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.Balance{Available: b.Available, Current: b.Current}, nil
}

// GetSnapshot lets the HTTP gateway double as the account state provider
// when the provider exposes invested amounts on its balance endpoint.
func (c *HTTPGateway) GetSnapshot(ctx context.Context, userID string) (*domain.AccountSnapshot, error) {
	b, err := c.fetchBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.AccountSnapshot{
		TotalBalance:     b.Total,
		AvailableBalance: b.Available,
		InvestedAmount:   b.Invested,
	}, nil
}

func (c *HTTPGateway) fetchBalance(ctx context.Context, accountID string) (*balanceResponse, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountId is required", domain.ErrValidation)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/accounts/"+accountID+"/balance", nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-Integration-Id", c.IntegrationID)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: balance returned %d", domain.ErrGateway, resp.StatusCode)
	}
	var b balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: decoding balance response: %v", domain.ErrGateway, err)
	}
	return &b, nil
}

func mapTransactionStatus(s string) domain.TransactionStatus {
	switch strings.ToLower(s) {
	case "pending":
		return domain.TransactionPending
	case "processing":
		return domain.TransactionProcessing
	case "completed", "ok", "paid":
		return domain.TransactionCompleted
	case "cancelled":
		return domain.TransactionCancelled
	default:
		return domain.TransactionFailed
	}
}
