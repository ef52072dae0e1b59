package banking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/voicebank/backend/internal/breaker"
	bankmodel "github.com/zhouzirui/voicebank/backend/internal/model/banking"
	"github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
)

const serviceName = "banking"

// Doer is the subset of *http.Client used here.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient proxies the banking REST API. The token travels as a query
// parameter.
type HTTPClient struct {
	baseURL string
	client  Doer
	breaker *breaker.Breaker
	logger  *zap.Logger
}

// NewHTTPClient creates a client for baseURL (for example
// http://localhost:8001/api). A nil doer uses an http.Client with timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, doer Doer, logger *zap.Logger) *HTTPClient {
	logger = telemetry.OrNop(logger).Named("banking")
	if doer == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		doer = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  doer,
		breaker: breaker.New(breaker.Settings{
			Name: serviceName,
			IsSuccessful: func(err error) bool {
				var domainErr *dialogue.DomainError
				return err == nil || errors.As(err, &domainErr)
			},
		}, logger),
		logger: logger,
	}
}

// wireTransaction is the backend's transaction shape.
type wireTransaction struct {
	TransactionID string  `json:"transaction_id"`
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	Recipient     *string `json:"recipient"`
	Description   *string `json:"description"`
	Timestamp     string  `json:"timestamp"`
	Status        string  `json:"status"`
}

func (w wireTransaction) model() bankmodel.Transaction {
	tx := bankmodel.Transaction{
		ID:        w.TransactionID,
		Type:      bankmodel.TransactionType(strings.ToLower(w.Type)),
		Amount:    w.Amount,
		Timestamp: parseTimestamp(w.Timestamp),
		Status:    w.Status,
	}
	if w.Recipient != nil {
		tx.Recipient = *w.Recipient
	}
	if w.Description != nil {
		tx.Description = *w.Description
	}
	return tx
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

// parseTimestamp accepts RFC 3339 and naive ISO timestamps, which are
// read as UTC. Unparseable values yield the zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// GetAccount implements Client.
func (c *HTTPClient) GetAccount(ctx context.Context, token string) (*bankmodel.Account, error) {
	var acct bankmodel.Account
	if err := c.call(ctx, "get_account", http.MethodGet, "/account", token, nil, nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// ListTransactions implements Client.
func (c *HTTPClient) ListTransactions(ctx context.Context, token string, limit int) ([]bankmodel.Transaction, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var wire []wireTransaction
	if err := c.call(ctx, "list_transactions", http.MethodGet, "/transactions", token, query, nil, &wire); err != nil {
		return nil, err
	}
	txs := make([]bankmodel.Transaction, 0, len(wire))
	for _, w := range wire {
		txs = append(txs, w.model())
	}
	return txs, nil
}

// Transfer implements Client.
func (c *HTTPClient) Transfer(ctx context.Context, token string, req bankmodel.TransferRequest) (*bankmodel.OperationResult, error) {
	var wire wireTransaction
	if err := c.call(ctx, "transfer", http.MethodPost, "/transaction/transfer", token, nil, req, &wire); err != nil {
		return nil, err
	}
	return &bankmodel.OperationResult{Success: true, Message: "Transfer completed", Transaction: wire.model()}, nil
}

// PayBill implements Client.
func (c *HTTPClient) PayBill(ctx context.Context, token string, req bankmodel.BillPaymentRequest) (*bankmodel.OperationResult, error) {
	var wire wireTransaction
	if err := c.call(ctx, "pay_bill", http.MethodPost, "/transaction/bill-pay", token, nil, req, &wire); err != nil {
		return nil, err
	}
	return &bankmodel.OperationResult{Success: true, Message: "Bill paid", Transaction: wire.model()}, nil
}

func (c *HTTPClient) call(ctx context.Context, op, method, path, token string, query url.Values, body, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("token", token)
	target := c.baseURL + path + "?" + query.Encode()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
	}

	started := time.Now()
	err := c.breaker.Do(func() error {
		return c.do(ctx, method, target, payload, out)
	})
	telemetry.ObserveCall(serviceName, op, started, err)

	var domainErr *dialogue.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if err != nil {
		c.logger.Warn("banking call failed", zap.String("op", op), zap.Error(err))
		return dialogue.NewServiceError(serviceName, op, err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, target string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusNotFound:
		return &dialogue.DomainError{Reason: detailOf(data, resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s %s: status %d", method, req.URL.Path, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// detailOf extracts the backend's {"detail": reason} message.
func detailOf(body []byte, status int) string {
	var parsed struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if s, ok := parsed.Detail.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return http.StatusText(status)
}
