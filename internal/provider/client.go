package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"enrollment-service/internal/models"
	"enrollment-service/internal/util"
)

// Client calls the payment provider's REST API. Authentication is HTTP
// Basic with the secret key as username and an empty password. The key is
// chosen per call: payment keys prefixed "tviva" or "test_" belong to the
// test environment.
type Client struct {
	baseURL    string
	liveKey    string
	testKey    string
	httpClient *http.Client
}

// NewClient creates a provider client. At least one secret key must be
// injected; keys are never read from literals.
func NewClient(baseURL, liveKey, testKey string, timeout time.Duration) (*Client, error) {
	if liveKey == "" && testKey == "" {
		return nil, fmt.Errorf("provider secret key is required")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		liveKey:    liveKey,
		testKey:    testKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api error: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
}

// Transaction is one settled provider transaction.
type Transaction struct {
	TransactionKey string `json:"transactionKey"`
	PaymentKey     string `json:"paymentKey"`
	OrderID        string `json:"orderId"`
	Method         string `json:"method"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	CustomerEmail  string `json:"customerEmail,omitempty"`
}

// ConfirmRequest approves a pending payment.
type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey" binding:"required"`
	OrderID    string `json:"orderId" binding:"required"`
	Amount     int64  `json:"amount" binding:"required"`
}

// CancelRequest refunds a payment, partially when Amount is set.
type CancelRequest struct {
	PaymentKey string `json:"paymentKey" binding:"required"`
	Reason     string `json:"cancelReason,omitempty"`
	Amount     int64  `json:"cancelAmount,omitempty"`
}

func isTestPayment(paymentKey string) bool {
	return strings.HasPrefix(paymentKey, "tviva") || strings.HasPrefix(paymentKey, "test_")
}

func (c *Client) secretFor(paymentKey string) (string, error) {
	if isTestPayment(paymentKey) {
		if c.testKey == "" {
			return "", fmt.Errorf("test secret key not configured")
		}
		return c.testKey, nil
	}
	if c.liveKey == "" {
		return "", fmt.Errorf("live secret key not configured")
	}
	return c.liveKey, nil
}

func basicAuth(secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(secret+":"))
}

func (c *Client) do(ctx context.Context, op, method, path, secret string, body, out interface{}) error {
	start := time.Now()
	defer func() {
		util.ProviderRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", basicAuth(secret))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// GetPaymentByOrder fetches the full payment detail, including the
// customer email fields, by order id.
func (c *Client) GetPaymentByOrder(ctx context.Context, orderID string) (*models.PaymentEvent, error) {
	secret := c.liveKey
	if secret == "" {
		secret = c.testKey
	}

	var payment models.PaymentEvent
	path := "/v1/payments/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, "get_payment", http.MethodGet, path, secret, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// Confirm approves a payment with the provider.
func (c *Client) Confirm(ctx context.Context, req ConfirmRequest) (json.RawMessage, error) {
	secret, err := c.secretFor(req.PaymentKey)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := c.do(ctx, "confirm", http.MethodPost, "/v1/payments/confirm", secret, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Cancel refunds a payment. Reason defaults to a customer-requested refund.
func (c *Client) Cancel(ctx context.Context, req CancelRequest) (json.RawMessage, error) {
	secret, err := c.secretFor(req.PaymentKey)
	if err != nil {
		return nil, err
	}

	if req.Reason == "" {
		req.Reason = "고객 요청 환불"
	}

	body := map[string]interface{}{"cancelReason": req.Reason}
	if req.Amount > 0 {
		body["cancelAmount"] = req.Amount
	}

	var raw json.RawMessage
	path := "/v1/payments/" + url.PathEscape(req.PaymentKey) + "/cancel"
	if err := c.do(ctx, "cancel", http.MethodPost, path, secret, body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ListTransactions pages through all transactions in [start, end] using the
// provider's cursor pagination.
func (c *Client) ListTransactions(ctx context.Context, start, end time.Time) ([]Transaction, error) {
	secret := c.liveKey
	if secret == "" {
		secret = c.testKey
	}

	var all []Transaction
	cursor := ""
	for {
		path := fmt.Sprintf("/v1/transactions?startDate=%s&endDate=%s",
			url.QueryEscape(start.Format(time.RFC3339)), url.QueryEscape(end.Format(time.RFC3339)))
		if cursor != "" {
			path += "&lastCursor=" + url.QueryEscape(cursor)
		}

		var page []Transaction
		if err := c.do(ctx, "list_transactions", http.MethodGet, path, secret, nil, &page); err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		if len(page) < 100 {
			break
		}
		cursor = page[len(page)-1].TransactionKey
	}
	return all, nil
}
