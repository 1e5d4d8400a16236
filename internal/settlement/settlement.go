// Package settlement talks to the external payment processor that moves funds
// when a buyer approves a payment and when a solver requests a payout.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client calls a processor HTTP API. Every request carries an Idempotency-Key
// so a retried charge or payout is collapsed by the processor. Processors scope
// keys per account, so the key is prefixed with the operation.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chargeRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type payoutRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

type processorResponse struct {
	ID string `json:"id"`
}

func (c *Client) Charge(ctx context.Context, idempotencyKey string, amountCents int64) (string, error) {
	return c.post(ctx, "/charges", operationKey("charge", idempotencyKey), chargeRequest{AmountCents: amountCents, Currency: "usd"})
}

func (c *Client) Payout(ctx context.Context, idempotencyKey string, amountCents int64, destination string) (string, error) {
	return c.post(ctx, "/payouts", operationKey("payout", idempotencyKey), payoutRequest{AmountCents: amountCents, Currency: "usd", Destination: destination})
}

func operationKey(op, key string) string {
	return op + "-" + key
}

func (c *Client) post(ctx context.Context, path, key string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("processor %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("processor %s returned status %d", path, resp.StatusCode)
	}
	var out processorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode processor response: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("processor response missing id")
	}
	return out.ID, nil
}

// Sandbox is an in-process processor for development and tests. Repeating a
// key returns the reference issued the first time.
type Sandbox struct {
	mu   sync.Mutex
	refs map[string]string

	// Fail, when set, makes every call fail with this error.
	Fail error
}

func NewSandbox() *Sandbox {
	return &Sandbox{refs: make(map[string]string)}
}

func (s *Sandbox) Charge(ctx context.Context, idempotencyKey string, amountCents int64) (string, error) {
	return s.issue(ctx, "ch_", operationKey("charge", idempotencyKey), amountCents)
}

func (s *Sandbox) Payout(ctx context.Context, idempotencyKey string, amountCents int64, destination string) (string, error) {
	if destination == "" {
		return "", errors.New("sandbox: payout destination required")
	}
	return s.issue(ctx, "po_", operationKey("payout", idempotencyKey), amountCents)
}

func (s *Sandbox) issue(ctx context.Context, prefix, key string, amountCents int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return "", s.Fail
	}
	if amountCents <= 0 {
		return "", errors.New("sandbox: amount must be positive")
	}
	if ref, ok := s.refs[key]; ok {
		return ref, nil
	}
	ref := prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	s.refs[key] = ref
	return ref, nil
}
