package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/torquehub/torquehub-backend/pkg/config"
	"github.com/torquehub/torquehub-backend/pkg/logger"
)

var (
	errKeyIDRequired         = errors.New("gateway key id is required")
	errKeySecretRequired     = errors.New("gateway key secret is required")
	errWebhookSecretRequired = errors.New("gateway webhook secret is required")
)

// IntentStatus mirrors the gateway's order lifecycle states.
type IntentStatus string

const (
	IntentCreated   IntentStatus = "created"
	IntentAttempted IntentStatus = "attempted"
	IntentPaid      IntentStatus = "paid"
)

// PaymentState mirrors the gateway's payment states.
type PaymentState string

const (
	PaymentAuthorized PaymentState = "authorized"
	PaymentCaptured   PaymentState = "captured"
	PaymentFailed     PaymentState = "failed"
	PaymentRefunded   PaymentState = "refunded"
)

// Intent is the gateway-side order a client completes against.
type Intent struct {
	ID          string            `json:"id"`
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Receipt     string            `json:"receipt,omitempty"`
	Status      IntentStatus      `json:"status"`
	Notes       map[string]string `json:"notes,omitempty"`
	CreatedAt   int64             `json:"created_at"`
}

// Payment is the gateway's authoritative record of a captured charge.
type Payment struct {
	ID          string            `json:"id"`
	IntentID    string            `json:"order_id"`
	AmountMinor int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Status      PaymentState      `json:"status"`
	Method      string            `json:"method,omitempty"`
	Notes       map[string]string `json:"notes,omitempty"`
	CreatedAt   int64             `json:"created_at"`
}

// CreateIntentParams describes the charge to stage at the gateway. Amounts are
// integer minor units; decimal conversion happens on the caller's side.
type CreateIntentParams struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// Captured reports whether the payment reached a settled state.
func (p Payment) Captured() bool {
	return p.Status == PaymentCaptured
}

type apiError struct {
	Description string `json:"description"`
	Code        string `json:"code"`
}

type apiErrorEnvelope struct {
	Error apiError `json:"error"`
}

// Client talks to the payment gateway's REST API with basic key auth.
type Client struct {
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	currency      string
	httpClient    *http.Client
}

// NewClient validates the configured credentials and builds the adapter.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if logg != nil {
		logg.Info(ctx, "payment gateway client initialized")
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		currency:      cfg.Currency,
		httpClient:    &http.Client{Timeout: timeout},
	}, nil
}

// Currency returns the default settlement currency.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// CreateIntent stages a charge at the gateway and returns its identifier for
// the client-side checkout.
func (c *Client) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	if params.AmountMinor <= 0 {
		return nil, errors.New("amount must be positive")
	}
	currency := params.Currency
	if currency == "" {
		currency = c.currency
	}
	body := map[string]any{
		"amount":   params.AmountMinor,
		"currency": currency,
	}
	if params.Receipt != "" {
		body["receipt"] = params.Receipt
	}
	if len(params.Notes) > 0 {
		body["notes"] = params.Notes
	}

	var intent Intent
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// FetchPayment loads the authoritative payment record. Settlement amounts
// always come from this call, never from client-supplied values.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, errors.New("payment id is required")
	}
	var payment Payment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// VerifySignature checks the client-confirmation signature computed over
// "<intentID>|<paymentID>" with the key secret.
func (c *Client) VerifySignature(intentID, paymentID, signature string) bool {
	if intentID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := signPayload([]byte(intentID+"|"+paymentID), c.keySecret)
	return constantTimeEqualHex(expected, signature)
}

// VerifyWebhookSignature checks the webhook signature computed over the raw
// request body with the webhook secret. Callers must verify before parsing.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if len(body) == 0 || signature == "" {
		return false
	}
	expected := signPayload(body, c.webhookSecret)
	return constantTimeEqualHex(expected, signature)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode gateway request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope apiErrorEnvelope
		if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Description != "" {
			return fmt.Errorf("gateway %s %s: %s (%s)", method, path, envelope.Error.Description, envelope.Error.Code)
		}
		return fmt.Errorf("gateway %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func constantTimeEqualHex(expected, provided string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(provided)))) == 1
}
