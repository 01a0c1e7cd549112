// Package payment implements the YooKassa collaborator: creating
// payments for entitlement purchases, polling their status and decoding
// the success webhook. Credentials come from the dynamic parameter store
// so they can be rotated without a restart.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://api.yookassa.ru/v3"

// Payment statuses reported by the provider.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// EventPaymentSucceeded is the webhook event that grants an entitlement.
const EventPaymentSucceeded = "payment.succeeded"

// Errors returned by the client.
var (
	// ErrNotConfigured is returned when the provider credentials are
	// absent. Payment endpoints report themselves unconfigured rather
	// than failing opaquely.
	ErrNotConfigured = errors.New("payment provider not configured")

	// ErrInvalidWebhook is returned for webhook bodies that do not carry
	// the expected structure or metadata.
	ErrInvalidWebhook = errors.New("invalid webhook payload")
)

// CredentialSource yields the current provider credentials.
type CredentialSource interface {
	ShopID(ctx context.Context) string
	APIKey(ctx context.Context) string
}

// Amount is a YooKassa money value.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Confirmation carries the redirect the client completes the payment on.
type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// Metadata is attached to the payment and comes back verbatim on the
// webhook; it is what links a provider event to an entitlement grant.
type Metadata struct {
	Email           string `json:"email"`
	DurationMinutes string `json:"duration_minutes"`
}

// Payment is the provider's payment object, reduced to the fields the
// service consumes.
type Payment struct {
	ID           string        `json:"id"`
	Status       string        `json:"status"`
	Paid         bool          `json:"paid"`
	Amount       Amount        `json:"amount"`
	Confirmation *Confirmation `json:"confirmation,omitempty"`
	Description  string        `json:"description,omitempty"`
	Metadata     Metadata      `json:"metadata"`
}

// Succeeded reports whether the payment has completed successfully.
func (p *Payment) Succeeded() bool {
	return p.Status == StatusSucceeded
}

// DurationMinutesValue decodes the duration carried in the metadata,
// falling back to the given default when absent or malformed.
func (p *Payment) DurationMinutesValue(fallback int) int {
	n, err := strconv.Atoi(p.Metadata.DurationMinutes)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// webhookEnvelope is the outer structure of a provider notification.
type webhookEnvelope struct {
	Type   string  `json:"type"`
	Event  string  `json:"event"`
	Object Payment `json:"object"`
}

// Client talks to the YooKassa payments API.
type Client struct {
	baseURL     string
	credentials CredentialSource
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a payment client. baseURL overrides the production
// endpoint, used by tests.
func NewClient(credentials CredentialSource, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:     baseURL,
		credentials: credentials,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger.With("component", "payment"),
	}
}

// Configured reports whether provider credentials are present.
func (c *Client) Configured(ctx context.Context) bool {
	return c.credentials.ShopID(ctx) != "" && c.credentials.APIKey(ctx) != ""
}

// CreatePayment registers a new payment for an entitlement purchase. The
// email and duration ride along in the metadata so the success event can
// be settled without any server-side pending-payment state. Each call
// carries a fresh idempotence key; retrying a failed HTTP call is the
// caller's decision, creating a new payment.
func (c *Client) CreatePayment(ctx context.Context, email, description, returnURL string, amount, durationMinutes int) (*Payment, error) {
	if !c.Configured(ctx) {
		return nil, ErrNotConfigured
	}

	body := map[string]any{
		"amount": Amount{
			Value:    fmt.Sprintf("%d.00", amount),
			Currency: "RUB",
		},
		"capture": true,
		"confirmation": Confirmation{
			Type:      "redirect",
			ReturnURL: returnURL,
		},
		"description": description,
		"metadata": Metadata{
			Email:           email,
			DurationMinutes: strconv.Itoa(durationMinutes),
		},
	}

	var payment Payment
	if err := c.call(ctx, http.MethodPost, "/payments", body, &payment); err != nil {
		return nil, err
	}

	c.logger.Info("payment created",
		"payment_id", payment.ID,
		"email", email,
		"amount", amount)
	return &payment, nil
}

// GetPayment returns the current state of a payment.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if !c.Configured(ctx) {
		return nil, ErrNotConfigured
	}

	var payment Payment
	if err := c.call(ctx, http.MethodGet, "/payments/"+paymentID, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// DecodeWebhook validates a provider notification body and returns the
// payment it carries together with its event name. A succeeded event
// without a metadata email is rejected: there is nothing to grant it to.
func DecodeWebhook(body []byte) (event string, payment *Payment, err error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	if envelope.Type != "notification" || envelope.Event == "" || envelope.Object.ID == "" {
		return "", nil, ErrInvalidWebhook
	}
	if envelope.Event == EventPaymentSucceeded && envelope.Object.Metadata.Email == "" {
		return "", nil, fmt.Errorf("%w: succeeded event without metadata email", ErrInvalidWebhook)
	}
	return envelope.Event, &envelope.Object, nil
}

// call performs one authenticated API request.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode payment request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build payment request: %w", err)
	}
	req.SetBasicAuth(c.credentials.ShopID(ctx), c.credentials.APIKey(ctx))
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Idempotence-Key", uuid.NewString())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payment request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read payment response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payment provider returned status %d: %s", resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode payment response: %w", err)
	}
	return nil
}
