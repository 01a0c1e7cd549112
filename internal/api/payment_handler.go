package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/markoval/stylist-api/internal/api/shared"
	"github.com/markoval/stylist-api/internal/domain"
	"github.com/markoval/stylist-api/internal/payment"
)

// PaymentProvider is the slice of the payment client the handler needs.
type PaymentProvider interface {
	Configured(ctx context.Context) bool
	CreatePayment(ctx context.Context, email, description, returnURL string, amount, durationMinutes int) (*payment.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*payment.Payment, error)
}

// EntitlementGranter creates entitlements from settled payments.
type EntitlementGranter interface {
	Create(ctx context.Context, email, paymentID string, amount, durationMinutes int) (*domain.Entitlement, error)
}

// PaymentParams yields the current price and session duration.
type PaymentParams interface {
	Price(ctx context.Context) int
	DurationMinutes(ctx context.Context) int
}

// CreatePaymentRequest is the request body for starting a purchase.
type CreatePaymentRequest struct {
	Email     string `json:"email"      validate:"required,email"`
	ReturnURL string `json:"return_url" validate:"omitempty,url"`
}

// CreatePaymentResponse carries the redirect the client completes the
// payment on.
type CreatePaymentResponse struct {
	PaymentID       string `json:"payment_id"`
	ConfirmationURL string `json:"confirmation_url"`
	Amount          int    `json:"amount"`
}

// PaymentStatusResponse reports the provider-side payment state.
type PaymentStatusResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Granted   bool   `json:"granted"`
}

// PaymentHandler serves the purchase endpoints. A successful payment,
// whether reported by webhook or discovered by polling, grants a fresh
// entitlement; granting twice for one payment is harmless because the
// grant resets rather than accumulates.
type PaymentHandler struct {
	provider     PaymentProvider
	entitlements EntitlementGranter
	params       PaymentParams
	returnURL    string
	logger       *slog.Logger
}

// NewPaymentHandler creates the handler. returnURL is the default
// post-payment redirect, overridable per request.
func NewPaymentHandler(provider PaymentProvider, entitlements EntitlementGranter, paymentParams PaymentParams, returnURL string, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		provider:     provider,
		entitlements: entitlements,
		params:       paymentParams,
		returnURL:    returnURL,
		logger:       logger.With("handler", "payment"),
	}
}

// Create handles POST /api/payment/create.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.provider.Configured(r.Context()) {
		shared.RespondWithError(w, r, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	var req CreatePaymentRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = h.returnURL
	}

	amount := h.params.Price(r.Context())
	durationMinutes := h.params.DurationMinutes(r.Context())
	created, err := h.provider.CreatePayment(r.Context(), req.Email, "Content analysis session", returnURL, amount, durationMinutes)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadGateway, "failed to create payment", err)
		return
	}

	response := CreatePaymentResponse{
		PaymentID: created.ID,
		Amount:    amount,
	}
	if created.Confirmation != nil {
		response.ConfirmationURL = created.Confirmation.ConfirmationURL
	}
	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// Webhook handles POST /api/payment/webhook, the provider's
// notification callback. Only payment.succeeded grants anything; other
// events are acknowledged and dropped. The provider retries on non-2xx,
// so grant failures answer 500 on purpose.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "failed to read body")
		return
	}

	event, paid, err := payment.DecodeWebhook(body)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	if event != payment.EventPaymentSucceeded {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := h.grant(r.Context(), paid); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "failed to grant session", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /api/payment/status/{id}. Polling a payment that
// turns out succeeded grants the entitlement too, covering webhooks
// that never arrived.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "id")
	if paymentID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "missing payment id")
		return
	}

	paid, err := h.provider.GetPayment(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, payment.ErrNotConfigured) {
			shared.RespondWithError(w, r, http.StatusServiceUnavailable, "payments are not configured")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadGateway, "failed to read payment status", err)
		return
	}

	granted := false
	if paid.Succeeded() && paid.Metadata.Email != "" {
		if err := h.grant(r.Context(), paid); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "failed to grant session", err)
			return
		}
		granted = true
	}

	shared.RespondWithJSON(w, r, http.StatusOK, PaymentStatusResponse{
		PaymentID: paid.ID,
		Status:    paid.Status,
		Granted:   granted,
	})
}

// Price handles GET /api/payment/price.
func (h *PaymentHandler) Price(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"amount":   h.params.Price(r.Context()),
		"currency": "RUB",
	})
}

func (h *PaymentHandler) grant(ctx context.Context, paid *payment.Payment) error {
	durationMinutes := paid.DurationMinutesValue(h.params.DurationMinutes(ctx))
	_, err := h.entitlements.Create(ctx, paid.Metadata.Email, paid.ID, h.params.Price(ctx), durationMinutes)
	if err != nil {
		return err
	}
	h.logger.Info("session granted",
		"email", paid.Metadata.Email,
		"payment_id", paid.ID,
		"duration_minutes", durationMinutes)
	return nil
}
