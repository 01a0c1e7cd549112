package api_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markoval/stylist-api/internal/api"
	"github.com/markoval/stylist-api/internal/domain"
	"github.com/markoval/stylist-api/internal/payment"
)

type fakeProvider struct {
	configured bool
	created    *payment.Payment
	createErr  error
	fetched    *payment.Payment
	fetchErr   error
}

func (f *fakeProvider) Configured(context.Context) bool { return f.configured }

func (f *fakeProvider) CreatePayment(context.Context, string, string, string, int, int) (*payment.Payment, error) {
	return f.created, f.createErr
}

func (f *fakeProvider) GetPayment(context.Context, string) (*payment.Payment, error) {
	return f.fetched, f.fetchErr
}

type fakeGranter struct {
	grantedEmail    string
	grantedPayment  string
	grantedDuration int
	err             error
}

func (f *fakeGranter) Create(_ context.Context, email, paymentID string, _, durationMinutes int) (*domain.Entitlement, error) {
	f.grantedEmail = email
	f.grantedPayment = paymentID
	f.grantedDuration = durationMinutes
	return nil, f.err
}

type fakeParams struct {
	price    int
	duration int
}

func (f fakeParams) Price(context.Context) int           { return f.price }
func (f fakeParams) DurationMinutes(context.Context) int { return f.duration }

func newPaymentHandler(provider *fakeProvider, granter *fakeGranter) *api.PaymentHandler {
	return api.NewPaymentHandler(provider, granter, fakeParams{price: 1000, duration: 1440}, "https://app.example/done", discardLogger())
}

func TestPaymentCreate(t *testing.T) {
	provider := &fakeProvider{
		configured: true,
		created: &payment.Payment{
			ID:           "pay-42",
			Status:       payment.StatusPending,
			Confirmation: &payment.Confirmation{ConfirmationURL: "https://pay.example/confirm"},
		},
	}
	handler := newPaymentHandler(provider, &fakeGranter{})

	body := bytes.NewReader([]byte(`{"email": "a@example.com"}`))
	rec := httptest.NewRecorder()
	handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/payment/create", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pay-42")
	assert.Contains(t, rec.Body.String(), "https://pay.example/confirm")
}

func TestPaymentCreateUnconfigured(t *testing.T) {
	handler := newPaymentHandler(&fakeProvider{configured: false}, &fakeGranter{})

	body := bytes.NewReader([]byte(`{"email": "a@example.com"}`))
	rec := httptest.NewRecorder()
	handler.Create(rec, httptest.NewRequest(http.MethodPost, "/api/payment/create", body))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPaymentWebhookGrantsSession(t *testing.T) {
	granter := &fakeGranter{}
	handler := newPaymentHandler(&fakeProvider{configured: true}, granter)

	body := bytes.NewReader([]byte(`{
		"type": "notification",
		"event": "payment.succeeded",
		"object": {"id": "pay-42", "status": "succeeded",
			"metadata": {"email": "a@example.com", "duration_minutes": "60"}}
	}`))
	rec := httptest.NewRecorder()
	handler.Webhook(rec, httptest.NewRequest(http.MethodPost, "/api/payment/webhook", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@example.com", granter.grantedEmail)
	assert.Equal(t, "pay-42", granter.grantedPayment)
	assert.Equal(t, 60, granter.grantedDuration, "metadata duration wins over the default")
}

func TestPaymentWebhookIgnoresOtherEvents(t *testing.T) {
	granter := &fakeGranter{}
	handler := newPaymentHandler(&fakeProvider{configured: true}, granter)

	body := bytes.NewReader([]byte(`{"type": "notification", "event": "payment.canceled",
		"object": {"id": "pay-42", "status": "canceled", "metadata": {}}}`))
	rec := httptest.NewRecorder()
	handler.Webhook(rec, httptest.NewRequest(http.MethodPost, "/api/payment/webhook", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, granter.grantedEmail)
}

func TestPaymentWebhookRejectsGarbage(t *testing.T) {
	handler := newPaymentHandler(&fakeProvider{configured: true}, &fakeGranter{})

	rec := httptest.NewRecorder()
	handler.Webhook(rec, httptest.NewRequest(http.MethodPost, "/api/payment/webhook", bytes.NewReader([]byte("{nope"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentStatusGrantsOnPolledSuccess(t *testing.T) {
	granter := &fakeGranter{}
	provider := &fakeProvider{
		configured: true,
		fetched: &payment.Payment{
			ID:     "pay-42",
			Status: payment.StatusSucceeded,
			Metadata: payment.Metadata{
				Email:           "a@example.com",
				DurationMinutes: "1440",
			},
		},
	}
	handler := newPaymentHandler(provider, granter)

	rec := httptest.NewRecorder()
	handler.Status(rec, requestWithURLParam(t, http.MethodGet, "/api/payment/status/pay-42", "id", "pay-42"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"granted":true`)
	assert.Equal(t, "a@example.com", granter.grantedEmail)
}

func TestPaymentStatusPendingGrantsNothing(t *testing.T) {
	granter := &fakeGranter{}
	provider := &fakeProvider{
		configured: true,
		fetched:    &payment.Payment{ID: "pay-42", Status: payment.StatusPending},
	}
	handler := newPaymentHandler(provider, granter)

	rec := httptest.NewRecorder()
	handler.Status(rec, requestWithURLParam(t, http.MethodGet, "/api/payment/status/pay-42", "id", "pay-42"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"granted":false`)
	assert.Empty(t, granter.grantedEmail)
}

func TestPaymentPrice(t *testing.T) {
	handler := newPaymentHandler(&fakeProvider{}, &fakeGranter{})

	rec := httptest.NewRecorder()
	handler.Price(rec, httptest.NewRequest(http.MethodGet, "/api/payment/price", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"amount":1000`)
}
