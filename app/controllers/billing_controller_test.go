package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/pitlane-app/pitlane/internal/pkg/billing"
	"github.com/pitlane-app/pitlane/internal/pkg/entitlements"
	"github.com/pitlane-app/pitlane/internal/pkg/usercontext"
)

const testSecret = "whsec_controller_test"

type fakeDispatcher struct {
	events  []billing.Event
	outcome billing.Outcome
	err     error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, evt billing.Event) (billing.Outcome, error) {
	f.events = append(f.events, evt)
	return f.outcome, f.err
}

type fakePayments struct {
	payments  []billing.PaymentRecord
	listErr   error
	refund    *billing.RefundRecord
	refundErr error
	lastInput billing.RefundInput
	lastUser  uint
	summary   entitlements.Summary
	sumErr    error
}

func (f *fakePayments) GetEntitlements(_ context.Context, userID uint) (entitlements.Summary, error) {
	f.lastUser = userID
	return f.summary, f.sumErr
}

func (f *fakePayments) ListPaymentsForUser(_ context.Context, userID uint) ([]billing.PaymentRecord, error) {
	f.lastUser = userID
	return f.payments, f.listErr
}

func (f *fakePayments) IssueRefund(_ context.Context, in billing.RefundInput) (*billing.RefundRecord, error) {
	f.lastInput = in
	return f.refund, f.refundErr
}

func newBillingTestApp(bc *BillingController, userID uint) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID > 0 {
			usercontext.SetUserContext(c, usercontext.UserContext{UserID: userID, IsLoggedIn: true})
		} else {
			usercontext.SetUserContext(c, usercontext.UserContext{})
		}
		return c.Next()
	})
	app.Post("/webhooks/stripe", bc.HandleStripeWebhook)
	app.Get("/api/v1/payments", bc.HandleListPayments)
	app.Post("/api/v1/payments/refund", bc.HandleCreateRefund)
	app.Get("/api/v1/entitlements", bc.HandleGetEntitlements)
	return app
}

func signedWebhookRequest(t *testing.T, eventType string) *http.Request {
	t.Helper()
	body := fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"created":%d,"data":{"object":{"id":"obj_1"}}}`, eventType, time.Now().Unix())
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(signed.Payload)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHandleStripeWebhook(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		req        func(t *testing.T) *http.Request
		dispatcher *fakeDispatcher
		wantStatus int
		wantKey    string
		wantCalls  int
	}{
		{
			name:       "processed",
			secret:     testSecret,
			req:        func(t *testing.T) *http.Request { return signedWebhookRequest(t, billing.StripeEventCheckoutCompleted) },
			dispatcher: &fakeDispatcher{outcome: billing.OutcomeProcessed},
			wantStatus: fiber.StatusOK,
			wantKey:    "received",
			wantCalls:  1,
		},
		{
			name:       "ignored type still acknowledged",
			secret:     testSecret,
			req:        func(t *testing.T) *http.Request { return signedWebhookRequest(t, "customer.created") },
			dispatcher: &fakeDispatcher{outcome: billing.OutcomeIgnored},
			wantStatus: fiber.StatusOK,
			wantKey:    "received",
			wantCalls:  1,
		},
		{
			name:   "missing signature",
			secret: testSecret,
			req: func(t *testing.T) *http.Request {
				req := signedWebhookRequest(t, billing.StripeEventCheckoutCompleted)
				req.Header.Del("Stripe-Signature")
				return req
			},
			dispatcher: &fakeDispatcher{},
			wantStatus: fiber.StatusBadRequest,
			wantKey:    "error",
		},
		{
			name:       "wrong secret",
			secret:     "whsec_other",
			req:        func(t *testing.T) *http.Request { return signedWebhookRequest(t, billing.StripeEventCheckoutCompleted) },
			dispatcher: &fakeDispatcher{},
			wantStatus: fiber.StatusBadRequest,
			wantKey:    "error",
		},
		{
			name:       "not configured",
			secret:     "",
			req:        func(t *testing.T) *http.Request { return signedWebhookRequest(t, billing.StripeEventCheckoutCompleted) },
			dispatcher: &fakeDispatcher{},
			wantStatus: fiber.StatusServiceUnavailable,
			wantKey:    "error",
		},
		{
			name:       "malformed payload",
			secret:     testSecret,
			req:        func(t *testing.T) *http.Request { return signedWebhookRequest(t, billing.StripeEventCheckoutCompleted) },
			dispatcher: &fakeDispatcher{err: fmt.Errorf("%w: decode checkout session: bad json", billing.ErrMalformedEvent)},
			wantStatus: fiber.StatusBadRequest,
			wantKey:    "error",
			wantCalls:  1,
		},
		{
			name:       "handler failure",
			secret:     testSecret,
			req:        func(t *testing.T) *http.Request { return signedWebhookRequest(t, billing.StripeEventCheckoutCompleted) },
			dispatcher: &fakeDispatcher{err: billing.ErrReconciliationFailed},
			wantStatus: fiber.StatusInternalServerError,
			wantKey:    "error",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc := NewBillingController(tt.secret, tt.dispatcher, &fakePayments{})
			app := newBillingTestApp(bc, 0)

			resp, err := app.Test(tt.req(t), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, decodeBody(t, resp), tt.wantKey)
			assert.Len(t, tt.dispatcher.events, tt.wantCalls)
		})
	}
}

func TestHandleListPayments(t *testing.T) {
	pi := "pi_1"
	payments := &fakePayments{payments: []billing.PaymentRecord{{
		SessionID:       "cs_1",
		PaymentIntentID: &pi,
		Amount:          4900,
		Currency:        "eur",
		Status:          billing.PaymentStatusPaid,
		PurchaseKind:    billing.PurchaseKindPremium,
		CanRefund:       true,
		Refunds:         []billing.RefundRecord{},
	}}}

	app := newBillingTestApp(NewBillingController(testSecret, &fakeDispatcher{}, payments), 7)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, uint(7), payments.lastUser)

	var body struct {
		Payments []map[string]interface{} `json:"payments"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Payments, 1)
	assert.Equal(t, "cs_1", body.Payments[0]["session_id"])
	assert.Equal(t, true, body.Payments[0]["can_refund"])
	assert.Equal(t, float64(0), body.Payments[0]["refunded_amount"])
}

func TestHandleListPayments_Errors(t *testing.T) {
	app := newBillingTestApp(NewBillingController(testSecret, &fakeDispatcher{}, &fakePayments{}), 0)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	failing := &fakePayments{listErr: billing.ErrProviderUnavailable}
	app = newBillingTestApp(NewBillingController(testSecret, &fakeDispatcher{}, failing), 7)
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func refundHTTPRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/refund", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleCreateRefund(t *testing.T) {
	payments := &fakePayments{refund: &billing.RefundRecord{ID: "re_1", Amount: 2000, Status: "succeeded"}}
	app := newBillingTestApp(NewBillingController(testSecret, &fakeDispatcher{}, payments), 7)

	resp, err := app.Test(refundHTTPRequest(`{"sessionId":"cs_1","reason":"duplicate","amount":2000}`), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, "cs_1", payments.lastInput.SessionID)
	assert.Equal(t, uint(7), payments.lastInput.UserID)
	assert.Equal(t, billing.RefundReasonDuplicate, payments.lastInput.Reason)
	require.NotNil(t, payments.lastInput.Amount)
	assert.Equal(t, int64(2000), *payments.lastInput.Amount)

	body := decodeBody(t, resp)
	refund, ok := body["refund"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "re_1", refund["id"])
}

func TestHandleCreateRefund_OmittedAmount(t *testing.T) {
	payments := &fakePayments{refund: &billing.RefundRecord{ID: "re_1"}}
	app := newBillingTestApp(NewBillingController(testSecret, &fakeDispatcher{}, payments), 7)

	resp, err := app.Test(refundHTTPRequest(`{"session_id":"cs_1","reason":"requested_by_customer"}`), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Nil(t, payments.lastInput.Amount)
}

func TestHandleCreateRefund_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "invalid amount", err: fmt.Errorf("wrap: %w", billing.ErrInvalidAmount), wantStatus: fiber.StatusBadRequest, wantCode: "invalid_amount"},
		{name: "invalid reason", err: billing.ErrInvalidReason, wantStatus: fiber.StatusBadRequest, wantCode: "invalid_reason"},
		{name: "not owner", err: billing.ErrUnauthorizedAccess, wantStatus: fiber.StatusForbidden, wantCode: "forbidden"},
		{name: "not found", err: billing.ErrNotFound, wantStatus: fiber.StatusNotFound, wantCode: "not_found"},
		{name: "provider down", err: billing.ErrProviderUnavailable, wantStatus: fiber.StatusInternalServerError, wantCode: "provider_unavailable"},
		{name: "rejected", err: &billing.RefundFailedError{ProviderMessage: "Charge already refunded"}, wantStatus: fiber.StatusInternalServerError, wantCode: "refund_failed"},
		{name: "unexpected", err: errors.New("db gone"), wantStatus: fiber.StatusInternalServerError, wantCode: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newBillingTestApp(NewBillingController(testSecret, &fakeDispatcher{}, &fakePayments{refundErr: tt.err}), 7)
			resp, err := app.Test(refundHTTPRequest(`{"session_id":"cs_1","reason":"duplicate"}`), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decodeBody(t, resp)
			assert.Equal(t, tt.wantCode, body["error"])
			if tt.wantCode == "refund_failed" {
				assert.Equal(t, "Charge already refunded", body["message"])
			}
			if tt.wantCode == "internal_error" {
				assert.NotContains(t, body["message"], "db gone")
			}
		})
	}
}

func TestHandleCreateRefund_BadRequests(t *testing.T) {
	payments := &fakePayments{}
	app := newBillingTestApp(NewBillingController(testSecret, &fakeDispatcher{}, payments), 7)

	resp, err := app.Test(refundHTTPRequest(`{"reason":"duplicate"}`), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(refundHTTPRequest(`{not json`), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	anon := newBillingTestApp(NewBillingController(testSecret, &fakeDispatcher{}, payments), 0)
	resp, err = anon.Test(refundHTTPRequest(`{"session_id":"cs_1","reason":"duplicate"}`), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHandleGetEntitlements(t *testing.T) {
	payments := &fakePayments{summary: entitlements.Summary{Plan: entitlements.PlanPremium, IsPremium: true, IncludedSlots: 3, PurchasedSlots: 2, GarageSlots: 5}}
	app := newBillingTestApp(NewBillingController(testSecret, &fakeDispatcher{}, payments), 7)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/entitlements", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	summary, ok := body["entitlements"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(5), summary["garage_slots"])
	assert.Equal(t, "premium", summary["plan"])

	failing := &fakePayments{sumErr: errors.New("db gone")}
	app = newBillingTestApp(NewBillingController(testSecret, &fakeDispatcher{}, failing), 7)
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/entitlements", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
