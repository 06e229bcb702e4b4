package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/pitlane-app/pitlane/internal/pkg/billing"
	"github.com/pitlane-app/pitlane/internal/pkg/entitlements"
	"github.com/pitlane-app/pitlane/internal/pkg/metrics"
	"github.com/pitlane-app/pitlane/internal/pkg/usercontext"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	webhookTimeout        = 15 * time.Second
	paymentsTimeout       = 30 * time.Second
)

// EventDispatcher is implemented by *billing.Dispatcher.
type EventDispatcher interface {
	Dispatch(ctx context.Context, evt billing.Event) (billing.Outcome, error)
}

// PaymentService is implemented by *billing.Service.
type PaymentService interface {
	ListPaymentsForUser(ctx context.Context, userID uint) ([]billing.PaymentRecord, error)
	IssueRefund(ctx context.Context, in billing.RefundInput) (*billing.RefundRecord, error)
	GetEntitlements(ctx context.Context, userID uint) (entitlements.Summary, error)
}

type BillingController struct {
	webhookSecret string
	dispatcher    EventDispatcher
	payments      PaymentService
}

func NewBillingController(webhookSecret string, dispatcher EventDispatcher, payments PaymentService) *BillingController {
	return &BillingController{
		webhookSecret: webhookSecret,
		dispatcher:    dispatcher,
		payments:      payments,
	}
}

// HandleStripeWebhook verifies and dispatches one Stripe event.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	start := time.Now()
	eventType := "unverified"
	status := fiber.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(bc.webhookSecret) == "" {
		log.Errorf("[Webhook] STRIPE_WEBHOOK_SECRET not configured, rejecting delivery")
		status = fiber.StatusServiceUnavailable
		return c.Status(status).JSON(fiber.Map{"error": "webhook_not_configured"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	evt, err := billing.VerifyEvent(rawBody, c.Get(stripeSignatureHeader), bc.webhookSecret)
	if err != nil {
		log.Warnf("[Webhook] rejected delivery from %s: %v", c.IP(), err)
		status = fiber.StatusBadRequest
		return c.Status(status).JSON(fiber.Map{"error": "invalid_signature"})
	}
	eventType = evt.Type

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	outcome, err := bc.dispatcher.Dispatch(ctx, evt)
	if errors.Is(err, billing.ErrMalformedEvent) {
		log.Warnf("[Webhook] event %s (%s) has a malformed payload: %v", evt.ID, evt.Type, err)
		status = fiber.StatusBadRequest
		return c.Status(status).JSON(fiber.Map{"error": "malformed_event"})
	}
	if err != nil {
		log.Errorf("[Webhook] event %s (%s) failed: %v", evt.ID, evt.Type, err)
		status = fiber.StatusInternalServerError
		return c.Status(status).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	log.Infof("[Webhook] event %s (%s) %s", evt.ID, evt.Type, outcome)
	return c.Status(status).JSON(fiber.Map{"received": true})
}

// HandleListPayments returns the caller's payments, newest first.
func (bc *BillingController) HandleListPayments(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn || userCtx.UserID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), paymentsTimeout)
	defer cancel()

	payments, err := bc.payments.ListPaymentsForUser(ctx, userCtx.UserID)
	if err != nil {
		log.Errorf("[Billing] list payments for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "payments_unavailable",
			"message": "could not load payment history",
		})
	}
	if payments == nil {
		payments = []billing.PaymentRecord{}
	}
	return c.JSON(fiber.Map{"payments": payments})
}

// HandleGetEntitlements returns the caller's plan and garage capacity.
func (bc *BillingController) HandleGetEntitlements(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn || userCtx.UserID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), paymentsTimeout)
	defer cancel()

	summary, err := bc.payments.GetEntitlements(ctx, userCtx.UserID)
	if err != nil {
		log.Errorf("[Billing] load entitlements for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "entitlements_unavailable",
			"message": "could not load entitlements",
		})
	}
	return c.JSON(fiber.Map{"entitlements": summary})
}

type refundRequest struct {
	SessionID      string `json:"session_id"`
	SessionIDCamel string `json:"sessionId"`
	Reason         string `json:"reason"`
	Amount         *int64 `json:"amount"`
}

// HandleCreateRefund issues a refund for one of the caller's payments.
func (bc *BillingController) HandleCreateRefund(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn || userCtx.UserID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": "request body must be JSON"})
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(req.SessionIDCamel)
	}
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body", "message": "session_id is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), paymentsTimeout)
	defer cancel()

	refund, err := bc.payments.IssueRefund(ctx, billing.RefundInput{
		SessionID: sessionID,
		UserID:    userCtx.UserID,
		Reason:    billing.RefundReason(strings.TrimSpace(req.Reason)),
		Amount:    req.Amount,
	})
	if err != nil {
		status, code, message := billingErrorStatus(err)
		if status >= fiber.StatusInternalServerError {
			log.Errorf("[Billing] refund for session %s by user %d failed: %v", sessionID, userCtx.UserID, err)
		}
		return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
	}

	return c.JSON(fiber.Map{"refund": refund})
}

// billingErrorStatus maps billing errors to HTTP responses. Only the
// provider's refund rejection message is passed through to the client.
func billingErrorStatus(err error) (int, string, string) {
	if msg, ok := billing.IsRefundFailure(err); ok {
		if msg == "" {
			msg = "the payment provider rejected the refund"
		}
		return fiber.StatusInternalServerError, "refund_failed", msg
	}
	switch {
	case errors.Is(err, billing.ErrInvalidAmount):
		return fiber.StatusBadRequest, "invalid_amount", "refund amount is not valid for this payment"
	case errors.Is(err, billing.ErrInvalidReason):
		return fiber.StatusBadRequest, "invalid_reason", "reason must be requested_by_customer, duplicate or fraudulent"
	case errors.Is(err, billing.ErrUnauthorizedAccess):
		return fiber.StatusForbidden, "forbidden", "payment belongs to another account"
	case errors.Is(err, billing.ErrNotFound):
		return fiber.StatusNotFound, "not_found", "payment not found"
	case errors.Is(err, billing.ErrProviderUnavailable):
		return fiber.StatusInternalServerError, "provider_unavailable", "payment provider unavailable"
	default:
		return fiber.StatusInternalServerError, "internal_error", "internal error"
	}
}
