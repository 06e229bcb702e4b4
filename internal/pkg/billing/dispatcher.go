package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/pitlane-app/pitlane/internal/pkg/metrics"
)

// Outcome describes what a dispatched event led to.
type Outcome string

const (
	// OutcomeProcessed means an entitlement mutation or a side effect ran.
	OutcomeProcessed Outcome = "processed"
	// OutcomeAcknowledged means the event was understood but required no change.
	OutcomeAcknowledged Outcome = "acknowledged"
	// OutcomeIgnored means the event type is not handled.
	OutcomeIgnored Outcome = "ignored"
)

// Entitler is implemented by *Reconciler.
type Entitler interface {
	GrantPremium(ctx context.Context, g Grant) bool
	AddCapacitySlot(ctx context.Context, g Grant) bool
}

// Dispatcher routes verified events to their handlers.
type Dispatcher struct {
	entitlements Entitler
	notifier     Notifier
}

// NewDispatcher creates a dispatcher. A nil notifier disables notifications.
func NewDispatcher(entitlements Entitler, notifier Notifier) *Dispatcher {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Dispatcher{entitlements: entitlements, notifier: notifier}
}

// Dispatch handles one event. A returned error means the provider should
// redeliver; nothing is retried here.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) (outcome Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("[Webhook] panic handling event %s (%s): %v", evt.ID, evt.Type, rec)
			outcome = ""
			err = fmt.Errorf("handler panic for event %s: %v", evt.ID, rec)
		}
	}()

	log.Debugf("[Webhook] dispatching event %s type=%s kind=%s", evt.ID, evt.Type, evt.Kind)
	switch evt.Kind {
	case EventKindCheckoutCompleted:
		return d.handleCheckoutCompleted(ctx, evt)
	case EventKindPaymentSucceeded:
		return d.handlePaymentOutcome(evt, true)
	case EventKindPaymentFailed:
		return d.handlePaymentOutcome(evt, false)
	case EventKindDisputeCreated:
		return d.handleDisputeCreated(evt)
	default:
		log.Infof("[Webhook] ignored event %s type=%s", evt.ID, evt.Type)
		return OutcomeIgnored, nil
	}
}

func (d *Dispatcher) handleCheckoutCompleted(ctx context.Context, evt Event) (Outcome, error) {
	var payload checkoutSessionPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return "", fmt.Errorf("%w: decode checkout session: %v", ErrMalformedEvent, err)
	}
	sess := payload.toSession()

	if sess.PaymentStatus != PaymentStatusPaid && sess.PaymentStatus != PaymentStatusNoPaymentRequired {
		log.Infof("[Webhook] checkout %s completed with payment_status=%q, waiting for async payment", sess.ID, sess.PaymentStatus)
		return OutcomeAcknowledged, nil
	}

	userID := sess.PurchaserID()
	if userID == 0 {
		log.Warnf("[Webhook] checkout %s has no valid %s metadata, skipping", sess.ID, MetadataUserID)
		return OutcomeAcknowledged, nil
	}

	g := Grant{UserID: userID, CustomerID: sess.CustomerID, Email: sess.CustomerEmail}
	kind := sess.PurchaseKind()
	switch kind {
	case PurchaseKindPremium:
		if !d.entitlements.GrantPremium(ctx, g) {
			return "", fmt.Errorf("%w: premium for user %d (session %s)", ErrReconciliationFailed, userID, sess.ID)
		}
	case PurchaseKindGarageSlot:
		if !d.entitlements.AddCapacitySlot(ctx, g) {
			return "", fmt.Errorf("%w: garage slot for user %d (session %s)", ErrReconciliationFailed, userID, sess.ID)
		}
	default:
		log.Infof("[Webhook] checkout %s has unknown purchase type %q, no entitlement change", sess.ID, sess.Metadata[MetadataPurchaseType])
		return OutcomeAcknowledged, nil
	}

	log.Infof("[Webhook] checkout %s reconciled: user=%d kind=%s", sess.ID, userID, kind)
	return OutcomeProcessed, nil
}

func (d *Dispatcher) handlePaymentOutcome(evt Event, succeeded bool) (Outcome, error) {
	var pi paymentIntentPayload
	if err := json.Unmarshal(evt.Payload, &pi); err != nil {
		return "", fmt.Errorf("%w: decode payment intent: %v", ErrMalformedEvent, err)
	}

	userID, _ := parseUserID(pi.Metadata[MetadataUserID])
	n := Notification{
		Email:        pi.ReceiptEmail,
		UserID:       userID,
		PurchaseKind: parsePurchaseKind(pi.Metadata[MetadataPurchaseType]),
		Amount:       pi.Amount,
		Currency:     pi.Currency,
		Reference:    pi.ID,
	}

	if succeeded {
		n.Kind = NotificationPaymentSucceeded
		metrics.PaymentEventsTotal.WithLabelValues("payment_succeeded").Inc()
		log.Infof("[Analytics] payment_succeeded intent=%s user=%d amount=%d %s", pi.ID, userID, pi.Amount, pi.Currency)
	} else {
		n.Kind = NotificationPaymentFailed
		if pi.LastPaymentError != nil {
			n.Detail = pi.LastPaymentError.Message
		}
		metrics.PaymentEventsTotal.WithLabelValues("payment_failed").Inc()
		log.Infof("[Analytics] payment_failed intent=%s user=%d amount=%d %s reason=%q", pi.ID, userID, pi.Amount, pi.Currency, n.Detail)
	}

	notifyAsync(d.notifier, n)
	return OutcomeProcessed, nil
}

func (d *Dispatcher) handleDisputeCreated(evt Event) (Outcome, error) {
	var dp disputePayload
	if err := json.Unmarshal(evt.Payload, &dp); err != nil {
		return "", fmt.Errorf("%w: decode dispute: %v", ErrMalformedEvent, err)
	}
	metrics.PaymentEventsTotal.WithLabelValues("dispute_created").Inc()
	log.Warnf("[Webhook] dispute created id=%s charge=%s amount=%d %s reason=%s",
		dp.ID, expandableID(dp.Charge), dp.Amount, dp.Currency, dp.Reason)
	return OutcomeProcessed, nil
}
