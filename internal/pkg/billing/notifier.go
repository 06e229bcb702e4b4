package billing

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// NotificationKind selects the message template.
type NotificationKind string

const (
	NotificationEntitlementGranted NotificationKind = "entitlement_granted"
	NotificationPaymentSucceeded   NotificationKind = "payment_succeeded"
	NotificationPaymentFailed      NotificationKind = "payment_failed"
)

// Notification is handed to a Notifier. Email may be empty for payment
// outcome notices; implementations then only log.
type Notification struct {
	Kind         NotificationKind
	Email        string
	UserID       uint
	PurchaseKind PurchaseKind
	Amount       int64
	Currency     string
	Reference    string
	Detail       string
}

// Notifier delivers user notifications. Delivery failures never affect
// billing outcomes.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }

const notifyTimeout = 15 * time.Second

// notifyAsync sends n in its own goroutine with a bounded timeout.
func notifyAsync(n Notifier, msg Notification) {
	if n == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := n.Notify(ctx, msg); err != nil {
			log.Warnf("[Billing] notification %s for user %d failed: %v", msg.Kind, msg.UserID, err)
		}
	}()
}
