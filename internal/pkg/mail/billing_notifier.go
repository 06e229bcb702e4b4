package mail

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/pitlane-app/pitlane/internal/pkg/billing"
)

// BillingNotifier turns billing notifications into emails.
type BillingNotifier struct {
	sender Sender
}

func NewBillingNotifier(sender Sender) *BillingNotifier {
	return &BillingNotifier{sender: sender}
}

func (n *BillingNotifier) Notify(ctx context.Context, msg billing.Notification) error {
	if msg.Email == "" {
		log.Infof("[Mail] %s for user %d has no recipient, skipping", msg.Kind, msg.UserID)
		return nil
	}
	subject, body, ok := renderBillingMail(msg)
	if !ok {
		return fmt.Errorf("no template for notification %q", msg.Kind)
	}
	return n.sender.Send(ctx, msg.Email, subject, body)
}

func renderBillingMail(msg billing.Notification) (string, string, bool) {
	switch msg.Kind {
	case billing.NotificationEntitlementGranted:
		if msg.PurchaseKind == billing.PurchaseKindGarageSlot {
			return "Your new garage slot is ready",
				"<p>Thanks for your purchase! An extra garage slot has been added to your account.</p>", true
		}
		return "Welcome to Pitlane Premium",
			"<p>Thanks for your purchase! Premium is now active on your account.</p>", true
	case billing.NotificationPaymentSucceeded:
		return "Payment received",
			fmt.Sprintf("<p>We received your payment of %s.</p><p>Reference: %s</p>",
				formatAmount(msg.Amount, msg.Currency), html.EscapeString(msg.Reference)), true
	case billing.NotificationPaymentFailed:
		detail := ""
		if msg.Detail != "" {
			detail = fmt.Sprintf("<p>%s</p>", html.EscapeString(msg.Detail))
		}
		return "Payment failed",
			fmt.Sprintf("<p>Your payment of %s could not be completed.</p>%s<p>You can retry from your account page.</p>",
				formatAmount(msg.Amount, msg.Currency), detail), true
	default:
		return "", "", false
	}
}

// formatAmount renders minor units for two-decimal currencies.
func formatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, strings.ToUpper(currency))
}
