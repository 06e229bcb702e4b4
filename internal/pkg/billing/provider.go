package billing

import (
	"context"
	"errors"
)

// MaxSessionListLimit is the largest page the provider returns in one call.
const MaxSessionListLimit = 100

// Provider is the subset of the payment provider API used for history and refunds.
type Provider interface {
	// ListCheckoutSessions returns at most limit sessions, newest first. An
	// empty customerID lists across all customers.
	ListCheckoutSessions(ctx context.Context, customerID string, limit int64) ([]CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (CheckoutSession, error)
	ListRefunds(ctx context.Context, paymentIntentID string) ([]Refund, error)
	CreateRefund(ctx context.Context, params RefundParams) (Refund, error)
}

func isProviderNotFound(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.IsNotFound()
}

func asProviderRejection(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) && perr.IsRejection() {
		return perr, true
	}
	return nil, false
}

func clampLimit(limit int64) int64 {
	if limit <= 0 || limit > MaxSessionListLimit {
		return MaxSessionListLimit
	}
	return limit
}
