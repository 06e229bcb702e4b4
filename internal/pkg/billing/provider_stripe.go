package billing

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a provider using the given secret key.
func NewStripeProvider(secretKey string) *StripeProvider {
	return &StripeProvider{api: client.New(secretKey, nil)}
}

// ListCheckoutSessions fetches a single page of sessions with the payment
// intent expanded. It does not auto-page.
func (p *StripeProvider) ListCheckoutSessions(ctx context.Context, customerID string, limit int64) ([]CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(clampLimit(limit))
	params.Single = true
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.AddExpand("data.payment_intent")

	var out []CheckoutSession
	iter := p.api.CheckoutSessions.List(params)
	for iter.Next() {
		out = append(out, fromStripeSession(iter.CheckoutSession()))
	}
	if err := iter.Err(); err != nil {
		return nil, fromStripeError(err)
	}
	return out, nil
}

// GetCheckoutSession retrieves one session by id.
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return CheckoutSession{}, fromStripeError(err)
	}
	return fromStripeSession(s), nil
}

// ListRefunds returns the refunds of a payment intent.
func (p *StripeProvider) ListRefunds(ctx context.Context, paymentIntentID string) ([]Refund, error) {
	params := &stripe.RefundListParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx
	params.Limit = stripe.Int64(MaxSessionListLimit)

	var out []Refund
	iter := p.api.Refunds.List(params)
	for iter.Next() {
		out = append(out, fromStripeRefund(iter.Refund()))
	}
	if err := iter.Err(); err != nil {
		return nil, fromStripeError(err)
	}
	return out, nil
}

// CreateRefund creates a refund. A non-empty IdempotencyKey is sent as the
// Idempotency-Key header.
func (p *StripeProvider) CreateRefund(ctx context.Context, in RefundParams) (Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(in.PaymentIntentID),
		Amount:        stripe.Int64(in.Amount),
		Reason:        stripe.String(string(in.Reason)),
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	r, err := p.api.Refunds.New(params)
	if err != nil {
		return Refund{}, fromStripeError(err)
	}
	return fromStripeRefund(r), nil
}

func fromStripeSession(s *stripe.CheckoutSession) CheckoutSession {
	if s == nil {
		return CheckoutSession{}
	}
	out := CheckoutSession{
		ID:                s.ID,
		CustomerEmail:     s.CustomerEmail,
		ClientReferenceID: s.ClientReferenceID,
		Amount:            s.AmountTotal,
		Currency:          string(s.Currency),
		PaymentStatus:     string(s.PaymentStatus),
		Metadata:          s.Metadata,
		CreatedAt:         time.Unix(s.Created, 0).UTC(),
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if out.CustomerEmail == "" && s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	return out
}

func fromStripeRefund(r *stripe.Refund) Refund {
	if r == nil {
		return Refund{}
	}
	out := Refund{
		ID:        r.ID,
		Amount:    r.Amount,
		Currency:  string(r.Currency),
		Status:    string(r.Status),
		Reason:    string(r.Reason),
		CreatedAt: time.Unix(r.Created, 0).UTC(),
	}
	if r.PaymentIntent != nil {
		out.PaymentIntentID = r.PaymentIntent.ID
	}
	return out
}

// fromStripeError converts API errors into *ProviderError. Transport errors
// pass through unchanged.
func fromStripeError(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		return &ProviderError{
			StatusCode: serr.HTTPStatusCode,
			Code:       string(serr.Code),
			Message:    serr.Msg,
		}
	}
	return err
}
