package billing

import (
	"encoding/json"
	"time"
)

// EventKind is the closed set of provider events this service reacts to.
type EventKind int

const (
	EventKindIgnored EventKind = iota
	EventKindCheckoutCompleted
	EventKindPaymentSucceeded
	EventKindPaymentFailed
	EventKindDisputeCreated
)

// Stripe event type strings.
const (
	StripeEventCheckoutCompleted = "checkout.session.completed"
	StripeEventPaymentSucceeded  = "payment_intent.succeeded"
	StripeEventPaymentFailed     = "payment_intent.payment_failed"
	StripeEventDisputeCreated    = "charge.dispute.created"
)

// StripeEventCheckoutAsyncSucceeded is sent for delayed payment methods once
// an unpaid completion settles. It carries the same checkout session, now
// with payment_status=paid.
const StripeEventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"

func (k EventKind) String() string {
	switch k {
	case EventKindCheckoutCompleted:
		return "checkout_completed"
	case EventKindPaymentSucceeded:
		return "payment_succeeded"
	case EventKindPaymentFailed:
		return "payment_failed"
	case EventKindDisputeCreated:
		return "dispute_created"
	default:
		return "ignored"
	}
}

// EventKindFromType maps a provider event type onto EventKind.
func EventKindFromType(eventType string) EventKind {
	switch eventType {
	case StripeEventCheckoutCompleted, StripeEventCheckoutAsyncSucceeded:
		return EventKindCheckoutCompleted
	case StripeEventPaymentSucceeded:
		return EventKindPaymentSucceeded
	case StripeEventPaymentFailed:
		return EventKindPaymentFailed
	case StripeEventDisputeCreated:
		return EventKindDisputeCreated
	default:
		return EventKindIgnored
	}
}

// Event is a verified provider event. It is never persisted.
type Event struct {
	ID        string
	Kind      EventKind
	Type      string
	CreatedAt time.Time
	Payload   json.RawMessage
}

// Minimal payload shapes. Only the fields the dispatcher reads are decoded.

type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	Customer          json.RawMessage   `json:"customer"`
	CustomerEmail     string            `json:"customer_email"`
	CustomerDetails   *customerDetails  `json:"customer_details"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentIntent     json.RawMessage   `json:"payment_intent"`
	PaymentStatus     string            `json:"payment_status"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
	Created           int64             `json:"created"`
}

type customerDetails struct {
	Email string `json:"email"`
}

type paymentIntentPayload struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Customer         json.RawMessage   `json:"customer"`
	ReceiptEmail     string            `json:"receipt_email"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type disputePayload struct {
	ID            string          `json:"id"`
	Charge        json.RawMessage `json:"charge"`
	PaymentIntent json.RawMessage `json:"payment_intent"`
	Amount        int64           `json:"amount"`
	Currency      string          `json:"currency"`
	Reason        string          `json:"reason"`
	Status        string          `json:"status"`
}

// expandableID reads a field that is either an id string or an expanded
// object carrying "id".
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

func (p checkoutSessionPayload) toSession() CheckoutSession {
	email := p.CustomerEmail
	if email == "" && p.CustomerDetails != nil {
		email = p.CustomerDetails.Email
	}
	return CheckoutSession{
		ID:                p.ID,
		PaymentIntentID:   expandableID(p.PaymentIntent),
		CustomerID:        expandableID(p.Customer),
		CustomerEmail:     email,
		ClientReferenceID: p.ClientReferenceID,
		Amount:            p.AmountTotal,
		Currency:          p.Currency,
		PaymentStatus:     p.PaymentStatus,
		Metadata:          p.Metadata,
		CreatedAt:         time.Unix(p.Created, 0).UTC(),
	}
}
