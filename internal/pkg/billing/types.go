package billing

import (
	"strconv"
	"strings"
	"time"
)

// PurchaseKind identifies what a checkout session bought.
type PurchaseKind string

const (
	PurchaseKindPremium    PurchaseKind = "premium"
	PurchaseKindGarageSlot PurchaseKind = "garage_slot"
	PurchaseKindUnknown    PurchaseKind = "unknown"
)

// Checkout metadata keys written by the checkout creator.
const (
	MetadataUserID       = "user_id"
	MetadataPurchaseType = "purchase_type"
)

// Checkout session payment statuses.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// Refund statuses that do not move money.
const (
	RefundStatusFailed   = "failed"
	RefundStatusCanceled = "canceled"
)

// RefundReason is the closed set of reasons accepted by the provider.
type RefundReason string

const (
	RefundReasonRequestedByCustomer RefundReason = "requested_by_customer"
	RefundReasonDuplicate           RefundReason = "duplicate"
	RefundReasonFraudulent          RefundReason = "fraudulent"
)

func parsePurchaseKind(v string) PurchaseKind {
	switch PurchaseKind(strings.ToLower(strings.TrimSpace(v))) {
	case PurchaseKindPremium:
		return PurchaseKindPremium
	case PurchaseKindGarageSlot:
		return PurchaseKindGarageSlot
	default:
		return PurchaseKindUnknown
	}
}

// Grant is the input of an entitlement mutation.
type Grant struct {
	UserID     uint
	CustomerID string
	Email      string
}

// CheckoutSession is the provider-neutral view of a checkout session.
type CheckoutSession struct {
	ID                string
	PaymentIntentID   string
	CustomerID        string
	CustomerEmail     string
	ClientReferenceID string
	Amount            int64
	Currency          string
	PaymentStatus     string
	Metadata          map[string]string
	CreatedAt         time.Time
}

// OwnerID is the user recorded in metadata.user_id, the only field trusted
// for ownership checks. Zero means unknown.
func (s CheckoutSession) OwnerID() uint {
	id, _ := parseUserID(s.Metadata[MetadataUserID])
	return id
}

// PurchaserID resolves the user to grant entitlements to, falling back to
// the client reference id when metadata is missing. It must not be used to
// authorize access: client_reference_id can be set by whoever opens the
// payment link.
func (s CheckoutSession) PurchaserID() uint {
	if id := s.OwnerID(); id != 0 {
		return id
	}
	id, _ := parseUserID(s.ClientReferenceID)
	return id
}

// PurchaseKind reads the purchase type from metadata.
func (s CheckoutSession) PurchaseKind() PurchaseKind {
	return parsePurchaseKind(s.Metadata[MetadataPurchaseType])
}

func parseUserID(v string) (uint, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// Refund is the provider-neutral view of a refund.
type Refund struct {
	ID              string
	PaymentIntentID string
	Amount          int64
	Currency        string
	Status          string
	Reason          string
	CreatedAt       time.Time
}

// RefundParams describes a refund to create.
type RefundParams struct {
	PaymentIntentID string
	Amount          int64
	Reason          RefundReason
	IdempotencyKey  string
}

// RefundRecord is one refund as exposed to the user.
type RefundRecord struct {
	ID               string    `json:"id"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency,omitempty"`
	Status           string    `json:"status"`
	Reason           string    `json:"reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	RequestedLocally bool      `json:"requested_locally"`
}

// PaymentRecord is one purchase reconstructed from provider records.
type PaymentRecord struct {
	SessionID       string         `json:"session_id"`
	PaymentIntentID *string        `json:"payment_intent_id"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	Status          string         `json:"status"`
	PurchaseKind    PurchaseKind   `json:"purchase_kind"`
	CreatedAt       time.Time      `json:"created_at"`
	RefundedAmount  int64          `json:"refunded_amount"`
	CanRefund       bool           `json:"can_refund"`
	Refunds         []RefundRecord `json:"refunds"`
}

// RemainingAmount is what can still be refunded.
func (p PaymentRecord) RemainingAmount() int64 {
	return p.Amount - p.RefundedAmount
}

// RefundInput is a user's refund request.
type RefundInput struct {
	SessionID string
	UserID    uint
	Reason    RefundReason
	Amount    *int64
}

func refundCounts(status string) bool {
	switch strings.ToLower(status) {
	case RefundStatusFailed, RefundStatusCanceled:
		return false
	default:
		return true
	}
}

func toRefundRecord(r Refund) RefundRecord {
	return RefundRecord{
		ID:        r.ID,
		Amount:    r.Amount,
		Currency:  r.Currency,
		Status:    r.Status,
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
	}
}
