package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature means the webhook body could not be authenticated.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnauthorizedAccess means the caller does not own the referenced payment.
	ErrUnauthorizedAccess = errors.New("payment belongs to another user")
	// ErrNotFound means the referenced checkout session does not exist.
	ErrNotFound = errors.New("payment not found")
	// ErrInvalidAmount means a refund request violates the remaining balance.
	ErrInvalidAmount = errors.New("invalid refund amount")
	// ErrInvalidReason means the refund reason is outside the accepted set.
	ErrInvalidReason = errors.New("invalid refund reason")
	// ErrProviderUnavailable wraps transient upstream failures.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrMalformedEvent means a verified event's object could not be decoded.
	// Redelivering the same payload cannot succeed.
	ErrMalformedEvent = errors.New("malformed event payload")
	// ErrReconciliationFailed means both entitlement grant paths failed.
	ErrReconciliationFailed = errors.New("entitlement reconciliation failed")
	// ErrRefundFailed is matched by every *RefundFailedError.
	ErrRefundFailed = errors.New("refund rejected by provider")
)

// RefundFailedError carries the provider's rejection message.
type RefundFailedError struct {
	ProviderMessage string
	Err             error
}

func (e *RefundFailedError) Error() string {
	if e.ProviderMessage == "" {
		return ErrRefundFailed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrRefundFailed.Error(), e.ProviderMessage)
}

func (e *RefundFailedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRefundFailed}
	}
	return []error{ErrRefundFailed, e.Err}
}

// ProviderError is returned by Provider implementations for responses the
// provider answered with an error status. Network failures are returned as-is.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the provider answered 404.
func (e *ProviderError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsRejection reports a 4xx answer: the request itself was refused and
// repeating it unchanged will not help.
func (e *ProviderError) IsRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 429
}
