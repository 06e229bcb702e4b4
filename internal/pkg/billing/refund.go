package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/pitlane-app/pitlane/app/models"
	"github.com/pitlane-app/pitlane/internal/pkg/metrics"
)

// refundKeySpace namespaces the deterministic idempotency keys.
var refundKeySpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://pitlane.app/billing/refunds"))

const refundReasonRule = "required,oneof=requested_by_customer duplicate fraudulent"

// IssueRefund refunds part or all of a payment the user owns. The payment is
// re-read from the provider so the remaining amount is never taken from the
// client. A nil Amount refunds everything that remains.
func (s *Service) IssueRefund(ctx context.Context, in RefundInput) (*RefundRecord, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrNotFound)
	}

	payment, err := s.FindPaymentForUser(ctx, in.UserID, sessionID)
	if err != nil {
		metrics.RefundsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	amount, err := refundAmount(*payment, in.Amount)
	if err != nil {
		metrics.RefundsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if err := s.validate.Var(string(in.Reason), refundReasonRule); err != nil {
		metrics.RefundsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %q", ErrInvalidReason, in.Reason)
	}

	refund, err := s.provider.CreateRefund(ctx, RefundParams{
		PaymentIntentID: *payment.PaymentIntentID,
		Amount:          amount,
		Reason:          in.Reason,
		IdempotencyKey:  refundIdempotencyKey(sessionID, len(payment.Refunds), payment.RefundedAmount, amount),
	})
	if err != nil {
		if perr, ok := asProviderRejection(err); ok {
			metrics.RefundsTotal.WithLabelValues("failed").Inc()
			log.Warnf("[Billing] refund for session %s (user %d) rejected: %s", sessionID, in.UserID, perr.Message)
			return nil, &RefundFailedError{ProviderMessage: perr.Message, Err: err}
		}
		metrics.RefundsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: create refund for %s: %v", ErrProviderUnavailable, sessionID, err)
	}

	metrics.RefundsTotal.WithLabelValues("succeeded").Inc()
	log.Infof("[Billing] refund %s issued for session %s user=%d amount=%d status=%s", refund.ID, sessionID, in.UserID, refund.Amount, refund.Status)

	if err := s.store.RecordRefundRequest(ctx, &models.RefundRequest{
		UserID:           in.UserID,
		SessionID:        sessionID,
		PaymentIntentID:  *payment.PaymentIntentID,
		ProviderRefundID: refund.ID,
		Amount:           refund.Amount,
		Currency:         refund.Currency,
		Reason:           string(in.Reason),
		Status:           refund.Status,
	}); err != nil {
		log.Errorf("[Billing] failed to record refund audit row for %s: %v", refund.ID, err)
	}

	rec := toRefundRecord(refund)
	rec.RequestedLocally = true
	return &rec, nil
}

// refundAmount validates the requested amount against what remains.
func refundAmount(p PaymentRecord, requested *int64) (int64, error) {
	if p.Status != PaymentStatusPaid || p.PaymentIntentID == nil {
		return 0, fmt.Errorf("%w: payment is not refundable", ErrInvalidAmount)
	}
	remaining := p.RemainingAmount()
	if requested == nil {
		if remaining <= 0 {
			return 0, fmt.Errorf("%w: payment is already fully refunded", ErrInvalidAmount)
		}
		return remaining, nil
	}
	if *requested <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if *requested > remaining {
		return 0, fmt.Errorf("%w: amount %d exceeds remaining %d", ErrInvalidAmount, *requested, remaining)
	}
	return *requested, nil
}

// refundIdempotencyKey is stable for a retried request and changes once any
// refund exists on the payment. The refund count includes failed and
// canceled refunds, so a refund that later fails still moves the key even
// though the refunded amount drops back.
func refundIdempotencyKey(sessionID string, refundCount int, refunded, amount int64) string {
	raw := fmt.Sprintf("%s:%d:%d:%d", sessionID, refundCount, refunded, amount)
	return uuid.NewSHA1(refundKeySpace, []byte(raw)).String()
}

// IsRefundFailure reports whether err is a provider rejection and returns
// the provider message.
func IsRefundFailure(err error) (string, bool) {
	var rf *RefundFailedError
	if errors.As(err, &rf) {
		return rf.ProviderMessage, true
	}
	return "", false
}
