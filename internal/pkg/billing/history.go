package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/pitlane-app/pitlane/internal/pkg/metrics"
)

// ListPaymentsForUser reconstructs the user's purchases and refunds from the
// provider, newest first. Refund lookups degrade per payment; only a failed
// session listing fails the call.
func (s *Service) ListPaymentsForUser(ctx context.Context, userID uint) ([]PaymentRecord, error) {
	sessions, err := s.listCandidateSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	local := s.localRefundIDs(ctx, userID)
	payments := make([]PaymentRecord, 0, len(sessions))
	for _, sess := range sessions {
		// The customer filter alone is not trusted: a customer object can be
		// shared, the metadata owner is authoritative.
		if sess.OwnerID() != userID {
			continue
		}

		p := newPaymentRecord(sess)
		if sess.PaymentIntentID != "" {
			refunds, err := s.provider.ListRefunds(ctx, sess.PaymentIntentID)
			if err != nil {
				log.Warnf("[Billing] refund lookup for session %s (user %d) failed: %v", sess.ID, userID, err)
				metrics.RefundLookupFailuresTotal.Inc()
			} else {
				applyRefunds(&p, refunds, local)
			}
		}
		payments = append(payments, p)
	}

	sort.SliceStable(payments, func(i, j int) bool {
		if !payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].CreatedAt.After(payments[j].CreatedAt)
		}
		return payments[i].SessionID < payments[j].SessionID
	})
	return payments, nil
}

// FindPaymentForUser loads one payment for a money-moving decision. Unlike
// the list view a refund lookup failure fails the call.
func (s *Service) FindPaymentForUser(ctx context.Context, userID uint, sessionID string) (*PaymentRecord, error) {
	sess, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if isProviderNotFound(err) {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("%w: get session %s: %v", ErrProviderUnavailable, sessionID, err)
	}
	if sess.OwnerID() != userID {
		return nil, fmt.Errorf("%w: session %s", ErrUnauthorizedAccess, sessionID)
	}

	p := newPaymentRecord(sess)
	if sess.PaymentIntentID != "" {
		refunds, err := s.provider.ListRefunds(ctx, sess.PaymentIntentID)
		if err != nil {
			return nil, fmt.Errorf("%w: list refunds for %s: %v", ErrProviderUnavailable, sessionID, err)
		}
		applyRefunds(&p, refunds, s.localRefundIDs(ctx, userID))
	}
	return &p, nil
}

func (s *Service) listCandidateSessions(ctx context.Context, userID uint) ([]CheckoutSession, error) {
	customerID := ""
	state, err := s.store.GetState(ctx, userID)
	switch {
	case err == nil:
		customerID = state.CustomerID()
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		log.Warnf("[Billing] entitlement lookup for user %d failed, listing without customer filter: %v", userID, err)
	}

	if customerID != "" {
		sessions, err := s.provider.ListCheckoutSessions(ctx, customerID, s.sessionLimit)
		if err == nil {
			return sessions, nil
		}
		log.Warnf("[Billing] customer session listing for user %d failed, falling back to recent sessions: %v", userID, err)
	}

	sessions, err := s.provider.ListCheckoutSessions(ctx, "", MaxSessionListLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", ErrProviderUnavailable, err)
	}
	return sessions, nil
}

func (s *Service) localRefundIDs(ctx context.Context, userID uint) map[string]struct{} {
	ids, err := s.store.RefundRequestIDs(ctx, userID)
	if err != nil {
		log.Warnf("[Billing] refund audit lookup for user %d failed: %v", userID, err)
		return nil
	}
	return ids
}

func newPaymentRecord(sess CheckoutSession) PaymentRecord {
	p := PaymentRecord{
		SessionID:    sess.ID,
		Amount:       sess.Amount,
		Currency:     sess.Currency,
		Status:       sess.PaymentStatus,
		PurchaseKind: sess.PurchaseKind(),
		CreatedAt:    sess.CreatedAt,
		Refunds:      []RefundRecord{},
	}
	if sess.PaymentIntentID != "" {
		pi := sess.PaymentIntentID
		p.PaymentIntentID = &pi
	}
	p.CanRefund = canRefund(p)
	return p
}

func applyRefunds(p *PaymentRecord, refunds []Refund, local map[string]struct{}) {
	var total int64
	records := make([]RefundRecord, 0, len(refunds))
	for _, r := range refunds {
		rec := toRefundRecord(r)
		if _, ok := local[r.ID]; ok {
			rec.RequestedLocally = true
		}
		records = append(records, rec)
		if refundCounts(r.Status) {
			total += r.Amount
		}
	}
	p.Refunds = records
	p.RefundedAmount = total
	p.CanRefund = canRefund(*p)
}

func canRefund(p PaymentRecord) bool {
	return p.Status == PaymentStatusPaid && p.RefundedAmount < p.Amount
}
