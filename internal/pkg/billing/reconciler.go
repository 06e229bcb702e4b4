package billing

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/pitlane-app/pitlane/internal/pkg/metrics"
)

const (
	grantPathAtomic = "atomic"
	grantPathDirect = "direct"
	grantPathSlot   = "increment"
)

// Reconciler applies entitlement changes for completed purchases. Grants are
// monotonic: premium is only ever switched on and slot counts only grow.
type Reconciler struct {
	store    EntitlementStore
	notifier Notifier
	now      func() time.Time
}

// NewReconciler creates a reconciler. A nil notifier disables notifications.
func NewReconciler(store EntitlementStore, notifier Notifier) *Reconciler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Reconciler{store: store, notifier: notifier, now: time.Now}
}

// GrantPremium marks the user premium. Re-delivery of the same purchase is a
// no-op that still reports success. Returns false only if every write path
// failed.
func (r *Reconciler) GrantPremium(ctx context.Context, g Grant) bool {
	if g.UserID == 0 {
		log.Warnf("[Billing] grant premium called without user id")
		return false
	}

	path := grantPathAtomic
	changed, err := r.tryAtomicGrant(ctx, g)
	if err != nil {
		log.Warnf("[Billing] user=%d op=grant_premium path=%s failed: %v", g.UserID, grantPathAtomic, err)
		metrics.EntitlementGrantsTotal.WithLabelValues(string(PurchaseKindPremium), grantPathAtomic, "error").Inc()

		path = grantPathDirect
		if err := r.tryDirectGrant(ctx, g); err != nil {
			log.Errorf("[Billing] user=%d op=grant_premium path=%s failed: %v", g.UserID, grantPathDirect, err)
			metrics.EntitlementGrantsTotal.WithLabelValues(string(PurchaseKindPremium), grantPathDirect, "error").Inc()
			return false
		}
		changed = true
	}

	outcome := "granted"
	if !changed {
		outcome = "unchanged"
	}
	metrics.EntitlementGrantsTotal.WithLabelValues(string(PurchaseKindPremium), path, outcome).Inc()
	log.Infof("[Billing] user=%d premium %s via %s path", g.UserID, outcome, path)

	if changed {
		r.notifyGranted(g, PurchaseKindPremium)
	}
	return true
}

// tryAtomicGrant is the primary strategy: one conditional write through the
// public handle. "Already premium" is a successful no-op.
func (r *Reconciler) tryAtomicGrant(ctx context.Context, g Grant) (bool, error) {
	return r.store.AtomicGrantPremium(ctx, g.UserID, g.CustomerID)
}

// tryDirectGrant is the fallback: a plain upsert through the service handle.
func (r *Reconciler) tryDirectGrant(ctx context.Context, g Grant) error {
	return r.store.DirectGrantPremium(ctx, g.UserID, g.CustomerID, r.now().UTC())
}

// AddCapacitySlot increments the purchased slot count by exactly one.
//
// This is a read-modify-write without locking: two concurrent deliveries for
// the same user can lose an increment. Deliveries are not de-duplicated either,
// so a replayed event adds another slot.
func (r *Reconciler) AddCapacitySlot(ctx context.Context, g Grant) bool {
	if g.UserID == 0 {
		log.Warnf("[Billing] add slot called without user id")
		return false
	}

	current := 0
	state, err := r.store.GetState(ctx, g.UserID)
	switch {
	case err == nil:
		current = state.PurchasedSlotCount
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		log.Errorf("[Billing] user=%d op=add_slot path=%s read failed: %v", g.UserID, grantPathSlot, err)
		metrics.EntitlementGrantsTotal.WithLabelValues(string(PurchaseKindGarageSlot), grantPathSlot, "error").Inc()
		return false
	}

	if err := r.store.SaveSlotCount(ctx, g.UserID, current+1); err != nil {
		log.Errorf("[Billing] user=%d op=add_slot path=%s write failed: %v", g.UserID, grantPathSlot, err)
		metrics.EntitlementGrantsTotal.WithLabelValues(string(PurchaseKindGarageSlot), grantPathSlot, "error").Inc()
		return false
	}

	metrics.EntitlementGrantsTotal.WithLabelValues(string(PurchaseKindGarageSlot), grantPathSlot, "granted").Inc()
	log.Infof("[Billing] user=%d garage slots %d -> %d", g.UserID, current, current+1)
	r.notifyGranted(g, PurchaseKindGarageSlot)
	return true
}

func (r *Reconciler) notifyGranted(g Grant, kind PurchaseKind) {
	if g.Email == "" {
		return
	}
	notifyAsync(r.notifier, Notification{
		Kind:         NotificationEntitlementGranted,
		Email:        g.Email,
		UserID:       g.UserID,
		PurchaseKind: kind,
	})
}
