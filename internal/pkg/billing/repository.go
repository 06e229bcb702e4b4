package billing

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitlane-app/pitlane/app/models"
)

// EntitlementStore provides the persistence used by the reconciler, the
// history aggregator and the refund issuer.
type EntitlementStore interface {
	// GetState returns gorm.ErrRecordNotFound when the user has no row yet.
	GetState(ctx context.Context, userID uint) (*models.EntitlementState, error)
	// AtomicGrantPremium runs the single conditional write on the public
	// handle and reports whether anything changed.
	AtomicGrantPremium(ctx context.Context, userID uint, customerID string) (bool, error)
	// DirectGrantPremium upserts the premium flag through the service handle.
	DirectGrantPremium(ctx context.Context, userID uint, customerID string, grantedAt time.Time) error
	SaveSlotCount(ctx context.Context, userID uint, count int) error
	RecordRefundRequest(ctx context.Context, req *models.RefundRequest) error
	// RefundRequestIDs returns the provider refund ids requested by the user.
	RefundRequestIDs(ctx context.Context, userID uint) (map[string]struct{}, error)
}

type gormStore struct {
	db        *gorm.DB
	serviceDB *gorm.DB
}

// NewStore creates a GORM-backed store. serviceDB may be nil, in which case
// the direct grant path uses db.
func NewStore(db, serviceDB *gorm.DB) EntitlementStore {
	if serviceDB == nil {
		serviceDB = db
	}
	return &gormStore{db: db, serviceDB: serviceDB}
}

func (r *gormStore) GetState(ctx context.Context, userID uint) (*models.EntitlementState, error) {
	var state models.EntitlementState
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *gormStore) AtomicGrantPremium(ctx context.Context, userID uint, customerID string) (bool, error) {
	var res struct {
		Granted bool
	}
	var cid interface{}
	if customerID != "" {
		cid = customerID
	}
	if err := r.db.WithContext(ctx).Raw("CALL grant_premium(?, ?)", userID, cid).Scan(&res).Error; err != nil {
		return false, err
	}
	return res.Granted, nil
}

func (r *gormStore) DirectGrantPremium(ctx context.Context, userID uint, customerID string, grantedAt time.Time) error {
	state := &models.EntitlementState{
		UserID:           userID,
		IsPremium:        true,
		PremiumGrantedAt: &grantedAt,
	}
	updates := []string{"is_premium", "premium_granted_at", "updated_at"}
	if customerID != "" {
		state.ProviderCustomerID = &customerID
		updates = append(updates, "provider_customer_id")
	}
	return r.serviceDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(state).Error
}

func (r *gormStore) SaveSlotCount(ctx context.Context, userID uint, count int) error {
	state := &models.EntitlementState{
		UserID:             userID,
		PurchasedSlotCount: count,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"purchased_slot_count", "updated_at"}),
	}).Create(state).Error
}

func (r *gormStore) RecordRefundRequest(ctx context.Context, req *models.RefundRequest) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_refund_id"}},
		DoNothing: true,
	}).Create(req).Error
}

func (r *gormStore) RefundRequestIDs(ctx context.Context, userID uint) (map[string]struct{}, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.RefundRequest{}).
		Where("user_id = ?", userID).
		Pluck("provider_refund_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
