package models

import "time"

// EntitlementState is the per-user entitlement derived from completed purchases.
// Rows are only ever written by the billing reconciler; nothing here is
// decremented or reset.
type EntitlementState struct {
	UserID             uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	IsPremium          bool       `gorm:"not null;default:false;index" json:"is_premium"`
	PremiumGrantedAt   *time.Time `gorm:"type:timestamp;default:null" json:"premium_granted_at,omitempty"`
	PurchasedSlotCount int        `gorm:"not null;default:0" json:"purchased_slot_count"`
	ProviderCustomerID *string    `gorm:"type:varchar(191);default:null;index" json:"provider_customer_id,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CustomerID returns the linked provider customer id or "".
func (s *EntitlementState) CustomerID() string {
	if s == nil || s.ProviderCustomerID == nil {
		return ""
	}
	return *s.ProviderCustomerID
}
