package models

import "time"

// RefundRequest is an audit row for refunds issued through this service. The
// amount mirrors what the provider confirmed; the provider stays authoritative.
type RefundRequest struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index" json:"user_id"`
	SessionID        string    `gorm:"type:varchar(191);not null;index" json:"session_id"`
	PaymentIntentID  string    `gorm:"type:varchar(191);not null;index" json:"payment_intent_id"`
	ProviderRefundID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_refund_id"`
	Amount           int64     `gorm:"not null" json:"amount"`
	Currency         string    `gorm:"type:varchar(8);not null;default:''" json:"currency"`
	Reason           string    `gorm:"type:varchar(32);not null" json:"reason"`
	Status           string    `gorm:"type:varchar(32);not null" json:"status"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
