package model

import (
	"time"
)

const (
	SubscriptionPending    = "pending"
	SubscriptionActive     = "active"
	SubscriptionSuperseded = "superseded"
	SubscriptionExpired    = "expired"
)

// SubscriptionRecord 订阅历史，active 为当前合同，pending 为排队中的降级
type SubscriptionRecord struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	AccountID       int64     `gorm:"not null;index" json:"account_id"`
	Plan            string    `gorm:"size:20;not null" json:"plan"`
	Period          string    `gorm:"size:10;not null" json:"period"` // monthly, annual
	Status          string    `gorm:"size:20;default:active;index" json:"status"`
	Provider        string    `gorm:"size:20" json:"provider,omitempty"` // wechat, alipay
	ProviderOrderID string    `gorm:"size:64;index" json:"provider_order_id"`
	StartedAt       time.Time `gorm:"not null" json:"started_at"`
	ExpiresAt       time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (SubscriptionRecord) TableName() string {
	return "subscriptions"
}
