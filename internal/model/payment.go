package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"

	ProductSubscription = "SUBSCRIPTION"
	ProductAddon        = "ADDON"

	ProviderWechat = "wechat"
	ProviderAlipay = "alipay"
)

// PaymentMetadata 下单时固化的计价结果
type PaymentMetadata struct {
	Days          int    `json:"days,omitempty"`
	IsUpgrade     bool   `json:"is_upgrade,omitempty"`
	IsFreeUpgrade bool   `json:"is_free_upgrade,omitempty"`
	AddonID       string `json:"addon_id,omitempty"`
}

type PaymentRecord struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	AccountID         int64           `gorm:"not null;index" json:"account_id"`
	Provider          string          `gorm:"size:20;not null" json:"provider"`
	ProviderOrderID   string          `gorm:"size:64;not null;uniqueIndex" json:"provider_order_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency          string          `gorm:"size:3;not null" json:"currency"`
	Status            string          `gorm:"size:20;default:PENDING;index" json:"status"`
	ProductType       string          `gorm:"size:20;not null" json:"product_type"`
	Plan              string          `gorm:"size:20" json:"plan,omitempty"`
	Period            string          `gorm:"size:10" json:"period,omitempty"`
	ImageCredits      int             `json:"image_credits,omitempty"`
	VideoAudioCredits int             `json:"video_audio_credits,omitempty"`
	Metadata          PaymentMetadata `gorm:"type:text;serializer:json" json:"metadata"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (PaymentRecord) TableName() string {
	return "payments"
}
