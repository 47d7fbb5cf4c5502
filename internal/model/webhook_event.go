package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WebhookEvent 回调去重记录，ID 为 provider:transactionID
type WebhookEvent struct {
	ID              string     `gorm:"primaryKey;size:128" json:"id"`
	Provider        string     `gorm:"size:20;not null" json:"provider"`
	ProviderOrderID string     `gorm:"size:64;index" json:"provider_order_id"`
	Processed       bool       `gorm:"default:false;index" json:"processed"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// EventID 去重键
func EventID(provider, providerTransactionID string) string {
	return provider + ":" + providerTransactionID
}

// ConfirmedPayment 网关验签解析后的统一支付确认事件
type ConfirmedPayment struct {
	Provider              string          `json:"provider"`
	ProviderTransactionID string          `json:"provider_transaction_id"`
	ProviderOrderID       string          `json:"provider_order_id"`
	SettledAmount         decimal.Decimal `json:"settled_amount"`
	Currency              string          `json:"currency"`
}

func (e ConfirmedPayment) EventID() string {
	return EventID(e.Provider, e.ProviderTransactionID)
}
