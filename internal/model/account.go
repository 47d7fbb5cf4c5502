package model

import (
	"time"
)

// maxAppliedOrders 账户上保留的已入账订单号数量
const maxAppliedOrders = 32

// PendingDowngrade 已付款但尚未生效的降级
type PendingDowngrade struct {
	TargetPlan      string    `json:"target_plan"`
	Period          string    `json:"period"`
	Provider        string    `json:"provider"`
	ProviderOrderID string    `json:"provider_order_id"`
	PurchasedAt     time.Time `json:"purchased_at"`
	EffectiveAt     time.Time `json:"effective_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type Account struct {
	ID                  int64              `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Plan                string             `gorm:"size:20;not null;default:Free;index" json:"plan"`
	Pro                 bool               `gorm:"default:false" json:"pro"`
	ContractExpiresAt   *time.Time         `json:"contract_expires_at,omitempty"`
	BillingAnchorDay    int                `gorm:"default:0" json:"billing_anchor_day"`
	MonthlyImageBalance int                `gorm:"default:0" json:"monthly_image_balance"`
	MonthlyVideoBalance int                `gorm:"default:0" json:"monthly_video_balance"`
	MonthlyResetAt      *time.Time         `json:"monthly_reset_at,omitempty"`
	AddonImageBalance   int                `gorm:"default:0" json:"addon_image_balance"`
	AddonVideoBalance   int                `gorm:"default:0" json:"addon_video_balance"`
	PendingDowngrades   []PendingDowngrade `gorm:"type:text;serializer:json" json:"pending_downgrades"`
	AppliedOrders       []string           `gorm:"type:text;serializer:json" json:"applied_orders,omitempty"`
	NextDueAt           *time.Time         `gorm:"index" json:"next_due_at,omitempty"` // 对账扫描索引
	Version             int64              `gorm:"default:0" json:"version"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// IsActive 合同是否在 now 时仍有效
func (a *Account) IsActive(now time.Time) bool {
	return a.ContractExpiresAt != nil && a.ContractExpiresAt.After(now)
}

// IsNew 存储中尚不存在的账户
func (a *Account) IsNew() bool {
	return a.Plan == ""
}

// HasApplied 订单是否已入账
func (a *Account) HasApplied(providerOrderID string) bool {
	for _, id := range a.AppliedOrders {
		if id == providerOrderID {
			return true
		}
	}
	return false
}

// MarkApplied 记录已入账订单，只保留最近的若干条
func (a *Account) MarkApplied(providerOrderID string) {
	if providerOrderID == "" || a.HasApplied(providerOrderID) {
		return
	}
	a.AppliedOrders = append(a.AppliedOrders, providerOrderID)
	if n := len(a.AppliedOrders); n > maxAppliedOrders {
		a.AppliedOrders = a.AppliedOrders[n-maxAppliedOrders:]
	}
}

// RefreshDueAt 重新计算下一次需要对账的时间（UTC 存储）。
// 有合同时为合同到期时间；无合同但有排队降级时为首个降级生效时间；否则为空。
func (a *Account) RefreshDueAt() {
	switch {
	case a.ContractExpiresAt != nil:
		t := a.ContractExpiresAt.UTC()
		a.NextDueAt = &t
	case len(a.PendingDowngrades) > 0:
		t := a.PendingDowngrades[0].EffectiveAt.UTC()
		a.NextDueAt = &t
	default:
		a.NextDueAt = nil
	}
}

// IsDue 对账扫描是否需要处理该账户
func (a *Account) IsDue(now time.Time) bool {
	return a.NextDueAt != nil && !a.NextDueAt.After(now)
}
