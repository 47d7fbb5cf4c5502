package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/qs3c/quota_ledger/internal/model"
)

var fixtureSeq int64

func nextID() int64 {
	return atomic.AddInt64(&fixtureSeq, 1)
}

// TestAccount 创建测试账户，默认为免费版
func TestAccount(t *testing.T, db *gorm.DB, opts ...func(*model.Account)) *model.Account {
	t.Helper()

	account := &model.Account{
		ID:                  1000 + nextID(),
		Plan:                "Free",
		MonthlyImageBalance: 30,
		MonthlyVideoBalance: 5,
	}

	for _, opt := range opts {
		opt(account)
	}
	account.RefreshDueAt()

	if err := db.Create(account).Error; err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}

	return account
}

// WithAccountID 指定账户ID
func WithAccountID(id int64) func(*model.Account) {
	return func(a *model.Account) {
		a.ID = id
	}
}

// WithPlan 设置套餐与合同到期时间
func WithPlan(plan string, expiresAt time.Time, anchorDay int) func(*model.Account) {
	return func(a *model.Account) {
		a.Plan = plan
		a.Pro = plan == "Pro" || plan == "Enterprise"
		a.ContractExpiresAt = &expiresAt
		a.BillingAnchorDay = anchorDay
	}
}

// WithBalances 设置月度额度
func WithBalances(image, video int) func(*model.Account) {
	return func(a *model.Account) {
		a.MonthlyImageBalance = image
		a.MonthlyVideoBalance = video
	}
}

// WithAddonBalances 设置加油包额度
func WithAddonBalances(image, video int) func(*model.Account) {
	return func(a *model.Account) {
		a.AddonImageBalance = image
		a.AddonVideoBalance = video
	}
}

// WithPending 设置排队中的降级
func WithPending(entries ...model.PendingDowngrade) func(*model.Account) {
	return func(a *model.Account) {
		a.PendingDowngrades = entries
	}
}

// TestPayment 创建待支付的订阅订单
func TestPayment(t *testing.T, db *gorm.DB, accountID int64, opts ...func(*model.PaymentRecord)) *model.PaymentRecord {
	t.Helper()

	seq := nextID()
	payment := &model.PaymentRecord{
		ID:              fmt.Sprintf("pay-%d", seq),
		AccountID:       accountID,
		Provider:        model.ProviderWechat,
		ProviderOrderID: fmt.Sprintf("order-%d", seq),
		Amount:          decimal.RequireFromString("99.90"),
		Currency:        "CNY",
		Status:          model.PaymentPending,
		ProductType:     model.ProductSubscription,
		Plan:            "Pro",
		Period:          "monthly",
		Metadata:        model.PaymentMetadata{Days: 30},
	}

	for _, opt := range opts {
		opt(payment)
	}

	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("Failed to create test payment: %v", err)
	}

	return payment
}

// WithProduct 设置订阅套餐与金额
func WithProduct(plan, period, amount string) func(*model.PaymentRecord) {
	return func(p *model.PaymentRecord) {
		p.ProductType = model.ProductSubscription
		p.Plan = plan
		p.Period = period
		p.Amount = decimal.RequireFromString(amount)
		if period == "annual" {
			p.Metadata.Days = 365
		}
	}
}

// WithAddon 设置为加油包订单
func WithAddon(addonID string, image, video int, amount string) func(*model.PaymentRecord) {
	return func(p *model.PaymentRecord) {
		p.ProductType = model.ProductAddon
		p.Plan = ""
		p.Period = ""
		p.ImageCredits = image
		p.VideoAudioCredits = video
		p.Amount = decimal.RequireFromString(amount)
		p.Metadata = model.PaymentMetadata{AddonID: addonID}
	}
}

// WithProvider 设置支付渠道
func WithProvider(provider string) func(*model.PaymentRecord) {
	return func(p *model.PaymentRecord) {
		p.Provider = provider
	}
}

// WithMetadata 设置计价元数据
func WithMetadata(meta model.PaymentMetadata) func(*model.PaymentRecord) {
	return func(p *model.PaymentRecord) {
		p.Metadata = meta
	}
}

// WithStatus 设置支付状态
func WithStatus(status string) func(*model.PaymentRecord) {
	return func(p *model.PaymentRecord) {
		p.Status = status
	}
}
