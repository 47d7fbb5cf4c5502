package service

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/model/dto"
	"github.com/qs3c/quota_ledger/internal/pkg/plan"
	"github.com/qs3c/quota_ledger/internal/repository"
)

type QuotaService struct {
	accounts repository.AccountStore
	catalog  *plan.Catalog
	now      Clock
}

func NewQuotaService(stores *repository.Stores, catalog *plan.Catalog) *QuotaService {
	return &QuotaService{
		accounts: stores.Accounts,
		catalog:  catalog,
		now:      time.Now,
	}
}

// SetClock 替换时间源
func (s *QuotaService) SetClock(now Clock) {
	s.now = now
}

// GetEntitlement 获取账户当前套餐、额度与排队中的变更。
// 账户不存在时按免费版返回，但不写入存储。
func (s *QuotaService) GetEntitlement(ctx context.Context, accountID int64) (*dto.Entitlement, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		account = &model.Account{ID: accountID, Plan: string(plan.Free)}
	} else if err != nil {
		return nil, err
	}

	tier, err := plan.ParseTier(account.Plan)
	if err != nil {
		tier = plan.Free
	}
	allowance := s.catalog.Allowance(tier)

	now := s.now()
	info := &dto.Entitlement{
		AccountID:           account.ID,
		Plan:                account.Plan,
		Pro:                 account.Pro,
		Active:              account.IsActive(now),
		BillingAnchorDay:    account.BillingAnchorDay,
		MonthlyImageLimit:   allowance.Image,
		MonthlyVideoLimit:   allowance.Video,
		MonthlyImageBalance: account.MonthlyImageBalance,
		MonthlyVideoBalance: account.MonthlyVideoBalance,
		AddonImageBalance:   account.AddonImageBalance,
		AddonVideoBalance:   account.AddonVideoBalance,
		TotalImageBalance:   account.MonthlyImageBalance + account.AddonImageBalance,
		TotalVideoBalance:   account.MonthlyVideoBalance + account.AddonVideoBalance,
		PendingDowngrades: lo.Map(account.PendingDowngrades, func(e model.PendingDowngrade, _ int) dto.PendingChange {
			return dto.PendingChange{
				Plan:        e.TargetPlan,
				Period:      e.Period,
				EffectiveAt: e.EffectiveAt.Format(time.RFC3339),
				ExpiresAt:   e.ExpiresAt.Format(time.RFC3339),
			}
		}),
	}

	if account.ContractExpiresAt != nil {
		info.ContractExpiresAt = account.ContractExpiresAt.Format(time.RFC3339)
	}
	if account.MonthlyResetAt != nil {
		info.MonthlyResetAt = account.MonthlyResetAt.Format(time.RFC3339)
	}

	return info, nil
}
