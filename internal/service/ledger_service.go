package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/pkg/calendar"
	"github.com/qs3c/quota_ledger/internal/pkg/plan"
	"github.com/qs3c/quota_ledger/internal/pkg/pubsub"
	"github.com/qs3c/quota_ledger/internal/repository"
)

// Purchase 一笔已付款的订阅购买
type Purchase struct {
	AccountID       int64
	Plan            plan.Tier
	Period          plan.Period
	Provider        string
	ProviderOrderID string
	// GrantedDays 免费升级时由剩余价值折算的天数
	GrantedDays int
	FreeUpgrade bool
	// QuotedUpgrade 订单按升级差价计价，只能以升级入账
	QuotedUpgrade bool
}

// SweepOutcome 对账扫描对单个账户的处理结果
type SweepOutcome int

const (
	SweepSkipped SweepOutcome = iota
	SweepApplied
	SweepDemoted
)

func (o SweepOutcome) String() string {
	switch o {
	case SweepApplied:
		return "applied"
	case SweepDemoted:
		return "demoted"
	default:
		return "skipped"
	}
}

// LedgerService 账户账本。所有变更都是针对单个账户的一次原子读-改-写，
// 订阅历史镜像在账户写入成功后同步。
type LedgerService struct {
	accounts repository.AccountStore
	subs     repository.SubscriptionStore
	catalog  *plan.Catalog
	notifier ChangeNotifier
	log      logrus.FieldLogger
	now      Clock
}

// ChangeNotifier 账户变更通知，投递失败只记录日志
type ChangeNotifier interface {
	PublishChange(ctx context.Context, msg *pubsub.ChangeMessage) error
}

func NewLedgerService(stores *repository.Stores, catalog *plan.Catalog, logger logrus.FieldLogger) *LedgerService {
	return &LedgerService{
		accounts: stores.Accounts,
		subs:     stores.Subscriptions,
		catalog:  catalog,
		log:      logger,
		now:      time.Now,
	}
}

// SetClock 替换时间源
func (s *LedgerService) SetClock(now Clock) {
	s.now = now
}

// SetNotifier 设置变更通知，nil 表示不通知
func (s *LedgerService) SetNotifier(n ChangeNotifier) {
	s.notifier = n
}

// SeedNewOrLapsedPurchase 新购或合同已过期后重新购买
func (s *LedgerService) SeedNewOrLapsedPurchase(ctx context.Context, p Purchase) (*model.Account, error) {
	account, _, err := s.applyPurchase(ctx, p, DecisionSeed)
	return account, err
}

// RenewSamePlan 同套餐续费，从当前到期时间顺延
func (s *LedgerService) RenewSamePlan(ctx context.Context, p Purchase) (*model.Account, error) {
	account, _, err := s.applyPurchase(ctx, p, DecisionRenew)
	return account, err
}

// ApplyUpgrade 立即升级
func (s *LedgerService) ApplyUpgrade(ctx context.Context, p Purchase) (*model.Account, error) {
	account, _, err := s.applyPurchase(ctx, p, DecisionUpgrade)
	return account, err
}

// EnqueueDowngrade 降级排队，当前合同到期后生效
func (s *LedgerService) EnqueueDowngrade(ctx context.Context, p Purchase) (*model.Account, error) {
	account, _, err := s.applyPurchase(ctx, p, DecisionDowngrade)
	return account, err
}

// ApplySubscription 在同一次读-改-写中判定变更类型并执行。
// 订单已入账时返回当前账户且 Decision 为 0。
// 按升级计价的订单在入账时若已不是升级（已续费到同级或合同已过期），返回 ErrDecisionMismatch 或 ErrNoActiveContract。
func (s *LedgerService) ApplySubscription(ctx context.Context, p Purchase) (*model.Account, Decision, error) {
	var want Decision
	if p.QuotedUpgrade {
		want = DecisionUpgrade
	}
	return s.applyPurchase(ctx, p, want)
}

func (s *LedgerService) applyPurchase(ctx context.Context, p Purchase, want Decision) (*model.Account, Decision, error) {
	if p.Plan.IsFree() {
		return nil, 0, ErrFreePlanPurchase
	}
	if _, err := plan.ParseTier(string(p.Plan)); err != nil {
		return nil, 0, err
	}
	if p.Period != plan.Monthly && p.Period != plan.Annual {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, p.Period)
	}

	now := s.now()
	var (
		decision  Decision
		startedAt time.Time
	)

	account, err := s.accounts.Update(ctx, p.AccountID, func(a *model.Account) error {
		ensureSeeded(a)
		if a.HasApplied(p.ProviderOrderID) {
			return repository.ErrNoChange
		}

		decision = Decide(a, p.Plan, now)
		if want != 0 && want != decision {
			return decisionError(want, decision)
		}

		startedAt = now
		var err error
		switch decision {
		case DecisionSeed:
			err = s.seed(a, p, now)
		case DecisionRenew:
			startedAt = *a.ContractExpiresAt
			err = s.renew(a, p, now)
		case DecisionUpgrade:
			err = s.upgrade(a, p, now)
		case DecisionDowngrade:
			err = s.enqueue(a, p, now)
		default:
			err = fmt.Errorf("unexpected decision %s", decision)
		}
		if err != nil {
			return err
		}

		a.MarkApplied(p.ProviderOrderID)
		return nil
	})
	if errors.Is(err, repository.ErrNoChange) {
		s.log.WithFields(logrus.Fields{
			"account_id": p.AccountID,
			"order_id":   p.ProviderOrderID,
		}).Info("order already applied, skipping")
		return account, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	s.mirrorPurchase(ctx, account, p, decision, startedAt)
	s.notify(ctx, account, decision.String(), p.ProviderOrderID)

	s.log.WithFields(logrus.Fields{
		"account_id": account.ID,
		"plan":       account.Plan,
		"decision":   decision.String(),
		"expires_at": account.ContractExpiresAt,
		"pending":    len(account.PendingDowngrades),
	}).Info("subscription applied")

	return account, decision, nil
}

func decisionError(want, got Decision) error {
	switch {
	case want == DecisionSeed:
		return ErrContractActive
	case got == DecisionSeed:
		return ErrNoActiveContract
	default:
		return fmt.Errorf("%w: want %s, got %s", ErrDecisionMismatch, want, got)
	}
}

// ensureSeeded 新账户以免费版、零额度建档
func ensureSeeded(a *model.Account) {
	if a.IsNew() {
		a.Plan = string(plan.Free)
		a.Pro = false
	}
}

func isProTier(t plan.Tier) bool {
	return t.Rank() > plan.Basic.Rank()
}

// reseed 按套餐重置月度额度
func (s *LedgerService) reseed(a *model.Account, tier plan.Tier, now time.Time) {
	allowance := s.catalog.Allowance(tier)
	a.MonthlyImageBalance = allowance.Image
	a.MonthlyVideoBalance = allowance.Video
	a.MonthlyResetAt = &now
}

func (s *LedgerService) seed(a *model.Account, p Purchase, now time.Time) error {
	anchor := calendar.AnchorDay(now)
	expires := calendar.AddCalendarMonths(now, p.Period.Months(), anchor)

	a.Plan = string(p.Plan)
	a.Pro = isProTier(p.Plan)
	a.BillingAnchorDay = anchor
	a.ContractExpiresAt = &expires
	a.PendingDowngrades = nil
	s.reseed(a, p.Plan, now)
	return nil
}

func (s *LedgerService) renew(a *model.Account, p Purchase, now time.Time) error {
	if !calendar.ValidAnchorDay(a.BillingAnchorDay) {
		return fmt.Errorf("%w: %d", ErrInvalidAnchorDay, a.BillingAnchorDay)
	}

	expires := calendar.AddCalendarMonths(*a.ContractExpiresAt, p.Period.Months(), a.BillingAnchorDay)
	queue, err := Relinearize(a.PendingDowngrades, expires, a.BillingAnchorDay)
	if err != nil {
		return err
	}

	a.ContractExpiresAt = &expires
	a.PendingDowngrades = queue
	// 续费不重置额度，只刷新时间戳
	a.MonthlyResetAt = &now
	return nil
}

func (s *LedgerService) upgrade(a *model.Account, p Purchase, now time.Time) error {
	anchor := calendar.AnchorDay(now)

	var expires time.Time
	if p.FreeUpgrade && p.GrantedDays > 0 {
		// 锚定日仍取升级当天，首次续费会对齐回锚定日
		expires = calendar.AddDays(now, p.GrantedDays)
	} else {
		expires = calendar.AddCalendarMonths(now, p.Period.Months(), anchor)
	}

	// 等级不高于目标套餐的排队降级被本次升级取代
	kept := lo.Filter(a.PendingDowngrades, func(e model.PendingDowngrade, _ int) bool {
		tier, err := plan.ParseTier(e.TargetPlan)
		return err == nil && tier.Rank() > p.Plan.Rank()
	})
	queue, err := Relinearize(kept, expires, anchor)
	if err != nil {
		return err
	}

	a.Plan = string(p.Plan)
	a.Pro = isProTier(p.Plan)
	a.BillingAnchorDay = anchor
	a.ContractExpiresAt = &expires
	a.PendingDowngrades = queue
	s.reseed(a, p.Plan, now)
	return nil
}

func (s *LedgerService) enqueue(a *model.Account, p Purchase, now time.Time) error {
	entry := model.PendingDowngrade{
		TargetPlan:      string(p.Plan),
		Period:          string(p.Period),
		Provider:        p.Provider,
		ProviderOrderID: p.ProviderOrderID,
		PurchasedAt:     now,
	}

	entries := append(append([]model.PendingDowngrade{}, a.PendingDowngrades...), entry)
	queue, err := Relinearize(entries, *a.ContractExpiresAt, a.BillingAnchorDay)
	if err != nil {
		return err
	}

	a.PendingDowngrades = queue
	return nil
}

// AddAddonCredits 增加加油包额度，与套餐状态无关
func (s *LedgerService) AddAddonCredits(ctx context.Context, accountID int64, imageCredits, videoAudioCredits int, providerOrderID string) (*model.Account, error) {
	if imageCredits < 0 || videoAudioCredits < 0 {
		return nil, fmt.Errorf("%w: negative addon credits", ErrUnknownProduct)
	}

	account, err := s.accounts.Update(ctx, accountID, func(a *model.Account) error {
		ensureSeeded(a)
		if a.HasApplied(providerOrderID) {
			return repository.ErrNoChange
		}

		a.AddonImageBalance += imageCredits
		a.AddonVideoBalance += videoAudioCredits
		a.MarkApplied(providerOrderID)
		return nil
	})
	if errors.Is(err, repository.ErrNoChange) {
		return account, nil
	}
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"account_id": account.ID,
		"plan":       account.Plan,
		"decision":   DecisionAddon.String(),
		"image":      imageCredits,
		"video":      videoAudioCredits,
	}).Info("addon credits added")
	s.notify(ctx, account, DecisionAddon.String(), providerOrderID)

	return account, nil
}

// DemoteToFreeIfLapsed 合同已过期且没有排队降级时降为免费版
func (s *LedgerService) DemoteToFreeIfLapsed(ctx context.Context, accountID int64) (*model.Account, error) {
	now := s.now()

	demoted := false
	account, err := s.accounts.Update(ctx, accountID, func(a *model.Account) error {
		demoted = false
		if a.IsNew() {
			ensureSeeded(a)
			return nil
		}
		if a.IsActive(now) || len(a.PendingDowngrades) > 0 {
			return ErrNotLapsed
		}
		if a.Plan == string(plan.Free) && a.ContractExpiresAt == nil {
			return repository.ErrNoChange
		}

		s.demote(a, now)
		demoted = true
		return nil
	})
	if errors.Is(err, repository.ErrNoChange) {
		return account, nil
	}
	if err != nil {
		return nil, err
	}

	if demoted {
		s.mirrorDemotion(ctx, account, now)
		s.notify(ctx, account, SweepDemoted.String(), "")
	}
	return account, nil
}

func (s *LedgerService) demote(a *model.Account, now time.Time) {
	a.Plan = string(plan.Free)
	a.Pro = false
	a.ContractExpiresAt = nil
	s.reseed(a, plan.Free, now)
}

// AdvanceQueue 对账扫描的单账户处理：合同过期时依次生效已到期的排队降级，
// 队列为空则降为免费版。
func (s *LedgerService) AdvanceQueue(ctx context.Context, accountID int64, now time.Time) (SweepOutcome, error) {
	var (
		outcome SweepOutcome
		applied []model.PendingDowngrade
	)

	account, err := s.accounts.Update(ctx, accountID, func(a *model.Account) error {
		outcome = SweepSkipped
		applied = nil

		if a.IsNew() || a.IsActive(now) {
			return repository.ErrNoChange
		}

		if len(a.PendingDowngrades) == 0 {
			if a.Plan == string(plan.Free) && a.ContractExpiresAt == nil {
				return repository.ErrNoChange
			}
			s.demote(a, now)
			outcome = SweepDemoted
			return nil
		}

		start := a.PendingDowngrades[0].EffectiveAt
		if a.ContractExpiresAt != nil {
			start = *a.ContractExpiresAt
		}
		queue, err := Relinearize(a.PendingDowngrades, start, a.BillingAnchorDay)
		if err != nil {
			return err
		}

		for len(queue) > 0 && !queue[0].EffectiveAt.After(now) && !a.IsActive(now) {
			head := queue[0]
			tier, _ := plan.ParseTier(head.TargetPlan)
			expires := head.ExpiresAt

			a.Plan = string(tier)
			a.Pro = isProTier(tier)
			a.ContractExpiresAt = &expires
			s.reseed(a, tier, now)
			applied = append(applied, head)

			queue, err = Relinearize(queue[1:], expires, a.BillingAnchorDay)
			if err != nil {
				return err
			}
		}
		if len(applied) == 0 {
			return repository.ErrNoChange
		}

		a.PendingDowngrades = queue
		outcome = SweepApplied
		return nil
	})
	if errors.Is(err, repository.ErrNoChange) {
		return SweepSkipped, nil
	}
	if err != nil {
		return SweepSkipped, err
	}

	switch outcome {
	case SweepApplied:
		for _, head := range applied {
			s.setActive(ctx, &model.SubscriptionRecord{
				AccountID:       account.ID,
				Plan:            head.TargetPlan,
				Period:          head.Period,
				Provider:        head.Provider,
				ProviderOrderID: head.ProviderOrderID,
				StartedAt:       head.EffectiveAt,
				ExpiresAt:       head.ExpiresAt,
			})
		}
		s.replacePending(ctx, account)
	case SweepDemoted:
		s.mirrorDemotion(ctx, account, now)
	}
	s.notify(ctx, account, outcome.String(), "")

	s.log.WithFields(logrus.Fields{
		"account_id": account.ID,
		"plan":       account.Plan,
		"decision":   outcome.String(),
		"applied":    len(applied),
	}).Info("reconcile account")

	return outcome, nil
}

func (s *LedgerService) mirrorPurchase(ctx context.Context, account *model.Account, p Purchase, decision Decision, startedAt time.Time) {
	switch decision {
	case DecisionSeed, DecisionRenew, DecisionUpgrade:
		s.setActive(ctx, &model.SubscriptionRecord{
			AccountID:       account.ID,
			Plan:            string(p.Plan),
			Period:          string(p.Period),
			Provider:        p.Provider,
			ProviderOrderID: p.ProviderOrderID,
			StartedAt:       startedAt,
			ExpiresAt:       *account.ContractExpiresAt,
		})
	}
	s.replacePending(ctx, account)
}

func (s *LedgerService) notify(ctx context.Context, account *model.Account, change, orderID string) {
	if s.notifier == nil {
		return
	}

	msg := &pubsub.ChangeMessage{
		AccountID:         account.ID,
		Change:            change,
		Plan:              account.Plan,
		Pro:               account.Pro,
		ContractExpiresAt: account.ContractExpiresAt,
		OrderID:           orderID,
		OccurredAt:        s.now(),
	}
	if err := s.notifier.PublishChange(ctx, msg); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"account_id": account.ID,
			"change":     change,
		}).Warn("failed to publish ledger change")
	}
}

func (s *LedgerService) mirrorDemotion(ctx context.Context, account *model.Account, now time.Time) {
	if err := s.subs.ExpireActive(ctx, account.ID, now); err != nil {
		s.log.WithError(err).WithField("account_id", account.ID).Warn("failed to expire subscription records")
	}
}

func (s *LedgerService) setActive(ctx context.Context, record *model.SubscriptionRecord) {
	if err := s.subs.SetActive(ctx, record); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"account_id": record.AccountID,
			"order_id":   record.ProviderOrderID,
		}).Warn("failed to mirror active subscription")
	}
}

func (s *LedgerService) replacePending(ctx context.Context, account *model.Account) {
	records := lo.Map(account.PendingDowngrades, func(e model.PendingDowngrade, _ int) model.SubscriptionRecord {
		return model.SubscriptionRecord{
			AccountID:       account.ID,
			Plan:            e.TargetPlan,
			Period:          e.Period,
			Provider:        e.Provider,
			ProviderOrderID: e.ProviderOrderID,
			StartedAt:       e.EffectiveAt,
			ExpiresAt:       e.ExpiresAt,
		}
	})
	if err := s.subs.ReplacePending(ctx, account.ID, records); err != nil {
		s.log.WithError(err).WithField("account_id", account.ID).Warn("failed to mirror pending downgrades")
	}
}
