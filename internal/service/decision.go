package service

import (
	"time"

	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/pkg/plan"
)

// Decision 一笔已确认支付对账户产生的变更类型
type Decision int

const (
	DecisionSeed Decision = iota + 1
	DecisionRenew
	DecisionUpgrade
	DecisionDowngrade
	DecisionAddon
)

func (d Decision) String() string {
	switch d {
	case DecisionSeed:
		return "seed"
	case DecisionRenew:
		return "renew"
	case DecisionUpgrade:
		return "upgrade"
	case DecisionDowngrade:
		return "downgrade"
	case DecisionAddon:
		return "addon"
	default:
		return "unknown"
	}
}

// Decide 根据账户当前状态与购买套餐决定订阅变更类型。
// 无生效合同 -> 新购；同级 -> 续费；更高 -> 升级；更低 -> 排队降级。
func Decide(account *model.Account, target plan.Tier, now time.Time) Decision {
	if account == nil || account.IsNew() || !account.IsActive(now) {
		return DecisionSeed
	}

	current := plan.Tier(account.Plan)
	if parsed, err := plan.ParseTier(account.Plan); err == nil {
		current = parsed
	}

	switch {
	case target.Rank() == current.Rank():
		return DecisionRenew
	case target.Rank() > current.Rank():
		return DecisionUpgrade
	default:
		return DecisionDowngrade
	}
}
