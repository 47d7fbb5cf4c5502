package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/pkg/calendar"
	"github.com/qs3c/quota_ledger/internal/pkg/plan"
)

// Relinearize 重新排列降级队列：按套餐等级降序、同级按购买时间升序，
// 首项从 start（当前合同到期时间）开始，后续每项接在前一项之后。
// 入参不会被修改。
func Relinearize(entries []model.PendingDowngrade, start time.Time, anchorDay int) ([]model.PendingDowngrade, error) {
	if !calendar.ValidAnchorDay(anchorDay) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAnchorDay, anchorDay)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	out := make([]model.PendingDowngrade, len(entries))
	copy(out, entries)

	tiers := make(map[string]plan.Tier, len(out))
	for _, e := range out {
		tier, err := plan.ParseTier(e.TargetPlan)
		if err != nil || tier.IsFree() {
			return nil, fmt.Errorf("%w: target plan %q", ErrQueueCorrupted, e.TargetPlan)
		}
		if _, err := plan.ParsePeriod(e.Period); err != nil {
			return nil, fmt.Errorf("%w: period %q", ErrQueueCorrupted, e.Period)
		}
		tiers[e.TargetPlan] = tier
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := tiers[out[i].TargetPlan].Rank(), tiers[out[j].TargetPlan].Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].PurchasedAt.Before(out[j].PurchasedAt)
	})

	effective := start
	for i := range out {
		period, _ := plan.ParsePeriod(out[i].Period)
		out[i].TargetPlan = string(tiers[out[i].TargetPlan])
		out[i].Period = string(period)
		out[i].EffectiveAt = effective
		out[i].ExpiresAt = calendar.AddCalendarMonths(effective, period.Months(), anchorDay)
		effective = out[i].ExpiresAt
	}

	return out, nil
}

// CheckQueue 校验队列有序且区间首尾相接
func CheckQueue(entries []model.PendingDowngrade, start time.Time) error {
	prevRank := -1
	var prevPurchased time.Time
	effective := start

	for i, e := range entries {
		tier, err := plan.ParseTier(e.TargetPlan)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrQueueCorrupted, i, err)
		}
		if i > 0 {
			if tier.Rank() > prevRank || (tier.Rank() == prevRank && e.PurchasedAt.Before(prevPurchased)) {
				return fmt.Errorf("%w: entry %d out of order", ErrQueueCorrupted, i)
			}
		}
		if !e.EffectiveAt.Equal(effective) {
			return fmt.Errorf("%w: entry %d not contiguous", ErrQueueCorrupted, i)
		}
		if !e.ExpiresAt.After(e.EffectiveAt) {
			return fmt.Errorf("%w: entry %d has empty interval", ErrQueueCorrupted, i)
		}

		prevRank = tier.Rank()
		prevPurchased = e.PurchasedAt
		effective = e.ExpiresAt
	}
	return nil
}
