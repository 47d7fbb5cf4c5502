package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/pkg/plan"
)

var daysPerMonth = decimal.NewFromInt(plan.DaysPerMonth)

// UpgradeQuote 升级计价结果
type UpgradeQuote struct {
	Amount         decimal.Decimal
	GrantedDays    int
	IsFreeUpgrade  bool
	RemainingDays  int
	RemainingValue decimal.Decimal
	TargetPrice    decimal.Decimal
}

// ProrationService 升级折算。纯计算，相同输入总是得到相同金额，
// 回调到达时据此核对订单金额。
type ProrationService struct {
	catalog    *plan.Catalog
	minPayment decimal.Decimal
}

func NewProrationService(catalog *plan.Catalog, billing config.BillingConfig) *ProrationService {
	minPayment, err := decimal.NewFromString(billing.MinPayment)
	if err != nil || !minPayment.IsPositive() {
		minPayment = decimal.RequireFromString("0.01")
	}
	return &ProrationService{
		catalog:    catalog,
		minPayment: minPayment,
	}
}

// RemainingDays 剩余天数，不足一天按一天计
func RemainingDays(expiresAt, now time.Time) int {
	left := expiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	day := 24 * time.Hour
	return int((left + day - 1) / day)
}

// PriceUpgrade 计算升级价格。
// 剩余价值 = 剩余天数 × 当前套餐月价 / 30；剩余价值不低于目标价格时为免费升级，
// 只收最低支付金额，剩余价值按目标套餐日价折算为天数（向下取整）。
func (s *ProrationService) PriceUpgrade(current plan.Tier, currentExpiresAt time.Time, target plan.Tier, period plan.Period, currency string, now time.Time) (*UpgradeQuote, error) {
	currentMonthly, err := s.catalog.MonthlyPrice(current, currency)
	if err != nil {
		return nil, err
	}
	targetMonthly, err := s.catalog.MonthlyPrice(target, currency)
	if err != nil {
		return nil, err
	}
	targetPrice, err := s.catalog.PriceOf(target, period, currency)
	if err != nil {
		return nil, err
	}

	days := RemainingDays(currentExpiresAt, now)
	// 剩余价值 × 30，避免先除后乘带来的精度损失
	valueTimes30 := currentMonthly.Mul(decimal.NewFromInt(int64(days)))
	remainingValue := valueTimes30.Div(daysPerMonth)

	quote := &UpgradeQuote{
		RemainingDays:  days,
		RemainingValue: remainingValue.Round(2),
		TargetPrice:    targetPrice,
	}

	if remainingValue.GreaterThanOrEqual(targetPrice) {
		quote.IsFreeUpgrade = true
		quote.Amount = s.minPayment
		if targetMonthly.IsPositive() {
			quote.GrantedDays = int(valueTimes30.Div(targetMonthly).Floor().IntPart())
		}
		return quote, nil
	}

	amount := targetPrice.Sub(remainingValue).Round(2)
	if amount.LessThan(s.minPayment) {
		amount = s.minPayment
	}
	quote.Amount = amount
	quote.GrantedDays = period.Days()
	return quote, nil
}

// PriceDowngrade 降级不折算，按目标套餐整期价格收取
func (s *ProrationService) PriceDowngrade(target plan.Tier, period plan.Period, currency string) (decimal.Decimal, error) {
	return s.catalog.PriceOf(target, period, currency)
}

// MinPayment 最低支付金额
func (s *ProrationService) MinPayment() decimal.Decimal {
	return s.minPayment
}
