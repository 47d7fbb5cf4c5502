package service

import (
	"errors"
	"time"

	"github.com/qs3c/quota_ledger/internal/pkg/plan"
)

var (
	ErrPaymentNotFound  = errors.New("支付记录不存在")
	ErrAmountMismatch   = errors.New("支付金额与订单不一致")
	ErrUnknownProduct   = errors.New("未知商品类型")
	ErrUnknownProvider  = errors.New("未知支付渠道")
	ErrFreePlanPurchase = errors.New("免费版不可购买")
	ErrInvalidAnchorDay = errors.New("账单锚定日超出范围")
	ErrQueueCorrupted   = errors.New("降级队列数据异常")
	ErrNotLapsed        = errors.New("合同未到期或仍有排队降级")
	ErrContractActive   = errors.New("合同仍在有效期内")
	ErrNoActiveContract = errors.New("没有生效中的合同")
	ErrDecisionMismatch = errors.New("购买套餐与当前套餐关系不符")

	ErrUnknownPlan   = plan.ErrUnknownTier
	ErrInvalidPeriod = plan.ErrUnknownPeriod
)

// IsIntegrityError 数据完整性错误：拒绝入账且重试无意义
func IsIntegrityError(err error) bool {
	for _, target := range []error{
		ErrPaymentNotFound,
		ErrAmountMismatch,
		ErrUnknownProduct,
		ErrUnknownProvider,
		ErrFreePlanPurchase,
		ErrInvalidAnchorDay,
		ErrQueueCorrupted,
		ErrContractActive,
		ErrNoActiveContract,
		ErrDecisionMismatch,
		ErrUnknownPlan,
		ErrInvalidPeriod,
		plan.ErrNoPrice,
		plan.ErrUnknownAddon,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Clock 当前时间，测试中替换为固定时间
type Clock func() time.Time
