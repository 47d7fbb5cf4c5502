package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/pkg/metrics"
	"github.com/qs3c/quota_ledger/internal/pkg/plan"
	"github.com/qs3c/quota_ledger/internal/pkg/queue"
	"github.com/qs3c/quota_ledger/internal/repository"
)

// IngestionResult 一次入账的结果
type IngestionResult struct {
	EventID  string
	Decision Decision
	// Duplicate 事件已处理过
	Duplicate bool
	// AlreadyCompleted 订单已完成（去重记录丢失时的第二道防线）
	AlreadyCompleted bool
	Account          *model.Account
}

// IngestionService 支付确认事件的幂等入账入口，与支付渠道无关
type IngestionService struct {
	payments  repository.PaymentStore
	events    repository.WebhookEventStore
	ledger    *LedgerService
	retry     *queue.Queue
	tolerance decimal.Decimal
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
	now       Clock
}

func NewIngestionService(
	stores *repository.Stores,
	ledger *LedgerService,
	billing config.BillingConfig,
	m *metrics.Metrics,
	retry *queue.Queue,
	logger logrus.FieldLogger,
) *IngestionService {
	tolerance, err := decimal.NewFromString(billing.AmountTolerance)
	if err != nil || tolerance.IsNegative() {
		tolerance = decimal.RequireFromString("0.01")
	}

	return &IngestionService{
		payments:  stores.Payments,
		events:    stores.Events,
		ledger:    ledger,
		retry:     retry,
		tolerance: tolerance,
		metrics:   m,
		log:       logger,
		now:       time.Now,
	}
}

// SetClock 替换时间源
func (s *IngestionService) SetClock(now Clock) {
	s.now = now
}

func validProvider(provider string) bool {
	return provider == model.ProviderWechat || provider == model.ProviderAlipay
}

// ApplyConfirmedPayment 入账步骤：去重 -> 查订单 -> 核对金额 -> 已完成检查 -> 变更账户 -> 标记完成。
// 标记完成前的任何失败都可以用同一事件安全重试。
func (s *IngestionService) ApplyConfirmedPayment(ctx context.Context, ev model.ConfirmedPayment) (*IngestionResult, error) {
	if !validProvider(ev.Provider) {
		s.metrics.EventRejected(ev.Provider, "unknown_provider")
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, ev.Provider)
	}

	eventID := ev.EventID()
	logger := s.log.WithFields(logrus.Fields{
		"event_id": eventID,
		"order_id": ev.ProviderOrderID,
		"provider": ev.Provider,
	})
	result := &IngestionResult{EventID: eventID}

	// 1. 去重
	existing, err := s.events.Get(ctx, eventID)
	if err == nil && existing.Processed {
		logger.Info("event already processed")
		result.Duplicate = true
		return result, nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load webhook event: %w", err)
	}

	// 2. 订单必须存在
	payment, err := s.payments.GetByProviderOrderID(ctx, ev.ProviderOrderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, s.reject(logger, ev, "payment_not_found", fmt.Errorf("%w: %s", ErrPaymentNotFound, ev.ProviderOrderID))
	}
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}

	// 3. 金额核对
	if err := s.checkAmount(ev, payment); err != nil {
		return nil, s.reject(logger, ev, "amount_mismatch", err)
	}

	// 4. 订单已完成
	if payment.Status == model.PaymentCompleted {
		logger.Info("payment already completed")
		result.AlreadyCompleted = true
		if err := s.markProcessed(ctx, ev); err != nil {
			logger.WithError(err).Warn("failed to mark webhook event processed")
		}
		return result, nil
	}

	// 5. 变更账户
	account, decision, err := s.apply(ctx, payment)
	if err != nil {
		if errors.Is(err, ErrDecisionMismatch) || errors.Is(err, ErrNoActiveContract) {
			// 已收款但报价失效，订单保持待支付，人工退款
			return nil, s.reject(logger, ev, "quote_stale", err)
		}
		if IsIntegrityError(err) {
			return nil, s.reject(logger, ev, "invalid_order", err)
		}
		return nil, fmt.Errorf("apply payment: %w", err)
	}
	result.Account = account
	result.Decision = decision

	// 6. 标记完成
	now := s.now()
	if err := s.payments.MarkCompleted(ctx, payment.ProviderOrderID, now); err != nil {
		logger.WithError(err).Error("ledger updated but failed to mark payment completed")
		return nil, fmt.Errorf("mark payment completed: %w", err)
	}
	if err := s.markProcessed(ctx, ev); err != nil {
		logger.WithError(err).Error("ledger updated but failed to mark webhook event processed")
		return nil, fmt.Errorf("mark event processed: %w", err)
	}

	label := decision.String()
	if decision == 0 {
		label = "replay"
	}
	s.metrics.EventApplied(ev.Provider, label)
	logger.WithFields(logrus.Fields{
		"account_id": payment.AccountID,
		"decision":   label,
	}).Info("confirmed payment applied")

	return result, nil
}

func (s *IngestionService) apply(ctx context.Context, payment *model.PaymentRecord) (*model.Account, Decision, error) {
	switch payment.ProductType {
	case model.ProductAddon:
		account, err := s.ledger.AddAddonCredits(ctx, payment.AccountID,
			payment.ImageCredits, payment.VideoAudioCredits, payment.ProviderOrderID)
		return account, DecisionAddon, err

	case model.ProductSubscription:
		tier, err := plan.ParseTier(payment.Plan)
		if err != nil {
			return nil, 0, err
		}
		period, err := plan.ParsePeriod(payment.Period)
		if err != nil {
			return nil, 0, err
		}
		return s.ledger.ApplySubscription(ctx, Purchase{
			AccountID:       payment.AccountID,
			Plan:            tier,
			Period:          period,
			Provider:        payment.Provider,
			ProviderOrderID: payment.ProviderOrderID,
			GrantedDays:     payment.Metadata.Days,
			FreeUpgrade:     payment.Metadata.IsFreeUpgrade,
			QuotedUpgrade:   payment.Metadata.IsUpgrade,
		})

	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownProduct, payment.ProductType)
	}
}

func (s *IngestionService) checkAmount(ev model.ConfirmedPayment, payment *model.PaymentRecord) error {
	if ev.Currency != "" && !strings.EqualFold(ev.Currency, payment.Currency) {
		return fmt.Errorf("%w: currency %s, order %s", ErrAmountMismatch, ev.Currency, payment.Currency)
	}
	if ev.SettledAmount.Sub(payment.Amount).Abs().GreaterThan(s.tolerance) {
		return fmt.Errorf("%w: settled %s, order %s", ErrAmountMismatch,
			ev.SettledAmount.StringFixed(2), payment.Amount.StringFixed(2))
	}
	return nil
}

func (s *IngestionService) markProcessed(ctx context.Context, ev model.ConfirmedPayment) error {
	return s.events.MarkProcessed(ctx, &model.WebhookEvent{
		ID:              ev.EventID(),
		Provider:        ev.Provider,
		ProviderOrderID: ev.ProviderOrderID,
	}, s.now())
}

func (s *IngestionService) reject(logger logrus.FieldLogger, ev model.ConfirmedPayment, reason string, err error) error {
	s.metrics.EventRejected(ev.Provider, reason)
	logger.WithError(err).WithField("reason", reason).Warn("confirmed payment rejected")
	return err
}

// Defer 将暂时失败的事件放入重试队列，未配置队列时返回 false
func (s *IngestionService) Defer(ctx context.Context, ev model.ConfirmedPayment, cause error) bool {
	if s.retry == nil {
		return false
	}

	msg := &queue.RetryMessage{
		Event:      ev,
		Attempts:   1,
		EnqueuedAt: s.now(),
	}
	if cause != nil {
		msg.LastError = cause.Error()
	}

	if err := s.retry.Push(ctx, msg); err != nil {
		s.log.WithError(err).WithField("event_id", ev.EventID()).Error("failed to push retry message")
		return false
	}
	s.metrics.EventRetried(ev.Provider)
	return true
}
