package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/model/dto"
	"github.com/qs3c/quota_ledger/internal/pkg/plan"
	"github.com/qs3c/quota_ledger/internal/repository"
)

// OrderService 询价与下单。订单金额在下单时固化，回调到达时按此核对。
type OrderService struct {
	accounts  repository.AccountStore
	payments  repository.PaymentStore
	catalog   *plan.Catalog
	proration *ProrationService
	currency  string
	log       logrus.FieldLogger
	now       Clock
}

type orderQuote struct {
	resp     *dto.QuoteResponse
	amount   decimal.Decimal
	metadata model.PaymentMetadata
}

func NewOrderService(stores *repository.Stores, catalog *plan.Catalog, proration *ProrationService, billing config.BillingConfig, logger logrus.FieldLogger) *OrderService {
	currency := strings.ToUpper(billing.Currency)
	if currency == "" {
		currency = "CNY"
	}
	return &OrderService{
		accounts:  stores.Accounts,
		payments:  stores.Payments,
		catalog:   catalog,
		proration: proration,
		currency:  currency,
		log:       logger,
		now:       time.Now,
	}
}

// SetClock 替换时间源
func (s *OrderService) SetClock(now Clock) {
	s.now = now
}

// Quote 询价
func (s *OrderService) Quote(ctx context.Context, accountID int64, req *dto.OrderRequest) (*dto.QuoteResponse, error) {
	q, err := s.quote(ctx, accountID, req)
	if err != nil {
		return nil, err
	}
	return q.resp, nil
}

// CreateOrder 生成待支付订单
func (s *OrderService) CreateOrder(ctx context.Context, accountID int64, req *dto.OrderRequest) (*dto.OrderResponse, error) {
	if !validProvider(req.Provider) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}

	q, err := s.quote(ctx, accountID, req)
	if err != nil {
		return nil, err
	}

	payment := &model.PaymentRecord{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Provider:          req.Provider,
		ProviderOrderID:   strings.ReplaceAll(uuid.NewString(), "-", ""),
		Amount:            q.amount,
		Currency:          q.resp.Currency,
		Status:            model.PaymentPending,
		ProductType:       q.resp.ProductType,
		Plan:              q.resp.Plan,
		Period:            q.resp.Period,
		ImageCredits:      q.resp.ImageCredits,
		VideoAudioCredits: q.resp.VideoAudioCredits,
		Metadata:          q.metadata,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"account_id": accountID,
		"order_id":   payment.ProviderOrderID,
		"product":    payment.ProductType,
		"plan":       payment.Plan,
		"amount":     payment.Amount.StringFixed(2),
		"currency":   payment.Currency,
	}).Info("order created")

	return &dto.OrderResponse{
		PaymentID:       payment.ID,
		ProviderOrderID: payment.ProviderOrderID,
		Quote:           q.resp,
	}, nil
}

func (s *OrderService) quote(ctx context.Context, accountID int64, req *dto.OrderRequest) (*orderQuote, error) {
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.currency
	}

	switch req.ProductType {
	case model.ProductAddon:
		return s.quoteAddon(req.AddonID, currency)
	case model.ProductSubscription:
		return s.quoteSubscription(ctx, accountID, req, currency)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, req.ProductType)
	}
}

func (s *OrderService) quoteAddon(addonID, currency string) (*orderQuote, error) {
	addon, err := s.catalog.Addon(addonID)
	if err != nil {
		return nil, err
	}
	price, err := addon.PriceIn(currency)
	if err != nil {
		return nil, err
	}

	return &orderQuote{
		resp: &dto.QuoteResponse{
			ProductType:       model.ProductAddon,
			AddonID:           addon.ID,
			Amount:            price.StringFixed(2),
			Currency:          currency,
			Decision:          DecisionAddon.String(),
			ImageCredits:      addon.ImageCredits,
			VideoAudioCredits: addon.VideoAudioCredits,
		},
		amount:   price,
		metadata: model.PaymentMetadata{AddonID: addon.ID},
	}, nil
}

func (s *OrderService) quoteSubscription(ctx context.Context, accountID int64, req *dto.OrderRequest, currency string) (*orderQuote, error) {
	tier, err := plan.ParseTier(req.Plan)
	if err != nil {
		return nil, err
	}
	if tier.IsFree() {
		return nil, ErrFreePlanPurchase
	}
	period, err := plan.ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	decision := Decide(account, tier, now)

	q := &orderQuote{
		resp: &dto.QuoteResponse{
			ProductType: model.ProductSubscription,
			Plan:        string(tier),
			Period:      string(period),
			Currency:    currency,
			Decision:    decision.String(),
			Days:        period.Days(),
		},
		metadata: model.PaymentMetadata{Days: period.Days()},
	}

	switch decision {
	case DecisionUpgrade:
		current, err := plan.ParseTier(account.Plan)
		if err != nil {
			return nil, err
		}
		up, err := s.proration.PriceUpgrade(current, *account.ContractExpiresAt, tier, period, currency, now)
		if err != nil {
			return nil, err
		}
		q.amount = up.Amount
		q.resp.Days = up.GrantedDays
		q.resp.IsUpgrade = true
		q.resp.IsFreeUpgrade = up.IsFreeUpgrade
		q.metadata = model.PaymentMetadata{
			Days:          up.GrantedDays,
			IsUpgrade:     true,
			IsFreeUpgrade: up.IsFreeUpgrade,
		}
	case DecisionDowngrade:
		q.amount, err = s.proration.PriceDowngrade(tier, period, currency)
	default:
		q.amount, err = s.catalog.PriceOf(tier, period, currency)
	}
	if err != nil {
		return nil, err
	}

	q.resp.Amount = q.amount.StringFixed(2)
	return q, nil
}
