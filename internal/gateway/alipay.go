package gateway

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smartwalle/alipay/v3"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/model"
)

// Alipay 支付宝异步通知验签（RSA2，公钥模式）
type Alipay struct {
	client *alipay.Client
}

func NewAlipay(cfg config.AlipayConfig) (*Alipay, error) {
	if strings.TrimSpace(cfg.AppPrivateKey) == "" || strings.TrimSpace(cfg.PublicKey) == "" {
		return nil, fmt.Errorf("%w: alipay keys are empty", ErrNotConfigured)
	}

	client, err := alipay.New(cfg.AppID, cfg.AppPrivateKey, cfg.Production)
	if err != nil {
		return nil, fmt.Errorf("alipay client: %w", err)
	}
	if err := client.LoadAliPayPublicKey(cfg.PublicKey); err != nil {
		return nil, fmt.Errorf("alipay public key: %w", err)
	}
	return &Alipay{client: client}, nil
}

// Parse 验签并解析异步通知。只有 TRADE_SUCCESS / TRADE_FINISHED 视为支付确认，
// 其他状态返回 nil, nil。
func (a *Alipay) Parse(form url.Values) (*model.ConfirmedPayment, error) {
	if form.Get("sign") == "" || form.Get("sign_type") != "RSA2" {
		return nil, fmt.Errorf("%w: missing sign or sign_type is not RSA2", ErrInvalidSignature)
	}
	if err := a.client.VerifySign(form); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch alipay.TradeStatus(form.Get("trade_status")) {
	case alipay.TradeStatusSuccess, alipay.TradeStatusFinished:
	default:
		return nil, nil
	}

	orderID := form.Get("out_trade_no")
	tradeNo := form.Get("trade_no")
	if orderID == "" || tradeNo == "" {
		return nil, fmt.Errorf("%w: missing out_trade_no or trade_no", ErrMalformed)
	}

	amount, err := decimal.NewFromString(form.Get("total_amount"))
	if err != nil {
		return nil, fmt.Errorf("%w: total_amount %q", ErrMalformed, form.Get("total_amount"))
	}

	return &model.ConfirmedPayment{
		Provider:              model.ProviderAlipay,
		ProviderTransactionID: tradeNo,
		ProviderOrderID:       orderID,
		SettledAmount:         amount,
		Currency:              "CNY",
	}, nil
}
