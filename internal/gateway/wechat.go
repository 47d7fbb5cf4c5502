package gateway

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/auth/validators"
	"github.com/wechatpay-apiv3/wechatpay-go/core/auth/verifiers"
	"github.com/wechatpay-apiv3/wechatpay-go/core/notify"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments"
	"github.com/wechatpay-apiv3/wechatpay-go/utils"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/model"
)

const (
	wechatEventSuccess = "TRANSACTION.SUCCESS"
	wechatTradeSuccess = "SUCCESS"
)

// Wechat 微信支付 APIv3 回调验签与解密
type Wechat struct {
	apiV3Key  string
	validator *validators.WechatPayNotifyValidator
}

func NewWechat(cfg config.WechatConfig) (*Wechat, error) {
	if len(cfg.APIv3Key) != 32 {
		return nil, fmt.Errorf("%w: wechat api v3 key must be 32 bytes", ErrNotConfigured)
	}
	if strings.TrimSpace(cfg.PlatformCertificate) == "" {
		return nil, fmt.Errorf("%w: wechat platform certificate is empty", ErrNotConfigured)
	}

	cert, err := utils.LoadCertificate(cfg.PlatformCertificate)
	if err != nil {
		return nil, fmt.Errorf("wechat platform certificate: %w", err)
	}
	certs := core.NewCertificateMapWithList([]*x509.Certificate{cert})

	return &Wechat{
		apiV3Key:  cfg.APIv3Key,
		validator: validators.NewWechatPayNotifyValidator(verifiers.NewSHA256WithRSAVerifier(certs)),
	}, nil
}

// Parse 验签并解密回调。非支付成功的通知返回 nil, nil，调用方直接应答即可。
func (w *Wechat) Parse(ctx context.Context, req *http.Request) (*model.ConfirmedPayment, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrMalformed, err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	// 校验 Wechatpay-Serial/Signature/Timestamp/Nonce，时间戳偏差超过 5 分钟视为无效
	if err := w.validator.Validate(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var n notify.Request
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if n.EventType != wechatEventSuccess {
		return nil, nil
	}
	if n.Resource == nil {
		return nil, fmt.Errorf("%w: missing resource", ErrMalformed)
	}

	plain, err := utils.DecryptAES256GCM(w.apiV3Key, n.Resource.AssociatedData, n.Resource.Nonce, n.Resource.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt resource: %v", ErrMalformed, err)
	}

	var tx payments.Transaction
	if err := json.Unmarshal([]byte(plain), &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if lo.FromPtr(tx.TradeState) != wechatTradeSuccess {
		return nil, nil
	}

	orderID := lo.FromPtr(tx.OutTradeNo)
	transactionID := lo.FromPtr(tx.TransactionId)
	if orderID == "" || transactionID == "" {
		return nil, fmt.Errorf("%w: missing order or transaction id", ErrMalformed)
	}
	if tx.Amount == nil || tx.Amount.Total == nil {
		return nil, fmt.Errorf("%w: missing amount", ErrMalformed)
	}

	currency := lo.FromPtr(tx.Amount.Currency)
	if currency == "" {
		currency = "CNY"
	}

	return &model.ConfirmedPayment{
		Provider:              model.ProviderWechat,
		ProviderTransactionID: transactionID,
		ProviderOrderID:       orderID,
		// 金额单位为分
		SettledAmount: decimal.NewFromInt(*tx.Amount.Total).Shift(-2),
		Currency:      currency,
	}, nil
}
