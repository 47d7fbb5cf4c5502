package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/gateway"
	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/pkg/queue"
	"github.com/qs3c/quota_ledger/internal/testutil"
)

type webhookEnv struct {
	ctx    *testContext
	router *gin.Engine
	keys   *testutil.ChannelKeys
}

func setupWebhook(t *testing.T, retry *queue.Queue, withWechat bool) *webhookEnv {
	t.Helper()

	ctx := setupTestContext(t, retry)
	keys := testutil.NewChannelKeys(t)

	alipay, err := gateway.NewAlipay(config.AlipayConfig{
		AppID:         "2021000000000000",
		AppPrivateKey: keys.AppPrivateKey,
		PublicKey:     keys.PublicKey,
	})
	require.NoError(t, err)

	var wechat *gateway.Wechat
	if withWechat {
		wechat, err = gateway.NewWechat(config.WechatConfig{
			APIv3Key:            testutil.WechatAPIv3Key,
			PlatformCertificate: keys.Certificate,
		})
		require.NoError(t, err)
	}

	h := NewWebhookHandler(ctx.Ingestion, wechat, alipay, ctx.Logger)
	router := gin.New()
	router.POST("/webhooks/wechat", h.Wechat)
	router.POST("/webhooks/alipay", h.Alipay)

	return &webhookEnv{ctx: ctx, router: router, keys: keys}
}

func (e *webhookEnv) postAlipay(t *testing.T, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhooks/alipay", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *webhookEnv) alipayForm(t *testing.T, orderID, tradeNo, amount string) url.Values {
	form := url.Values{}
	form.Set("out_trade_no", orderID)
	form.Set("trade_no", tradeNo)
	form.Set("trade_status", "TRADE_SUCCESS")
	form.Set("total_amount", amount)
	form.Set("app_id", "2021000000000000")
	return e.keys.SignAlipayForm(t, form)
}

func TestWebhookHandler_Alipay_Success(t *testing.T) {
	env := setupWebhook(t, nil, false)

	acc := testutil.TestAccount(t, env.ctx.DB)
	payment := testutil.TestPayment(t, env.ctx.DB, acc.ID,
		testutil.WithProvider(model.ProviderAlipay),
		testutil.WithProduct("Basic", "monthly", "29.90"),
	)

	form := env.alipayForm(t, payment.ProviderOrderID, "2025013122001400001", "29.90")

	w := env.postAlipay(t, form)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", w.Body.String())

	account, err := env.ctx.Stores.Accounts.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Basic", account.Plan)
	assert.Equal(t, 100, account.MonthlyImageBalance)

	// 渠道重复通知仍应答成功，账户不变
	w = env.postAlipay(t, form)
	assert.Equal(t, "success", w.Body.String())

	again, err := env.ctx.Stores.Accounts.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, account.Version, again.Version)
	assert.True(t, account.ContractExpiresAt.Equal(*again.ContractExpiresAt))
}

func TestWebhookHandler_Alipay_BadSignature(t *testing.T) {
	env := setupWebhook(t, nil, false)

	form := env.alipayForm(t, "order-x", "2025013122001400002", "29.90")
	form.Set("total_amount", "0.01")

	w := env.postAlipay(t, form)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "failure", w.Body.String())
}

func TestWebhookHandler_Alipay_UnknownOrder(t *testing.T) {
	env := setupWebhook(t, nil, false)

	w := env.postAlipay(t, env.alipayForm(t, "no-such-order", "2025013122001400003", "29.90"))
	assert.Equal(t, "failure", w.Body.String())
}

func TestWebhookHandler_Alipay_AmountMismatch(t *testing.T) {
	env := setupWebhook(t, nil, false)

	acc := testutil.TestAccount(t, env.ctx.DB)
	payment := testutil.TestPayment(t, env.ctx.DB, acc.ID,
		testutil.WithProvider(model.ProviderAlipay),
		testutil.WithProduct("Basic", "monthly", "29.90"),
	)

	w := env.postAlipay(t, env.alipayForm(t, payment.ProviderOrderID, "2025013122001400004", "1.00"))
	assert.Equal(t, "failure", w.Body.String())

	account, err := env.ctx.Stores.Accounts.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Free", account.Plan)
}

func TestWebhookHandler_Alipay_TransientDeferred(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	retry := queue.NewQueue(client, "test:retry")
	env := setupWebhook(t, retry, false)

	sqlDB, err := env.ctx.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := env.postAlipay(t, env.alipayForm(t, "order-later", "2025013122001400005", "29.90"))
	assert.Equal(t, "success", w.Body.String())

	n, err := retry.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msg, err := retry.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "order-later", msg.Event.ProviderOrderID)
}

func TestWebhookHandler_Alipay_TransientWithoutQueue(t *testing.T) {
	env := setupWebhook(t, nil, false)

	sqlDB, err := env.ctx.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := env.postAlipay(t, env.alipayForm(t, "order-later", "2025013122001400006", "29.90"))
	assert.Equal(t, "failure", w.Body.String())
}

func wechatRequest(t *testing.T, env *webhookEnv, tx map[string]interface{}) *http.Request {
	body := testutil.WechatNotifyBody(t, "TRANSACTION.SUCCESS", tx)
	return env.keys.WechatNotifyRequest(t, "/webhooks/wechat", body, time.Now())
}

func TestWebhookHandler_Wechat_Success(t *testing.T) {
	env := setupWebhook(t, nil, true)

	acc := testutil.TestAccount(t, env.ctx.DB)
	payment := testutil.TestPayment(t, env.ctx.DB, acc.ID)

	req := wechatRequest(t, env, map[string]interface{}{
		"out_trade_no":   payment.ProviderOrderID,
		"transaction_id": "4200000001",
		"trade_state":    "SUCCESS",
		"amount":         map[string]interface{}{"total": 9990, "currency": "CNY"},
	})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SUCCESS")

	account, err := env.ctx.Stores.Accounts.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", account.Plan)
	assert.True(t, account.Pro)
}

func TestWebhookHandler_Wechat_Rejected(t *testing.T) {
	env := setupWebhook(t, nil, true)

	req := wechatRequest(t, env, map[string]interface{}{
		"out_trade_no":   "no-such-order",
		"transaction_id": "4200000002",
		"trade_state":    "SUCCESS",
		"amount":         map[string]interface{}{"total": 9990, "currency": "CNY"},
	})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "FAIL")
}

func TestWebhookHandler_Wechat_BadSignature(t *testing.T) {
	env := setupWebhook(t, nil, true)

	req := wechatRequest(t, env, map[string]interface{}{"out_trade_no": "x"})
	req.Header.Set("Wechatpay-Signature", testutil.NewChannelKeys(t).Sign(t, "forged"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookHandler_Wechat_NotConfigured(t *testing.T) {
	env := setupWebhook(t, nil, false)

	req := httptest.NewRequest("POST", "/webhooks/wechat", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
