package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/quota_ledger/internal/gateway"
	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/service"
)

// maxWebhookBody 回调报文上限
const maxWebhookBody = 64 << 10

type ackResult int

const (
	ackOK ackResult = iota
	ackRejected
	ackRetry
)

// WebhookHandler 支付渠道回调。验签后交给入账服务，应答格式按渠道要求。
type WebhookHandler struct {
	ingestion *service.IngestionService
	wechat    *gateway.Wechat
	alipay    *gateway.Alipay
	log       logrus.FieldLogger
}

func NewWebhookHandler(ingestion *service.IngestionService, wechat *gateway.Wechat, alipay *gateway.Alipay, logger logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{
		ingestion: ingestion,
		wechat:    wechat,
		alipay:    alipay,
		log:       logger,
	}
}

// Wechat 微信支付回调
// POST /api/v1/webhooks/wechat
func (h *WebhookHandler) Wechat(c *gin.Context) {
	if h.wechat == nil {
		wechatAck(c, http.StatusServiceUnavailable, "channel not configured")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	ev, err := h.wechat.Parse(c.Request.Context(), c.Request)
	if err != nil {
		h.log.WithError(err).WithField("provider", model.ProviderWechat).Warn("webhook rejected by gateway")
		if errors.Is(err, gateway.ErrInvalidSignature) {
			wechatAck(c, http.StatusUnauthorized, "invalid signature")
		} else {
			wechatAck(c, http.StatusBadRequest, "malformed notification")
		}
		return
	}
	if ev == nil {
		wechatAck(c, http.StatusOK, "")
		return
	}

	switch h.ingest(c, *ev) {
	case ackOK:
		wechatAck(c, http.StatusOK, "")
	case ackRejected:
		wechatAck(c, http.StatusBadRequest, "payment rejected")
	default:
		wechatAck(c, http.StatusInternalServerError, "retry later")
	}
}

// Alipay 支付宝异步通知
// POST /api/v1/webhooks/alipay
func (h *WebhookHandler) Alipay(c *gin.Context) {
	if h.alipay == nil {
		c.String(http.StatusServiceUnavailable, "failure")
		return
	}

	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, "failure")
		return
	}

	ev, err := h.alipay.Parse(c.Request.PostForm)
	if err != nil {
		h.log.WithError(err).WithField("provider", model.ProviderAlipay).Warn("webhook rejected by gateway")
		c.String(http.StatusBadRequest, "failure")
		return
	}
	if ev == nil {
		c.String(http.StatusOK, "success")
		return
	}

	if h.ingest(c, *ev) == ackOK {
		c.String(http.StatusOK, "success")
		return
	}
	c.String(http.StatusOK, "failure")
}

// ingest 完整性错误拒绝；暂时性错误放入重试队列，入队成功即应答成功
func (h *WebhookHandler) ingest(c *gin.Context, ev model.ConfirmedPayment) ackResult {
	ctx := c.Request.Context()

	_, err := h.ingestion.ApplyConfirmedPayment(ctx, ev)
	if err == nil {
		return ackOK
	}
	if service.IsIntegrityError(err) {
		return ackRejected
	}

	h.log.WithError(err).WithFields(logrus.Fields{
		"provider": ev.Provider,
		"order_id": ev.ProviderOrderID,
	}).Error("confirmed payment not applied")

	if h.ingestion.Defer(ctx, ev, err) {
		return ackOK
	}
	return ackRetry
}

func wechatAck(c *gin.Context, status int, message string) {
	if status == http.StatusOK {
		c.JSON(status, gin.H{"code": "SUCCESS", "message": "成功"})
		return
	}
	c.JSON(status, gin.H{"code": "FAIL", "message": message})
}
