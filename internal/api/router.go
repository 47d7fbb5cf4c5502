package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/api/handler"
	"github.com/qs3c/quota_ledger/internal/api/middleware"
	"github.com/qs3c/quota_ledger/internal/pkg/metrics"
)

type Router struct {
	orderHandler     *handler.OrderHandler
	accountHandler   *handler.AccountHandler
	webhookHandler   *handler.WebhookHandler
	reconcileHandler *handler.ReconcileHandler
	metrics          *metrics.Metrics
	cfg              *config.Config
}

func NewRouter(
	orderHandler *handler.OrderHandler,
	accountHandler *handler.AccountHandler,
	webhookHandler *handler.WebhookHandler,
	reconcileHandler *handler.ReconcileHandler,
	m *metrics.Metrics,
	cfg *config.Config,
) *Router {
	return &Router{
		orderHandler:     orderHandler,
		accountHandler:   accountHandler,
		webhookHandler:   webhookHandler,
		reconcileHandler: reconcileHandler,
		metrics:          m,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))
	engine.Use(r.metrics.GinMiddleware())

	if r.metrics != nil {
		engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}

	api := engine.Group("/api/v1")
	{
		// 公开接口 - 支付回调，由渠道签名保证来源
		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/wechat", r.webhookHandler.Wechat)
			webhooks.POST("/alipay", r.webhookHandler.Alipay)
		}

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			orders := authenticated.Group("/orders")
			{
				orders.POST("/quote", r.orderHandler.Quote)
				orders.POST("", r.orderHandler.Create)
			}

			authenticated.GET("/account/entitlement", r.accountHandler.GetEntitlement)
		}

		// 定时任务触发
		cron := api.Group("/cron")
		cron.Use(middleware.CronAuth(r.cfg.Reconcile.CronSecret))
		{
			cron.POST("/reconcile", r.reconcileHandler.Run)
		}
	}

	return engine
}
