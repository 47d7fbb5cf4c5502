package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/api"
	"github.com/qs3c/quota_ledger/internal/api/handler"
	"github.com/qs3c/quota_ledger/internal/bootstrap"
	"github.com/qs3c/quota_ledger/internal/gateway"
	"github.com/qs3c/quota_ledger/internal/pkg/cron"
	"github.com/qs3c/quota_ledger/internal/pkg/metrics"
	"github.com/qs3c/quota_ledger/internal/pkg/queue"
	"github.com/qs3c/quota_ledger/internal/pkg/pubsub"
	"github.com/qs3c/quota_ledger/internal/service"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	log := bootstrap.NewLogger(cfg.Log)

	// 初始化存储与 Redis（重试队列）
	infra, err := bootstrap.Connect(cfg, true, log)
	if err != nil {
		log.Fatalf("Failed to connect storage: %v", err)
	}
	defer infra.Close()

	catalog, err := bootstrap.Catalog(cfg)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	// 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	retryQueue := queue.NewQueue(infra.Redis, cfg.Retry.Queue)

	// 初始化 Service
	ledgerService := service.NewLedgerService(infra.Stores, catalog, log)
	ledgerService.SetNotifier(pubsub.NewPublisher(infra.Redis))
	prorationService := service.NewProrationService(catalog, cfg.Billing)
	ingestionService := service.NewIngestionService(infra.Stores, ledgerService, cfg.Billing, m, retryQueue, log)
	orderService := service.NewOrderService(infra.Stores, catalog, prorationService, cfg.Billing, log)
	quotaService := service.NewQuotaService(infra.Stores, catalog)
	reconcileService := service.NewReconcileService(infra.Stores, ledgerService, cfg.Reconcile.Concurrency, m, log)

	// 支付渠道（未配置的渠道回调返回 503）
	wechat, err := gateway.NewWechat(cfg.Gateways.Wechat)
	if err != nil {
		log.WithError(err).Warn("WeChat Pay notifications disabled")
		wechat = nil
	}
	alipay, err := gateway.NewAlipay(cfg.Gateways.Alipay)
	if err != nil {
		log.WithError(err).Warn("Alipay notifications disabled")
		alipay = nil
	}

	// 定时对账
	cronService := cron.NewService(reconcileService, cfg.Reconcile.Schedule, log)
	if err := cronService.Start(); err != nil {
		log.Fatalf("Failed to start cron: %v", err)
	}
	defer cronService.Stop()

	// 初始化 Handler
	orderHandler := handler.NewOrderHandler(orderService)
	accountHandler := handler.NewAccountHandler(quotaService)
	webhookHandler := handler.NewWebhookHandler(ingestionService, wechat, alipay, log)
	reconcileHandler := handler.NewReconcileHandler(reconcileService)

	// 初始化 Router
	router := api.NewRouter(
		orderHandler,
		accountHandler,
		webhookHandler,
		reconcileHandler,
		m,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		log.Infof("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("Received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	log.Info("Server shutdown complete")
}
