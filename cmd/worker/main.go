package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/bootstrap"
	"github.com/qs3c/quota_ledger/internal/pkg/queue"
	"github.com/qs3c/quota_ledger/internal/pkg/pubsub"
	"github.com/qs3c/quota_ledger/internal/service"
	"github.com/qs3c/quota_ledger/internal/worker"
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

	infra, err := bootstrap.Connect(cfg, true, log)
	if err != nil {
		log.Fatalf("Failed to connect storage: %v", err)
	}
	defer infra.Close()

	catalog, err := bootstrap.Catalog(cfg)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	retryQueue := queue.NewQueue(infra.Redis, cfg.Retry.Queue)
	ledgerService := service.NewLedgerService(infra.Stores, catalog, log)
	ledgerService.SetNotifier(pubsub.NewPublisher(infra.Redis))
	ingestionService := service.NewIngestionService(infra.Stores, ledgerService, cfg.Billing, nil, retryQueue, log)

	// 创建重试处理器
	processor := worker.NewProcessor(ingestionService, retryQueue, cfg.Retry.MaxAttempts, log)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal")
		cancel()
	}()

	log.Infof("Worker started, max workers: %d", cfg.Retry.MaxWorkers)
	processor.Run(ctx, cfg.Retry.MaxWorkers)
	log.Info("Worker shutdown complete")
}
