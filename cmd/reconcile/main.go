package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/bootstrap"
	"github.com/qs3c/quota_ledger/internal/pkg/pubsub"
	"github.com/qs3c/quota_ledger/internal/service"
)

var (
	timeout = flag.Duration("timeout", 10*time.Minute, "Maximum duration of the sweep")
	at      = flag.String("at", "", "Evaluate due entries as of this RFC3339 time (default: now)")
)

func main() {
	flag.Parse()

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

	now := time.Now()
	if *at != "" {
		now, err = time.Parse(time.RFC3339, *at)
		if err != nil {
			log.Fatalf("Invalid -at value: %v", err)
		}
	}

	log.Info("Starting reconcile sweep...")

	infra, err := bootstrap.Connect(cfg, false, log)
	if err != nil {
		log.Fatalf("Failed to connect storage: %v", err)
	}
	defer infra.Close()

	catalog, err := bootstrap.Catalog(cfg)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	ledgerService := service.NewLedgerService(infra.Stores, catalog, log)
	if infra.Redis != nil {
		ledgerService.SetNotifier(pubsub.NewPublisher(infra.Redis))
	}
	reconcileService := service.NewReconcileService(infra.Stores, ledgerService, cfg.Reconcile.Concurrency, nil, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	result, err := reconcileService.Run(ctx, now)
	if err != nil {
		log.Fatalf("Reconcile sweep failed: %v", err)
	}

	// 输出统计
	log.Info(strings.Repeat("=", 60))
	log.Info("Reconcile Summary")
	log.Info(strings.Repeat("=", 60))
	log.Infof("As of: %s", now.Format(time.RFC3339))
	log.Infof("Processed accounts: %d", result.ProcessedCount)
	log.Infof("Errors: %d", result.ErrorCount)
	log.Infof("Elapsed: %s", time.Since(start).Round(time.Millisecond))
	log.Info(strings.Repeat("=", 60))

	if result.ErrorCount > 0 {
		os.Exit(1)
	}
}
