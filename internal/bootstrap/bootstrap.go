// Package bootstrap 组装各命令共用的依赖：日志、存储后端、套餐目录。
package bootstrap

import (
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/database"
	"github.com/qs3c/quota_ledger/internal/pkg/plan"
	"github.com/qs3c/quota_ledger/internal/repository"
	"github.com/qs3c/quota_ledger/internal/repository/docstore"
)

// NewLogger 按配置创建 logrus 日志
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// Infra 已连接的基础设施
type Infra struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Stores *repository.Stores
}

// Close 释放连接
func (i *Infra) Close() {
	if i.Redis != nil {
		i.Redis.Close()
	}
	if i.DB != nil {
		if sqlDB, err := i.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

// Connect 按 store.backend 连接账本存储。
// gorm 后端需要数据库，redis 后端只需要 redis；needRedis 为 true 时两种后端都会连接 redis（重试队列）。
func Connect(cfg *config.Config, needRedis bool, logger logrus.FieldLogger) (*Infra, error) {
	infra := &Infra{}

	backend := cfg.Store.Backend
	if backend == "" {
		backend = "gorm"
	}

	if backend == "redis" || needRedis {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		infra.Redis = rdb
		logger.Info("Redis connected")
	}

	switch backend {
	case "gorm":
		db, err := database.Open(&cfg.Database)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.AutoMigrate(db); err != nil {
			infra.DB = db
			infra.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		infra.DB = db
		infra.Stores = repository.NewStores(db)
		logger.WithField("driver", cfg.Database.Driver).Info("Database connected")
	case "redis":
		infra.Stores = docstore.NewStores(infra.Redis, cfg.Store.KeyPrefix)
		logger.WithField("prefix", cfg.Store.KeyPrefix).Info("Using redis document store")
	default:
		infra.Close()
		return nil, fmt.Errorf("unsupported store backend: %s", backend)
	}

	return infra, nil
}

// Catalog 从配置构建套餐目录
func Catalog(cfg *config.Config) (*plan.Catalog, error) {
	catalog, err := plan.NewCatalog(cfg.Plans, cfg.Addons)
	if err != nil {
		return nil, fmt.Errorf("load plan catalog: %w", err)
	}
	return catalog, nil
}
