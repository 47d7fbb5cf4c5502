package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/quota_ledger/internal/pkg/metrics"
	"github.com/qs3c/quota_ledger/internal/repository"
)

// SweepResult 一次对账扫描的统计
type SweepResult struct {
	ProcessedCount int `json:"processed_count"`
	ErrorCount     int `json:"error_count"`
}

// ReconcileService 周期性对账：生效到期的排队降级，过期无排队的账户降为免费版
type ReconcileService struct {
	accounts    repository.AccountStore
	ledger      *LedgerService
	concurrency int
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
}

func NewReconcileService(stores *repository.Stores, ledger *LedgerService, concurrency int, m *metrics.Metrics, logger logrus.FieldLogger) *ReconcileService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ReconcileService{
		accounts:    stores.Accounts,
		ledger:      ledger,
		concurrency: concurrency,
		metrics:     m,
		log:         logger,
	}
}

// Run 扫描所有到期账户。单个账户失败只计数，不中断批次；
// ctx 取消后不再开始新的账户，已开始的账户更新会执行完。
func (s *ReconcileService) Run(ctx context.Context, now time.Time) (*SweepResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	ids, err := s.accounts.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due accounts: %w", err)
	}

	var processed, failed int64
	work := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for i, id := range ids {
		if ctx.Err() != nil {
			s.log.WithField("not_started", len(ids)-i).Warn("reconcile sweep cancelled")
			break
		}

		id := id
		g.Go(func() error {
			outcome, err := s.ledger.AdvanceQueue(work, id, now)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				s.metrics.SweepAccount("error")
				s.log.WithError(err).WithField("account_id", id).Error("reconcile account failed")
				return nil
			}

			s.metrics.SweepAccount(outcome.String())
			if outcome != SweepSkipped {
				atomic.AddInt64(&processed, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &SweepResult{
		ProcessedCount: int(processed),
		ErrorCount:     int(failed),
	}

	s.log.WithFields(logrus.Fields{
		"due":       len(ids),
		"processed": result.ProcessedCount,
		"errors":    result.ErrorCount,
		"elapsed":   time.Since(start).String(),
	}).Info("reconcile sweep finished")

	return result, nil
}
