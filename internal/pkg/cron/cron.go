package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/quota_ledger/internal/pkg/calendar"
	"github.com/qs3c/quota_ledger/internal/service"
)

// sweepTimeout 单次扫描的最长时间
const sweepTimeout = 10 * time.Minute

type Service struct {
	reconcile *service.ReconcileService
	schedule  string
	cron      *cron.Cron
	log       logrus.FieldLogger
}

func NewService(reconcile *service.ReconcileService, schedule string, logger logrus.FieldLogger) *Service {
	cl := cronLogger{log: logger}
	return &Service{
		reconcile: reconcile,
		schedule:  schedule,
		log:       logger,
		cron: cron.New(
			cron.WithLocation(calendar.Location),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start 按计划启动对账扫描
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runSweep); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.log.WithField("schedule", s.schedule).Info("Cron service started (reconcile sweep)")
	return nil
}

// Stop 停止调度并等待正在执行的扫描结束
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Cron service stopped")
}

func (s *Service) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.RunNow(ctx); err != nil {
		s.log.WithError(err).Error("Scheduled reconcile sweep failed")
	}
}

// RunNow 立即执行一次扫描（手动触发或测试）
func (s *Service) RunNow(ctx context.Context) (*service.SweepResult, error) {
	return s.reconcile.Run(ctx, time.Now())
}

// cronLogger 将 cron 内部日志转到 logrus
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(toFields(keysAndValues)).Error(msg)
}

func toFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
