package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/quota_ledger/internal/pkg/queue"
	"github.com/qs3c/quota_ledger/internal/service"
)

const maxBackoff = 30 * time.Second

// Processor 重放入账失败的支付确认事件。入账本身幂等，重复投递是安全的。
type Processor struct {
	ingestion   *service.IngestionService
	queue       *queue.Queue
	maxAttempts int
	backoff     func(attempts int) time.Duration
	log         logrus.FieldLogger
}

// NewProcessor 创建重试处理器
func NewProcessor(ingestion *service.IngestionService, q *queue.Queue, maxAttempts int, logger logrus.FieldLogger) *Processor {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Processor{
		ingestion:   ingestion,
		queue:       q,
		maxAttempts: maxAttempts,
		backoff:     linearBackoff,
		log:         logger,
	}
}

func linearBackoff(attempts int) time.Duration {
	d := time.Duration(attempts) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Process 处理一条重试消息。
// 完整性错误直接丢弃；暂时性错误在次数上限内退避后重新入队。
func (p *Processor) Process(ctx context.Context, msg *queue.RetryMessage) error {
	logger := p.log.WithFields(logrus.Fields{
		"event_id": msg.Event.EventID(),
		"order_id": msg.Event.ProviderOrderID,
		"attempts": msg.Attempts,
	})

	result, err := p.ingestion.ApplyConfirmedPayment(ctx, msg.Event)
	if err == nil {
		logger.WithFields(logrus.Fields{
			"duplicate": result.Duplicate,
			"decision":  result.Decision.String(),
		}).Info("retried payment applied")
		return nil
	}

	if service.IsIntegrityError(err) {
		logger.WithError(err).Warn("retried payment rejected, dropping")
		return err
	}

	if msg.Attempts >= p.maxAttempts {
		logger.WithError(err).Error("retry attempts exhausted, dropping")
		return err
	}

	select {
	case <-ctx.Done():
		// 退出前放回队列，避免丢事件
	case <-time.After(p.backoff(msg.Attempts)):
	}

	msg.Attempts++
	msg.LastError = err.Error()
	if pushErr := p.queue.Push(context.WithoutCancel(ctx), msg); pushErr != nil {
		logger.WithError(pushErr).Error("failed to requeue payment event")
		return pushErr
	}
	logger.WithError(err).Warn("payment event requeued")
	return err
}

// Run 启动 workers 个协程消费重试队列，ctx 取消后返回
func (p *Processor) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}

	done := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					p.log.WithField("worker", workerID).Info("worker shutting down")
					return
				default:
				}

				msg, err := p.queue.Pop(ctx, 5*time.Second)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					p.log.WithError(err).WithField("worker", workerID).Warn("failed to pop retry message")
					continue
				}
				if msg == nil {
					continue // 超时，继续等待
				}

				_ = p.Process(ctx, msg)
			}
		}(i)
	}

	for i := 0; i < workers; i++ {
		<-done
	}
}
