package worker

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/model"
	"github.com/qs3c/quota_ledger/internal/pkg/plan"
	"github.com/qs3c/quota_ledger/internal/pkg/queue"
	"github.com/qs3c/quota_ledger/internal/repository"
	"github.com/qs3c/quota_ledger/internal/service"
	"github.com/qs3c/quota_ledger/internal/testutil"
)

type processorEnv struct {
	processor *Processor
	queue     *queue.Queue
	db        *gorm.DB
	stores    *repository.Stores
}

func setupProcessor(t *testing.T, maxAttempts int) *processorEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	client, _ := testutil.SetupTestRedis(t)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.Default()
	catalog, err := plan.NewCatalog(cfg.Plans, cfg.Addons)
	require.NoError(t, err)

	stores := repository.NewStores(db)
	ledger := service.NewLedgerService(stores, catalog, logger)
	q := queue.NewQueue(client, "test:retry")
	ingestion := service.NewIngestionService(stores, ledger, cfg.Billing, nil, q, logger)

	p := NewProcessor(ingestion, q, maxAttempts, logger)
	p.backoff = func(int) time.Duration { return 0 }

	return &processorEnv{processor: p, queue: q, db: db, stores: stores}
}

func retryMessage(orderID, tx, amount string, attempts int) *queue.RetryMessage {
	return &queue.RetryMessage{
		Event: model.ConfirmedPayment{
			Provider:              model.ProviderWechat,
			ProviderTransactionID: tx,
			ProviderOrderID:       orderID,
			SettledAmount:         decimal.RequireFromString(amount),
			Currency:              "CNY",
		},
		Attempts:   attempts,
		EnqueuedAt: time.Now(),
	}
}

func queueLength(t *testing.T, q *queue.Queue) int64 {
	n, err := q.Length(context.Background())
	require.NoError(t, err)
	return n
}

func TestProcessor_Applies(t *testing.T) {
	env := setupProcessor(t, 3)
	acc := testutil.TestAccount(t, env.db)
	payment := testutil.TestPayment(t, env.db, acc.ID)

	err := env.processor.Process(context.Background(), retryMessage(payment.ProviderOrderID, "tx-1", "99.90", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(0), queueLength(t, env.queue))

	account, err := env.stores.Accounts.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", account.Plan)

	// 再次投递同一事件按重复处理
	err = env.processor.Process(context.Background(), retryMessage(payment.ProviderOrderID, "tx-1", "99.90", 2))
	require.NoError(t, err)
	assert.Equal(t, int64(0), queueLength(t, env.queue))
}

func TestProcessor_DropsIntegrityError(t *testing.T) {
	env := setupProcessor(t, 3)

	err := env.processor.Process(context.Background(), retryMessage("missing-order", "tx-2", "99.90", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrPaymentNotFound)
	assert.Equal(t, int64(0), queueLength(t, env.queue))
}

func TestProcessor_RequeuesTransientError(t *testing.T) {
	env := setupProcessor(t, 3)

	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = env.processor.Process(context.Background(), retryMessage("order-1", "tx-3", "99.90", 1))
	require.Error(t, err)
	require.Equal(t, int64(1), queueLength(t, env.queue))

	msg, err := env.queue.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, 2, msg.Attempts)
	assert.NotEmpty(t, msg.LastError)
	assert.Equal(t, "order-1", msg.Event.ProviderOrderID)
}

func TestProcessor_GivesUpAfterMaxAttempts(t *testing.T) {
	env := setupProcessor(t, 3)

	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = env.processor.Process(context.Background(), retryMessage("order-1", "tx-4", "99.90", 3))
	require.Error(t, err)
	assert.Equal(t, int64(0), queueLength(t, env.queue))
}

func TestProcessor_RunDrainsQueue(t *testing.T) {
	env := setupProcessor(t, 3)
	acc := testutil.TestAccount(t, env.db)
	payment := testutil.TestPayment(t, env.db, acc.ID, testutil.WithAddon("addon_starter", 30, 5, "9.90"))

	require.NoError(t, env.queue.Push(context.Background(), retryMessage(payment.ProviderOrderID, "tx-5", "9.90", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		env.processor.Run(ctx, 2)
		close(finished)
	}()

	assert.Eventually(t, func() bool {
		account, err := env.stores.Accounts.Get(context.Background(), acc.ID)
		return err == nil && account.AddonImageBalance == 30
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLinearBackoff(t *testing.T) {
	assert.Equal(t, time.Second, linearBackoff(1))
	assert.Equal(t, 5*time.Second, linearBackoff(5))
	assert.Equal(t, maxBackoff, linearBackoff(100))
}
