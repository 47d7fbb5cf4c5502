package cron

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/pkg/plan"
	"github.com/qs3c/quota_ledger/internal/repository"
	"github.com/qs3c/quota_ledger/internal/service"
	"github.com/qs3c/quota_ledger/internal/testutil"
)

func setupCronService(t *testing.T, schedule string) (*Service, *repository.Stores, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.Default()
	catalog, err := plan.NewCatalog(cfg.Plans, cfg.Addons)
	require.NoError(t, err)

	stores := repository.NewStores(db)
	ledger := service.NewLedgerService(stores, catalog, logger)
	reconcile := service.NewReconcileService(stores, ledger, 1, nil, logger)

	return NewService(reconcile, schedule, logger), stores, db
}

func TestService_StartAndStop(t *testing.T) {
	svc, _, _ := setupCronService(t, "@hourly")

	require.NoError(t, svc.Start())
	time.Sleep(10 * time.Millisecond)
	svc.Stop()
}

func TestService_InvalidSchedule(t *testing.T) {
	svc, _, _ := setupCronService(t, "every now and then")

	err := svc.Start()
	assert.Error(t, err)
}

func TestService_StopBeforeStart(t *testing.T) {
	svc, _, _ := setupCronService(t, "@hourly")

	// 未启动时停止不应阻塞
	svc.Stop()
}

func TestService_RunNow(t *testing.T) {
	svc, stores, db := setupCronService(t, "@hourly")
	ctx := context.Background()

	lapsed := testutil.TestAccount(t, db, testutil.WithPlan("Pro", time.Now().Add(-time.Hour), 1))
	active := testutil.TestAccount(t, db, testutil.WithPlan("Pro", time.Now().Add(24*time.Hour), 1))

	result, err := svc.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 0, result.ErrorCount)

	account, err := stores.Accounts.Get(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Free", account.Plan)

	account, err = stores.Accounts.Get(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", account.Plan)
}

func TestService_RunNow_NoAccounts(t *testing.T) {
	svc, _, _ := setupCronService(t, "@hourly")

	result, err := svc.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ProcessedCount)
}

func TestToFields(t *testing.T) {
	fields := toFields([]interface{}{"entry", 1, "now", "x", "dangling"})
	assert.Equal(t, logrus.Fields{"entry": 1, "now": "x"}, fields)
}
