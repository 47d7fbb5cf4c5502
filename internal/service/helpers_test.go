package service

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/pkg/calendar"
	"github.com/qs3c/quota_ledger/internal/pkg/plan"
	"github.com/qs3c/quota_ledger/internal/repository"
	"github.com/qs3c/quota_ledger/internal/testutil"
)

// 2025-01-31 10:00 北京时间，锚点日 31
var testNow = time.Date(2025, time.January, 31, 10, 0, 0, 0, calendar.Location)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testCatalog(t *testing.T) *plan.Catalog {
	t.Helper()
	cfg := config.Default()
	c, err := plan.NewCatalog(cfg.Plans, cfg.Addons)
	require.NoError(t, err)
	return c
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, calendar.Location)
}

func setupLedger(t *testing.T) (*LedgerService, *repository.Stores, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	stores := repository.NewStores(db)
	ledger := NewLedgerService(stores, testCatalog(t), testLogger())
	ledger.SetClock(fixedClock(testNow))

	return ledger, stores, db
}
