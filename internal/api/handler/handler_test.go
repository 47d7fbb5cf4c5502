package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/quota_ledger/config"
	"github.com/qs3c/quota_ledger/internal/api/middleware"
	"github.com/qs3c/quota_ledger/internal/pkg/plan"
	"github.com/qs3c/quota_ledger/internal/pkg/queue"
	"github.com/qs3c/quota_ledger/internal/pkg/response"
	"github.com/qs3c/quota_ledger/internal/repository"
	"github.com/qs3c/quota_ledger/internal/service"
	"github.com/qs3c/quota_ledger/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testContext 本地测试上下文
type testContext struct {
	DB        *gorm.DB
	Stores    *repository.Stores
	Ledger    *service.LedgerService
	Ingestion *service.IngestionService
	Orders    *service.OrderService
	Quota     *service.QuotaService
	Reconcile *service.ReconcileService
	Logger    logrus.FieldLogger
}

func setupTestContext(t *testing.T, retry *queue.Queue) *testContext {
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
	proration := service.NewProrationService(catalog, cfg.Billing)

	return &testContext{
		DB:        db,
		Stores:    stores,
		Ledger:    ledger,
		Ingestion: service.NewIngestionService(stores, ledger, cfg.Billing, nil, retry, logger),
		Orders:    service.NewOrderService(stores, catalog, proration, cfg.Billing, logger),
		Quota:     service.NewQuotaService(stores, catalog),
		Reconcile: service.NewReconcileService(stores, ledger, 2, nil, logger),
		Logger:    logger,
	}
}

func mockAuth(accountID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.AccountIDKey, accountID)
		c.Next()
	}
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}
