package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/quota_ledger/internal/pkg/response"
	"github.com/qs3c/quota_ledger/internal/testutil"
)

func TestAccountHandler_GetEntitlement(t *testing.T) {
	ctx := setupTestContext(t, nil)
	h := NewAccountHandler(ctx.Quota)

	acc := testutil.TestAccount(t, ctx.DB,
		testutil.WithPlan("Basic", time.Now().AddDate(0, 1, 0), 15),
		testutil.WithBalances(80, 10),
		testutil.WithAddonBalances(20, 0),
	)

	router := gin.New()
	router.Use(mockAuth(acc.ID))
	router.GET("/account/entitlement", h.GetEntitlement)

	req := httptest.NewRequest("GET", "/account/entitlement", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "Basic", data["plan"])
	assert.Equal(t, true, data["active"])
	assert.Equal(t, float64(100), data["total_image_balance"])
	assert.Equal(t, float64(100), data["monthly_image_limit"])
}

func TestAccountHandler_Unauthorized(t *testing.T) {
	ctx := setupTestContext(t, nil)
	h := NewAccountHandler(ctx.Quota)

	router := gin.New()
	router.GET("/account/entitlement", h.GetEntitlement)

	req := httptest.NewRequest("GET", "/account/entitlement", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}
