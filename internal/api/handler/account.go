package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/quota_ledger/internal/api/middleware"
	"github.com/qs3c/quota_ledger/internal/pkg/response"
	"github.com/qs3c/quota_ledger/internal/service"
)

type AccountHandler struct {
	quotaService *service.QuotaService
}

func NewAccountHandler(quotaService *service.QuotaService) *AccountHandler {
	return &AccountHandler{
		quotaService: quotaService,
	}
}

// GetEntitlement 获取当前账户套餐与额度
// GET /api/v1/account/entitlement
func (h *AccountHandler) GetEntitlement(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.quotaService.GetEntitlement(c.Request.Context(), accountID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, info)
}
