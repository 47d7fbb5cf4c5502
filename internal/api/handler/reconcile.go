package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/quota_ledger/internal/model/dto"
	"github.com/qs3c/quota_ledger/internal/pkg/response"
	"github.com/qs3c/quota_ledger/internal/service"
)

type ReconcileHandler struct {
	reconcileService *service.ReconcileService
}

func NewReconcileHandler(reconcileService *service.ReconcileService) *ReconcileHandler {
	return &ReconcileHandler{
		reconcileService: reconcileService,
	}
}

// Run 触发一次对账扫描
// POST /api/v1/cron/reconcile
func (h *ReconcileHandler) Run(c *gin.Context) {
	result, err := h.reconcileService.Run(c.Request.Context(), time.Now())
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, dto.ReconcileResponse{
		ProcessedCount: result.ProcessedCount,
		ErrorCount:     result.ErrorCount,
	})
}
