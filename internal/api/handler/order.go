package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/quota_ledger/internal/api/middleware"
	"github.com/qs3c/quota_ledger/internal/model/dto"
	"github.com/qs3c/quota_ledger/internal/pkg/response"
	"github.com/qs3c/quota_ledger/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// Quote 询价
// POST /api/v1/orders/quote
func (h *OrderHandler) Quote(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	quote, err := h.orderService.Quote(c.Request.Context(), accountID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, quote)
}

// Create 下单，返回交给支付渠道的商户订单号
// POST /api/v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), accountID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.SuccessWithMessage(c, "下单成功", order)
}
