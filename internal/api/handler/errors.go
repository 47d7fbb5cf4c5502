package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/quota_ledger/internal/pkg/plan"
	"github.com/qs3c/quota_ledger/internal/pkg/response"
	"github.com/qs3c/quota_ledger/internal/repository"
	"github.com/qs3c/quota_ledger/internal/service"
)

// paramErrors 请求本身有误，直接把原因返回给调用方
var paramErrors = []error{
	service.ErrUnknownPlan,
	service.ErrInvalidPeriod,
	service.ErrUnknownProduct,
	service.ErrUnknownProvider,
	service.ErrFreePlanPurchase,
	plan.ErrNoPrice,
	plan.ErrUnknownAddon,
}

func writeError(c *gin.Context, err error) {
	for _, target := range paramErrors {
		if errors.Is(err, target) {
			response.ParamError(c, target.Error())
			return
		}
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.NotFoundError(c, "")
	case errors.Is(err, repository.ErrConflict):
		response.ConflictError(c, "")
	case service.IsIntegrityError(err):
		response.IntegrityError(c, "")
	default:
		response.ServerError(c, "")
	}
}
