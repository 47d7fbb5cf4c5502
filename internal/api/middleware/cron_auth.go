package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/quota_ledger/internal/pkg/response"
)

// CronAuth 定时任务触发接口的共享密钥校验，未配置密钥时拒绝所有请求
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if secret == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Response{
				Code:    response.CodeAuthFailed,
				Message: "认证失败",
			})
			return
		}
		c.Next()
	}
}
