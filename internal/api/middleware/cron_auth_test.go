package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCronAuth(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		header   string
		wantCode int
	}{
		{"正确密钥", "cron-secret", "Bearer cron-secret", http.StatusOK},
		{"错误密钥", "cron-secret", "Bearer nope", http.StatusUnauthorized},
		{"缺少前缀", "cron-secret", "cron-secret", http.StatusUnauthorized},
		{"缺少请求头", "cron-secret", "", http.StatusUnauthorized},
		{"未配置密钥", "", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(CronAuth(tt.secret))
			router.POST("/cron", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{})
			})

			req := httptest.NewRequest("POST", "/cron", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}
