package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.EventApplied("wechat", "upgrade")
	m.EventApplied("wechat", "upgrade")
	m.EventRejected("alipay", "amount_mismatch")
	m.SweepAccount("demoted")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.EventsAppliedTotal.WithLabelValues("wechat", "upgrade")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsRejectedTotal.WithLabelValues("alipay", "amount_mismatch")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SweepAccountsTotal.WithLabelValues("demoted")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventApplied("wechat", "seed")
		m.EventRejected("wechat", "payment_not_found")
		m.EventRetried("wechat")
		m.SweepAccount("skipped")
	})
}

func TestMetrics_GinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ping", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ledger_http_requests_total")
}
