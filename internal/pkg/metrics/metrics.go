package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 账本服务的 Prometheus 指标，nil 接收者上的记录方法为空操作
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 入账
	EventsAppliedTotal  *prometheus.CounterVec
	EventsRejectedTotal *prometheus.CounterVec
	EventsRetriedTotal  *prometheus.CounterVec

	// 对账
	SweepAccountsTotal *prometheus.CounterVec
	SweepDuration      prometheus.Histogram
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		EventsAppliedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_events_applied_total",
				Help: "Confirmed payment events applied to the ledger",
			},
			[]string{"provider", "decision"},
		),
		EventsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_events_rejected_total",
				Help: "Confirmed payment events rejected by integrity checks",
			},
			[]string{"provider", "reason"},
		),
		EventsRetriedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_events_retried_total",
				Help: "Confirmed payment events pushed to the retry queue",
			},
			[]string{"provider"},
		),
		SweepAccountsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_sweep_accounts_total",
				Help: "Accounts visited by the reconciliation sweep",
			},
			[]string{"outcome"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledger_sweep_duration_seconds",
				Help:    "Reconciliation sweep duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EventsAppliedTotal,
		m.EventsRejectedTotal,
		m.EventsRetriedTotal,
		m.SweepAccountsTotal,
		m.SweepDuration,
	)

	return m
}

func (m *Metrics) EventApplied(provider, decision string) {
	if m == nil {
		return
	}
	m.EventsAppliedTotal.WithLabelValues(provider, decision).Inc()
}

func (m *Metrics) EventRejected(provider, reason string) {
	if m == nil {
		return
	}
	m.EventsRejectedTotal.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) EventRetried(provider string) {
	if m == nil {
		return
	}
	m.EventsRetriedTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) SweepAccount(outcome string) {
	if m == nil {
		return
	}
	m.SweepAccountsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}

// GinMiddleware 记录请求数与耗时，path 使用路由模板
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler /metrics 端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
