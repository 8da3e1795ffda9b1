package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// 所有 Record 方法对 nil 接收者安全，未启用监控的组件可以直接传 nil。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 别名指标
	AliasesCreated *prometheus.CounterVec
	AliasesDeleted prometheus.Counter

	// 入站邮件指标
	InboundTotal    *prometheus.CounterVec
	InboundDuration prometheus.Histogram

	// 清理指标
	SweepRuns    *prometheus.CounterVec
	SweepDeleted *prometheus.CounterVec

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec

	// 外发与通知指标
	RelaySends         *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
}

// NewMetrics 创建监控指标，每个实例使用独立的注册表
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempalias_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempalias_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		AliasesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempalias_aliases_created_total",
				Help: "Total number of aliases created",
			},
			[]string{"source", "permanent"},
		),

		AliasesDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempalias_aliases_deleted_total",
				Help: "Total number of aliases deleted on request",
			},
		),

		InboundTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempalias_inbound_total",
				Help: "Inbound webhook outcomes by final stage and reason",
			},
			[]string{"stage", "reason"},
		),

		InboundDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tempalias_inbound_duration_seconds",
				Help:    "Inbound message processing duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		SweepRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempalias_sweep_runs_total",
				Help: "Expiry sweep runs by result",
			},
			[]string{"result"},
		),

		SweepDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempalias_sweep_deleted_total",
				Help: "Rows removed by the expiry sweep",
			},
			[]string{"kind"},
		),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempalias_rate_limit_blocks_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),

		RelaySends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempalias_relay_sends_total",
				Help: "Outbound relay attempts by driver and result",
			},
			[]string{"driver", "result"},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempalias_notifications_total",
				Help: "New-mail notifications by notifier and result",
			},
			[]string{"notifier", "result"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordAliasCreated 记录别名创建，source 为 custom 或 generated
func (m *Metrics) RecordAliasCreated(source string, permanent bool) {
	if m == nil {
		return
	}
	m.AliasesCreated.WithLabelValues(source, strconv.FormatBool(permanent)).Inc()
}

// RecordAliasDeleted 记录别名删除
func (m *Metrics) RecordAliasDeleted() {
	if m == nil {
		return
	}
	m.AliasesDeleted.Inc()
}

// RecordInbound 记录一次入站处理结果
func (m *Metrics) RecordInbound(stage, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.InboundTotal.WithLabelValues(stage, reason).Inc()
	m.InboundDuration.Observe(duration.Seconds())
}

// RecordSweep 记录一次过期清理
func (m *Metrics) RecordSweep(deletedAliases, deletedEmails int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SweepRuns.WithLabelValues("error").Inc()
		return
	}
	m.SweepRuns.WithLabelValues("ok").Inc()
	m.SweepDeleted.WithLabelValues("aliases").Add(float64(deletedAliases))
	m.SweepDeleted.WithLabelValues("emails").Add(float64(deletedEmails))
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(limiter).Inc()
}

// RecordRelaySend 记录外发结果
func (m *Metrics) RecordRelaySend(driver string, err error) {
	if m == nil {
		return
	}
	m.RelaySends.WithLabelValues(driver, result(err)).Inc()
}

// RecordNotification 记录新邮件通知结果
func (m *Metrics) RecordNotification(notifier string, err error) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(notifier, result(err)).Inc()
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
