// Package metrics 封装独立的 Prometheus 注册表，以及定价服务与 HTTP 层使用的标准指标。
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 定价请求的结果标签。
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics 封装了基于 Prometheus 的指标采集注册表及预定义指标。
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec   // 维度: method, path, status
	HTTPRequestDuration *prometheus.HistogramVec // 维度: method, path

	PricingRequestsTotal *prometheus.CounterVec   // 维度: operation, status
	PricingDuration      *prometheus.HistogramVec // 维度: operation
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter

	BuildInfo *prometheus.GaugeVec
}

// NewMetrics 初始化并返回一个新的指标采集器，自动注册 Go 运行时指标和进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.PricingRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "lattice_pricing_requests_total",
		Help: "Total number of pricing operations by outcome",
	}, []string{"operation", "status"})

	// 大步数的美式期权定价可达数百毫秒
	m.PricingDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lattice_pricing_duration_seconds",
		Help:    "Pricing operation latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"operation"})

	m.CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lattice_cache_hits_total",
		Help: "Approximation results served from cache",
	})
	m.CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lattice_cache_misses_total",
		Help: "Approximation results computed after a cache miss",
	})
	reg.MustRegister(m.CacheHitsTotal, m.CacheMissesTotal)

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// ObservePricing 记录一次定价操作的结果与耗时。nil 接收者为空操作。
func (m *Metrics) ObservePricing(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.PricingRequestsTotal.WithLabelValues(operation, status).Inc()
	m.PricingDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveCache 记录一次缓存查询结果。
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

// Registry 返回底层注册表。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
