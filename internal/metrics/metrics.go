package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var defaultRegistry = prometheus.DefaultRegisterer

// Metrics holds every Prometheus instrument exposed by the admin HTTP
// surface, covering both the archive codec and the reverse proxy.
type Metrics struct {
	archiveOperationsTotal *prometheus.CounterVec
	archiveOperationErrors *prometheus.CounterVec
	archiveOperationBytes  *prometheus.CounterVec
	archiveOperationDuration *prometheus.HistogramVec

	bufferPoolHits   *prometheus.CounterVec
	bufferPoolMisses *prometheus.CounterVec

	proxyRequestsTotal   *prometheus.CounterVec
	proxyRequestDuration *prometheus.HistogramVec
	proxyUpstreamErrors  *prometheus.CounterVec
	proxyActiveTunnels   prometheus.Gauge
	proxyRoutesLoaded    prometheus.Gauge

	goroutines       prometheus.Gauge
	memoryAllocBytes prometheus.Gauge
	memorySysBytes   prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered against the default
// Prometheus registerer.
func NewMetrics() *Metrics {
	return newMetricsWithRegistry(defaultRegistry)
}

// NewMetricsWithRegistry creates a Metrics instance against a custom
// registry, so tests can avoid colliding with the process-global
// default registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetricsWithRegistry(reg)
}

func newMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		archiveOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_operations_total",
				Help: "Total number of pack/unpack operations",
			},
			[]string{"operation"}, // "pack" or "unpack"
		),
		archiveOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_operation_errors_total",
				Help: "Total number of failed pack/unpack operations",
			},
			[]string{"operation", "error_kind"},
		),
		archiveOperationBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_operation_bytes_total",
				Help: "Total plaintext bytes processed by pack/unpack operations",
			},
			[]string{"operation"},
		),
		archiveOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_operation_duration_seconds",
				Help:    "Duration of pack/unpack operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		bufferPoolHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffer_pool_hits_total",
				Help: "Total number of chunk buffer pool hits",
			},
			[]string{"pool"},
		),
		bufferPoolMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffer_pool_misses_total",
				Help: "Total number of chunk buffer pool misses",
			},
			[]string{"pool"},
		),
		proxyRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_requests_total",
				Help: "Total number of requests forwarded by the reverse proxy",
			},
			[]string{"kind", "status"}, // kind: "http" or "websocket"
		),
		proxyRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proxy_request_duration_seconds",
				Help:    "Duration of a forwarded request or a websocket tunnel's life in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		proxyUpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_upstream_errors_total",
				Help: "Total number of upstream connect/IO errors",
			},
			[]string{"error_kind"},
		),
		proxyActiveTunnels: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxy_active_websocket_tunnels",
				Help: "Number of currently open websocket tunnels",
			},
		),
		proxyRoutesLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxy_routes_loaded",
				Help: "Number of routes in the currently active route table",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
	}
}

// RecordArchiveOperation records a completed pack/unpack operation.
func (m *Metrics) RecordArchiveOperation(operation string, duration time.Duration, bytes int64) {
	m.archiveOperationsTotal.WithLabelValues(operation).Inc()
	m.archiveOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.archiveOperationBytes.WithLabelValues(operation).Add(float64(bytes))
}

// RecordArchiveError records a failed pack/unpack operation.
func (m *Metrics) RecordArchiveError(operation, errorKind string) {
	m.archiveOperationErrors.WithLabelValues(operation, errorKind).Inc()
}

// RecordBufferPoolHit records a chunk buffer pool hit.
func (m *Metrics) RecordBufferPoolHit(pool string) {
	m.bufferPoolHits.WithLabelValues(pool).Inc()
}

// RecordBufferPoolMiss records a chunk buffer pool miss.
func (m *Metrics) RecordBufferPoolMiss(pool string) {
	m.bufferPoolMisses.WithLabelValues(pool).Inc()
}

// RecordProxyRequest records one forwarded HTTP request or one completed
// websocket tunnel.
func (m *Metrics) RecordProxyRequest(kind, status string, duration time.Duration) {
	m.proxyRequestsTotal.WithLabelValues(kind, status).Inc()
	m.proxyRequestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordProxyUpstreamError records an upstream connect/TLS/IO error.
func (m *Metrics) RecordProxyUpstreamError(errorKind string) {
	m.proxyUpstreamErrors.WithLabelValues(errorKind).Inc()
}

// SetProxyRoutesLoaded reports the size of the currently active route table.
func (m *Metrics) SetProxyRoutesLoaded(n int) {
	m.proxyRoutesLoaded.Set(float64(n))
}

// IncrementActiveTunnels increments the open-websocket-tunnel gauge.
func (m *Metrics) IncrementActiveTunnels() {
	m.proxyActiveTunnels.Inc()
}

// DecrementActiveTunnels decrements the open-websocket-tunnel gauge.
func (m *Metrics) DecrementActiveTunnels() {
	m.proxyActiveTunnels.Dec()
}

// UpdateSystemMetrics refreshes goroutine/memory gauges from runtime stats.
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// StartSystemMetricsCollector starts a goroutine that periodically
// refreshes the system gauges.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler serving metrics in Prometheus
// exposition format from the default registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
