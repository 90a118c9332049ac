package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scan outcome labels
const (
	ScanStatusSuccess = "success"
	ScanStatusCached  = "cached"
	ScanStatusFailed  = "failed"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	ScansTotal          *prometheus.CounterVec
	ScanDuration        *prometheus.HistogramVec
	PluginsScanned      prometheus.Gauge
	ConflictsBySeverity *prometheus.GaugeVec
	OverlapClusters     prometheus.Gauge
	MalformedPlugins    prometheus.Gauge

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheErrorsTotal *prometheus.CounterVec

	// Storage metrics
	StorageOperationsTotal *prometheus.CounterVec
	ScansPrunedTotal       prometheus.Counter

	// Notification metrics
	WebhookDeliveriesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conflictmap_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conflictmap_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conflictmap_scans_total",
				Help: "Total number of pipeline runs by outcome",
			},
			[]string{"status"},
		),
		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conflictmap_scan_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		PluginsScanned: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "conflictmap_plugins",
				Help: "Number of plugins in the latest snapshot",
			},
		),
		ConflictsBySeverity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "conflictmap_conflicts",
				Help: "Conflicts in the latest snapshot by severity",
			},
			[]string{"severity"},
		),
		OverlapClusters: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "conflictmap_overlap_clusters",
				Help: "Overlap clusters in the latest snapshot",
			},
		),
		MalformedPlugins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "conflictmap_malformed_plugins",
				Help: "Plugins skipped or flagged for malformed metadata in the latest snapshot",
			},
		),

		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "conflictmap_cache_hits_total",
				Help: "Total number of snapshot cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "conflictmap_cache_misses_total",
				Help: "Total number of snapshot cache misses",
			},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conflictmap_cache_errors_total",
				Help: "Total number of cache backend errors",
			},
			[]string{"operation"},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conflictmap_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "status"},
		),
		ScansPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "conflictmap_scans_pruned_total",
				Help: "Total number of scans removed by retention cleanup",
			},
		),

		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conflictmap_webhook_deliveries_total",
				Help: "Total number of webhook deliveries by event and outcome",
			},
			[]string{"event", "status"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ScansTotal,
		m.ScanDuration,
		m.PluginsScanned,
		m.ConflictsBySeverity,
		m.OverlapClusters,
		m.MalformedPlugins,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheErrorsTotal,
		m.StorageOperationsTotal,
		m.ScansPrunedTotal,
		m.WebhookDeliveriesTotal,
	)

	return m
}

// RecordScan counts one pipeline run and its duration
func (m *Metrics) RecordScan(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(status).Inc()
	m.ScanDuration.WithLabelValues(status).Observe(d.Seconds())
}

// SetConflicts replaces the per-severity conflict gauges
func (m *Metrics) SetConflicts(bySeverity map[string]int) {
	if m == nil {
		return
	}
	m.ConflictsBySeverity.Reset()
	for severity, n := range bySeverity {
		m.ConflictsBySeverity.WithLabelValues(severity).Set(float64(n))
	}
}

// RecordStorage counts one storage operation
func (m *Metrics) RecordStorage(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StorageOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordWebhookDelivery counts one finished webhook delivery
func (m *Metrics) RecordWebhookDelivery(event string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.WebhookDeliveriesTotal.WithLabelValues(event, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// pathLabel maps a request onto a bounded label, typically the route
// template; nil uses the raw URL path.
func HTTPMetricsMiddleware(metrics *Metrics, pathLabel func(*http.Request) string) func(http.Handler) http.Handler {
	if pathLabel == nil {
		pathLabel = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := pathLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
