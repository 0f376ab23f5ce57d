package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Policy lifecycle metrics
	PolicyOperationsTotal *prometheus.CounterVec
	GrantsTotal           *prometheus.CounterVec

	// Resolution metrics
	ResolveTotal    *prometheus.CounterVec
	ResolveDuration *prometheus.HistogramVec
	ResolvedSetSize *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheEvictionsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Redis metrics
	RedisConnectionsActive prometheus.Gauge
	RedisCommandsTotal     *prometheus.CounterVec
	RedisCommandDuration   *prometheus.HistogramVec

	// Audit metrics
	AuditEventsTotal  *prometheus.CounterVec
	AuditEventsFailed prometheus.Counter

	// Sweeper metrics
	SweeperRunsTotal     *prometheus.CounterVec
	OrphanBindingsReaped prometheus.Counter

	// Business metrics
	PoliciesTotal       prometheus.Gauge
	BindingsTotal       prometheus.Gauge
	OpenedAppsTotal     prometheus.Gauge
	ActiveSessionsTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Policy lifecycle metrics
		PolicyOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_policy_operations_total",
				Help: "Total number of policy lifecycle operations",
			},
			[]string{"operation", "status"},
		),
		GrantsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_grants_total",
				Help: "Total number of grant and revoke operations",
			},
			[]string{"org_type", "operation"},
		),

		// Resolution metrics
		ResolveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_resolve_total",
				Help: "Total number of policy resolutions",
			},
			[]string{"org_type", "status"},
		),
		ResolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_resolve_duration_seconds",
				Help:    "Policy resolution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"org_type"},
		),
		ResolvedSetSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_resolved_set_size",
				Help:    "Number of policies in a resolved effective set",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"org_type"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
		CacheEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_cache_evictions_total",
				Help: "Total number of cache evictions",
			},
			[]string{"cache_type", "reason"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		// Redis metrics
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_redis_connections_active",
				Help: "Number of active Redis connections",
			},
		),
		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_redis_commands_total",
				Help: "Total number of Redis commands",
			},
			[]string{"command", "status"},
		),
		RedisCommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_redis_command_duration_seconds",
				Help:    "Redis command duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"command"},
		),

		// Audit metrics
		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_audit_events_total",
				Help: "Total number of audit events emitted",
			},
			[]string{"action", "resource_type"},
		),
		AuditEventsFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_audit_events_failed_total",
				Help: "Total number of audit events dropped on write failure",
			},
		),

		// Sweeper metrics
		SweeperRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_sweeper_runs_total",
				Help: "Total number of sweeper job runs",
			},
			[]string{"job", "status"},
		),
		OrphanBindingsReaped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_orphan_bindings_reaped_total",
				Help: "Total number of orphaned bindings removed by the sweeper",
			},
		),

		// Business metrics
		PoliciesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_policies_total",
				Help: "Total number of policy definitions",
			},
		),
		BindingsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_bindings_total",
				Help: "Total number of policy bindings",
			},
		),
		OpenedAppsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_opened_apps_total",
				Help: "Total number of tenant app-open records",
			},
		),
		ActiveSessionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_active_sessions_total",
				Help: "Number of sessions currently tracked in the registry",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.PolicyOperationsTotal,
		m.GrantsTotal,
		m.ResolveTotal,
		m.ResolveDuration,
		m.ResolvedSetSize,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheEvictionsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.RedisConnectionsActive,
		m.RedisCommandsTotal,
		m.RedisCommandDuration,
		m.AuditEventsTotal,
		m.AuditEventsFailed,
		m.SweeperRunsTotal,
		m.OrphanBindingsReaped,
		m.PoliciesTotal,
		m.BindingsTotal,
		m.OpenedAppsTotal,
		m.ActiveSessionsTotal,
	)

	return m
}

// CollectDBStats copies database pool statistics into the gauges. Call it
// periodically; sql.DB exposes point-in-time stats only.
func (m *Metrics) CollectDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
