package observability

import (
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

	// Exchange metrics
	ExchangesTotal   *prometheus.CounterVec
	ExchangeDuration prometheus.Histogram
	ReplaysRejected  prometheus.Counter

	// Session metrics
	RefreshesTotal    *prometheus.CounterVec
	SessionsRevoked   *prometheus.CounterVec
	OrgSwitchesTotal  *prometheus.CounterVec
	TokensIssuedTotal *prometheus.CounterVec

	// Permission metrics
	PermissionCalcDuration prometheus.Histogram
	PermCacheHitsTotal     prometheus.Counter
	PermCacheMissesTotal   prometheus.Counter

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Redis metrics
	RedisConnectionsActive prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_identity_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meridian_identity_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meridian_identity_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meridian_identity_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Exchange metrics
		ExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_identity_exchanges_total",
				Help: "Total number of token exchanges",
			},
			[]string{"status"},
		),
		ExchangeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meridian_identity_exchange_duration_seconds",
				Help:    "Token exchange duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		ReplaysRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meridian_identity_replays_rejected_total",
				Help: "Total number of exchange assertions rejected as replays",
			},
		),

		// Session metrics
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_identity_refreshes_total",
				Help: "Total number of refresh-token redemptions",
			},
			[]string{"status"},
		),
		SessionsRevoked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_identity_sessions_revoked_total",
				Help: "Total number of revoked sessions",
			},
			[]string{"scope"},
		),
		OrgSwitchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_identity_org_switches_total",
				Help: "Total number of organization switches",
			},
			[]string{"status"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_identity_tokens_issued_total",
				Help: "Total number of issued token pairs",
			},
			[]string{"flow"},
		),

		// Permission metrics
		PermissionCalcDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meridian_identity_permission_calc_duration_seconds",
				Help:    "Effective permission computation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25},
			},
		),
		PermCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meridian_identity_permission_cache_hits_total",
				Help: "Total number of permission cache hits",
			},
		),
		PermCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meridian_identity_permission_cache_misses_total",
				Help: "Total number of permission cache misses",
			},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "meridian_identity_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "meridian_identity_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "meridian_identity_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "meridian_identity_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		// Redis metrics
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "meridian_identity_redis_connections_active",
				Help: "Number of active Redis connections",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.ExchangesTotal,
		m.ExchangeDuration,
		m.ReplaysRejected,
		m.RefreshesTotal,
		m.SessionsRevoked,
		m.OrgSwitchesTotal,
		m.TokensIssuedTotal,
		m.PermissionCalcDuration,
		m.PermCacheHitsTotal,
		m.PermCacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.RedisConnectionsActive,
	)

	return m
}

// PermissionCacheHit records a permission cache hit
func (m *Metrics) PermissionCacheHit() {
	m.PermCacheHitsTotal.Inc()
}

// PermissionCacheMiss records a permission cache miss
func (m *Metrics) PermissionCacheMiss() {
	m.PermCacheMissesTotal.Inc()
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

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Record request size
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
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
