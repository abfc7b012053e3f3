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
	HTTPResponseSize    *prometheus.HistogramVec

	// Search metrics
	SearchesTotal      *prometheus.CounterVec
	SearchDuration     *prometheus.HistogramVec
	SearchResultCount  *prometheus.HistogramVec
	ZeroResultSearches prometheus.Counter
	FallbacksTotal     *prometheus.CounterVec
	FacetFailuresTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Index metrics
	DocumentsIndexed   prometheus.Counter
	IndexFailuresTotal prometheus.Counter
	IndexHealth        prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alexandria_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alexandria_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alexandria_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alexandria_searches_total",
				Help: "Total number of search requests",
			},
			[]string{"type", "status"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alexandria_search_duration_seconds",
				Help:    "Search execution duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"type"},
		),
		SearchResultCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alexandria_search_result_count",
				Help:    "Number of results returned per search",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
			[]string{"type"},
		),
		ZeroResultSearches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alexandria_zero_result_searches_total",
				Help: "Total number of searches that returned no results",
			},
		),
		FallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alexandria_search_fallbacks_total",
				Help: "Total number of searches downgraded to a simpler strategy",
			},
			[]string{"from", "to"},
		),
		FacetFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alexandria_facet_failures_total",
				Help: "Total number of failed facet dimension queries",
			},
			[]string{"dimension"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alexandria_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alexandria_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		DocumentsIndexed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alexandria_documents_indexed_total",
				Help: "Total number of documents indexed",
			},
		),
		IndexFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alexandria_index_failures_total",
				Help: "Total number of failed document index updates",
			},
		),
		IndexHealth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alexandria_index_health_ratio",
				Help: "Fraction of the corpus with a current index entry",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alexandria_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alexandria_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.SearchesTotal,
		m.SearchDuration,
		m.SearchResultCount,
		m.ZeroResultSearches,
		m.FallbacksTotal,
		m.FacetFailuresTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocumentsIndexed,
		m.IndexFailuresTotal,
		m.IndexHealth,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
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

// CollectDBStats samples sql.DB pool statistics into gauges on a fixed
// interval until the done channel closes.
func (m *Metrics) CollectDBStats(done <-chan struct{}, stats func() (active, idle int), interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			active, idle := stats()
			m.DBConnectionsActive.Set(float64(active))
			m.DBConnectionsIdle.Set(float64(idle))
		}
	}
}
