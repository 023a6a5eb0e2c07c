// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Query metrics
	QueriesTotal      *prometheus.CounterVec
	QueryDuration     *prometheus.HistogramVec
	ProbabilitySource *prometheus.CounterVec
	PropsPerQuery     prometheus.Histogram

	// Bitmap cache metrics
	BitmapCacheHits   prometheus.Counter
	BitmapCacheMisses prometheus.Counter
	BitmapCorrupt     prometheus.Counter

	// Catalog metrics
	CatalogFetchDuration *prometheus.HistogramVec
	CatalogFetchErrors   *prometheus.CounterVec

	// Batch metrics
	BatchRefreshes  *prometheus.CounterVec
	CurrentNumSims  prometheus.Gauge
	LastBatchLoaded prometheus.Gauge

	// Query log metrics
	QueryLogWrites *prometheus.CounterVec

	// Ingestion metrics
	BitmapsIngested prometheus.Counter
	IngestDuration  prometheus.Histogram

	// API metrics
	HTTPRequests  *prometheus.CounterVec
	WSConnections prometheus.Gauge
	UptimeSeconds prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pickem_lab"
	}

	return &Metrics{
		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "total",
			Help:      "Total number of probability queries by kind and status",
		}, []string{"kind", "status"}),
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Probability query latency in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"kind"}),
		ProbabilitySource: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "probability_source_total",
			Help:      "Single-prop answers by source (stats table or bitmap fallback)",
		}, []string{"source"}),
		PropsPerQuery: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "props_per_query",
			Help:      "Number of props in correlated queries",
			Buckets:   []float64{2, 3, 4, 5, 6, 7, 8},
		}),

		BitmapCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bitmap_cache",
			Name:      "hits_total",
			Help:      "Decoded bitmap cache hits",
		}),
		BitmapCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bitmap_cache",
			Name:      "misses_total",
			Help:      "Decoded bitmap cache misses",
		}),
		BitmapCorrupt: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bitmap_cache",
			Name:      "corrupt_total",
			Help:      "Stored bitmaps that failed to decode",
		}),

		CatalogFetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "fetch_duration_seconds",
			Help:      "Simulation catalog fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		CatalogFetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "fetch_errors_total",
			Help:      "Simulation catalog fetch errors (not found excluded)",
		}, []string{"operation"}),

		BatchRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "refreshes_total",
			Help:      "Batch refresh attempts by result",
		}, []string{"result"}),
		CurrentNumSims: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "num_sims",
			Help:      "num_sims of the batch currently served",
		}),
		LastBatchLoaded: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "last_loaded_timestamp",
			Help:      "Unix timestamp of the last batch swap",
		}),

		QueryLogWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query_log",
			Name:      "writes_total",
			Help:      "Query log writes by status",
		}, []string{"status"}),

		BitmapsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "bitmaps_total",
			Help:      "Total number of player bitmaps written to the catalog",
		}),
		IngestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duration_seconds",
			Help:      "Batch load duration in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120},
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "ws_connections",
			Help:      "Open WebSocket connections",
		}),
		UptimeSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds",
			Help:      "Seconds since the server started",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordQuery records one query of the given kind.
func RecordQuery(kind string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.QueriesTotal.WithLabelValues(kind, status).Inc()
	DefaultMetrics.QueryDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordProbabilitySource records which source answered a single-prop query.
func RecordProbabilitySource(source string) {
	DefaultMetrics.ProbabilitySource.WithLabelValues(source).Inc()
}

// RecordPropsPerQuery records the prop count of a correlated query.
func RecordPropsPerQuery(n int) {
	DefaultMetrics.PropsPerQuery.Observe(float64(n))
}

// RecordBitmapCache records a decoded bitmap cache lookup.
func RecordBitmapCache(hit bool) {
	if hit {
		DefaultMetrics.BitmapCacheHits.Inc()
		return
	}
	DefaultMetrics.BitmapCacheMisses.Inc()
}

// RecordBitmapCorrupt increments the corrupt bitmap counter.
func RecordBitmapCorrupt() {
	DefaultMetrics.BitmapCorrupt.Inc()
}

// RecordCatalogFetch records catalog fetch metrics.
// Pass notFound=true to skip the error counter for absent records.
func RecordCatalogFetch(operation string, seconds float64, err error, notFound bool) {
	DefaultMetrics.CatalogFetchDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil && !notFound {
		DefaultMetrics.CatalogFetchErrors.WithLabelValues(operation).Inc()
	}
}

// RecordBatchRefresh records a refresh attempt. result is "swapped",
// "unchanged" or "error".
func RecordBatchRefresh(result string) {
	DefaultMetrics.BatchRefreshes.WithLabelValues(result).Inc()
}

// UpdateBatch updates the current batch gauges.
func UpdateBatch(numSims uint64, loadedAtUnix int64) {
	DefaultMetrics.CurrentNumSims.Set(float64(numSims))
	DefaultMetrics.LastBatchLoaded.Set(float64(loadedAtUnix))
}

// RecordQueryLogWrite records a query log insert.
func RecordQueryLogWrite(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.QueryLogWrites.WithLabelValues(status).Inc()
}

// RecordIngest records a completed batch load.
func RecordIngest(bitmaps int, seconds float64) {
	DefaultMetrics.BitmapsIngested.Add(float64(bitmaps))
	DefaultMetrics.IngestDuration.Observe(seconds)
}

// RecordHTTPRequest records an HTTP response.
func RecordHTTPRequest(route string, code int) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, httpCode(code)).Inc()
}

// AddWSConnections adjusts the open WebSocket gauge.
func AddWSConnections(delta int) {
	DefaultMetrics.WSConnections.Add(float64(delta))
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// SetUptime records seconds since the server started.
func SetUptime(seconds float64) {
	DefaultMetrics.UptimeSeconds.Set(seconds)
}
