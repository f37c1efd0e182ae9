package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Upload Metrics
	UploadsTotal        *prometheus.CounterVec
	UploadDuration      prometheus.Histogram
	UploadSizeBytes     prometheus.Histogram
	RecordsLoaded       *prometheus.GaugeVec
	NormalizationErrors *prometheus.CounterVec
	SnapshotVersion     prometheus.Gauge

	// Query Metrics
	SearchesTotal       *prometheus.CounterVec
	SummaryCacheHits    prometheus.Counter
	SummaryCacheMisses  prometheus.Counter
	SummaryCacheHitRate prometheus.Gauge

	// Database Metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBConnectionPool *prometheus.GaugeVec
	DBErrorsTotal    *prometheus.CounterVec

	cacheMu     sync.Mutex
	cacheHits   float64
	cacheMisses float64
}

// NewCollector creates a new metrics collector registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		UploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Total number of workbook uploads by outcome",
			},
			[]string{"outcome"},
		),

		UploadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_duration_seconds",
				Help:      "Duration of workbook load operations in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		UploadSizeBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_size_bytes",
				Help:      "Size of uploaded workbooks in bytes",
				Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 10),
			},
		),

		RecordsLoaded: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "records_loaded",
				Help:      "Number of result records in the current table by stream",
			},
			[]string{"stream"},
		),

		NormalizationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "normalization_errors_total",
				Help:      "Total number of rejected workbooks by error kind",
			},
			[]string{"error_type"},
		),

		SnapshotVersion: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_version",
				Help:      "Version of the currently published result table",
			},
		),

		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Total number of student result searches by outcome",
			},
			[]string{"outcome"},
		),

		SummaryCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summary_cache_hits_total",
				Help:      "Grade summary cache hits",
			},
		),

		SummaryCacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summary_cache_misses_total",
				Help:      "Grade summary cache misses",
			},
		),

		SummaryCacheHitRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "summary_cache_hit_ratio",
				Help:      "Cache hit ratio for grade summary queries",
			},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),
	}
}

// NewTestCollector returns a collector on a private registry
func NewTestCollector() *Collector {
	return NewCollector("test", prometheus.NewRegistry())
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordUpload increments the upload counter for an outcome
func (c *Collector) RecordUpload(outcome string) {
	c.UploadsTotal.WithLabelValues(outcome).Inc()
}

// RecordNormalizationError increments the rejected workbook counter
func (c *Collector) RecordNormalizationError(errorType string) {
	c.NormalizationErrors.WithLabelValues(errorType).Inc()
}

// RecordSearch increments the search counter for an outcome
func (c *Collector) RecordSearch(outcome string) {
	c.SearchesTotal.WithLabelValues(outcome).Inc()
}

// RecordSummaryCache records a summary cache lookup and updates the hit ratio
func (c *Collector) RecordSummaryCache(hit bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if hit {
		c.cacheHits++
		c.SummaryCacheHits.Inc()
	} else {
		c.cacheMisses++
		c.SummaryCacheMisses.Inc()
	}
	c.SummaryCacheHitRate.Set(c.cacheHits / (c.cacheHits + c.cacheMisses))
}

// SetRecordsLoaded publishes per-stream record counts of the current table
func (c *Collector) SetRecordsLoaded(stream string, n int) {
	c.RecordsLoaded.WithLabelValues(stream).Set(float64(n))
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}
