// Package metrics provides Prometheus instrumentation for the risk platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskinsights",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskinsights",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PipelineRunsTotal counts pipeline runs by final status.
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskinsights",
			Name:      "pipeline_runs_total",
			Help:      "Total pipeline runs by final status.",
		},
		[]string{"status"},
	)

	// PipelineStageDuration observes per-stage pipeline latency.
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskinsights",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"stage"},
	)

	// PipelineStageFailuresTotal counts stage failures by stage.
	PipelineStageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskinsights",
			Name:      "pipeline_stage_failures_total",
			Help:      "Total pipeline stage failures by stage.",
		},
		[]string{"stage"},
	)

	// ETLRowsLoaded tracks rows loaded into the datamart by table.
	ETLRowsLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "riskinsights",
			Name:      "etl_rows_loaded",
			Help:      "Rows loaded into the datamart by the last ETL run, per table.",
		},
		[]string{"table"},
	)

	// AnomaliesFlagged tracks anomalies flagged by the last scoring run.
	AnomaliesFlagged = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskinsights", Name: "anomalies_flagged",
		Help: "Transactions flagged as anomalous by the last run.",
	})
	// AvgDefaultRisk tracks the mean default risk of the last run.
	AvgDefaultRisk = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskinsights", Name: "avg_default_risk",
		Help: "Mean default-risk probability over accounts in the last run.",
	})
	// AvgChurnRisk tracks the mean churn risk of the last run.
	AvgChurnRisk = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskinsights", Name: "avg_churn_risk",
		Help: "Mean churn-risk probability over clients in the last run.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskinsights", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskinsights", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskinsights", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskinsights", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskinsights", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskinsights", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PipelineRunsTotal,
		PipelineStageDuration,
		PipelineStageFailuresTotal,
		ETLRowsLoaded,
		AnomaliesFlagged,
		AvgDefaultRisk,
		AvgChurnRisk,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RunSink receives the summary metrics of a pipeline run and publishes the
// known keys as gauges. Unknown keys are ignored.
type RunSink struct{}

// Record publishes one run's metrics map.
func (RunSink) Record(values map[string]float64) {
	gauges := map[string]prometheus.Gauge{
		"anomalies_flagged": AnomaliesFlagged,
		"avg_default_risk":  AvgDefaultRisk,
		"avg_churn_risk":    AvgChurnRisk,
	}
	for key, g := range gauges {
		if v, ok := values[key]; ok {
			g.Set(v)
		}
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
