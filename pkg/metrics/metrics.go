package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Event store metrics
	EventsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warrenflow_events_total",
			Help: "Total number of events by status",
		},
		[]string{"status"},
	)

	EventsAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warrenflow_events_appended_total",
			Help: "Total number of events appended by kind",
		},
		[]string{"kind"},
	)

	EventsClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrenflow_events_claimed_total",
			Help: "Total number of events claimed for processing",
		},
	)

	EventsReleasedStale = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrenflow_events_released_stale_total",
			Help: "Total number of claims released after exceeding their claim TTL",
		},
	)

	// Watcher metrics
	WatchEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warrenflow_watch_events_total",
			Help: "Total number of filesystem events observed by kind",
		},
		[]string{"kind"},
	)

	WatcherOverflowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrenflow_watcher_overflows_total",
			Help: "Total number of fsnotify queue overflows",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warrenflow_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrenflow_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	ReconciliationDiscrepancies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warrenflow_reconciliation_discrepancies_total",
			Help: "Total number of discrepancies found during reconciliation by kind",
		},
		[]string{"kind"},
	)

	// Workflow engine metrics
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warrenflow_runs_total",
			Help: "Total number of workflow runs by terminal status",
		},
		[]string{"status"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warrenflow_run_duration_seconds",
			Help:    "Workflow run duration in seconds by workflow_id",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"workflow_id"},
	)

	NodeExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warrenflow_node_execution_duration_seconds",
			Help:    "Node execution duration in seconds by node_type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node_type"},
	)

	NodeRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warrenflow_node_retries_total",
			Help: "Total number of node execution retries by node_type",
		},
		[]string{"node_type"},
	)

	NodesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrenflow_nodes_skipped_total",
			Help: "Total number of nodes skipped due to an upstream failure",
		},
	)

	// Log sink metrics
	LogsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warrenflow_logs_ingested_total",
			Help: "Total number of log entries ingested by project and level",
		},
		[]string{"project", "level"},
	)

	LogsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrenflow_logs_dropped_total",
			Help: "Total number of log entries dropped because the ring buffer was full",
		},
	)

	LogFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warrenflow_log_flush_duration_seconds",
			Help:    "Time taken to flush a batch of log entries to storage",
			Buckets: prometheus.DefBuckets,
		},
	)

	LogRetentionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warrenflow_log_retention_duration_seconds",
			Help:    "Time taken for a retention pipeline pass (compress, cleanup, expire)",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	LogsCompressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrenflow_logs_compressed_total",
			Help: "Total number of log entries moved into compressed archive segments",
		},
	)

	LogsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrenflow_logs_expired_total",
			Help: "Total number of log entries permanently deleted by the retention pipeline",
		},
	)

	// Auth gate metrics
	AuthDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warrenflow_auth_decisions_total",
			Help: "Total number of authorization decisions by outcome",
		},
		[]string{"outcome"},
	)

	RateLimitRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warrenflow_rate_limit_rejected_total",
			Help: "Total number of requests rejected by the per-key rate limiter",
		},
	)

	// HTTP API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warrenflow_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warrenflow_api_request_duration_seconds",
			Help:    "API request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(EventsAppended)
	prometheus.MustRegister(EventsClaimed)
	prometheus.MustRegister(EventsReleasedStale)
	prometheus.MustRegister(WatchEventsTotal)
	prometheus.MustRegister(WatcherOverflowsTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationDiscrepancies)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(NodeExecutionDuration)
	prometheus.MustRegister(NodeRetriesTotal)
	prometheus.MustRegister(NodesSkippedTotal)
	prometheus.MustRegister(LogsIngested)
	prometheus.MustRegister(LogsDroppedTotal)
	prometheus.MustRegister(LogFlushDuration)
	prometheus.MustRegister(LogRetentionDuration)
	prometheus.MustRegister(LogsCompressedTotal)
	prometheus.MustRegister(LogsExpiredTotal)
	prometheus.MustRegister(AuthDecisionsTotal)
	prometheus.MustRegister(RateLimitRejectedTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
