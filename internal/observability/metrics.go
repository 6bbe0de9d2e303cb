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
	// Ingestion metrics
	IngestionRuns      *prometheus.CounterVec
	IngestionDuration  prometheus.Histogram
	RowsFetched        *prometheus.CounterVec
	RowsInserted       *prometheus.CounterVec
	RecordErrors       *prometheus.CounterVec
	KindFailures       *prometheus.CounterVec
	TriggersSuppressed *prometheus.CounterVec
	CheckpointBlock    *prometheus.GaugeVec
	BalancesReconciled prometheus.Counter
	QueueDepth         prometheus.Gauge

	// Upstream metrics
	UpstreamCallLatency *prometheus.HistogramVec
	UpstreamCalls       *prometheus.CounterVec

	// Pricing metrics
	PriceLookups      *prometheus.CounterVec
	CurrentPriceCache *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "treasury_ledger"
	}

	return &Metrics{
		IngestionRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "runs_total",
			Help:      "Total number of ingestion runs by scope and status",
		}, []string{"scope", "status"}),
		IngestionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "run_duration_seconds",
			Help:      "Ingestion run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		RowsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "rows_fetched_total",
			Help:      "Total number of transfer records returned by connectors",
		}, []string{"kind"}),
		RowsInserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "rows_inserted_total",
			Help:      "Total number of new ledger rows by transfer kind",
		}, []string{"kind"}),
		RecordErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "record_errors_total",
			Help:      "Total number of per-record store errors by transfer kind",
		}, []string{"kind"}),
		KindFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "kind_failures_total",
			Help:      "Total number of connector failures by kind and error class",
		}, []string{"kind", "error_kind"}),
		TriggersSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "triggers_suppressed_total",
			Help:      "Total number of triggers dropped because a run was in flight or the queue was full",
		}, []string{"reason"}),
		CheckpointBlock: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "checkpoint_block",
			Help:      "Last checkpoint block by wallet and transfer kind",
		}, []string{"wallet", "kind"}),
		BalancesReconciled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "balances_written_total",
			Help:      "Total number of balance snapshots written",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "queue_depth",
			Help:      "Current number of queued ingestion tasks",
		}),

		UpstreamCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_latency_seconds",
			Help:      "Upstream HTTP call latency in seconds, including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		UpstreamCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Total number of upstream calls by service and outcome",
		}, []string{"service", "outcome"}),

		PriceLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "historical_lookups_total",
			Help:      "Total number of historical price lookups by outcome",
		}, []string{"outcome"}),
		CurrentPriceCache: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "current_cache_total",
			Help:      "Current-price cache reads by result",
		}, []string{"result"}),

		LastSuccessfulIngestion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last ingestion run without failures",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordIngestionRun records a finished ingestion run.
func RecordIngestionRun(scope, status string, durationSeconds float64) {
	DefaultMetrics.IngestionRuns.WithLabelValues(scope, status).Inc()
	DefaultMetrics.IngestionDuration.Observe(durationSeconds)
}

// RecordBatch records the outcome of one connector batch.
func RecordBatch(kind string, fetched, inserted, errs int) {
	DefaultMetrics.RowsFetched.WithLabelValues(kind).Add(float64(fetched))
	DefaultMetrics.RowsInserted.WithLabelValues(kind).Add(float64(inserted))
	if errs > 0 {
		DefaultMetrics.RecordErrors.WithLabelValues(kind).Add(float64(errs))
	}
}

// RecordKindFailure records a connector failure for a transfer kind.
func RecordKindFailure(kind, errorKind string) {
	DefaultMetrics.KindFailures.WithLabelValues(kind, errorKind).Inc()
}

// RecordSuppressed records a dropped trigger.
func RecordSuppressed(reason string) {
	DefaultMetrics.TriggersSuppressed.WithLabelValues(reason).Inc()
}

// UpdateCheckpoint updates the checkpoint gauge.
func UpdateCheckpoint(wallet, kind string, block int64) {
	DefaultMetrics.CheckpointBlock.WithLabelValues(wallet, kind).Set(float64(block))
}

// RecordBalancesWritten adds to the reconciled balances counter.
func RecordBalancesWritten(n int) {
	DefaultMetrics.BalancesReconciled.Add(float64(n))
}

// UpdateQueueDepth sets the ingestion queue depth gauge.
func UpdateQueueDepth(n int) {
	DefaultMetrics.QueueDepth.Set(float64(n))
}

// RecordUpstreamCall records upstream call latency and outcome.
func RecordUpstreamCall(service, outcome string, seconds float64) {
	DefaultMetrics.UpstreamCallLatency.WithLabelValues(service).Observe(seconds)
	DefaultMetrics.UpstreamCalls.WithLabelValues(service, outcome).Inc()
}

// RecordPriceLookup records a historical price lookup outcome.
func RecordPriceLookup(outcome string) {
	DefaultMetrics.PriceLookups.WithLabelValues(outcome).Inc()
}

// RecordCurrentPrice records a current-price cache read.
func RecordCurrentPrice(result string) {
	DefaultMetrics.CurrentPriceCache.WithLabelValues(result).Inc()
}

// MarkIngestionSuccess sets the last successful ingestion timestamp.
func MarkIngestionSuccess(unix int64) {
	DefaultMetrics.LastSuccessfulIngestion.Set(float64(unix))
}
