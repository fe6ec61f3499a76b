package rmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Item store metrics
	ItemsSavedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_items_saved_total",
			Help: "Total number of items saved by item type",
		},
		[]string{"item_type"},
	)

	ItemsDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_items_deleted_total",
			Help: "Total number of items deleted by item type",
		},
		[]string{"item_type"},
	)

	// Index maintainer metrics
	IndexUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_index_updates_total",
			Help: "Total number of index maintainer invocations by index name and kind",
		},
		[]string{"index", "kind"},
	)

	IndexUniquenessViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_index_uniqueness_violations_total",
			Help: "Total number of rejected writes due to a unique scalar index conflict",
		},
		[]string{"index"},
	)

	// Online index builder metrics
	IndexBuildBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_index_build_batches_total",
			Help: "Total number of online index build batches committed",
		},
		[]string{"index"},
	)

	IndexBuildItemsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_index_build_items_processed_total",
			Help: "Total number of items processed by the online index builder",
		},
		[]string{"index"},
	)

	IndexState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_index_state",
			Help: "Current index state (0=readable, 1=disabled, 2=writeOnly)",
		},
		[]string{"index"},
	)

	// Change-tracking session metrics
	SessionSaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_session_save_duration_seconds",
			Help:    "Time taken for a session save (transaction open through commit) in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SessionSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_session_saves_total",
			Help: "Total number of session saves by outcome",
		},
		[]string{"outcome"},
	)

	SessionPendingChanges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_session_pending_changes",
			Help: "Number of pending inserts/deletes across all open sessions at last sample",
		},
	)

	// Schema/migration metrics
	MigrationsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_migrations_applied_total",
			Help: "Total number of migrations applied by outcome",
		},
		[]string{"outcome"},
	)

	// KV Store metrics
	KVTransactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_kv_transaction_duration_seconds",
			Help:    "Time taken for a KV Store transaction to commit in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	KVTransactionRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_kv_transaction_retries_total",
			Help: "Total number of KV Store transaction retries due to conflicts",
		},
	)
)

func init() {
	prometheus.MustRegister(ItemsSavedTotal)
	prometheus.MustRegister(ItemsDeletedTotal)
	prometheus.MustRegister(IndexUpdatesTotal)
	prometheus.MustRegister(IndexUniquenessViolationsTotal)
	prometheus.MustRegister(IndexBuildBatchesTotal)
	prometheus.MustRegister(IndexBuildItemsProcessed)
	prometheus.MustRegister(IndexState)
	prometheus.MustRegister(SessionSaveDuration)
	prometheus.MustRegister(SessionSavesTotal)
	prometheus.MustRegister(SessionPendingChanges)
	prometheus.MustRegister(MigrationsAppliedTotal)
	prometheus.MustRegister(KVTransactionDuration)
	prometheus.MustRegister(KVTransactionRetriesTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
