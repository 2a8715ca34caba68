// Package metrics declares zerovault's Prometheus instruments, shaped
// directly on the teacher's pkg/metrics: package-level vars, an init
// that registers them all, and a Timer helper for histogram
// observations — retargeted from cluster/container gauges to the sync
// cycle, the broker, and the embedded engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sync cycle metrics (C9)
	SyncState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zerovault_sync_state",
			Help: "Current sync state: 0=idle 1=pulling 2=merging 3=pushing 4=failed",
		},
	)

	SyncCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zerovault_sync_cycles_total",
			Help: "Total number of sync cycles by outcome",
		},
		[]string{"outcome"},
	)

	SyncCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zerovault_sync_cycle_duration_seconds",
			Help:    "Time taken for a full pull-merge-push sync cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncEntriesPulled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zerovault_sync_entries_pulled_total",
			Help: "Total number of changelog entries merged in from remote authors",
		},
	)

	SyncEntriesPushed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zerovault_sync_entries_pushed_total",
			Help: "Total number of changelog entries published to the remote",
		},
	)

	SyncBytesPushed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zerovault_sync_bytes_pushed_total",
			Help: "Total encoded bytes written to the remote by pushes",
		},
	)

	// Engine metrics (C2)
	EngineQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zerovault_engine_query_duration_seconds",
			Help:    "Query/exec duration in seconds by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	EngineWriteTxnTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zerovault_engine_write_txn_total",
			Help: "Total write transactions by outcome",
		},
		[]string{"outcome"},
	)

	// Broker metrics (C5)
	BrokerSubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zerovault_broker_subscriptions_active",
			Help: "Currently active subscriptions",
		},
	)

	BrokerDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zerovault_broker_deliveries_total",
			Help: "Total subscription deliveries by outcome",
		},
		[]string{"outcome"},
	)

	BrokerRecomputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zerovault_broker_recompute_duration_seconds",
			Help:    "Time taken to recompute a subscription's result",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Changelog metrics (C3/C4)
	ChangelogWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zerovault_changelog_writes_total",
			Help: "Total Writer.Save/Delete calls by outcome",
		},
		[]string{"outcome"},
	)

	ChangelogMergeConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zerovault_changelog_merge_lww_overwrites_total",
			Help: "Total field merges where an incoming change won over an existing local winner",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SyncState,
		SyncCyclesTotal,
		SyncCycleDuration,
		SyncEntriesPulled,
		SyncEntriesPushed,
		SyncBytesPushed,
		EngineQueryDuration,
		EngineWriteTxnTotal,
		BrokerSubscriptionsActive,
		BrokerDeliveriesTotal,
		BrokerRecomputeDuration,
		ChangelogWritesTotal,
		ChangelogMergeConflictsTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation for later histogram observation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer { return &Timer{start: time.Now()} }

func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(h prometheus.ObserverVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration { return time.Since(t.start) }
