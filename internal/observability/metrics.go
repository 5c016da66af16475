// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indexer.
type Metrics struct {
	// Ingestion metrics
	EventsApplied   *prometheus.CounterVec
	EventsDuplicate *prometheus.CounterVec
	EventsIgnored   *prometheus.CounterVec
	EventErrors     *prometheus.CounterVec
	PendingBuffered prometheus.Counter
	PendingDropped  prometheus.Counter
	ChunksProcessed *prometheus.CounterVec
	CursorPosition  *prometheus.GaugeVec
	ChainHead       *prometheus.GaugeVec
	BackfillLag     *prometheus.GaugeVec
	LiveReconnects  *prometheus.CounterVec

	// Ledger metrics
	PoolsCreated  *prometheus.CounterVec
	PoolsLaunched *prometheus.CounterVec
	TradesStored  *prometheus.CounterVec

	// Latency metrics
	RangeFetchLatency *prometheus.HistogramVec
	ApplyLatency      *prometheus.HistogramVec
	RPCCallLatency    *prometheus.HistogramVec

	// Fanout metrics
	FanoutPublished prometheus.Counter
	FanoutDropped   prometheus.Counter
	TicksArchived   prometheus.Counter
	TicksDropped    prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastAppliedEvent *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "curve_indexer"
	}

	return &Metrics{
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_applied_total",
			Help:      "Total number of domain events applied to the ledger",
		}, []string{"network", "kind"}),
		EventsDuplicate: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_duplicate_total",
			Help:      "Total number of replayed events skipped as duplicates",
		}, []string{"network", "kind"}),
		EventsIgnored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_ignored_total",
			Help:      "Total number of events ignored as noise",
		}, []string{"network", "kind"}),
		EventErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "event_errors_total",
			Help:      "Total number of event application errors",
		}, []string{"network", "kind"}),
		PendingBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "pending_events_buffered_total",
			Help:      "Total number of events buffered awaiting token creation",
		}),
		PendingDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "pending_events_dropped_total",
			Help:      "Total number of buffered events dropped after the retry window",
		}),
		ChunksProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "chunks_processed_total",
			Help:      "Total number of backfill chunks processed by status",
		}, []string{"network", "status"}),
		CursorPosition: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "cursor_position",
			Help:      "Last fully processed chain position per network",
		}, []string{"network"}),
		ChainHead: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "chain_head",
			Help:      "Latest observed chain head per network",
		}, []string{"network"}),
		BackfillLag: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "backfill_lag",
			Help:      "Distance between chain head and cursor per network",
		}, []string{"network"}),
		LiveReconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "live_reconnects_total",
			Help:      "Total number of live subscription reconnects",
		}, []string{"network"}),

		PoolsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "pools_created_total",
			Help:      "Total number of token pools created",
		}, []string{"network"}),
		PoolsLaunched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "pools_launched_total",
			Help:      "Total number of token pools migrated to an external exchange",
		}, []string{"network"}),
		TradesStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "trades_stored_total",
			Help:      "Total number of trades stored by side",
		}, []string{"network", "side"}),

		RangeFetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "range_fetch_latency_seconds",
			Help:      "Chain range fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"network"}),
		ApplyLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "apply_latency_seconds",
			Help:      "Ledger event application latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"network"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "Chain RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		FanoutPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "updates_published_total",
			Help:      "Total number of trade updates published to subscribers",
		}),
		FanoutDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "updates_dropped_total",
			Help:      "Total number of trade updates dropped by slow subscribers",
		}),
		TicksArchived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "ticks_archived_total",
			Help:      "Total number of trade ticks archived to the timeseries store",
		}),
		TicksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "ticks_dropped_total",
			Help:      "Total number of trade ticks dropped under backpressure",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastAppliedEvent: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_applied_event_timestamp",
			Help:      "Unix timestamp of the last applied event per network",
		}, []string{"network"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordApplied increments the applied counter and refreshes health.
func RecordApplied(network, kind string, timestampMs int64) {
	DefaultMetrics.EventsApplied.WithLabelValues(network, kind).Inc()
	DefaultMetrics.LastAppliedEvent.WithLabelValues(network).Set(float64(timestampMs) / 1000)
}

// RecordDuplicate increments the duplicate counter.
func RecordDuplicate(network, kind string) {
	DefaultMetrics.EventsDuplicate.WithLabelValues(network, kind).Inc()
}

// RecordIgnored increments the ignored counter.
func RecordIgnored(network, kind string) {
	DefaultMetrics.EventsIgnored.WithLabelValues(network, kind).Inc()
}

// RecordEventError increments the error counter.
func RecordEventError(network, kind string) {
	DefaultMetrics.EventErrors.WithLabelValues(network, kind).Inc()
}

// RecordChunk records one backfill chunk by status.
func RecordChunk(network, status string) {
	DefaultMetrics.ChunksProcessed.WithLabelValues(network, status).Inc()
}

// UpdateCursor updates the cursor and lag gauges.
func UpdateCursor(network string, position, head uint64) {
	DefaultMetrics.CursorPosition.WithLabelValues(network).Set(float64(position))
	DefaultMetrics.ChainHead.WithLabelValues(network).Set(float64(head))
	if head >= position {
		DefaultMetrics.BackfillLag.WithLabelValues(network).Set(float64(head - position))
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
