package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the indexer.
type Metrics struct {
	// --- Ingestion ---
	MessagesReceived prometheus.Counter
	TimeInQueue      prometheus.Histogram
	ProcessingHeight prometheus.Gauge

	// --- Block processing ---
	BlockDuration  *prometheus.HistogramVec
	BlocksSkipped  *prometheus.CounterVec
	BlockGaps      prometheus.Counter
	CacheResync    *prometheus.CounterVec
	HandlerDur     *prometheus.HistogramVec
	Frontiers      prometheus.Histogram
	UnknownSubtype *prometheus.CounterVec
	CandlesUpdated *prometheus.CounterVec

	// --- Persistence ---
	PersistErrors *prometheus.CounterVec
	CommitDur     prometheus.Histogram

	// --- Outbound ---
	OutboundMessages *prometheus.CounterVec
	PublishErrors    *prometheus.CounterVec

	// --- Reference data ---
	ReferenceRefresh *prometheus.CounterVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics registers all metrics with the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	blockBuckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	return &Metrics{
		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "ender_messages_received_total",
			Help: "Block messages received from the bus",
		}),

		TimeInQueue: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ender_message_time_in_queue_seconds",
			Help:    "Bus publish time to receive time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),

		ProcessingHeight: f.NewGauge(prometheus.GaugeOpts{
			Name: "ender_processing_block_height",
			Help: "Height of the block being processed",
		}),

		BlockDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ender_block_processing_duration_seconds",
			Help:    "Receive to commit duration of one block",
			Buckets: blockBuckets,
		}, []string{"success"}),

		BlocksSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ender_blocks_skipped_total",
			Help: "Blocks skipped by the height gate",
		}, []string{"reason"}),

		BlockGaps: f.NewCounter(prometheus.CounterOpts{
			Name: "ender_block_gaps_total",
			Help: "Blocks received with a height gap after resync",
		}),

		CacheResync: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ender_cache_resync_total",
			Help: "Read cache resyncs from the store",
		}, []string{"status"}),

		HandlerDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ender_handler_duration_seconds",
			Help:    "Time to apply one event handler",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"subtype", "status"}),

		Frontiers: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ender_scheduler_frontiers",
			Help:    "Frontiers per block",
			Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100},
		}),

		UnknownSubtype: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ender_unknown_subtype_total",
			Help: "Events skipped because no handler is registered",
		}, []string{"subtype"}),

		CandlesUpdated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ender_candles_updated_total",
			Help: "Candle rows written",
		}, []string{"resolution"}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ender_persist_errors_total",
			Help: "Store errors by stage",
		}, []string{"error_type"}),

		CommitDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ender_commit_duration_seconds",
			Help:    "Postgres commit duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		OutboundMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ender_outbound_messages_total",
			Help: "Messages published downstream",
		}, []string{"topic"}),

		PublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ender_outbound_publish_errors_total",
			Help: "Failed downstream publishes",
		}, []string{"topic"}),

		ReferenceRefresh: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ender_reference_refresh_total",
			Help: "Reference data refreshes",
		}, []string{"status"}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ender_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ender_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
