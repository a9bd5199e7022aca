package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the platform.
type Metrics struct {
	// --- Engine ---
	OpsTotal       *prometheus.CounterVec
	OpsRejected    *prometheus.CounterVec
	OpDuration     *prometheus.HistogramVec
	EventsRecorded *prometheus.CounterVec
	EngineSequence prometheus.Gauge
	EscrowBalance  *prometheus.GaugeVec

	// --- Channel & backpressure ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
	ProjectionDropped  prometheus.Counter
	PublishDropped     prometheus.Counter

	// --- Idempotency ---
	DuplicatesCaught  *prometheus.CounterVec
	DedupLRUSize      prometheus.Gauge
	DedupLRUEvictions prometheus.Counter

	// --- Persistence ---
	EventsPersisted      prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDuration prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetries       prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Projections ---
	ProjectionApplied        *prometheus.CounterVec
	ProjectionUpdateDuration *prometheus.HistogramVec
	ProjectionLastSequence   prometheus.Gauge

	// --- Snapshot & replay ---
	SnapshotsTaken       prometheus.Counter
	SnapshotDuration     prometheus.Histogram
	SnapshotSizeBytes    prometheus.Gauge
	SnapshotLastSequence prometheus.Gauge
	ReplayedEvents       prometheus.Counter
	ReplayDuration       prometheus.Gauge

	// --- Outbound publishing ---
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	dbBuckets := []float64{
		0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
	}

	return &Metrics{
		// Engine
		OpsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_ops_total",
			Help: "Operations processed, by outcome",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_ops_rejected_total",
			Help: "Operations rejected by business rules",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rwa_op_duration_seconds",
			Help:    "Time to run one engine operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_events_recorded_total",
			Help: "Audit events sealed into the chain",
		}, []string{"event_type"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_engine_sequence",
			Help: "Next global sequence number",
		}),

		EscrowBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rwa_escrow_balance",
			Help: "Current balance of each custody account",
		}, []string{"account", "token"}),

		// Channel & backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rwa_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rwa_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rwa_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_projection_drops_total",
			Help: "Events dropped due to full projection channel",
		}),

		PublishDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		// Idempotency
		DuplicatesCaught: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_idempotency_duplicates_total",
			Help: "Duplicate commands caught, by tier (lru/store)",
		}, []string{"command", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		// Persistence
		EventsPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rwa_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rwa_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: dbBuckets,
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"stage"}),

		PersistRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Projections
		ProjectionApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_projection_applied_total",
			Help: "Events applied to projection tables",
		}, []string{"projection"}),

		ProjectionUpdateDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rwa_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: dbBuckets,
		}, []string{"projection"}),

		ProjectionLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_projection_last_sequence",
			Help: "Watermark of the projection tables",
		}),

		// Snapshot & replay
		SnapshotsTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rwa_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_replay_events_total",
			Help: "Events replayed on startup",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rwa_replay_duration_seconds",
			Help: "Total replay time",
		}),

		// Outbound publishing
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rwa_events_published_total",
			Help: "Audit events published to NATS",
		}, []string{"event_type"}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rwa_publish_errors_total",
			Help: "Failed outbound publishes",
		}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
