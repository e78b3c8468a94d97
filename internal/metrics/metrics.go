package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chainIndexer/internal/model"
)

const namespace = "indexer"

// Metrics holds the Prometheus collectors of the indexer. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Sync coordinator
	LastIndexedBlock prometheus.Gauge
	SyncStatus       *prometheus.GaugeVec
	TickErrorsTotal  prometheus.Counter

	// Block processor
	BlocksProcessedTotal prometheus.Counter
	TransactionsTotal    prometheus.Counter
	EventsTotal          prometheus.Counter
	BlockDuration        prometheus.Histogram

	// Decoder
	DecoderResultsTotal *prometheus.CounterVec

	// Bridge reconciler
	BridgePaymentsTotal   *prometheus.CounterVec
	BridgeLastSyncedBlock prometheus.Gauge
	BridgeCycleErrors     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// registers nothing, which keeps tests independent of the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LastIndexedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_indexed_block",
			Help:      "Highest block number persisted by the sync coordinator",
		}),
		SyncStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "status",
			Help:      "Current sync status (1 for the active state)",
		}, []string{"status"}),
		TickErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "tick_errors_total",
			Help:      "Total number of failed polling ticks",
		}),

		BlocksProcessedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "blocks_total",
			Help:      "Total number of blocks processed",
		}),
		TransactionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "transactions_total",
			Help:      "Total number of transactions processed",
		}),
		EventsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "events_total",
			Help:      "Total number of logs processed",
		}),
		BlockDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "block_duration_seconds",
			Help:      "Time spent fetching, decoding and saving one block",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),

		DecoderResultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "results_total",
			Help:      "Decode attempts by result",
		}, []string{"result"}),

		BridgePaymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "payments_total",
			Help:      "Bridge payments seen, by whether they were newly inserted",
		}, []string{"result"}),
		BridgeLastSyncedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "last_synced_block",
			Help:      "Highest destination-chain block scanned for payments",
		}),
		BridgeCycleErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "cycle_errors_total",
			Help:      "Total number of failed reconciler cycles",
		}),
	}
}

// SetSyncStatus marks status as the active state.
func (m *Metrics) SetSyncStatus(status model.SyncStatus) {
	if m == nil {
		return
	}
	for _, s := range []model.SyncStatus{model.SyncStatusIdle, model.SyncStatusSyncing, model.SyncStatusRealtime} {
		value := 0.0
		if s == status {
			value = 1
		}
		m.SyncStatus.WithLabelValues(string(s)).Set(value)
	}
}

func (m *Metrics) SetLastIndexedBlock(number uint64) {
	if m == nil {
		return
	}
	m.LastIndexedBlock.Set(float64(number))
}

func (m *Metrics) TickError() {
	if m == nil {
		return
	}
	m.TickErrorsTotal.Inc()
}

// BlockProcessed records one saved block.
func (m *Metrics) BlockProcessed(txs, events int, seconds float64) {
	if m == nil {
		return
	}
	m.BlocksProcessedTotal.Inc()
	m.TransactionsTotal.Add(float64(txs))
	m.EventsTotal.Add(float64(events))
	m.BlockDuration.Observe(seconds)
}

func (m *Metrics) DecodeResult(decoded bool) {
	if m == nil {
		return
	}
	result := "undecoded"
	if decoded {
		result = "decoded"
	}
	m.DecoderResultsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) BridgePayment(inserted bool) {
	if m == nil {
		return
	}
	result := "duplicate"
	if inserted {
		result = "inserted"
	}
	m.BridgePaymentsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetBridgeLastSyncedBlock(number uint64) {
	if m == nil {
		return
	}
	m.BridgeLastSyncedBlock.Set(float64(number))
}

func (m *Metrics) BridgeCycleError() {
	if m == nil {
		return
	}
	m.BridgeCycleErrors.Inc()
}
