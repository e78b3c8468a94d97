package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"chainIndexer/internal/model"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SetSyncStatus(model.SyncStatusRealtime)
	m.BlockProcessed(1, 2, 0.1)
	m.DecodeResult(true)
	m.BridgePayment(false)
	m.BridgeCycleError()
}

func TestSyncStatusIsExclusive(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetSyncStatus(model.SyncStatusSyncing)
	m.SetSyncStatus(model.SyncStatusRealtime)

	require.Equal(t, 1.0, testutil.ToFloat64(m.SyncStatus.WithLabelValues("realtime")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.SyncStatus.WithLabelValues("syncing")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.SyncStatus.WithLabelValues("idle")))
}

func TestCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.BlockProcessed(3, 5, 0.2)
	m.DecodeResult(true)
	m.DecodeResult(false)
	m.DecodeResult(false)
	m.BridgePayment(true)
	m.SetLastIndexedBlock(105)

	require.Equal(t, 1.0, testutil.ToFloat64(m.BlocksProcessedTotal))
	require.Equal(t, 3.0, testutil.ToFloat64(m.TransactionsTotal))
	require.Equal(t, 5.0, testutil.ToFloat64(m.EventsTotal))
	require.Equal(t, 2.0, testutil.ToFloat64(m.DecoderResultsTotal.WithLabelValues("undecoded")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.BridgePaymentsTotal.WithLabelValues("inserted")))
	require.Equal(t, 105.0, testutil.ToFloat64(m.LastIndexedBlock))
}
