package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/scalarorg/ismp-relayer/pkg/metrics"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	m.StatusTransition("EVM-97", "EVM-1", "SourceFinalized")
	m.StatusTransition("EVM-97", "EVM-1", "SourceFinalized")
	m.TimeoutTransition("EVM-97", "EVM-1", "HyperbridgeFinalized")
	m.StreamError("status", "Dispatched")

	done := m.StreamStarted("status")
	count, err := testutil.GatherAndCount(m.Registry(), "ismp_relayer_active_streams")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	done()

	count, err = testutil.GatherAndCount(m.Registry(),
		"ismp_relayer_status_transitions_total",
		"ismp_relayer_timeout_transitions_total",
		"ismp_relayer_stream_errors_total",
		"ismp_relayer_stream_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	m.StatusTransition("EVM-97", "EVM-1", "Pending")
	m.StreamError("timeout", "Pending")
	m.StreamStarted("status")()
	require.Nil(t, m.Registry())
}
