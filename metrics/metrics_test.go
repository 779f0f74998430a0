package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersAndLatencyObservations(t *testing.T) {
	r := New()

	r.ChunksStored.Inc()
	r.BytesWritten.Add(1024)
	r.ObserveStoreLatency(150)
	r.ObserveStoreLatency(300)

	metricFamilies, err := r.Gatherer().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, metricFamilies)

	q := r.StoreLatencyQuantiles()
	require.GreaterOrEqual(t, q.P99, q.P50)
}

func TestReductionRatioMatchesManualComputation(t *testing.T) {
	ratio := ReductionRatio(1000, 400)
	require.InDelta(t, 0.6, ratio, 1e-6)

	require.Equal(t, 0.0, ReductionRatio(0, 0))
}

func TestRatioHandlesZeroDenominator(t *testing.T) {
	require.Equal(t, 0.0, Ratio(5, 0))
	require.InDelta(t, 0.5, Ratio(1, 2), 1e-6)
}
