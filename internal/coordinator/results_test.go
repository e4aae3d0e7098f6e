package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbench/ledgerbench/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	concurrency := 16
	cfg.Workload.Concurrency = &concurrency

	return cfg
}

func TestAggregateStats_ComputesMeanStddevCV(t *testing.T) {
	stats := newAggregateStats([]float64{90, 100, 110})

	assert.InDelta(t, 100.0, stats.Mean, 0.001)
	assert.InDelta(t, 8.16496, stats.Stddev, 0.001)
	assert.InDelta(t, 0.0816496, stats.CV, 0.0001)
	assert.Equal(t, 90.0, stats.Min)
	assert.Equal(t, 110.0, stats.Max)
}

func TestAggregateStats_EmptyInputReturnsZeroValue(t *testing.T) {
	stats := newAggregateStats(nil)
	assert.Equal(t, AggregateStats{}, stats)
}

func TestResults_CalculateAggregates_NoWarningsOnStableRuns(t *testing.T) {
	r := NewResults(testConfig(), 3)
	r.AddRun(Result{RunID: 1, ThroughputTPS: 1000, LatencyP99Us: 500, CompletedTransfers: 1000})
	r.AddRun(Result{RunID: 2, ThroughputTPS: 1010, LatencyP99Us: 510, CompletedTransfers: 1010})
	r.AddRun(Result{RunID: 3, ThroughputTPS: 990, LatencyP99Us: 490, CompletedTransfers: 990})

	agg := r.CalculateAggregates()
	assert.Empty(t, agg.Warnings)
	assert.Equal(t, float64(0), agg.ErrorRate)
}

func TestResults_CalculateAggregates_FlagsHighVariance(t *testing.T) {
	r := NewResults(testConfig(), 2)
	r.AddRun(Result{RunID: 1, ThroughputTPS: 500, CompletedTransfers: 500})
	r.AddRun(Result{RunID: 2, ThroughputTPS: 1500, CompletedTransfers: 1500})

	agg := r.CalculateAggregates()
	require.NotEmpty(t, agg.Warnings)
	assert.Contains(t, agg.Warnings[0], "coefficient of variation")
}

func TestResults_CalculateAggregates_FlagsHighErrorRate(t *testing.T) {
	r := NewResults(testConfig(), 1)
	r.AddRun(Result{RunID: 1, CompletedTransfers: 900, RejectedTransfers: 0, FailedTransfers: 100})

	agg := r.CalculateAggregates()
	assert.InDelta(t, 0.10, agg.ErrorRate, 0.001)
	assert.Contains(t, agg.Warnings, "failed-transfer rate exceeds 5% across all runs")
}

func TestResults_SetBalanceError_SurfacesInWarnings(t *testing.T) {
	r := NewResults(testConfig(), 1)
	r.AddRun(Result{RunID: 1, CompletedTransfers: 100})
	r.SetBalanceError(1)

	agg := r.CalculateAggregates()
	require.Len(t, agg.Warnings, 1)
	assert.Contains(t, agg.Warnings[0], "run 1")
}
