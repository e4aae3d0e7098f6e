package coordinator

import (
	"math"
	"strconv"
	"time"

	"github.com/ledgerbench/ledgerbench/internal/config"
)

// Result holds the outcome of a single run (one warmup+measurement cycle,
// one client process invocation).
type Result struct {
	RunID              int
	Duration           time.Duration
	ThroughputTPS      float64
	LatencyP50Us       float64
	LatencyP95Us       float64
	LatencyP99Us       float64
	LatencyP999Us      float64
	CompletedTransfers uint64
	RejectedTransfers  uint64
	FailedTransfers    uint64
	BalanceVerified    bool
}

// ConfigSummary captures the config fields that materially affect a result,
// recorded alongside the results so an exported JSON file is self-describing
// without needing the original TOML file.
type ConfigSummary struct {
	DatabaseType     string
	TestMode         string
	NumAccounts      uint64
	WarmupSecs       uint64
	TestDurationSecs uint64
	TestRuns         int
}

// AggregateStats summarizes a slice of samples across runs: mean, standard
// deviation, coefficient of variation, min, and max.
type AggregateStats struct {
	Mean   float64
	Stddev float64
	CV     float64
	Min    float64
	Max    float64
}

// newAggregateStats computes AggregateStats over values. Returns the zero
// value if values is empty.
func newAggregateStats(values []float64) AggregateStats {
	if len(values) == 0 {
		return AggregateStats{}
	}

	var sum float64

	minVal := values[0]
	maxVal := values[0]

	for _, v := range values {
		sum += v

		if v < minVal {
			minVal = v
		}

		if v > maxVal {
			maxVal = v
		}
	}

	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}

	variance /= float64(len(values))
	stddev := math.Sqrt(variance)

	var cv float64
	if mean != 0 {
		cv = stddev / mean
	}

	return AggregateStats{Mean: mean, Stddev: stddev, CV: cv, Min: minVal, Max: maxVal}
}

// highVarianceThreshold and veryHighVarianceThreshold are coefficient-of-
// variation cutoffs above which throughput is flagged as unstable across
// runs, matching the original harness's 10%/15% warning bands.
const (
	highVarianceThreshold     = 0.10
	veryHighVarianceThreshold = 0.15
)

// AggregateResults is the final report across all runs of one test: per-run
// results plus cross-run throughput/latency statistics and any stability
// warnings worth surfacing to the operator.
type AggregateResults struct {
	Config       ConfigSummary
	Runs         []Result
	Throughput   AggregateStats
	LatencyP99Us AggregateStats
	ErrorRate    float64
	Warnings     []string
}

// Results accumulates runs as they complete and produces the final
// AggregateResults once every run has finished.
type Results struct {
	cfg           ConfigSummary
	runs          []Result
	balanceErrors map[int]bool
}

// NewResults builds an accumulator seeded from cfg and preallocates space
// for numRuns runs.
func NewResults(cfg *config.Config, numRuns int) *Results {
	return &Results{
		cfg: ConfigSummary{
			DatabaseType:     cfg.Database.Type,
			TestMode:         cfg.Workload.TestMode,
			NumAccounts:      cfg.Workload.NumAccounts,
			WarmupSecs:       cfg.Workload.WarmupDurationSecs,
			TestDurationSecs: cfg.Workload.TestDurationSecs,
			TestRuns:         numRuns,
		},
		runs:          make([]Result, 0, numRuns),
		balanceErrors: make(map[int]bool),
	}
}

// AddRun appends the result of a completed run.
func (r *Results) AddRun(res Result) {
	r.runs = append(r.runs, res)
}

// SetBalanceError marks runID as having failed balance verification; its
// Result.BalanceVerified is already false by the time this is called, this
// additionally surfaces the run in the final warnings list.
func (r *Results) SetBalanceError(runID int) {
	r.balanceErrors[runID] = true
}

// CalculateAggregates computes throughput/latency statistics across all
// recorded runs, flagging high-variance runs and error-rate breaches the
// same way the original coordinator's report does.
func (r *Results) CalculateAggregates() AggregateResults {
	throughputs := make([]float64, 0, len(r.runs))
	p99s := make([]float64, 0, len(r.runs))

	var totalCompleted, totalRejected, totalFailed uint64

	for _, run := range r.runs {
		throughputs = append(throughputs, run.ThroughputTPS)
		p99s = append(p99s, run.LatencyP99Us)
		totalCompleted += run.CompletedTransfers
		totalRejected += run.RejectedTransfers
		totalFailed += run.FailedTransfers
	}

	throughputStats := newAggregateStats(throughputs)
	latencyStats := newAggregateStats(p99s)

	var errorRate float64

	totalAttempted := totalCompleted + totalRejected + totalFailed
	if totalAttempted > 0 {
		errorRate = float64(totalFailed) / float64(totalAttempted)
	}

	var warnings []string

	if throughputStats.CV > veryHighVarianceThreshold {
		warnings = append(warnings, "throughput coefficient of variation exceeds 15%, runs are highly unstable")
	} else if throughputStats.CV > highVarianceThreshold {
		warnings = append(warnings, "throughput coefficient of variation exceeds 10%, runs show elevated variance")
	}

	if errorRate > 0.05 {
		warnings = append(warnings, "failed-transfer rate exceeds 5% across all runs")
	}

	for runID := range r.balanceErrors {
		warnings = append(warnings, "balance verification failed after run "+strconv.Itoa(runID))
	}

	return AggregateResults{
		Config:       r.cfg,
		Runs:         r.runs,
		Throughput:   throughputStats,
		LatencyP99Us: latencyStats,
		ErrorRate:    errorRate,
		Warnings:     warnings,
	}
}
