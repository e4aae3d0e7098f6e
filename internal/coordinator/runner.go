package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ledgerbench/ledgerbench/internal/backend"
	"github.com/ledgerbench/ledgerbench/internal/config"
)

// stabilizationWindow is how long the coordinator waits after resetting the
// backend before starting the next run, giving caches and connection pools
// time to settle.
const stabilizationWindow = 30 * time.Second

// metricsSettleWindow is how long the coordinator waits after the client
// exits before querying the time-series store, covering the OTel collector
// and Prometheus scrape intervals.
const metricsSettleWindow = 15 * time.Second

// clientTimeoutBuffer is added to warmup+test duration when bounding how
// long the coordinator waits for the client subprocess to exit.
const clientTimeoutBuffer = 60 * time.Second

// clientBinaryCandidates are the paths checked, in order, for the client
// binary when ClientBinaryPath is left empty.
var clientBinaryCandidates = []string{
	"./bin/ledgerbench-client",
	"./ledgerbench-client",
	"ledgerbench-client",
}

// Runner orchestrates coordinator.TestRuns iterations of the client binary
// against one backend: init accounts once, then per run spawn the client,
// verify the resulting total balance, reset (except after the last run),
// and wait for the backend to stabilize.
type Runner struct {
	Config           *config.Config
	ConfigPath       string
	Backend          backend.Backend
	Metrics          MetricsSource
	Logger           *slog.Logger
	ClientBinaryPath string

	// RestartLedger is invoked instead of Backend.Reset between runs when
	// the database type forbids in-place reset and instead requires
	// restarting the external process (spec.md §6's ledger backend).
	// Left nil for backends whose Reset is sufficient.
	RestartLedger func(ctx context.Context) error
}

// Run executes every configured test run and returns the aggregated report.
func (r *Runner) Run(ctx context.Context) (AggregateResults, error) {
	numAccounts := r.Config.Workload.NumAccounts
	initialBalance := r.Config.Workload.InitialBalance
	expectedTotal := numAccounts * initialBalance
	numRuns := r.Config.Coordinator.TestRuns

	r.Logger.Info("starting test execution", slog.Int("num_runs", numRuns))

	if err := r.Backend.InitAccounts(ctx, numAccounts, initialBalance); err != nil {
		return AggregateResults{}, fmt.Errorf("coordinator: init accounts: %w", err)
	}

	results := NewResults(r.Config, numRuns)

	for runID := 1; runID <= numRuns; runID++ {
		r.Logger.Info("starting run", slog.Int("run_id", runID), slog.Int("num_runs", numRuns))

		runResult, err := r.runSingle(ctx, runID)
		if err != nil {
			return AggregateResults{}, fmt.Errorf("coordinator: run %d: %w", runID, err)
		}

		ok, err := r.Backend.VerifyTotalBalance(ctx, expectedTotal)
		if err != nil {
			return AggregateResults{}, fmt.Errorf("coordinator: verify balance after run %d: %w", runID, err)
		}

		runResult.BalanceVerified = ok
		results.AddRun(runResult)

		if !ok {
			r.Logger.Error("balance verification failed", slog.Int("run_id", runID))
			results.SetBalanceError(runID)
		}

		if runID < numRuns {
			if err := r.resetBetweenRuns(ctx, numAccounts, initialBalance); err != nil {
				return AggregateResults{}, fmt.Errorf("coordinator: reset after run %d: %w", runID, err)
			}

			r.Logger.Info("waiting for system to stabilize", slog.Duration("window", stabilizationWindow))

			if !sleepCtx(ctx, stabilizationWindow) {
				return AggregateResults{}, ctx.Err()
			}
		}

		r.Logger.Info("completed run", slog.Int("run_id", runID), slog.Int("num_runs", numRuns))
	}

	return results.CalculateAggregates(), nil
}

func (r *Runner) resetBetweenRuns(ctx context.Context, numAccounts, initialBalance uint64) error {
	if r.RestartLedger != nil {
		if err := r.RestartLedger(ctx); err != nil {
			return err
		}

		return r.Backend.InitAccounts(ctx, numAccounts, initialBalance)
	}

	return r.Backend.Reset(ctx, numAccounts, initialBalance)
}

// runSingle spawns the client subprocess for one run, waits for it to exit
// (bounded by warmup+test+clientTimeoutBuffer), then collects the
// measurement-window metrics from r.Metrics.
func (r *Runner) runSingle(ctx context.Context, runID int) (Result, error) {
	warmup := time.Duration(r.Config.Workload.WarmupDurationSecs) * time.Second
	test := time.Duration(r.Config.Workload.TestDurationSecs) * time.Second
	total := warmup + test

	binary, err := r.clientBinary()
	if err != nil {
		return Result{}, err
	}

	args := r.clientArgs()

	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, total+clientTimeoutBuffer)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	spawnTime := time.Now()

	runErr := cmd.Run()

	elapsed := time.Since(start)
	endTime := time.Now()

	if runErr != nil {
		r.Logger.Warn("client exited with error", slog.Int("run_id", runID), slog.Any("error", runErr))
	}

	r.Logger.Info("waiting for metrics to become available", slog.Duration("window", metricsSettleWindow))

	if !sleepCtx(ctx, metricsSettleWindow) {
		return Result{}, ctx.Err()
	}

	measurementStart := spawnTime.Add(warmup)

	collected, err := r.Metrics.CollectMetrics(ctx, measurementStart, endTime)
	if err != nil {
		r.Logger.Warn("failed to collect metrics", slog.Any("error", err))

		collected = CollectedMetrics{}
	}

	total64 := collected.CompletedTransfers + collected.RejectedTransfers

	var throughput float64
	if r.Config.Workload.TestDurationSecs > 0 {
		throughput = float64(total64) / float64(r.Config.Workload.TestDurationSecs)
	}

	return Result{
		RunID:              runID,
		Duration:           elapsed,
		ThroughputTPS:      throughput,
		LatencyP50Us:       float64(collected.LatencyP50Us),
		LatencyP95Us:       float64(collected.LatencyP95Us),
		LatencyP99Us:       float64(collected.LatencyP99Us),
		LatencyP999Us:      float64(collected.LatencyP999Us),
		CompletedTransfers: collected.CompletedTransfers,
		RejectedTransfers:  collected.RejectedTransfers,
		FailedTransfers:    collected.FailedTransfers,
	}, nil
}

func (r *Runner) clientBinary() (string, error) {
	if r.ClientBinaryPath != "" {
		return r.ClientBinaryPath, nil
	}

	for _, candidate := range clientBinaryCandidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("coordinator: client binary not found, checked %v", clientBinaryCandidates)
}

func (r *Runner) clientArgs() []string {
	args := []string{"-c", r.ConfigPath}

	switch r.Config.Database.Type {
	case "postgresql":
		args = append(args, "--pg-host", r.Config.Postgresql.Host, "--pg-port", fmt.Sprintf("%d", r.Config.Postgresql.Port))
	case "tigerbeetle":
		args = append(args, "--tb-addresses", strings.Join(r.Config.TigerBeetle.ClusterAddresses, ","))
	}

	args = append(args, "--otel-endpoint", r.Config.Monitoring.OtelEndpoint)

	return args
}

// sleepCtx blocks for d or until ctx is canceled, reporting whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
