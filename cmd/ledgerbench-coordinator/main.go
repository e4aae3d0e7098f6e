// Command ledgerbench-coordinator orchestrates repeated runs of
// ledgerbench-client against one backend: it resets the backend, spawns the
// client, collects aggregate metrics from Prometheus, and reports a summary
// across all configured runs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerbench/ledgerbench/internal/backend"
	"github.com/ledgerbench/ledgerbench/internal/config"
	"github.com/ledgerbench/ledgerbench/internal/coordinator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerbench-coordinator:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		flagConfigPath string
		flagClientPath string
	)

	cmd := &cobra.Command{
		Use:           "ledgerbench-coordinator",
		Short:         "Orchestrate repeated ledgerbench runs and report aggregate results",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flagConfigPath, flagClientPath)
		},
	}

	cmd.Flags().StringVarP(&flagConfigPath, "config", "c", "", "config file path (required)")
	cmd.Flags().StringVar(&flagClientPath, "client-binary", "", "path to the ledgerbench-client binary")

	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func run(ctx context.Context, configPath, clientBinaryPath string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	be, restartLedger, closeBackend, err := buildBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	metricsSource := coordinator.NewPrometheusSource(cfg.Monitoring.PrometheusURL, logger)

	r := &coordinator.Runner{
		Config:           cfg,
		ConfigPath:       configPath,
		Backend:          be,
		Metrics:          metricsSource,
		Logger:           logger,
		ClientBinaryPath: clientBinaryPath,
		RestartLedger:    restartLedger,
	}

	aggregate, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("running test suite: %w", err)
	}

	printSummary(aggregate, logger)

	if err := exportJSON(cfg.Coordinator.MetricsExportPath, aggregate); err != nil {
		logger.Warn("failed to export results", slog.Any("error", err))
	}

	return nil
}

// buildBackend constructs the backend.Backend matching cfg.Database.Type. For
// the ledger backend it also returns a restart hook the Runner calls between
// runs instead of Backend.Reset, since that backend requires a process
// restart for a clean-state reset rather than supporting in-place reset.
func buildBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend.Backend, func(context.Context) error, func(), error) {
	switch cfg.Database.Type {
	case "postgresql":
		if cfg.Postgresql == nil {
			return nil, nil, nil, errors.New("coordinator: database.type is postgresql but [postgresql] section is missing")
		}

		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
			cfg.Postgresql.User, cfg.Postgresql.Password, cfg.Postgresql.Host, cfg.Postgresql.Port, cfg.Postgresql.Database)

		pg, err := backend.NewPostgres(ctx, dsn, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("coordinator: connecting postgres backend: %w", err)
		}

		return pg, nil, pg.Close, nil

	case "tigerbeetle":
		if cfg.TigerBeetle == nil {
			return nil, nil, nil, errors.New("coordinator: database.type is tigerbeetle but [tigerbeetle] section is missing")
		}

		lg, err := backend.NewLedger(cfg.TigerBeetle.ClusterAddresses, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("coordinator: connecting ledger backend: %w", err)
		}

		// Restarting the external ledger process is outside this package's
		// scope (it normally lives in the Docker/process manager that starts
		// the backend); logged as a no-op placeholder rather than attempted.
		restart := func(context.Context) error {
			logger.Warn("ledger backend reset requested; restarting the external process is not automated by this binary")

			return nil
		}

		return lg, restart, lg.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("coordinator: unrecognized database.type %q", cfg.Database.Type)
	}
}

func printSummary(agg coordinator.AggregateResults, logger *slog.Logger) {
	logger.Info("test suite complete",
		slog.Int("runs", len(agg.Runs)),
		slog.Float64("throughput_mean_tps", agg.Throughput.Mean),
		slog.Float64("throughput_cv", agg.Throughput.CV),
		slog.Float64("latency_p99_mean_us", agg.LatencyP99Us.Mean),
		slog.Float64("error_rate", agg.ErrorRate),
	)

	for _, w := range agg.Warnings {
		logger.Warn(w)
	}

	for _, run := range agg.Runs {
		logger.Info("run result",
			slog.Int("run_id", run.RunID),
			slog.Float64("throughput_tps", run.ThroughputTPS),
			slog.Float64("latency_p99_us", run.LatencyP99Us),
			slog.Bool("balance_verified", run.BalanceVerified),
		)
	}
}

func exportJSON(dir string, agg coordinator.AggregateResults) error {
	if dir == "" {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("results-%s.json", time.Now().UTC().Format("20060102T150405Z")))

	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing results file: %w", err)
	}

	return nil
}
