// Command ledgerbench-client drives one warmup+measurement run of the
// transfer workload against a single backend, then exits. It is normally
// spawned by ledgerbench-coordinator, once per configured run, but can also
// be run standalone for local testing.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerbench/ledgerbench/internal/config"
	"github.com/ledgerbench/ledgerbench/internal/executor"
	"github.com/ledgerbench/ledgerbench/internal/executor/ledger"
	"github.com/ledgerbench/ledgerbench/internal/executor/relational"
	"github.com/ledgerbench/ledgerbench/internal/executor/relbatch"
	"github.com/ledgerbench/ledgerbench/internal/metrics"
	"github.com/ledgerbench/ledgerbench/internal/phase"
	"github.com/ledgerbench/ledgerbench/internal/runner"
	"github.com/ledgerbench/ledgerbench/internal/workload"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}

func exitOnError(err error) {
	fmt.Fprintln(os.Stderr, "ledgerbench-client:", err)
	os.Exit(1)
}

func newRootCmd() *cobra.Command {
	var (
		flagConfigPath  string
		flagInstanceID  string
		flagPGHost      string
		flagPGPort      int
		flagTBAddresses string
		flagOtelEndpoint string
	)

	cmd := &cobra.Command{
		Use:           "ledgerbench-client",
		Short:         "Run one ledgerbench workload measurement",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli := config.CLIOverrides{
				PGHost:       flagPGHost,
				PGPort:       flagPGPort,
				OtelEndpoint: flagOtelEndpoint,
			}

			if flagTBAddresses != "" {
				cli.TBAddresses = strings.Split(flagTBAddresses, ",")
			}

			return run(cmd.Context(), flagConfigPath, flagInstanceID, cli)
		},
	}

	cmd.Flags().StringVarP(&flagConfigPath, "config", "c", "", "config file path (required)")
	cmd.Flags().StringVar(&flagInstanceID, "instance-id", "", "client instance identifier, for multi-client cloud deployments")
	cmd.Flags().StringVar(&flagPGHost, "pg-host", "", "postgresql host override")
	cmd.Flags().IntVar(&flagPGPort, "pg-port", 0, "postgresql port override")
	cmd.Flags().StringVar(&flagTBAddresses, "tb-addresses", "", "comma-separated tigerbeetle cluster addresses override")
	cmd.Flags().StringVar(&flagOtelEndpoint, "otel-endpoint", "", "otel collector gRPC endpoint override")

	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func run(ctx context.Context, configPath, instanceID string, cli config.CLIOverrides) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if instanceID != "" {
		logger = logger.With(slog.String("instance_id", instanceID))
	}

	cfg, err := config.Load(configPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	config.ApplyCLIOverrides(cfg, cli, logger)

	mode, err := cfg.Workload.Mode()
	if err != nil {
		return fmt.Errorf("resolving workload mode: %w", err)
	}

	recorder, err := metrics.New(ctx, cfg.Monitoring.OtelEndpoint, cfg.Database.Type, cfg.Workload.TestMode)
	if err != nil {
		return fmt.Errorf("setting up metrics: %w", err)
	}
	defer func() {
		if err := recorder.Shutdown(context.Background()); err != nil {
			logger.Warn("metrics shutdown failed", slog.Any("error", err))
		}
	}()

	exec, closeExec, err := buildExecutor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeExec()

	selector, err := workload.NewSelector(cfg.Workload.NumAccounts, cfg.Workload.ZipfianExponent)
	if err != nil {
		return fmt.Errorf("building account selector: %w", err)
	}

	amounts, err := workload.NewAmountGenerator(cfg.Workload.MinTransferAmount, cfg.Workload.MaxTransferAmount)
	if err != nil {
		return fmt.Errorf("building amount generator: %w", err)
	}

	phaseController := phase.New(
		secondsToDuration(cfg.Workload.WarmupDurationSecs),
		secondsToDuration(cfg.Workload.TestDurationSecs),
	)

	deps := runner.Deps{
		Selector: selector,
		Amounts:  amounts,
		Executor: exec,
		Recorder: recorder,
		Phase:    phaseController,
		Logger:   logger,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	phaseErrCh := make(chan struct{})

	go func() {
		defer close(phaseErrCh)

		phaseController.RunPhases(runCtx, logger)
	}()

	logger.Info("starting workload",
		slog.String("mode", cfg.Workload.TestMode),
		slog.Uint64("warmup_secs", cfg.Workload.WarmupDurationSecs),
		slog.Uint64("test_duration_secs", cfg.Workload.TestDurationSecs),
	)

	var runErr error

	switch mode.Kind {
	case config.MaxThroughput:
		runErr = runner.RunClosedLoop(runCtx, deps, mode.Concurrency)
	case config.FixedRate:
		runErr = runner.RunOpenLoop(runCtx, deps, mode.TargetRate, mode.MaxConcurrency)
	default:
		runErr = errors.New("client: unrecognized resolved test mode")
	}

	cancel()
	<-phaseErrCh

	if runErr != nil {
		return fmt.Errorf("running workload: %w", runErr)
	}

	logger.Info("workload complete", slog.Uint64("completed_requests", phaseController.CompletedCount()))

	return nil
}

// buildExecutor constructs the executor.Executor matching cfg.Database.Type
// and cfg.Postgresql.BatchedMode, plus a cleanup func the caller must defer.
func buildExecutor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (executor.Executor, func(), error) {
	switch cfg.Database.Type {
	case "postgresql":
		if cfg.Postgresql == nil {
			return nil, nil, errors.New("client: database.type is postgresql but [postgresql] section is missing")
		}

		dsn := postgresDSN(cfg.Postgresql)

		if cfg.Postgresql.BatchedMode {
			exec, err := relbatch.New(ctx, dsn, cfg.Postgresql.IsolationLevel, logger)
			if err != nil {
				return nil, nil, fmt.Errorf("client: building batched relational executor: %w", err)
			}

			return exec, func() { exec.Close(ctx) }, nil
		}

		exec, err := relational.New(ctx, dsn, cfg.Postgresql.ConnectionPoolSize, cfg.Postgresql.IsolationLevel, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("client: building relational executor: %w", err)
		}

		return exec, exec.Close, nil

	case "tigerbeetle":
		if cfg.TigerBeetle == nil {
			return nil, nil, errors.New("client: database.type is tigerbeetle but [tigerbeetle] section is missing")
		}

		exec, err := ledger.New(cfg.TigerBeetle.ClusterAddresses, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("client: building ledger executor: %w", err)
		}

		return exec, exec.Close, nil

	default:
		return nil, nil, fmt.Errorf("client: unrecognized database.type %q", cfg.Database.Type)
	}
}

func postgresDSN(pg *config.Postgresql) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", pg.User, pg.Password, pg.Host, pg.Port, pg.Database)
}

func secondsToDuration(secs uint64) time.Duration {
	return time.Duration(secs) * time.Second
}
