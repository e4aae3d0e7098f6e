package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ledgerbench/ledgerbench/internal/workload"
)

// RunClosedLoop starts workerCount persistent workers, each in a tight
// submit/await loop against its own RNG, and blocks until every worker has
// observed the phase controller's stop flag. A panic in one worker is
// recovered, logged, and does not abort its siblings; the run still
// proceeds to statistics once the remaining workers finish.
func RunClosedLoop(ctx context.Context, deps Deps, workerCount int) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := range workerCount {
		workerID := i

		g.Go(func() error {
			runClosedLoopWorker(gctx, deps, workerID)

			return nil
		})
	}

	return g.Wait()
}

func runClosedLoopWorker(ctx context.Context, deps Deps, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			deps.Logger.Error("closed-loop worker panicked",
				slog.Int("worker_id", workerID), slog.Any("panic", r))
		}
	}()

	rng := workload.NewRand()

	for !deps.Phase.Stopped() {
		source, dest := deps.Selector.SelectPair(rng)
		amount := deps.Amounts.Amount(rng)

		start := time.Now()
		result, err := deps.Executor.Execute(ctx, source, dest, amount)
		latency := time.Since(start)

		// Recorded at the moment the outcome lands, never at submission, so
		// a transfer straddling the warmup/measurement boundary attributes
		// correctly.
		p := deps.Phase.CurrentPhase()

		if err != nil {
			deps.Logger.Debug("transfer execution error",
				slog.Int("worker_id", workerID), slog.Any("error", fmt.Errorf("closed-loop: %w", err)))
			deps.Recorder.RecordFailed(ctx, p)

			continue
		}

		if result == workload.Success || result == workload.InsufficientBalance {
			deps.Phase.IncCompleted()
		}

		deps.Recorder.Record(ctx, result, latency, p)
	}
}
