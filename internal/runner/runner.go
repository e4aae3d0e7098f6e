// Package runner implements the two workload drivers: a closed-loop runner
// of persistent workers in a tight submit/await loop, and an open-loop
// runner that submits on a fixed time grid with a concurrency cap and
// coordinated-omission-corrected latency measurement. Both are written once
// against the executor.Executor and metrics.Recorder contracts and are
// reused verbatim across backends.
package runner

import (
	"log/slog"

	"github.com/ledgerbench/ledgerbench/internal/executor"
	"github.com/ledgerbench/ledgerbench/internal/metrics"
	"github.com/ledgerbench/ledgerbench/internal/phase"
	"github.com/ledgerbench/ledgerbench/internal/workload"
)

// Deps bundles the collaborators both runners need. Each worker/submitter
// goroutine holds its own RNG, so Deps carries only the shared,
// concurrency-safe pieces: the selector and amount generator (read-only),
// the executor handle (cheap to share), the recorder, and the phase
// controller.
type Deps struct {
	Selector *workload.Selector
	Amounts  *workload.AmountGenerator
	Executor executor.Executor
	Recorder *metrics.Recorder
	Phase    *phase.Controller
	Logger   *slog.Logger
}
