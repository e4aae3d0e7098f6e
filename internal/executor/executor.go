// Package executor defines the narrow capability every backend implements:
// execute one logical transfer and report its outcome. Runners are written
// once against this interface and reused verbatim across backends.
package executor

import (
	"context"

	"github.com/ledgerbench/ledgerbench/internal/workload"
)

// Executor executes a single transfer. Implementations must be safe for
// concurrent use by many callers and are expected to be cheap-to-clone
// handles onto shared backend connection state, not per-call allocations.
//
// Execute must not return a non-nil error for outcomes the backend can
// classify (insufficient balance, unknown account, or an unrecoverable
// condition after any internal retry) — those surface as a workload.Result
// with a nil error. A non-nil error return is reserved for transport-layer
// failures the executor could not classify; callers (the recorder) treat
// any such error as workload.Failed.
type Executor interface {
	Execute(ctx context.Context, source, dest, amount uint64) (workload.Result, error)
}
