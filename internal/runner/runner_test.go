package runner

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerbench/ledgerbench/internal/metrics"
	"github.com/ledgerbench/ledgerbench/internal/phase"
	"github.com/ledgerbench/ledgerbench/internal/workload"
)

// stubExecutor always succeeds instantly, used for the closed-loop
// zero-latency scenario.
type stubExecutor struct {
	calls atomic.Int64
}

func (s *stubExecutor) Execute(_ context.Context, _, _, _ uint64) (workload.Result, error) {
	s.calls.Add(1)

	return workload.Success, nil
}

// sleepingExecutor sleeps a fixed duration before succeeding, used for the
// open-loop coordinated-omission scenario.
type sleepingExecutor struct {
	delay time.Duration
	inUse atomic.Int64
	peak  atomic.Int64
}

func (s *sleepingExecutor) Execute(ctx context.Context, _, _, _ uint64) (workload.Result, error) {
	cur := s.inUse.Add(1)

	for {
		peak := s.peak.Load()
		if cur <= peak || s.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	defer s.inUse.Add(-1)

	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}

	return workload.Success, nil
}

func testDeps(t *testing.T, exec interface {
	Execute(context.Context, uint64, uint64, uint64) (workload.Result, error)
}, warmup, test time.Duration) Deps {
	t.Helper()

	selector, err := workload.NewSelector(1000, 0)
	require.NoError(t, err)

	amounts, err := workload.NewAmountGenerator(1, 100)
	require.NoError(t, err)

	return Deps{
		Selector: selector,
		Amounts:  amounts,
		Executor: executorAdapter{exec},
		Recorder: metrics.NewNoop(),
		Phase:    phase.New(warmup, test),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// executorAdapter lets the test stubs satisfy executor.Executor without
// importing the interface type directly into the test's function literals.
type executorAdapter struct {
	inner interface {
		Execute(context.Context, uint64, uint64, uint64) (workload.Result, error)
	}
}

func (a executorAdapter) Execute(ctx context.Context, source, dest, amount uint64) (workload.Result, error) {
	return a.inner.Execute(ctx, source, dest, amount)
}

func TestRunClosedLoop_ZeroLatencyExecutorCompletesMany(t *testing.T) {
	exec := &stubExecutor{}
	deps := testDeps(t, exec, 50*time.Millisecond, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		deps.Phase.RunPhases(ctx, deps.Logger)
	}()

	err := RunClosedLoop(ctx, deps, 8)
	require.NoError(t, err)

	assert.Greater(t, exec.calls.Load(), int64(0))
	assert.True(t, deps.Phase.Stopped())
}

func TestRunOpenLoop_RejectsZeroTargetRate(t *testing.T) {
	deps := testDeps(t, &stubExecutor{}, 0, 0)
	err := RunOpenLoop(context.Background(), deps, 0, 10)
	assert.Error(t, err)
}

func TestRunOpenLoop_RespectsMaxConcurrency(t *testing.T) {
	exec := &sleepingExecutor{delay: 50 * time.Millisecond}
	deps := testDeps(t, exec, 0, 300*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go deps.Phase.RunPhases(ctx, deps.Logger)

	err := RunOpenLoop(ctx, deps, 1000, 10)
	require.NoError(t, err)

	assert.LessOrEqual(t, exec.peak.Load(), int64(10))
	assert.Equal(t, int64(0), exec.inUse.Load())
}
