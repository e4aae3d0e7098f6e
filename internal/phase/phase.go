// Package phase implements the warmup -> measurement -> stop state machine
// shared by every runner. The controller's three atomics are the only
// cross-goroutine coordination the workload engine uses; per the design
// notes in SPEC_FULL.md, a channel-based signal would distort the very
// throughput the harness is trying to measure.
package phase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Phase identifies which part of a run an outcome belongs to. It must be
// read at the moment an outcome is recorded, not at the moment the request
// was submitted — a transfer that straddles the warmup/measurement boundary
// is attributed to whichever phase is current when its result lands.
type Phase int

const (
	// Warmup outcomes are excluded from reported statistics.
	Warmup Phase = iota
	// Measurement outcomes form the reported statistics.
	Measurement
)

// String renders the phase using the label attached to metrics samples.
func (p Phase) String() string {
	if p == Measurement {
		return "measurement"
	}

	return "warmup"
}

// Controller owns the run-level atomics: stop flag, phase flag, and
// completed-transfer counter. A single Controller is constructed per run and
// shared by every worker/submitter goroutine for the run's lifetime.
type Controller struct {
	stopFlag    atomic.Bool
	measurement atomic.Bool // false = warmup, true = measurement
	completed   atomic.Uint64
	warmupDur   time.Duration
	testDur     time.Duration
}

// New builds a Controller for a run with the given warmup and measurement
// durations. warmupDuration of zero causes RunPhases to enter Measurement
// immediately, with a warmup count of zero.
func New(warmupDuration, testDuration time.Duration) *Controller {
	return &Controller{warmupDur: warmupDuration, testDur: testDuration}
}

// Stopped reports whether the run should stop. Workers check this at the top
// of their loop; a relaxed (plain atomic) load is sufficient since a few
// microseconds of lag in observing the stop is acceptable.
func (c *Controller) Stopped() bool {
	return c.stopFlag.Load()
}

// CurrentPhase returns the phase in effect right now. Call this only at the
// moment an outcome is being recorded, never at submission time.
func (c *Controller) CurrentPhase() Phase {
	if c.measurement.Load() {
		return Measurement
	}

	return Warmup
}

// IncCompleted records one more completed-or-rejected transfer (both count
// as progress toward the warmup/measurement split).
func (c *Controller) IncCompleted() {
	c.completed.Add(1)
}

// CompletedCount returns the current value of the shared progress counter.
func (c *Controller) CompletedCount() uint64 {
	return c.completed.Load()
}

// RunPhases executes the warmup -> measurement -> stop sequence for one run.
// It blocks for warmupDuration + testDuration and must be driven from the
// orchestrating goroutine (not a worker). It returns the wall-clock start
// time and the completed count snapshotted at the warmup/measurement
// boundary, both needed for final throughput statistics.
func (c *Controller) RunPhases(ctx context.Context, logger *slog.Logger) (start time.Time, warmupCount uint64) {
	start = time.Now()

	logger.Info("warmup phase started", slog.Duration("duration", c.warmupDur))
	sleep(ctx, c.warmupDur)

	c.measurement.Store(true)
	warmupCount = c.completed.Load()

	logger.Info("measurement phase started",
		slog.Duration("duration", c.testDur),
		slog.Uint64("warmup_completed", warmupCount),
	)
	sleep(ctx, c.testDur)

	c.stopFlag.Store(true)

	return start, warmupCount
}

// sleep blocks for d or until ctx is canceled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
