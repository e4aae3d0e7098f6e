package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ledgerbench/ledgerbench/internal/workload"
)

// drainPollInterval is the cadence at which the open-loop runner polls
// in-flight count to zero after the submitter stops.
const drainPollInterval = 100 * time.Millisecond

// RunOpenLoop schedules requests on a fixed grid of period 1/targetRate,
// capping concurrent in-flight requests at maxConcurrency and dropping a
// request synchronously at submit time when the cap is already reached.
// Latency is measured from the scheduled submit instant, not the actual
// submit instant, correcting for coordinated omission: if the backend falls
// behind, queueing delay becomes part of the reported latency rather than
// being hidden.
func RunOpenLoop(ctx context.Context, deps Deps, targetRate uint64, maxConcurrency int) error {
	if targetRate == 0 {
		return errors.New("runner: target_rate must be > 0")
	}

	interval := time.Duration(float64(time.Second) / float64(targetRate))

	var inFlight atomic.Int64

	rng := workload.NewRand()
	nextSubmit := time.Now()

	for !deps.Phase.Stopped() {
		if !sleepUntil(ctx, nextSubmit) {
			break
		}

		// scheduled is captured before any check that could reject the
		// request, so dropped requests never contaminate the latency
		// baseline of requests that are actually admitted.
		scheduled := nextSubmit
		// Advance by the fixed interval, not from now(), so a transient
		// stall doesn't permanently shift the target rate — the schedule
		// catches up once the backend frees up.
		nextSubmit = nextSubmit.Add(interval)

		phaseAtSubmit := deps.Phase.CurrentPhase()

		if inFlight.Load() >= int64(maxConcurrency) {
			deps.Recorder.RecordDropped(ctx, phaseAtSubmit)

			continue
		}

		source, dest := deps.Selector.SelectPair(rng)
		amount := deps.Amounts.Amount(rng)

		inFlight.Add(1)

		go executeOpenLoopRequest(ctx, deps, &inFlight, source, dest, amount, scheduled)
	}

	for inFlight.Load() > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(drainPollInterval):
		}
	}

	return nil
}

func executeOpenLoopRequest(ctx context.Context, deps Deps, inFlight *atomic.Int64, source, dest, amount uint64, scheduled time.Time) {
	defer inFlight.Add(-1)

	result, err := deps.Executor.Execute(ctx, source, dest, amount)
	latency := time.Since(scheduled)

	p := deps.Phase.CurrentPhase()

	if err != nil {
		deps.Recorder.RecordFailed(ctx, p)

		return
	}

	if result == workload.Success || result == workload.InsufficientBalance {
		deps.Phase.IncCompleted()
	}

	deps.Recorder.Record(ctx, result, latency, p)
}

// sleepUntil blocks until t or until ctx is canceled, reporting which
// happened. If t is already in the past it returns immediately.
func sleepUntil(ctx context.Context, t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
