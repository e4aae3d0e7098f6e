package phase

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestController_ZeroWarmupEntersMeasurementImmediately(t *testing.T) {
	c := New(0, 10*time.Millisecond)

	assert.Equal(t, Warmup, c.CurrentPhase())

	_, warmupCount := c.RunPhases(context.Background(), testLogger())

	assert.Equal(t, uint64(0), warmupCount)
	assert.True(t, c.Stopped())
}

func TestController_PhaseMonotonicity(t *testing.T) {
	c := New(5*time.Millisecond, 5*time.Millisecond)

	done := make(chan struct{})

	go func() {
		defer close(done)
		c.RunPhases(context.Background(), testLogger())
	}()

	sawMeasurement := false

	for !c.Stopped() {
		if c.CurrentPhase() == Measurement {
			sawMeasurement = true
		} else {
			// Once measurement has been observed, warmup must never reappear.
			assert.False(t, sawMeasurement, "phase regressed from measurement to warmup")
		}

		time.Sleep(time.Millisecond)
	}

	<-done
	assert.Equal(t, Measurement, c.CurrentPhase())
}

func TestController_StopIsSticky(t *testing.T) {
	c := New(0, 0)
	c.RunPhases(context.Background(), testLogger())

	assert.True(t, c.Stopped())
	assert.True(t, c.Stopped())
}

func TestController_CompletedCounter(t *testing.T) {
	c := New(time.Hour, time.Hour)

	for range 5 {
		c.IncCompleted()
	}

	assert.Equal(t, uint64(5), c.CompletedCount())
}

func TestController_RunPhasesRespectsContextCancellation(t *testing.T) {
	c := New(time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})

	go func() {
		c.RunPhases(ctx, testLogger())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPhases did not respect context cancellation")
	}
}
