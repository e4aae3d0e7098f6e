package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerbench/ledgerbench/internal/phase"
	"github.com/ledgerbench/ledgerbench/internal/workload"
)

func TestRecorder_RecordDispatchesByResult(t *testing.T) {
	rec := NewNoop()
	ctx := context.Background()

	// None of these should panic; the no-op provider has no reader attached
	// so there is nothing to assert on beyond "it didn't blow up".
	rec.Record(ctx, workload.Success, 5*time.Millisecond, phase.Measurement)
	rec.Record(ctx, workload.InsufficientBalance, time.Millisecond, phase.Warmup)
	rec.Record(ctx, workload.AccountNotFound, 0, phase.Measurement)
	rec.Record(ctx, workload.Failed, 0, phase.Warmup)
	rec.RecordDropped(ctx, phase.Measurement)

	assert.NoError(t, rec.Shutdown(ctx))
}

func TestNoopRecorder_ShutdownIsSafeWithoutProvider(t *testing.T) {
	rec := NewNoop()
	assert.NoError(t, rec.Shutdown(context.Background()))
}
