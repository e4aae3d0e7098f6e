// Package metrics centralizes outcome recording: counter updates and
// latency histogram emission tagged by phase, decoupled from the transport
// that ships samples to a collector.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"

	"github.com/ledgerbench/ledgerbench/internal/phase"
	"github.com/ledgerbench/ledgerbench/internal/workload"
)

// Recorder centralizes counter updates and latency histogram emission for
// both runners. A Recorder is safe for concurrent use by many workers.
type Recorder struct {
	completed metric.Int64Counter
	rejected  metric.Int64Counter
	failed    metric.Int64Counter
	dropped   metric.Int64Counter
	latencyUs metric.Int64Histogram

	provider *sdkmetric.MeterProvider // nil for the no-op recorder
}

var (
	phaseWarmup      = attribute.String("phase", phase.Warmup.String())
	phaseMeasurement = attribute.String("phase", phase.Measurement.String())
)

func phaseAttr(p phase.Phase) attribute.KeyValue {
	if p == phase.Measurement {
		return phaseMeasurement
	}

	return phaseWarmup
}

// New builds a Recorder exporting to otelEndpoint over OTLP/gRPC, with a 5s
// periodic reader, matching the cadence and resource attributes of the
// harness's original metrics design. databaseType and testMode become
// resource-level attributes so samples from different backends and modes
// can be distinguished downstream.
func New(ctx context.Context, otelEndpoint, databaseType, testMode string) (*Recorder, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(otelEndpoint),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: build otlp exporter: %w", err)
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			attribute.String("service.name", "ledgerbench-client"),
			attribute.String("database.type", databaseType),
			attribute.String("test.mode", testMode),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: build resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(5*time.Second))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	meter := provider.Meter("ledgerbench")

	return newFromMeter(meter, provider)
}

// NewNoop builds a Recorder that records into an in-process SDK provider
// with no reader attached: no network, no background export, suitable for
// tests that only need the recorder's counting behavior.
func NewNoop() *Recorder {
	provider := sdkmetric.NewMeterProvider()
	meter := provider.Meter("ledgerbench-test")

	rec, err := newFromMeter(meter, nil)
	if err != nil {
		// The no-op provider cannot fail instrument construction; a failure
		// here indicates a broken build, not a runtime condition to handle.
		panic(err)
	}

	return rec
}

func newFromMeter(meter metric.Meter, provider *sdkmetric.MeterProvider) (*Recorder, error) {
	completed, err := meter.Int64Counter("transfers_completed",
		metric.WithDescription("Number of completed transfers"))
	if err != nil {
		return nil, fmt.Errorf("metrics: build transfers_completed: %w", err)
	}

	rejected, err := meter.Int64Counter("transfers_rejected",
		metric.WithDescription("Number of rejected transfers (insufficient balance)"))
	if err != nil {
		return nil, fmt.Errorf("metrics: build transfers_rejected: %w", err)
	}

	failed, err := meter.Int64Counter("transfers_failed",
		metric.WithDescription("Number of failed transfers"))
	if err != nil {
		return nil, fmt.Errorf("metrics: build transfers_failed: %w", err)
	}

	dropped, err := meter.Int64Counter("requests_dropped",
		metric.WithDescription("Number of dropped requests due to max concurrency"))
	if err != nil {
		return nil, fmt.Errorf("metrics: build requests_dropped: %w", err)
	}

	latencyUs, err := meter.Int64Histogram("transfer_latency_us",
		metric.WithDescription("Transfer latency in microseconds"),
		metric.WithUnit("us"))
	if err != nil {
		return nil, fmt.Errorf("metrics: build transfer_latency_us: %w", err)
	}

	return &Recorder{
		completed: completed,
		rejected:  rejected,
		failed:    failed,
		dropped:   dropped,
		latencyUs: latencyUs,
		provider:  provider,
	}, nil
}

// RecordCompleted records a Success outcome: the completed counter and a
// latency sample, both tagged with p.
func (r *Recorder) RecordCompleted(ctx context.Context, latency time.Duration, p phase.Phase) {
	attrs := metric.WithAttributes(phaseAttr(p))
	r.completed.Add(ctx, 1, attrs)
	r.latencyUs.Record(ctx, latency.Microseconds(), attrs)
}

// RecordRejected records an InsufficientBalance outcome: the rejected
// counter and a latency sample (the attempt still completed end to end).
func (r *Recorder) RecordRejected(ctx context.Context, latency time.Duration, p phase.Phase) {
	attrs := metric.WithAttributes(phaseAttr(p))
	r.rejected.Add(ctx, 1, attrs)
	r.latencyUs.Record(ctx, latency.Microseconds(), attrs)
}

// RecordFailed records an AccountNotFound, Failed, or transport-error
// outcome: the failed counter only, no latency sample.
func (r *Recorder) RecordFailed(ctx context.Context, p phase.Phase) {
	r.failed.Add(ctx, 1, metric.WithAttributes(phaseAttr(p)))
}

// RecordDropped records an open-loop request rejected at submit time
// because max_concurrency was reached. No outcome is emitted and no
// latency sample is taken.
func (r *Recorder) RecordDropped(ctx context.Context, p phase.Phase) {
	r.dropped.Add(ctx, 1, metric.WithAttributes(phaseAttr(p)))
}

// Record dispatches to the correct counter for a workload.Result, applying
// the outcome table from the harness design: Success and InsufficientBalance
// carry a latency sample, AccountNotFound and Failed do not.
func (r *Recorder) Record(ctx context.Context, result workload.Result, latency time.Duration, p phase.Phase) {
	switch result {
	case workload.Success:
		r.RecordCompleted(ctx, latency, p)
	case workload.InsufficientBalance:
		r.RecordRejected(ctx, latency, p)
	default:
		r.RecordFailed(ctx, p)
	}
}

// Shutdown flushes and closes the exporter. It is a no-op for a recorder
// built with NewNoop.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r.provider == nil {
		return nil
	}

	if err := r.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}

	return nil
}
