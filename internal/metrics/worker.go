package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WorkerMetrics defines the interface for recording outbox worker metrics.
// Implementations track per-tick durations and per-entry delivery outcomes.
type WorkerMetrics interface {
	// RecordTick records one completed worker tick and its duration.
	// Status examples: "ok", "error", "skipped"
	RecordTick(ctx context.Context, duration time.Duration, status string)

	// RecordOutcome records how many entries resolved to a given outcome in a tick.
	// Outcome examples: "succeeded", "retried", "dead_lettered", "recovered_stuck"
	RecordOutcome(ctx context.Context, outcome string, count int64)
}

// workerMetrics implements WorkerMetrics using OpenTelemetry metrics.
type workerMetrics struct {
	tickCounter    metric.Int64Counter
	tickHisto      metric.Float64Histogram
	outcomeCounter metric.Int64Counter
}

// NewWorkerMetrics creates a new WorkerMetrics implementation using the provided meter provider.
// The namespace parameter is used as a prefix for all metric names (e.g., "helpdesk").
// Returns error if meters cannot be initialized.
func NewWorkerMetrics(meterProvider metric.MeterProvider, namespace string) (WorkerMetrics, error) {
	meter := meterProvider.Meter(namespace)

	tickCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_outbox_ticks_total", namespace),
		metric.WithDescription("Total number of outbox worker ticks"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tick counter: %w", err)
	}

	tickHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_outbox_tick_duration_seconds", namespace),
		metric.WithDescription("Duration of outbox worker ticks in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tick duration histogram: %w", err)
	}

	outcomeCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_outbox_entries_total", namespace),
		metric.WithDescription("Total number of outbox entries per delivery outcome"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outcome counter: %w", err)
	}

	return &workerMetrics{
		tickCounter:    tickCounter,
		tickHisto:      tickHisto,
		outcomeCounter: outcomeCounter,
	}, nil
}

// RecordTick increments the tick counter and records the tick duration.
func (w *workerMetrics) RecordTick(ctx context.Context, duration time.Duration, status string) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	w.tickCounter.Add(ctx, 1, attrs)
	w.tickHisto.Record(ctx, duration.Seconds(), attrs)
}

// RecordOutcome adds the outcome count with an outcome label.
func (w *workerMetrics) RecordOutcome(ctx context.Context, outcome string, count int64) {
	if count == 0 {
		return
	}
	w.outcomeCounter.Add(ctx, count,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// NoOpWorkerMetrics is a no-op implementation of WorkerMetrics for when metrics are disabled.
type NoOpWorkerMetrics struct{}

// NewNoOpWorkerMetrics creates a no-op WorkerMetrics implementation.
func NewNoOpWorkerMetrics() WorkerMetrics {
	return &NoOpWorkerMetrics{}
}

// RecordTick does nothing when metrics are disabled.
func (n *NoOpWorkerMetrics) RecordTick(ctx context.Context, duration time.Duration, status string) {
	// No-op
}

// RecordOutcome does nothing when metrics are disabled.
func (n *NoOpWorkerMetrics) RecordOutcome(ctx context.Context, outcome string, count int64) {
	// No-op
}
