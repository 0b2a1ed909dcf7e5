package ports

import (
	"context"
	"time"

	"github.com/hiregauge/hiregauge/internal/domain"
)

// MetricsCollector defines the interface for collecting operational
// metrics. Implementations should integrate with observability platforms
// like Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like duplicate appends,
	// excluded signals, retries, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like known candidates or
	// in-flight recomputations.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like composite scores
	// or completeness.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// EvaluationObserver watches orchestrator recomputations. Observers may
// enrich the context (e.g. with a trace span) in RecomputeStarted; the
// same context is handed back to RecomputeFinished exactly once per
// started attempt, whether the attempt succeeded, failed, or was
// invalidated mid-flight.
type EvaluationObserver interface {
	// RecomputeStarted fires before an evaluation attempt. attempt is
	// 1-based and increases when a mid-flight invalidation forces a
	// retry.
	RecomputeStarted(ctx context.Context, candidateID string, attempt int) context.Context

	// RecomputeFinished fires after the attempt with its outcome. The
	// result may be nil when the attempt failed before producing one.
	RecomputeFinished(ctx context.Context, candidateID string, result *domain.EvaluationResult, err error)
}
