package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

var _ ports.EvaluationObserver = (*OTelEvaluationObserver)(nil)

// tracerName identifies the instrumentation scope for evaluation spans.
const tracerName = "hiregauge/evaluation"

// OTelEvaluationObserver implements observability for evaluation
// recomputations using OpenTelemetry tracing. Each recomputation
// attempt becomes one span carrying the candidate, attempt number, and
// outcome, so mid-flight invalidations show up as sibling spans under
// the caller's trace.
type OTelEvaluationObserver struct {
	tracer trace.Tracer
}

// NewOTelEvaluationObserver creates an observer that records spans on
// the globally registered tracer provider.
func NewOTelEvaluationObserver() *OTelEvaluationObserver {
	return &OTelEvaluationObserver{tracer: otel.Tracer(tracerName)}
}

// RecomputeStarted implements the EvaluationObserver interface. It
// starts a span for the attempt and returns the span context so
// RecomputeFinished can close out the same span.
func (o *OTelEvaluationObserver) RecomputeStarted(
	ctx context.Context, candidateID string, attempt int,
) context.Context {
	ctx, _ = o.tracer.Start(ctx, "Orchestrator.Recompute", trace.WithAttributes(
		attribute.String("candidate.id", candidateID),
		attribute.Int("evaluation.attempt", attempt),
	))
	return ctx
}

// RecomputeFinished implements the EvaluationObserver interface. It
// records the attempt's outcome on the span started by
// RecomputeStarted and ends it.
func (o *OTelEvaluationObserver) RecomputeFinished(
	ctx context.Context, candidateID string, result *domain.EvaluationResult, err error,
) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	if result != nil {
		o.addResultAttributes(span, result)
	}
	span.SetStatus(codes.Ok, "evaluation computed")
}

// addResultAttributes sets span attributes describing the computed
// evaluation and emits events for conditions operators watch for.
func (o *OTelEvaluationObserver) addResultAttributes(span trace.Span, result *domain.EvaluationResult) {
	span.SetAttributes(
		attribute.String("evaluation.state", string(result.State)),
		attribute.Float64("evaluation.completeness", result.Completeness),
		attribute.String("evaluation.fingerprint", string(result.Fingerprint)),
		attribute.String("evaluation.catalog_version", result.CatalogVersion),
		attribute.String("evaluation.role", result.Role),
	)

	if result.CompositeScore != nil {
		span.SetAttributes(
			attribute.Float64("evaluation.composite_score", *result.CompositeScore),
			attribute.String("evaluation.assessment", result.Assessment),
		)
	}

	if result.State == domain.StatePartial {
		span.AddEvent("evaluation.partial_coverage", trace.WithAttributes(
			attribute.Float64("completeness", result.Completeness),
		))
	}

	if len(result.Issues) > 0 {
		issueCodes := make([]string, len(result.Issues))
		for i, issue := range result.Issues {
			issueCodes[i] = string(issue.Code)
		}
		span.AddEvent("evaluation.issues", trace.WithAttributes(
			attribute.Int("count", len(result.Issues)),
			attribute.StringSlice("codes", issueCodes),
		))
	}
}
