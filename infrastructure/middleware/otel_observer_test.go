package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

func sampleResult() *domain.EvaluationResult {
	composite := 0.8
	return &domain.EvaluationResult{
		CandidateID:    "cand-7",
		Role:           "default",
		ProfileVersion: "1.0.0",
		CatalogVersion: "1.0.0",
		State:          domain.StatePartial,
		PhaseScores:    map[domain.Phase]float64{domain.PhaseCoding: 0.8},
		CompositeScore: &composite,
		Completeness:   0.25,
		Assessment:     domain.AssessmentStrong,
		Issues: []domain.Issue{
			{Phase: domain.PhaseVideo, Metric: "technical_knowledge", Code: domain.IssueOutOfDomain, Detail: "value out of range"},
		},
		ComputedAt:  time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		Fingerprint: domain.Fingerprint("abc123"),
	}
}

// The observer runs against whatever tracer provider the process
// registered. These tests exercise the full lifecycle under the
// default (noop) provider, where spans are non-recording but the
// context contract still holds.
func TestOTelEvaluationObserverLifecycle(t *testing.T) {
	observer := NewOTelEvaluationObserver()

	ctx := observer.RecomputeStarted(context.Background(), "cand-7", 1)
	require.NotNil(t, ctx)

	assert.NotPanics(t, func() {
		observer.RecomputeFinished(ctx, "cand-7", sampleResult(), nil)
	})
}

func TestOTelEvaluationObserverRecordsErrors(t *testing.T) {
	observer := NewOTelEvaluationObserver()

	ctx := observer.RecomputeStarted(context.Background(), "cand-7", 2)
	assert.NotPanics(t, func() {
		observer.RecomputeFinished(ctx, "cand-7", nil, errors.New("aggregate candidate cand-7: boom"))
	})
}

func TestOTelEvaluationObserverToleratesForeignContext(t *testing.T) {
	observer := NewOTelEvaluationObserver()

	// A context that never went through RecomputeStarted carries no
	// span; SpanFromContext falls back to a noop span.
	assert.NotPanics(t, func() {
		observer.RecomputeFinished(context.Background(), "cand-7", sampleResult(), nil)
	})
}

func TestOTelEvaluationObserverImplementsPort(t *testing.T) {
	var observer ports.EvaluationObserver = NewOTelEvaluationObserver()
	require.NotNil(t, observer)

	ctx := observer.RecomputeStarted(context.Background(), "cand-9", 1)
	assert.NotPanics(t, func() {
		observer.RecomputeFinished(ctx, "cand-9", nil, domain.ErrComputationUnstable)
	})
}
