package domain

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fourPhaseProfile weights every phase equally with a single fully
// weighted metric per phase, the simplest shape for exercising the
// aggregation formulas.
func fourPhaseProfile(t *testing.T) WeightProfile {
	t.Helper()
	p := WeightProfile{
		Role:    "test_role",
		Version: "1.0.0",
		PhaseWeights: map[Phase]float64{
			PhaseScreening:  0.25,
			PhaseVideo:      0.25,
			PhaseCoding:     0.25,
			PhaseManagerial: 0.25,
		},
		MetricWeights: map[Phase]map[string]float64{
			PhaseScreening:  {"skill_match_score": 1.0},
			PhaseVideo:      {"technical_knowledge": 1.0},
			PhaseCoding:     {"correctness_ratio": 1.0},
			PhaseManagerial: {"leadership_score": 1.0},
		},
	}
	require.NoError(t, p.Validate())
	return p
}

func ns(phase Phase, metric string, score, confidence float64) NormalizedSignal {
	return NormalizedSignal{Phase: phase, Metric: metric, Score: score, Confidence: confidence}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name             string
		signals          []NormalizedSignal
		minCompleteness  float64
		wantPhaseScores  map[Phase]float64
		wantCompleteness float64
		wantComposite    float64
		wantDefined      bool
		wantInsufficient bool
	}{
		{
			name: "two phases at threshold boundary stay sufficient",
			signals: []NormalizedSignal{
				ns(PhaseScreening, "skill_match_score", 0.8, 1.0),
				ns(PhaseCoding, "correctness_ratio", 0.8, 1.0),
			},
			minCompleteness: 0.5,
			wantPhaseScores: map[Phase]float64{
				PhaseScreening: 0.8,
				PhaseCoding:    0.8,
			},
			wantCompleteness: 0.5,
			wantComposite:    0.8,
			wantDefined:      true,
		},
		{
			name: "all four phases average by phase weight",
			signals: []NormalizedSignal{
				ns(PhaseScreening, "skill_match_score", 0.9, 1.0),
				ns(PhaseVideo, "technical_knowledge", 0.6, 1.0),
				ns(PhaseCoding, "correctness_ratio", 0.7, 1.0),
				ns(PhaseManagerial, "leadership_score", 0.5, 1.0),
			},
			minCompleteness: 0.5,
			wantPhaseScores: map[Phase]float64{
				PhaseScreening:  0.9,
				PhaseVideo:      0.6,
				PhaseCoding:     0.7,
				PhaseManagerial: 0.5,
			},
			wantCompleteness: 1.0,
			wantComposite:    0.675,
			wantDefined:      true,
		},
		{
			name: "single phase below threshold still aggregates",
			signals: []NormalizedSignal{
				ns(PhaseScreening, "skill_match_score", 0.8, 1.0),
			},
			minCompleteness:  0.5,
			wantPhaseScores:  map[Phase]float64{PhaseScreening: 0.8},
			wantCompleteness: 0.25,
			wantComposite:    0.8,
			wantDefined:      true,
			wantInsufficient: true,
		},
		{
			name: "zero confidence leaves the phase undefined not zero",
			signals: []NormalizedSignal{
				ns(PhaseScreening, "skill_match_score", 0.9, 0.0),
				ns(PhaseCoding, "correctness_ratio", 0.7, 1.0),
			},
			minCompleteness:  0.25,
			wantPhaseScores:  map[Phase]float64{PhaseCoding: 0.7},
			wantCompleteness: 0.25,
			wantComposite:    0.7,
			wantDefined:      true,
		},
		{
			name:             "no signals at all",
			signals:          nil,
			minCompleteness:  0.5,
			wantPhaseScores:  map[Phase]float64{},
			wantCompleteness: 0,
			wantDefined:      false,
			wantInsufficient: true,
		},
		{
			name: "metric without profile weight contributes nothing",
			signals: []NormalizedSignal{
				ns(PhaseVideo, "unweighted_metric", 0.1, 1.0),
				ns(PhaseCoding, "correctness_ratio", 0.7, 1.0),
			},
			minCompleteness:  0.25,
			wantPhaseScores:  map[Phase]float64{PhaseCoding: 0.7},
			wantCompleteness: 0.25,
			wantComposite:    0.7,
			wantDefined:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := fourPhaseProfile(t)

			agg, err := Aggregate(tt.signals, profile, tt.minCompleteness)
			if tt.wantInsufficient {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInsufficientSignal)
				var insErr *InsufficientSignalError
				require.ErrorAs(t, err, &insErr)
				assert.InDelta(t, tt.wantCompleteness, insErr.Completeness, 1e-9)
				assert.InDelta(t, tt.minCompleteness, insErr.Threshold, 1e-9)
			} else {
				require.NoError(t, err)
			}

			assert.Len(t, agg.PhaseScores, len(tt.wantPhaseScores))
			for phase, want := range tt.wantPhaseScores {
				got, ok := agg.PhaseScores[phase]
				require.True(t, ok, "phase %s should be defined", phase)
				assert.InDelta(t, want, got, 1e-9, "phase %s", phase)
			}
			assert.InDelta(t, tt.wantCompleteness, agg.Completeness, 1e-9)
			assert.Equal(t, tt.wantDefined, agg.CompositeDefined)
			if tt.wantDefined {
				assert.InDelta(t, tt.wantComposite, agg.Composite, 1e-9)
			}
		})
	}
}

func TestAggregateConfidenceWeighting(t *testing.T) {
	profile := WeightProfile{
		Role:    "test_role",
		Version: "1.0.0",
		PhaseWeights: map[Phase]float64{
			PhaseScreening:  1.0,
			PhaseVideo:      0.0,
			PhaseCoding:     0.0,
			PhaseManagerial: 0.0,
		},
		MetricWeights: map[Phase]map[string]float64{
			PhaseScreening:  {"skill_match_score": 0.5, "code_quality_score": 0.5},
			PhaseVideo:      {"technical_knowledge": 1.0},
			PhaseCoding:     {"correctness_ratio": 1.0},
			PhaseManagerial: {"leadership_score": 1.0},
		},
	}
	require.NoError(t, profile.Validate())

	signals := []NormalizedSignal{
		ns(PhaseScreening, "skill_match_score", 1.0, 1.0),
		ns(PhaseScreening, "code_quality_score", 0.0, 0.5),
	}

	agg, err := Aggregate(signals, profile, 0.0)
	require.NoError(t, err)

	// num = 0.5*1.0*1.0 + 0.5*0.0*0.5 = 0.5
	// den = 0.5*1.0 + 0.5*0.5 = 0.75
	assert.InDelta(t, 0.5/0.75, agg.PhaseScores[PhaseScreening], 1e-9)
}

func TestAggregateRejectsOutOfRangeInputs(t *testing.T) {
	tests := []struct {
		name   string
		signal NormalizedSignal
	}{
		{"score above one", ns(PhaseScreening, "skill_match_score", 1.5, 1.0)},
		{"negative score", ns(PhaseScreening, "skill_match_score", -0.1, 1.0)},
		{"confidence above one", ns(PhaseScreening, "skill_match_score", 0.5, 1.1)},
		{"nan score", ns(PhaseScreening, "skill_match_score", math.NaN(), 1.0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate([]NormalizedSignal{tt.signal}, fourPhaseProfile(t), 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSignal)
		})
	}
}

// Raising any single normalized score while holding the rest fixed must
// never decrease the composite.
func TestAggregateMonotonicity(t *testing.T) {
	profile := fourPhaseProfile(t)
	base := []NormalizedSignal{
		ns(PhaseScreening, "skill_match_score", 0.5, 1.0),
		ns(PhaseVideo, "technical_knowledge", 0.5, 0.8),
		ns(PhaseCoding, "correctness_ratio", 0.5, 1.0),
		ns(PhaseManagerial, "leadership_score", 0.5, 0.6),
	}

	baseAgg, err := Aggregate(base, profile, 0)
	require.NoError(t, err)

	for i := range base {
		for _, delta := range []float64{0.01, 0.1, 0.5} {
			raised := make([]NormalizedSignal, len(base))
			copy(raised, base)
			raised[i].Score = min(raised[i].Score+delta, 1.0)

			agg, err := Aggregate(raised, profile, 0)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, agg.Composite, baseAgg.Composite,
				"raising %s by %v must not lower the composite", base[i].Metric, delta)
		}
	}
}

// Input order must not influence any output bit.
func TestAggregateDeterministicUnderShuffle(t *testing.T) {
	profile := fourPhaseProfile(t)
	signals := []NormalizedSignal{
		ns(PhaseScreening, "skill_match_score", 0.91, 1.0),
		ns(PhaseVideo, "technical_knowledge", 0.62, 0.9),
		ns(PhaseCoding, "correctness_ratio", 0.73, 1.0),
		ns(PhaseManagerial, "leadership_score", 0.55, 0.7),
	}

	want, err := Aggregate(signals, profile, 0.5)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]NormalizedSignal, len(signals))
		copy(shuffled, signals)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := Aggregate(shuffled, profile, 0.5)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAggregatePopulatesResultEvenWhenInsufficient(t *testing.T) {
	agg, err := Aggregate(
		[]NormalizedSignal{ns(PhaseCoding, "correctness_ratio", 0.9, 1.0)},
		fourPhaseProfile(t), 0.5)

	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInsufficientSignal))
	assert.True(t, agg.CompositeDefined)
	assert.InDelta(t, 0.9, agg.Composite, 1e-9)
	assert.InDelta(t, 0.25, agg.Completeness, 1e-9)
}
