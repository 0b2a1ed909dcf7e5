package domain

import (
	"fmt"
	"math"
	"sort"
)

// Aggregation is the outcome of combining normalized signals with a
// weight profile: confidence-weighted phase scores, the completeness of
// the evidence, and the composite score over the phases that have any.
type Aggregation struct {
	// PhaseScores holds a score per phase with at least one usable
	// signal. Phases with no usable signal are absent, not zero.
	PhaseScores map[Phase]float64 `json:"phase_scores"`

	// Completeness is the sum of phase-level weights of the phases
	// present in PhaseScores. Phase weights sum to one, so this is the
	// fraction of total weight backed by signal.
	Completeness float64 `json:"completeness"`

	// Composite is the phase-weight-normalized combination of the
	// defined phase scores. Only meaningful when CompositeDefined.
	Composite float64 `json:"composite_score"`

	// CompositeDefined is false when no phase had a usable signal.
	CompositeDefined bool `json:"composite_defined"`
}

// Aggregate combines normalized signals into phase scores and a
// composite score under the given profile.
//
// Per phase: score = Σ(weight·score·confidence) / Σ(weight·confidence)
// over the phase's metrics. A zero denominator leaves the phase
// undefined rather than scoring it zero. The composite averages defined
// phase scores by their phase weights; undefined phases are excluded
// from numerator and denominator alike, so a candidate is never
// penalized for a phase that has not run.
//
// When completeness lands below minCompleteness the aggregation is
// still returned in full, alongside an InsufficientSignalError; the
// threshold itself is inclusive. Summation follows the fixed phase and
// metric order, so equal inputs produce bit-equal outputs.
func Aggregate(signals []NormalizedSignal, profile WeightProfile, minCompleteness float64) (Aggregation, error) {
	for _, s := range signals {
		if err := checkUnitInterval("score", s.Score, s); err != nil {
			return Aggregation{}, err
		}
		if err := checkUnitInterval("confidence", s.Confidence, s); err != nil {
			return Aggregation{}, err
		}
	}

	byPhase := make(map[Phase][]NormalizedSignal, len(AllPhases()))
	for _, s := range signals {
		byPhase[s.Phase] = append(byPhase[s.Phase], s)
	}

	agg := Aggregation{PhaseScores: make(map[Phase]float64, len(byPhase))}

	var compositeNum, compositeDen float64
	for _, phase := range AllPhases() {
		phaseSignals := byPhase[phase]
		sort.Slice(phaseSignals, func(i, j int) bool {
			return phaseSignals[i].Metric < phaseSignals[j].Metric
		})

		var num, den float64
		for _, s := range phaseSignals {
			w, ok := profile.MetricWeight(phase, s.Metric)
			if !ok {
				continue
			}
			num += w * s.Score * s.Confidence
			den += w * s.Confidence
		}
		if den == 0 {
			continue
		}

		score := num / den
		agg.PhaseScores[phase] = score

		pw := profile.PhaseWeight(phase)
		agg.Completeness += pw
		compositeNum += pw * score
		compositeDen += pw
	}

	if compositeDen > 0 {
		agg.Composite = compositeNum / compositeDen
		agg.CompositeDefined = true
	}

	if agg.Completeness < minCompleteness {
		return agg, &InsufficientSignalError{Completeness: agg.Completeness, Threshold: minCompleteness}
	}
	return agg, nil
}

func checkUnitInterval(field string, v float64, s NormalizedSignal) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s/%s %s %v outside [0,1]", ErrInvalidSignal, s.Phase, s.Metric, field, v)
	}
	return nil
}
