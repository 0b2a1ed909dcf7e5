package domain

import (
	"fmt"
	"math"
	"sort"
)

// WeightTolerance is the permitted deviation when checking that weight
// groups sum to 1.0.
const WeightTolerance = 1e-6

// WeightProfile is the role-specific weighting applied during
// aggregation: one weight per phase and one weight per metric within
// each phase. Profiles are versioned and immutable during a single
// evaluation run; the version joins the input fingerprint.
type WeightProfile struct {
	// Role names the target role the profile applies to.
	Role string `yaml:"role" json:"role" validate:"required"`

	// Version is the semver-style profile version.
	Version string `yaml:"version" json:"version" validate:"required"`

	// PhaseWeights assigns each phase its share of the composite score.
	// Weights are non-negative and sum to 1.0 within WeightTolerance.
	PhaseWeights map[Phase]float64 `yaml:"phase_weights" json:"phase_weights" validate:"required"`

	// MetricWeights assigns each metric its share of its phase score.
	// Within every phase the weights sum to 1.0 within WeightTolerance.
	MetricWeights map[Phase]map[string]float64 `yaml:"metric_weights" json:"metric_weights" validate:"required"`
}

// Validate checks the sum and domain invariants, collecting every
// violation into a single ProfileError rather than stopping at the first.
func (p WeightProfile) Validate() error {
	var violations []string

	if p.Role == "" {
		violations = append(violations, "role must not be empty")
	}
	if p.Version == "" {
		violations = append(violations, "version must not be empty")
	}
	if len(p.PhaseWeights) == 0 {
		violations = append(violations, "phase_weights must not be empty")
	}

	var phaseSum float64
	for _, phase := range AllPhases() {
		w, ok := p.PhaseWeights[phase]
		if !ok {
			violations = append(violations, fmt.Sprintf("phase %s missing from phase_weights", phase))
			continue
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			violations = append(violations, fmt.Sprintf("phase %s weight %v out of domain", phase, w))
			continue
		}
		phaseSum += w
	}
	for phase := range p.PhaseWeights {
		if !phase.Valid() {
			violations = append(violations, fmt.Sprintf("unknown phase %q in phase_weights", string(phase)))
		}
	}
	if len(violations) == 0 && math.Abs(phaseSum-1.0) > WeightTolerance {
		violations = append(violations, fmt.Sprintf("phase weights sum to %.9f, want 1.0", phaseSum))
	}

	for _, phase := range AllPhases() {
		metrics, ok := p.MetricWeights[phase]
		if !ok || len(metrics) == 0 {
			violations = append(violations, fmt.Sprintf("phase %s has no metric weights", phase))
			continue
		}
		var sum float64
		bad := false
		for metric, w := range metrics {
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				violations = append(violations, fmt.Sprintf("metric %s/%s weight %v out of domain", phase, metric, w))
				bad = true
				continue
			}
			sum += w
		}
		if !bad && math.Abs(sum-1.0) > WeightTolerance {
			violations = append(violations, fmt.Sprintf("phase %s metric weights sum to %.9f, want 1.0", phase, sum))
		}
	}
	for phase := range p.MetricWeights {
		if !phase.Valid() {
			violations = append(violations, fmt.Sprintf("unknown phase %q in metric_weights", string(phase)))
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		return &ProfileError{Role: p.Role, Version: p.Version, Violations: violations}
	}
	return nil
}

// PhaseWeight returns the composite-level weight for a phase, zero when
// the phase is absent from the profile.
func (p WeightProfile) PhaseWeight(phase Phase) float64 {
	return p.PhaseWeights[phase]
}

// MetricWeight returns the within-phase weight for a metric and whether
// the profile mentions it at all. Metrics absent from the profile do not
// participate in that phase's score.
func (p WeightProfile) MetricWeight(phase Phase, metric string) (float64, bool) {
	metrics, ok := p.MetricWeights[phase]
	if !ok {
		return 0, false
	}
	w, ok := metrics[metric]
	return w, ok
}

// Metrics returns the metric names the profile weights for a phase, in
// deterministic lexical order.
func (p WeightProfile) Metrics(phase Phase) []string {
	metrics := p.MetricWeights[phase]
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy. Profile stores hand out clones so callers
// can never corrupt the shared registration.
func (p WeightProfile) Clone() WeightProfile {
	out := p
	out.PhaseWeights = make(map[Phase]float64, len(p.PhaseWeights))
	for phase, w := range p.PhaseWeights {
		out.PhaseWeights[phase] = w
	}
	out.MetricWeights = make(map[Phase]map[string]float64, len(p.MetricWeights))
	for phase, metrics := range p.MetricWeights {
		m := make(map[string]float64, len(metrics))
		for name, w := range metrics {
			m[name] = w
		}
		out.MetricWeights[phase] = m
	}
	return out
}

// DefaultWeightProfile returns the built-in fallback profile used when a
// role has no dedicated profile configured. Phase emphasis follows the
// hiring pipeline's historical calibration: the coding challenge carries
// the most weight, the managerial round the least.
func DefaultWeightProfile() WeightProfile {
	return WeightProfile{
		Role:    "default",
		Version: "1.0.0",
		PhaseWeights: map[Phase]float64{
			PhaseScreening:  0.20,
			PhaseVideo:      0.30,
			PhaseCoding:     0.40,
			PhaseManagerial: 0.10,
		},
		MetricWeights: map[Phase]map[string]float64{
			PhaseScreening: {
				"skill_match_score":  0.50,
				"code_quality_score": 0.30,
				"experience_years":   0.20,
			},
			PhaseVideo: {
				"technical_knowledge": 0.50,
				"communication_score": 0.30,
				"sentiment_score":     0.20,
			},
			PhaseCoding: {
				"correctness_ratio":      0.45,
				"style_score":            0.15,
				"time_complexity_class":  0.15,
				"space_complexity_class": 0.10,
				"plagiarism_flag":        0.15,
			},
			PhaseManagerial: {
				"leadership_score":   0.30,
				"cultural_fit_score": 0.30,
				"decision_score":     0.20,
				"behavior_score":     0.20,
			},
		},
	}
}
