package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

var _ ports.Rule = (*LinearRule)(nil)

// LinearRule normalizes numeric signals by scaling a declared [min,max]
// domain linearly onto [0,1], optionally inverted for metrics where a
// smaller raw value is better (e.g. runtime).
//
// Out-of-domain values clamp to the nearest boundary and carry
// confidence zero so that aggregation penalizes them instead of
// silently dropping them; non-numeric raw values behave like values
// below the domain. Normalization is pure: equal inputs always produce
// equal outputs, with no rounding beyond IEEE 754 double precision.
type LinearRule struct {
	// metric is the catalog metric name this rule instance serves.
	metric string
	// config contains the validated configuration parameters.
	config LinearConfig
}

// LinearConfig declares the source domain and scaling behavior for a
// LinearRule. Configuration is immutable after rule creation.
type LinearConfig struct {
	// Min and Max bound the declared raw-value domain. Values outside
	// clamp to the nearest bound with confidence zero.
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max" validate:"gtfield=Min"`

	// Invert flips the scale so Min maps to 1 and Max to 0, for
	// metrics where smaller raw values indicate stronger candidates.
	Invert bool `yaml:"invert" json:"invert"`

	// Confidence is attached to every in-domain normalization,
	// reflecting how much the upstream producer is trusted.
	Confidence float64 `yaml:"confidence" json:"confidence" validate:"min=0,max=1"`
}

// NewLinearRule creates a LinearRule for the given metric with a
// validated configuration. Returns ErrEmptyMetricName for an empty
// metric, ErrInvalidDomain for non-finite bounds, or a validation error
// when the configuration violates its constraints.
func NewLinearRule(metric string, config LinearConfig) (*LinearRule, error) {
	if metric == "" {
		return nil, ErrEmptyMetricName
	}
	if !isFinite(config.Min) || !isFinite(config.Max) {
		return nil, fmt.Errorf("%w: bounds must be finite, got [%v, %v]", ErrInvalidDomain, config.Min, config.Max)
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &LinearRule{metric: metric, config: config}, nil
}

// Kind returns KindLinear.
func (r *LinearRule) Kind() string { return KindLinear }

// Normalize scales the signal's raw value onto [0,1].
// The returned issue is non-nil exactly when the value was clamped or
// could not be parsed as a finite number.
func (r *LinearRule) Normalize(signal domain.PhaseSignal) (domain.NormalizedSignal, *domain.Issue) {
	out := domain.NormalizedSignal{
		Phase:      signal.Phase,
		Metric:     signal.Metric,
		Confidence: r.config.Confidence,
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(signal.RawValue), 64)
	if err != nil || !isFinite(v) {
		out.Score = r.scale(r.config.Min)
		out.Confidence = 0
		return out, &domain.Issue{
			Phase:  signal.Phase,
			Metric: signal.Metric,
			Code:   domain.IssueOutOfDomain,
			Detail: fmt.Sprintf("raw value %q is not a finite number", signal.RawValue),
		}
	}

	clamped := v
	if clamped < r.config.Min {
		clamped = r.config.Min
	}
	if clamped > r.config.Max {
		clamped = r.config.Max
	}
	out.Score = r.scale(clamped)

	if clamped != v {
		out.Confidence = 0
		return out, &domain.Issue{
			Phase:  signal.Phase,
			Metric: signal.Metric,
			Code:   domain.IssueOutOfDomain,
			Detail: fmt.Sprintf("raw value %v outside domain [%v, %v], clamped", v, r.config.Min, r.config.Max),
		}
	}
	return out, nil
}

// scale maps an in-domain value onto [0,1], honoring Invert.
func (r *LinearRule) scale(v float64) float64 {
	score := (v - r.config.Min) / (r.config.Max - r.config.Min)
	if r.config.Invert {
		score = 1 - score
	}
	return score
}

// Validate verifies the rule is properly configured.
// Safe for concurrent use.
func (r *LinearRule) Validate() error {
	if !isFinite(r.config.Min) || !isFinite(r.config.Max) {
		return fmt.Errorf("%w: bounds must be finite, got [%v, %v]", ErrInvalidDomain, r.config.Min, r.config.Max)
	}
	if err := validate.Struct(r.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// DefaultLinearConfig returns a LinearConfig with production-ready
// defaults: the unit interval as domain, no inversion, full confidence.
func DefaultLinearConfig() LinearConfig {
	return LinearConfig{
		Min:        0.0,
		Max:        1.0,
		Invert:     false,
		Confidence: 1.0,
	}
}

// NewLinearFromConfig creates a LinearRule from a configuration map.
// This is the boundary adapter for catalog documents.
func NewLinearFromConfig(metric string, config map[string]any) (ports.Rule, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	// Start with defaults, then overlay user config.
	cfg := DefaultLinearConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return NewLinearRule(metric, cfg)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
