package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

var _ ports.Rule = (*PercentileRule)(nil)

// PercentileRule normalizes numeric signals by ranking them against a
// reference population, e.g. years of experience against the hired
// cohort. The score is the midrank percentile: the fraction of the
// sample strictly below the value plus half the fraction equal to it,
// which keeps ties symmetric and the ranking deterministic.
//
// Confidence scales with sample size: a sample at or above MinSamples
// earns full confidence, smaller ones proportionally less, so thin
// reference data weakens rather than dominates a phase.
type PercentileRule struct {
	// metric is the catalog metric name this rule instance serves.
	metric string
	// config contains the validated configuration parameters.
	config PercentileConfig
	// sample is the sorted reference population.
	sample []float64
}

// PercentileConfig declares the reference population for a
// PercentileRule.
type PercentileConfig struct {
	// Sample is the reference population the value is ranked against.
	// Order does not matter; the rule sorts a private copy.
	Sample []float64 `yaml:"sample" json:"sample" validate:"required,min=1"`

	// MinSamples is the sample size needed for full confidence.
	MinSamples int `yaml:"min_samples" json:"min_samples" validate:"min=1"`

	// Invert flips the ranking for metrics where a low value is better.
	Invert bool `yaml:"invert" json:"invert"`
}

// NewPercentileRule creates a PercentileRule for the given metric.
// Returns ErrEmptyMetricName for an empty metric or ErrEmptySample when
// the reference population is empty or contains non-finite values.
func NewPercentileRule(metric string, config PercentileConfig) (*PercentileRule, error) {
	if metric == "" {
		return nil, ErrEmptyMetricName
	}
	if len(config.Sample) == 0 {
		return nil, ErrEmptySample
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	for i, v := range config.Sample {
		if !isFinite(v) {
			return nil, fmt.Errorf("%w: non-finite entry %v at index %d", ErrEmptySample, v, i)
		}
	}

	sample := make([]float64, len(config.Sample))
	copy(sample, config.Sample)
	sort.Float64s(sample)

	return &PercentileRule{metric: metric, config: config, sample: sample}, nil
}

// Kind returns KindPercentile.
func (r *PercentileRule) Kind() string { return KindPercentile }

// Normalize ranks the signal's raw value against the reference sample.
func (r *PercentileRule) Normalize(signal domain.PhaseSignal) (domain.NormalizedSignal, *domain.Issue) {
	out := domain.NormalizedSignal{
		Phase:      signal.Phase,
		Metric:     signal.Metric,
		Confidence: r.confidence(),
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(signal.RawValue), 64)
	if err != nil || !isFinite(v) {
		out.Score = 0
		out.Confidence = 0
		return out, &domain.Issue{
			Phase:  signal.Phase,
			Metric: signal.Metric,
			Code:   domain.IssueOutOfDomain,
			Detail: fmt.Sprintf("raw value %q is not a finite number", signal.RawValue),
		}
	}

	// sort.SearchFloat64s finds the first index >= v; scanning equal
	// entries from there yields the midrank without a second search.
	n := len(r.sample)
	lower := sort.SearchFloat64s(r.sample, v)
	equal := 0
	for i := lower; i < n && r.sample[i] == v; i++ {
		equal++
	}

	score := (float64(lower) + 0.5*float64(equal)) / float64(n)
	if r.config.Invert {
		score = 1 - score
	}
	out.Score = score
	return out, nil
}

// confidence derives the sample-size confidence weight.
func (r *PercentileRule) confidence() float64 {
	c := float64(len(r.sample)) / float64(r.config.MinSamples)
	if c > 1 {
		return 1
	}
	return c
}

// Validate verifies the rule is properly configured.
// Safe for concurrent use.
func (r *PercentileRule) Validate() error {
	if len(r.sample) == 0 {
		return ErrEmptySample
	}
	if err := validate.Struct(r.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// DefaultPercentileConfig returns a PercentileConfig with
// production-ready defaults: full confidence from twenty reference
// points. The sample must still be supplied.
func DefaultPercentileConfig() PercentileConfig {
	return PercentileConfig{
		MinSamples: 20,
		Invert:     false,
	}
}

// NewPercentileFromConfig creates a PercentileRule from a configuration
// map. This is the boundary adapter for catalog documents.
func NewPercentileFromConfig(metric string, config map[string]any) (ports.Rule, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	cfg := DefaultPercentileConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return NewPercentileRule(metric, cfg)
}
