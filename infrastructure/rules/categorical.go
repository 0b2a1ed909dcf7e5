package rules

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

var _ ports.Rule = (*CategoricalRule)(nil)

// CategoricalRule normalizes discrete signals through an explicit
// value-to-score lookup table, e.g. complexity classes or plagiarism
// verdicts. Categories missing from the table score the table minimum
// with confidence zero, mirroring how numeric rules treat out-of-domain
// values.
type CategoricalRule struct {
	// metric is the catalog metric name this rule instance serves.
	metric string
	// config contains the validated configuration parameters.
	config CategoricalConfig
	// table holds the lookup entries, keys folded per configuration.
	table map[string]float64
	// floor is the lowest score in the table, used for unknown categories.
	floor float64
}

// CategoricalConfig declares the lookup table and matching behavior for
// a CategoricalRule.
type CategoricalConfig struct {
	// Table maps category values onto [0,1] scores.
	Table map[string]float64 `yaml:"table" json:"table" validate:"required,min=1,dive,min=0,max=1"`

	// CaseSensitive controls whether category matching distinguishes
	// letter case. Folding happens against the lower-cased table.
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`

	// TrimWhitespace strips surrounding whitespace from raw values
	// before lookup.
	TrimWhitespace bool `yaml:"trim_whitespace" json:"trim_whitespace"`

	// Confidence is attached to every matched normalization.
	Confidence float64 `yaml:"confidence" json:"confidence" validate:"min=0,max=1"`
}

// NewCategoricalRule creates a CategoricalRule for the given metric.
// Returns ErrEmptyMetricName for an empty metric, ErrEmptyTable for an
// empty table, or ErrDuplicateCategory when case folding collapses two
// entries.
func NewCategoricalRule(metric string, config CategoricalConfig) (*CategoricalRule, error) {
	if metric == "" {
		return nil, ErrEmptyMetricName
	}
	if len(config.Table) == 0 {
		return nil, ErrEmptyTable
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	table := make(map[string]float64, len(config.Table))
	floor := 1.0
	for category, score := range config.Table {
		key := category
		if !config.CaseSensitive {
			key = strings.ToLower(key)
		}
		if _, exists := table[key]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCategory, key)
		}
		table[key] = score
		if score < floor {
			floor = score
		}
	}

	return &CategoricalRule{metric: metric, config: config, table: table, floor: floor}, nil
}

// Kind returns KindCategorical.
func (r *CategoricalRule) Kind() string { return KindCategorical }

// Normalize looks the signal's raw value up in the table. Unmapped
// categories score the table minimum with confidence zero and a non-nil
// issue.
func (r *CategoricalRule) Normalize(signal domain.PhaseSignal) (domain.NormalizedSignal, *domain.Issue) {
	out := domain.NormalizedSignal{
		Phase:      signal.Phase,
		Metric:     signal.Metric,
		Confidence: r.config.Confidence,
	}

	key := signal.RawValue
	if r.config.TrimWhitespace {
		key = strings.TrimSpace(key)
	}
	if !r.config.CaseSensitive {
		key = strings.ToLower(key)
	}

	score, ok := r.table[key]
	if !ok {
		out.Score = r.floor
		out.Confidence = 0
		return out, &domain.Issue{
			Phase:  signal.Phase,
			Metric: signal.Metric,
			Code:   domain.IssueOutOfDomain,
			Detail: fmt.Sprintf("category %q not in lookup table", signal.RawValue),
		}
	}

	out.Score = score
	return out, nil
}

// Validate verifies the rule is properly configured.
// Safe for concurrent use.
func (r *CategoricalRule) Validate() error {
	if len(r.table) == 0 {
		return ErrEmptyTable
	}
	if err := validate.Struct(r.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// DefaultCategoricalConfig returns a CategoricalConfig with
// production-ready defaults: case-insensitive trimmed matching at full
// confidence. The table must still be supplied.
func DefaultCategoricalConfig() CategoricalConfig {
	return CategoricalConfig{
		CaseSensitive:  false,
		TrimWhitespace: true,
		Confidence:     1.0,
	}
}

// NewCategoricalFromConfig creates a CategoricalRule from a
// configuration map. This is the boundary adapter for catalog documents.
func NewCategoricalFromConfig(metric string, config map[string]any) (ports.Rule, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	cfg := DefaultCategoricalConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return NewCategoricalRule(metric, cfg)
}

// ComplexityClassTable maps asymptotic complexity classes reported by
// the coding sandbox onto scores. Constant time anchors the top of the
// scale; exponential the bottom.
func ComplexityClassTable() map[string]float64 {
	return map[string]float64{
		"O(1)":       1.00,
		"O(log n)":   0.90,
		"O(n)":       0.75,
		"O(n log n)": 0.60,
		"O(n^2)":     0.35,
		"O(n^3)":     0.20,
		"O(2^n)":     0.10,
	}
}

// PlagiarismFlagTable maps plagiarism verdicts onto scores. A confirmed
// match zeroes the metric; a suspected one keeps a small residual so a
// false positive cannot single-handedly sink an otherwise strong
// submission.
func PlagiarismFlagTable() map[string]float64 {
	return map[string]float64{
		"clean":     1.00,
		"suspected": 0.25,
		"confirmed": 0.00,
	}
}
