// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"github.com/hiregauge/hiregauge/internal/domain"
)

// Rule normalizes one metric's raw signals onto the common [0,1] scale.
// Rules are resolved by metric name when the catalog loads, one instance
// per metric, and must be stateless and safe for concurrent use.
type Rule interface {
	// Kind returns the registered rule kind, e.g. "linear",
	// "categorical", or "percentile". Used for logging and registry
	// lookups.
	Kind() string

	// Normalize maps the signal's raw value onto [0,1] with a
	// confidence weight. Normalization is total: out-of-domain values
	// clamp to the nearest boundary with confidence zero and a non-nil
	// issue describing the clamp, never an error. Same input, same
	// output, always.
	Normalize(signal domain.PhaseSignal) (domain.NormalizedSignal, *domain.Issue)

	// Validate checks that the rule's configuration is internally
	// consistent. It is called once at catalog load time, before the
	// rule serves any signal.
	Validate() error
}

// RuleFactory constructs a Rule for a metric from its catalog
// configuration. Factories are registered per rule kind and overlay the
// supplied configuration onto the kind's defaults.
type RuleFactory func(metric string, config map[string]any) (Rule, error)

// RuleRegistry creates normalization rules by kind. It ships with the
// built-in kinds pre-registered and accepts custom factories at runtime.
type RuleRegistry interface {
	// CreateRule instantiates a rule of the given kind for a metric.
	// Unsupported kinds and invalid configurations fail.
	CreateRule(kind, metric string, config map[string]any) (Rule, error)

	// RegisterRuleFactory adds or replaces the factory for a kind.
	RegisterRuleFactory(kind string, factory RuleFactory) error

	// SupportedKinds lists every registered rule kind.
	SupportedKinds() []string
}

// Normalizer converts a candidate's latest signals into normalized
// signals, collecting a structured issue for every signal it had to
// exclude or degrade. The catalog version participates in evaluation
// fingerprints so rule changes invalidate cached results.
type Normalizer interface {
	// Normalize processes the latest-per-key signal set. Unknown
	// metrics are excluded with an issue rather than failing the batch.
	Normalize(signals []domain.StoredSignal) ([]domain.NormalizedSignal, []domain.Issue)

	// Check reports whether a metric has a rule, returning
	// *domain.UnknownMetricError (with a spelling suggestion when one
	// is close) otherwise. Lets ingestion warn without normalizing.
	Check(phase domain.Phase, metric string) error

	// Version identifies the loaded rule catalog.
	Version() string
}

// WeightSource resolves the weight profile for a role, falling back to
// a configured default when the role has no dedicated profile. It fails
// with domain.ErrMissingWeightProfile when neither exists.
type WeightSource interface {
	Profile(role string) (domain.WeightProfile, error)
}
