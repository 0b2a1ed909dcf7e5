// Package rules provides the normalization rules that implement the
// ports.Rule interface for the hiregauge evaluation engine: numeric
// linear scaling, categorical lookup tables, and percentile ranking
// against a reference population.
package rules

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Registered rule kinds. The catalog resolves each metric to one of
// these at load time.
const (
	// KindLinear scales a numeric value linearly from a declared
	// [min,max] domain onto [0,1].
	KindLinear = "linear"

	// KindCategorical maps discrete category values onto scores via an
	// explicit lookup table.
	KindCategorical = "categorical"

	// KindPercentile ranks a numeric value against a reference
	// population sample.
	KindPercentile = "percentile"
)

// Common errors returned by normalization rules.
// These errors surface at catalog load time, never while serving signals.
var (
	// ErrEmptyMetricName is returned when attempting to create a rule
	// for an empty metric name.
	ErrEmptyMetricName = errors.New("metric name cannot be empty")

	// ErrInvalidDomain is returned when a linear rule's domain has
	// min >= max or non-finite bounds.
	ErrInvalidDomain = errors.New("invalid value domain")

	// ErrEmptyTable is returned when a categorical rule has no entries.
	ErrEmptyTable = errors.New("categorical table cannot be empty")

	// ErrDuplicateCategory is returned when case folding collapses two
	// table entries into one key.
	ErrDuplicateCategory = errors.New("duplicate category after case folding")

	// ErrEmptySample is returned when a percentile rule has no
	// reference population.
	ErrEmptySample = errors.New("reference sample cannot be empty")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()
