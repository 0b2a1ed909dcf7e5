package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the evaluation error taxonomy. Callers test
// for them with errors.Is; parameterized variants below wrap them.
var (
	// ErrDuplicateSignal indicates an append of a signal whose identity
	// (phase, metric, produced_at, source_version) is already stored.
	// Appends that hit it are idempotent no-ops, never fatal.
	ErrDuplicateSignal = errors.New("duplicate signal")

	// ErrUnknownMetric indicates a signal whose metric name has no
	// normalization rule in the active catalog. The signal is excluded
	// and the evaluation continues without it.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrInvalidWeightProfile indicates a weight profile that violates
	// the sum or domain invariants. Fatal for that role until fixed.
	ErrInvalidWeightProfile = errors.New("invalid weight profile")

	// ErrMissingWeightProfile indicates no profile exists for a role and
	// no default profile is configured.
	ErrMissingWeightProfile = errors.New("missing weight profile")

	// ErrInsufficientSignal indicates completeness below the configured
	// minimum. It is an expected transient state, surfaced as a partial
	// evaluation rather than a failure.
	ErrInsufficientSignal = errors.New("insufficient signal")

	// ErrNoMarketData indicates the compensation step found no market
	// reference entry for the role. Scores are still returned.
	ErrNoMarketData = errors.New("no market data")

	// ErrInvalidMarketTable indicates a market reference table that
	// violates its ordering or band invariants.
	ErrInvalidMarketTable = errors.New("invalid market table")

	// ErrComputationUnstable indicates a recomputation was invalidated
	// by concurrent appends more times than the retry bound allows.
	ErrComputationUnstable = errors.New("computation unstable")

	// ErrInvalidSignal indicates a signal that fails structural
	// validation before it ever reaches the store.
	ErrInvalidSignal = errors.New("invalid signal")

	// ErrCandidateNotFound indicates a read for a candidate with no
	// ingested signals.
	ErrCandidateNotFound = errors.New("candidate not found")

	// ErrInvalidTransition indicates a candidate state change outside
	// the transition table. Always a programming error.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// UnknownMetricError reports a signal excluded because its metric name
// is not in the rule catalog, with the closest catalog entry attached
// when one is reasonably near.
type UnknownMetricError struct {
	// Phase is the phase the offending signal was submitted for.
	Phase Phase

	// Metric is the unrecognized metric name.
	Metric string

	// Suggestion is the nearest known metric name, or empty when
	// nothing in the catalog is close.
	Suggestion string
}

// Error implements the error interface for UnknownMetricError.
func (e *UnknownMetricError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown metric %q in phase %s (closest known: %q)", e.Metric, e.Phase, e.Suggestion)
	}
	return fmt.Sprintf("unknown metric %q in phase %s", e.Metric, e.Phase)
}

// Unwrap ties the error to ErrUnknownMetric for errors.Is checks.
func (e *UnknownMetricError) Unwrap() error { return ErrUnknownMetric }

// ProfileError reports a weight profile that failed validation,
// carrying every violated invariant rather than just the first.
type ProfileError struct {
	// Role is the role whose profile failed.
	Role string

	// Version is the profile version, if it parsed far enough to have one.
	Version string

	// Violations lists each failed invariant in human-readable form.
	Violations []string
}

// Error implements the error interface for ProfileError.
func (e *ProfileError) Error() string {
	return fmt.Sprintf("weight profile %s@%s: %d violation(s): %v",
		e.Role, e.Version, len(e.Violations), e.Violations)
}

// Unwrap ties the error to ErrInvalidWeightProfile for errors.Is checks.
func (e *ProfileError) Unwrap() error { return ErrInvalidWeightProfile }

// InsufficientSignalError reports an evaluation whose completeness is
// below the configured minimum. The partial aggregation that produced
// it is still returned to the caller alongside this error.
type InsufficientSignalError struct {
	// Completeness is the phase-weight fraction actually backed by signal.
	Completeness float64

	// Threshold is the configured minimum completeness.
	Threshold float64
}

// Error implements the error interface for InsufficientSignalError.
func (e *InsufficientSignalError) Error() string {
	return fmt.Sprintf("insufficient signal: completeness %.4f below threshold %.4f", e.Completeness, e.Threshold)
}

// Unwrap ties the error to ErrInsufficientSignal for errors.Is checks.
func (e *InsufficientSignalError) Unwrap() error { return ErrInsufficientSignal }

// UnstableError reports a recomputation abandoned after the retry bound
// because concurrent appends kept changing the input fingerprint.
// LastStable carries the most recent evaluation that did complete, when
// one exists, so callers are never left with a bare failure.
type UnstableError struct {
	// CandidateID is the candidate whose recomputation never settled.
	CandidateID string

	// Attempts is the number of recomputations tried before giving up.
	Attempts int

	// LastStable is the most recent successfully computed result, or nil.
	LastStable *EvaluationResult
}

// Error implements the error interface for UnstableError.
func (e *UnstableError) Error() string {
	return fmt.Sprintf("computation unstable for candidate %s after %d attempts", e.CandidateID, e.Attempts)
}

// Unwrap ties the error to ErrComputationUnstable for errors.Is checks.
func (e *UnstableError) Unwrap() error { return ErrComputationUnstable }
