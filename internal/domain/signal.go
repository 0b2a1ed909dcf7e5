package domain

import (
	"fmt"
	"time"
)

// PhaseSignal is one immutable measurement emitted by an upstream
// assessment service. Signals are append-only: corrections arrive as new
// records with a later ProducedAt that supersede earlier ones for the
// same (phase, metric) key. Raw values travel as strings so that numeric
// and categorical metrics share one canonical, hashable representation;
// normalization rules parse them as needed.
type PhaseSignal struct {
	// CandidateID identifies the candidate the measurement belongs to.
	CandidateID string `json:"candidate_id"`

	// Phase is the assessment stage that produced the measurement.
	Phase Phase `json:"phase"`

	// Metric names the measurement within its phase, e.g.
	// "skill_match_score" or "time_complexity_class".
	Metric string `json:"metric_name"`

	// RawValue is the measurement in its source scale, canonically
	// encoded: numbers via strconv.FormatFloat(v, 'g', -1, 64),
	// categories verbatim.
	RawValue string `json:"raw_value"`

	// Unit is the source scale's unit, informational only.
	Unit string `json:"unit,omitempty"`

	// ProducedAt orders competing signals for the same key; the latest
	// wins. Stored in UTC.
	ProducedAt time.Time `json:"produced_at"`

	// SourceVersion identifies the emitting service version, part of
	// the signal's identity and of the evaluation fingerprint.
	SourceVersion string `json:"source_version"`
}

// Validate checks the structural invariants a signal must satisfy
// before the store will accept it.
func (s PhaseSignal) Validate() error {
	switch {
	case s.CandidateID == "":
		return fmt.Errorf("%w: empty candidate_id", ErrInvalidSignal)
	case !s.Phase.Valid():
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidSignal, string(s.Phase))
	case s.Metric == "":
		return fmt.Errorf("%w: empty metric_name", ErrInvalidSignal)
	case s.ProducedAt.IsZero():
		return fmt.Errorf("%w: zero produced_at", ErrInvalidSignal)
	case s.SourceVersion == "":
		return fmt.Errorf("%w: empty source_version", ErrInvalidSignal)
	}
	return nil
}

// Key returns the supersession key: all signals sharing it compete, and
// only the latest one feeds the evaluation.
func (s PhaseSignal) Key() SignalKey {
	return SignalKey{Phase: s.Phase, Metric: s.Metric}
}

// SignalKey is the (phase, metric) pair signals are deduplicated by.
type SignalKey struct {
	Phase  Phase  `json:"phase"`
	Metric string `json:"metric_name"`
}

// Less orders keys by phase pipeline position, then metric name. Every
// deterministic iteration over signal sets uses this order.
func (k SignalKey) Less(o SignalKey) bool {
	if k.Phase != o.Phase {
		return k.Phase.Order() < o.Phase.Order()
	}
	return k.Metric < o.Metric
}

// StoredSignal is a PhaseSignal with the monotonically increasing
// sequence number the store assigned at ingestion. The sequence breaks
// ProducedAt ties so supersession stays deterministic.
type StoredSignal struct {
	PhaseSignal

	// Seq is the store-wide ingestion sequence number, strictly
	// increasing in accept order.
	Seq uint64 `json:"seq"`
}

// Supersedes reports whether s replaces o as the latest signal for
// their shared key: later ProducedAt wins, sequence number breaks ties.
func (s StoredSignal) Supersedes(o StoredSignal) bool {
	if !s.ProducedAt.Equal(o.ProducedAt) {
		return s.ProducedAt.After(o.ProducedAt)
	}
	return s.Seq > o.Seq
}

// NormalizedSignal is a PhaseSignal mapped onto the common [0,1] scale.
// It is always rederivable from its source signal and the rule catalog;
// nothing persists it independently.
type NormalizedSignal struct {
	// Phase is carried over from the source signal.
	Phase Phase `json:"phase"`

	// Metric is carried over from the source signal.
	Metric string `json:"metric_name"`

	// Score is the normalized value in [0,1].
	Score float64 `json:"score"`

	// Confidence weighs the score during aggregation, in [0,1]. Zero
	// marks a clamped out-of-domain value that must penalize its phase
	// rather than silently vanish from it.
	Confidence float64 `json:"confidence"`
}

// IssueCode classifies why a signal was excluded or degraded during an
// evaluation.
type IssueCode string

const (
	// IssueUnknownMetric marks a signal whose metric has no catalog rule.
	IssueUnknownMetric IssueCode = "unknown_metric"

	// IssueOutOfDomain marks a raw value outside its declared domain,
	// clamped to the boundary with confidence zero.
	IssueOutOfDomain IssueCode = "out_of_domain"

	// IssueNoMarketData marks a compensation step skipped because the
	// role has no market reference entry.
	IssueNoMarketData IssueCode = "no_market_data"

	// IssueInsufficientSignal marks an evaluation whose completeness is
	// below the configured minimum.
	IssueInsufficientSignal IssueCode = "insufficient_signal"
)

// Issue is the structured reason attached to an evaluation for every
// excluded signal or skipped step. Results carry issues instead of
// failing outright.
type Issue struct {
	// Phase is set for per-signal issues, empty for evaluation-level ones.
	Phase Phase `json:"phase,omitempty"`

	// Metric is set for per-signal issues, empty for evaluation-level ones.
	Metric string `json:"metric_name,omitempty"`

	// Code classifies the issue.
	Code IssueCode `json:"code"`

	// Detail is a human-readable explanation.
	Detail string `json:"detail"`
}
