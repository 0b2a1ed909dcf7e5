package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CandidateState is the evaluation lifecycle state of one candidate.
type CandidateState string

const (
	// StatePending means no usable signal exists yet: either nothing
	// was ever ingested, or every ingested signal was excluded.
	StatePending CandidateState = "PENDING"

	// StatePartial means signals exist but the latest evaluation is
	// below the completeness threshold, or a recompute is pending.
	StatePartial CandidateState = "PARTIAL"

	// StateComplete means the latest evaluation is fresh and met the
	// completeness threshold.
	StateComplete CandidateState = "COMPLETE"
)

// stateTransitions is the explicit transition table. Signals are
// append-only, so no state ever returns to PENDING; PARTIAL is
// re-entrant and COMPLETE demotes to PARTIAL when late signals arrive.
var stateTransitions = map[CandidateState]map[CandidateState]bool{
	StatePending:  {StatePending: true, StatePartial: true, StateComplete: true},
	StatePartial:  {StatePartial: true, StateComplete: true},
	StateComplete: {StateComplete: true, StatePartial: true},
}

// CanTransition reports whether the table allows moving from s to next.
func (s CandidateState) CanTransition(next CandidateState) bool {
	return stateTransitions[s][next]
}

// Transition returns next if the table allows it, or ErrInvalidTransition
// wrapped with both states otherwise.
func (s CandidateState) Transition(next CandidateState) (CandidateState, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

// resultNamespace is the fixed UUIDv5 namespace for result identifiers.
var resultNamespace = uuid.MustParse("d8f1c1f6-9a3e-4b7d-8a52-0c64de91b7aa")

// ResultID derives the deterministic identifier for an evaluation of
// the given candidate and fingerprint. Equal inputs yield equal IDs, so
// recomputations of unchanged data are indistinguishable from cache hits.
func ResultID(candidateID string, fp Fingerprint) uuid.UUID {
	return uuid.NewSHA1(resultNamespace, []byte(candidateID+"/"+string(fp)))
}

// EvaluationResult is the hiring decision artifact: everything a
// reviewer needs to understand how a candidate's composite score and
// compensation recommendation came about, plus the fingerprint proving
// which inputs produced it.
type EvaluationResult struct {
	// ID is the deterministic result identifier (see ResultID).
	ID uuid.UUID `json:"id"`

	// CandidateID identifies the evaluated candidate.
	CandidateID string `json:"candidate_id"`

	// Role and ProfileVersion identify the weight profile applied.
	Role           string `json:"role"`
	ProfileVersion string `json:"profile_version"`

	// CatalogVersion identifies the rule catalog applied.
	CatalogVersion string `json:"catalog_version"`

	// State is the candidate's lifecycle state as of this computation.
	State CandidateState `json:"state"`

	// PhaseScores holds one score per phase with usable signal; phases
	// without one are absent.
	PhaseScores map[Phase]float64 `json:"phase_scores"`

	// CompositeScore is nil while no phase has usable signal.
	CompositeScore *float64 `json:"composite_score,omitempty"`

	// Completeness is the phase-weight fraction backed by signal.
	Completeness float64 `json:"completeness"`

	// Assessment is the qualitative label for the composite score,
	// empty while the composite is undefined.
	Assessment string `json:"assessment,omitempty"`

	// Compensation is the recommended band, nil when the composite is
	// undefined or the role has no market data (see Issues).
	Compensation *CompensationBand `json:"compensation,omitempty"`

	// Issues lists every excluded signal and skipped step with its
	// structured reason.
	Issues []Issue `json:"issues,omitempty"`

	// ComputedAt is when this result was produced.
	ComputedAt time.Time `json:"computed_at"`

	// Fingerprint summarizes the exact inputs used.
	Fingerprint Fingerprint `json:"input_fingerprint"`
}

// Clone returns a deep copy. The orchestrator caches results and hands
// out clones so callers cannot mutate the cached copy.
func (r *EvaluationResult) Clone() *EvaluationResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.PhaseScores != nil {
		out.PhaseScores = make(map[Phase]float64, len(r.PhaseScores))
		for phase, score := range r.PhaseScores {
			out.PhaseScores[phase] = score
		}
	}
	if r.CompositeScore != nil {
		composite := *r.CompositeScore
		out.CompositeScore = &composite
	}
	if r.Compensation != nil {
		band := *r.Compensation
		out.Compensation = &band
	}
	if r.Issues != nil {
		out.Issues = make([]Issue, len(r.Issues))
		copy(out.Issues, r.Issues)
	}
	return &out
}

// Assessment label thresholds, calibrated on historical hiring rounds.
const (
	AssessmentExcellent    = "Excellent Candidate"
	AssessmentStrong       = "Strong Candidate"
	AssessmentGood         = "Good Candidate"
	AssessmentAverage      = "Average Candidate"
	AssessmentBelowAverage = "Below Average Candidate"
)

// AssessmentLabel maps a composite score onto its qualitative label.
// Labels are presentation metadata only; nothing feeds them back into
// scoring.
func AssessmentLabel(composite float64) string {
	switch {
	case composite >= 0.85:
		return AssessmentExcellent
	case composite >= 0.75:
		return AssessmentStrong
	case composite >= 0.65:
		return AssessmentGood
	case composite >= 0.50:
		return AssessmentAverage
	default:
		return AssessmentBelowAverage
	}
}
