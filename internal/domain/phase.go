// Package domain contains pure, dependency-free domain models and types
// for the evaluation engine.
package domain

import "fmt"

// Phase identifies one of the four sequential assessment stages a
// candidate moves through during the hiring pipeline.
type Phase string

const (
	// PhaseScreening covers resume, profile, and repository analysis.
	PhaseScreening Phase = "SCREENING"

	// PhaseVideo covers the recorded video interview analysis.
	PhaseVideo Phase = "VIDEO"

	// PhaseCoding covers the coding challenge execution results.
	PhaseCoding Phase = "CODING"

	// PhaseManagerial covers the managerial round assessment.
	PhaseManagerial Phase = "MANAGERIAL"
)

// phaseOrder fixes the canonical iteration order for all deterministic
// computations (fingerprints, aggregation sums, sorted output).
var phaseOrder = map[Phase]int{
	PhaseScreening:  0,
	PhaseVideo:      1,
	PhaseCoding:     2,
	PhaseManagerial: 3,
}

// AllPhases returns the four assessment phases in pipeline order.
func AllPhases() []Phase {
	return []Phase{PhaseScreening, PhaseVideo, PhaseCoding, PhaseManagerial}
}

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// Order returns the pipeline position of the phase, starting at zero.
// Unknown phases sort after all known ones.
func (p Phase) Order() int {
	if i, ok := phaseOrder[p]; ok {
		return i
	}
	return len(phaseOrder)
}

// ParsePhase converts a string into a Phase, accepting only the four
// canonical uppercase names.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown phase %q", ErrInvalidSignal, s)
	}
	return p, nil
}
