package ports

import (
	"context"

	"github.com/hiregauge/hiregauge/internal/domain"
)

// ChangeListener is notified after a signal has been durably accepted,
// with the candidate it belongs to. Listeners must be fast and must not
// call back into the store; the orchestrator uses them to mark cached
// evaluations stale.
type ChangeListener func(candidateID string)

// SignalStore is the append-only ledger of phase signals. Appends are
// idempotent on the full signal identity, every accepted signal gets a
// monotonically increasing sequence number, and nothing is ever mutated
// or deleted. Implementations must be safe for concurrent use and must
// never invoke listeners while holding internal locks.
type SignalStore interface {
	// Append stores the signal and returns it with its assigned
	// sequence number. A signal whose identity (candidate, phase,
	// metric, produced_at, source_version) is already stored fails
	// with domain.ErrDuplicateSignal and changes nothing.
	Append(ctx context.Context, signal domain.PhaseSignal) (domain.StoredSignal, error)

	// Latest returns one signal per (phase, metric) key, the one with
	// the newest produced_at (ingestion sequence breaks ties), ordered
	// by phase then metric. An empty slice means the candidate has
	// never had a signal.
	Latest(ctx context.Context, candidateID string) ([]domain.StoredSignal, error)

	// History returns the full append-only log for a candidate in
	// ingestion order, for audit surfaces.
	History(ctx context.Context, candidateID string) ([]domain.StoredSignal, error)

	// Candidates lists every candidate with at least one signal, in
	// lexical order.
	Candidates(ctx context.Context) ([]string, error)

	// Subscribe registers a listener for accepted appends. Listeners
	// registered after an append are not retroactively notified.
	Subscribe(listener ChangeListener)
}
