package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

var _ ports.SignalStore = (*PostgresStore)(nil)

// signalSchema creates the append-only signal ledger. The UNIQUE
// constraint is the idempotency key; BIGSERIAL seq is the ingestion
// tie-break. Nothing ever updates or deletes rows.
const signalSchema = `
CREATE TABLE IF NOT EXISTS phase_signals (
    seq            BIGSERIAL PRIMARY KEY,
    candidate_id   TEXT        NOT NULL,
    phase          TEXT        NOT NULL,
    metric_name    TEXT        NOT NULL,
    raw_value      TEXT        NOT NULL,
    unit           TEXT        NOT NULL DEFAULT '',
    produced_at    TIMESTAMPTZ NOT NULL,
    source_version TEXT        NOT NULL,
    ingested_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (candidate_id, phase, metric_name, produced_at, source_version)
);
CREATE INDEX IF NOT EXISTS phase_signals_candidate_idx
    ON phase_signals (candidate_id, phase, metric_name, produced_at DESC, seq DESC);
`

// PostgresStore is a durable SignalStore backed by PostgreSQL. Change
// notifications are process-local, so cached evaluations only track
// appends made through the same process. Deployments with several
// writers should route reads for a candidate to the node that ingests
// its signals.
type PostgresStore struct {
	pool *pgxpool.Pool

	lmu       sync.RWMutex
	listeners []ports.ChangeListener
}

// NewPostgresStore connects a pool to databaseURL, verifies it with a
// ping, and ensures the signal schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreFromPool wraps an existing pool without creating the
// schema. The caller owns the pool's lifecycle.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, signalSchema); err != nil {
		return fmt.Errorf("ensure signal schema: %w", err)
	}
	return nil
}

// Append inserts the signal. The ON CONFLICT clause makes duplicate
// identities insert nothing, which surfaces as pgx.ErrNoRows on the
// RETURNING scan and maps to domain.ErrDuplicateSignal.
func (s *PostgresStore) Append(ctx context.Context, signal domain.PhaseSignal) (domain.StoredSignal, error) {
	if err := signal.Validate(); err != nil {
		return domain.StoredSignal{}, ports.NewStoreError(signal.CandidateID, "append", err)
	}

	var seq uint64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO phase_signals (candidate_id, phase, metric_name, raw_value, unit, produced_at, source_version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (candidate_id, phase, metric_name, produced_at, source_version) DO NOTHING
		 RETURNING seq`,
		signal.CandidateID, string(signal.Phase), signal.Metric, signal.RawValue,
		signal.Unit, signal.ProducedAt.UTC(), signal.SourceVersion,
	).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StoredSignal{}, fmt.Errorf("%w: %s/%s from %s",
				domain.ErrDuplicateSignal, signal.Phase, signal.Metric, signal.SourceVersion)
		}
		return domain.StoredSignal{}, ports.NewStoreError(signal.CandidateID, "append", err)
	}

	stored := domain.StoredSignal{PhaseSignal: signal, Seq: seq}
	stored.ProducedAt = signal.ProducedAt.UTC()

	s.notify(signal.CandidateID)
	return stored, nil
}

// Latest returns the newest signal per (phase, metric) key. DISTINCT ON
// picks the winner per key; the pipeline ordering happens in Go since
// SQL would sort phases alphabetically.
func (s *PostgresStore) Latest(ctx context.Context, candidateID string) ([]domain.StoredSignal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (phase, metric_name)
		        seq, candidate_id, phase, metric_name, raw_value, unit, produced_at, source_version
		 FROM phase_signals
		 WHERE candidate_id = $1
		 ORDER BY phase, metric_name, produced_at DESC, seq DESC`,
		candidateID,
	)
	if err != nil {
		return nil, ports.NewStoreError(candidateID, "latest", err)
	}
	defer rows.Close()

	out, err := scanSignals(rows)
	if err != nil {
		return nil, ports.NewStoreError(candidateID, "latest", err)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().Less(out[j].Key())
	})
	return out, nil
}

// History returns the candidate's full log in ingestion order.
func (s *PostgresStore) History(ctx context.Context, candidateID string) ([]domain.StoredSignal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, candidate_id, phase, metric_name, raw_value, unit, produced_at, source_version
		 FROM phase_signals
		 WHERE candidate_id = $1
		 ORDER BY seq ASC`,
		candidateID,
	)
	if err != nil {
		return nil, ports.NewStoreError(candidateID, "history", err)
	}
	defer rows.Close()

	out, err := scanSignals(rows)
	if err != nil {
		return nil, ports.NewStoreError(candidateID, "history", err)
	}
	return out, nil
}

// Candidates lists every candidate with at least one signal, sorted.
func (s *PostgresStore) Candidates(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT candidate_id FROM phase_signals ORDER BY candidate_id`)
	if err != nil {
		return nil, ports.NewStoreError("", "candidates", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ports.NewStoreError("", "candidates", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("", "candidates", err)
	}
	return out, nil
}

// Subscribe registers a process-local listener for accepted appends.
func (s *PostgresStore) Subscribe(listener ports.ChangeListener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *PostgresStore) notify(candidateID string) {
	s.lmu.RLock()
	listeners := make([]ports.ChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.lmu.RUnlock()

	for _, fn := range listeners {
		fn(candidateID)
	}
}

func scanSignals(rows pgx.Rows) ([]domain.StoredSignal, error) {
	out := make([]domain.StoredSignal, 0, 16)
	for rows.Next() {
		var s domain.StoredSignal
		var phase string
		if err := rows.Scan(&s.Seq, &s.CandidateID, &phase, &s.Metric,
			&s.RawValue, &s.Unit, &s.ProducedAt, &s.SourceVersion); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		s.Phase = domain.Phase(phase)
		s.ProducedAt = s.ProducedAt.UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return out, nil
}
