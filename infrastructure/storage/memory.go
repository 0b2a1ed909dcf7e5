// Package storage provides SignalStore implementations: an in-memory
// store for tests and single-node deployments, and a PostgreSQL store
// for durable multi-node setups.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

var _ ports.SignalStore = (*MemoryStore)(nil)

// signalIdentity is the idempotency key for appends. Two appends with
// the same identity are the same signal regardless of raw value, so the
// second one is rejected as a duplicate. ProducedAt is normalized to
// UTC nanoseconds so equal instants in different zones collide.
type signalIdentity struct {
	phase         domain.Phase
	metric        string
	producedAtNS  int64
	sourceVersion string
}

func identityOf(s domain.PhaseSignal) signalIdentity {
	return signalIdentity{
		phase:         s.Phase,
		metric:        s.Metric,
		producedAtNS:  s.ProducedAt.UTC().UnixNano(),
		sourceVersion: s.SourceVersion,
	}
}

// MemoryStore is an in-memory, append-only SignalStore. It keeps the
// full ingestion log per candidate plus a latest-per-key index updated
// on every accepted append, so Latest never rescans history.
//
// Safe for concurrent use. Listeners run after the write lock is
// released.
type MemoryStore struct {
	mu     sync.RWMutex
	seq    uint64
	logs   map[string][]domain.StoredSignal
	latest map[string]map[domain.SignalKey]domain.StoredSignal
	seen   map[string]map[signalIdentity]struct{}

	lmu       sync.RWMutex
	listeners []ports.ChangeListener
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logs:   make(map[string][]domain.StoredSignal),
		latest: make(map[string]map[domain.SignalKey]domain.StoredSignal),
		seen:   make(map[string]map[signalIdentity]struct{}),
	}
}

// Append stores the signal, assigns the next sequence number, and
// notifies listeners. Duplicate identities fail with
// domain.ErrDuplicateSignal without consuming a sequence number.
func (s *MemoryStore) Append(ctx context.Context, signal domain.PhaseSignal) (domain.StoredSignal, error) {
	if err := signal.Validate(); err != nil {
		return domain.StoredSignal{}, ports.NewStoreError(signal.CandidateID, "append", err)
	}

	id := identityOf(signal)

	s.mu.Lock()
	if _, dup := s.seen[signal.CandidateID][id]; dup {
		s.mu.Unlock()
		return domain.StoredSignal{}, fmt.Errorf("%w: %s/%s at %s from %s",
			domain.ErrDuplicateSignal, signal.Phase, signal.Metric,
			signal.ProducedAt.UTC().Format(time.RFC3339Nano), signal.SourceVersion)
	}

	s.seq++
	stored := domain.StoredSignal{PhaseSignal: signal, Seq: s.seq}

	s.logs[signal.CandidateID] = append(s.logs[signal.CandidateID], stored)

	if s.seen[signal.CandidateID] == nil {
		s.seen[signal.CandidateID] = make(map[signalIdentity]struct{})
	}
	s.seen[signal.CandidateID][id] = struct{}{}

	key := signal.Key()
	if s.latest[signal.CandidateID] == nil {
		s.latest[signal.CandidateID] = make(map[domain.SignalKey]domain.StoredSignal)
	}
	if current, ok := s.latest[signal.CandidateID][key]; !ok || stored.Supersedes(current) {
		s.latest[signal.CandidateID][key] = stored
	}
	s.mu.Unlock()

	s.notify(signal.CandidateID)
	return stored, nil
}

// Latest returns the newest signal per (phase, metric) key, ordered by
// phase then metric.
func (s *MemoryStore) Latest(ctx context.Context, candidateID string) ([]domain.StoredSignal, error) {
	s.mu.RLock()
	index := s.latest[candidateID]
	out := make([]domain.StoredSignal, 0, len(index))
	for _, stored := range index {
		out = append(out, stored)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().Less(out[j].Key())
	})
	return out, nil
}

// History returns the candidate's full log in ingestion order.
func (s *MemoryStore) History(ctx context.Context, candidateID string) ([]domain.StoredSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[candidateID]
	out := make([]domain.StoredSignal, len(log))
	copy(out, log)
	return out, nil
}

// Candidates lists every candidate with at least one signal, sorted.
func (s *MemoryStore) Candidates(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.logs))
	for id := range s.logs {
		out = append(out, id)
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out, nil
}

// Subscribe registers a listener for accepted appends.
func (s *MemoryStore) Subscribe(listener ports.ChangeListener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *MemoryStore) notify(candidateID string) {
	s.lmu.RLock()
	listeners := make([]ports.ChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.lmu.RUnlock()

	for _, fn := range listeners {
		fn(candidateID)
	}
}
