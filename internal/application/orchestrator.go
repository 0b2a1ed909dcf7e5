package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

const (
	// DefaultRetryLimit bounds how many times a recomputation restarts
	// after a concurrent append invalidates its input fingerprint.
	DefaultRetryLimit = 3

	// DefaultMinCompleteness is the completeness threshold below which
	// an evaluation is reported as insufficient.
	DefaultMinCompleteness = 0.5

	// DefaultParallelism bounds concurrent candidates in EvaluateAll.
	DefaultParallelism = 4

	// DefaultRoleName is the role evaluated when the caller names none.
	DefaultRoleName = "default"
)

// candidateEntry is the per-candidate cache slot. The mutex serializes
// recomputations for one candidate; stale is written by the store
// change listener without taking the mutex, so appends never wait on an
// in-flight recompute.
type candidateEntry struct {
	mu     sync.Mutex
	state  domain.CandidateState
	result *domain.EvaluationResult
	stale  atomic.Bool
}

// Orchestrator coordinates the evaluation pipeline: it accepts signals,
// recomputes evaluations lazily on read, caches results keyed by input
// fingerprint, and bounds retries when concurrent appends keep moving
// the target.
//
// Reads are lazy. An append only marks the candidate stale; a read of
// a fresh cache returns it directly, while a stale one recomputes the
// fingerprint over the latest signals and re-evaluates only when the
// fingerprint actually moved. A recompute whose inputs change
// mid-flight is discarded and retried up to the retry limit, after
// which the caller receives an UnstableError carrying the last stable
// result.
type Orchestrator struct {
	store      ports.SignalStore
	normalizer ports.Normalizer
	weights    ports.WeightSource
	market     ports.MarketSource

	logger   *zap.Logger
	metrics  ports.MetricsCollector
	observer ports.EvaluationObserver
	now      func() time.Time

	retryLimit      int
	minCompleteness float64
	defaultRole     string
	parallelism     int

	mu      sync.RWMutex
	entries map[string]*candidateEntry

	// sf collapses concurrent reads of the same (candidate, role) into
	// one recomputation whose result every caller shares.
	sf singleflight.Group
}

// OrchestratorOption customizes an Orchestrator at construction.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the structured logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source, so tests can pin ComputedAt.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics sets the metrics collector. Defaults to a no-op.
func WithMetrics(metrics ports.MetricsCollector) OrchestratorOption {
	return func(o *Orchestrator) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithObserver sets the recomputation observer. Defaults to a no-op.
func WithObserver(observer ports.EvaluationObserver) OrchestratorOption {
	return func(o *Orchestrator) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithRetryLimit bounds recomputation restarts per read.
func WithRetryLimit(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.retryLimit = n }
}

// WithMinCompleteness sets the completeness threshold. Evaluations at
// or above it are COMPLETE; below it they carry an insufficient-signal
// issue and a PARTIAL (or PENDING) state.
func WithMinCompleteness(v float64) OrchestratorOption {
	return func(o *Orchestrator) { o.minCompleteness = v }
}

// WithDefaultRole sets the role used when callers do not name one.
func WithDefaultRole(role string) OrchestratorOption {
	return func(o *Orchestrator) {
		if role != "" {
			o.defaultRole = role
		}
	}
}

// WithParallelism bounds concurrent candidates in EvaluateAll.
func WithParallelism(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.parallelism = n }
}

// NewOrchestrator wires the pipeline together and subscribes to store
// changes so cached evaluations are invalidated on append.
func NewOrchestrator(
	store ports.SignalStore,
	normalizer ports.Normalizer,
	weights ports.WeightSource,
	market ports.MarketSource,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("signal store cannot be nil")
	}
	if normalizer == nil {
		return nil, fmt.Errorf("normalizer cannot be nil")
	}
	if weights == nil {
		return nil, fmt.Errorf("weight source cannot be nil")
	}
	if market == nil {
		return nil, fmt.Errorf("market source cannot be nil")
	}

	o := &Orchestrator{
		store:           store,
		normalizer:      normalizer,
		weights:         weights,
		market:          market,
		logger:          zap.NewNop(),
		metrics:         noopMetrics{},
		observer:        noopObserver{},
		now:             time.Now,
		retryLimit:      DefaultRetryLimit,
		minCompleteness: DefaultMinCompleteness,
		defaultRole:     DefaultRoleName,
		parallelism:     DefaultParallelism,
		entries:         make(map[string]*candidateEntry),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.retryLimit < 1 {
		return nil, fmt.Errorf("retry limit must be at least 1, got %d", o.retryLimit)
	}
	if o.minCompleteness < 0 || o.minCompleteness > 1 {
		return nil, fmt.Errorf("minimum completeness must be in [0, 1], got %v", o.minCompleteness)
	}
	if o.parallelism < 1 {
		return nil, fmt.Errorf("parallelism must be at least 1, got %d", o.parallelism)
	}

	store.Subscribe(o.markStale)
	return o, nil
}

// markStale flags a candidate's cached result as suspect. It runs on
// the store's append path and must not block, so it only flips an
// atomic and never touches the entry mutex.
func (o *Orchestrator) markStale(candidateID string) {
	o.mu.RLock()
	entry, ok := o.entries[candidateID]
	o.mu.RUnlock()
	if ok {
		entry.stale.Store(true)
	}
}

// entry returns the cache slot for a candidate, creating it on first use.
func (o *Orchestrator) entry(candidateID string) *candidateEntry {
	o.mu.RLock()
	e, ok := o.entries[candidateID]
	o.mu.RUnlock()
	if ok {
		return e
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[candidateID]; ok {
		return e
	}
	e = &candidateEntry{state: domain.StatePending}
	o.entries[candidateID] = e
	return e
}

// SubmitSignal appends a phase signal to the ledger. Duplicate
// identities fail with domain.ErrDuplicateSignal and change nothing;
// the caller decides whether that is an error or an idempotent success.
func (o *Orchestrator) SubmitSignal(ctx context.Context, signal domain.PhaseSignal) (domain.StoredSignal, error) {
	stored, err := o.store.Append(ctx, signal)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateSignal) {
			o.metrics.RecordCounter("signals_duplicate_total", 1, map[string]string{"phase": string(signal.Phase)})
			o.logger.Debug("duplicate signal ignored",
				zap.String("candidate_id", signal.CandidateID),
				zap.String("phase", string(signal.Phase)),
				zap.String("metric", signal.Metric))
		}
		return domain.StoredSignal{}, err
	}

	o.metrics.RecordCounter("signals_submitted_total", 1, map[string]string{"phase": string(signal.Phase)})
	o.logger.Info("signal accepted",
		zap.Uint64("seq", stored.Seq),
		zap.String("candidate_id", stored.CandidateID),
		zap.String("phase", string(stored.Phase)),
		zap.String("metric", stored.Metric),
		zap.String("source_version", stored.SourceVersion))
	return stored, nil
}

// CheckMetric reports whether a metric is known to the loaded catalog,
// so ingestion can attach a warning without waiting for evaluation.
func (o *Orchestrator) CheckMetric(phase domain.Phase, metric string) error {
	return o.normalizer.Check(phase, metric)
}

// GetWeightProfile resolves the weight profile that Evaluate would
// apply for a role, including the default fallback.
func (o *Orchestrator) GetWeightProfile(role string) (domain.WeightProfile, error) {
	if role == "" {
		role = o.defaultRole
	}
	return o.weights.Profile(role)
}

// GetEvaluation evaluates a candidate against the default role.
func (o *Orchestrator) GetEvaluation(ctx context.Context, candidateID string) (*domain.EvaluationResult, error) {
	return o.Evaluate(ctx, candidateID, o.defaultRole)
}

// Evaluate returns the candidate's evaluation for a role, recomputing
// only when the input fingerprint moved since the cached result. Each
// caller receives its own copy. Candidates with no signals at all fail
// with domain.ErrCandidateNotFound; reads that cannot settle within the
// retry limit fail with *domain.UnstableError.
func (o *Orchestrator) Evaluate(ctx context.Context, candidateID, role string) (*domain.EvaluationResult, error) {
	if candidateID == "" {
		return nil, fmt.Errorf("%w: empty candidate id", domain.ErrCandidateNotFound)
	}
	if role == "" {
		role = o.defaultRole
	}

	v, err, _ := o.sf.Do(candidateID+"\x00"+role, func() (any, error) {
		return o.evaluateSerialized(ctx, candidateID, role)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.EvaluationResult).Clone(), nil
}

// evaluateSerialized holds the candidate's mutex across the
// recompute-validate-commit loop. It returns the cached result object;
// callers must clone before handing it out.
func (o *Orchestrator) evaluateSerialized(ctx context.Context, candidateID, role string) (*domain.EvaluationResult, error) {
	entry := o.entry(candidateID)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	start := o.now()
	defer func() {
		o.metrics.RecordLatency("evaluate", o.now().Sub(start), map[string]string{"role": role})
	}()

	profile, err := o.weights.Profile(role)
	if err != nil {
		return nil, err
	}
	catalogVersion := o.normalizer.Version()

	// Fresh cache: no append arrived since the result was validated and
	// the caller wants the same profile and catalog it was built with.
	// Served without touching the store.
	if entry.result != nil && !entry.stale.Load() && cacheMatches(entry.result, profile, catalogVersion) {
		return entry.result, nil
	}

	for attempt := 1; attempt <= o.retryLimit; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// The stale flag is cleared before the snapshot, never after:
		// a notification landing once Latest has returned must stay
		// visible to the next read, so this attempt may only ever leave
		// the flag re-raised, not erase it. An append that committed
		// before the snapshot but notified after merely forces one
		// harmless revalidation later.
		entry.stale.Store(false)

		latest, err := o.store.Latest(ctx, candidateID)
		if err != nil {
			return nil, err
		}
		if len(latest) == 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrCandidateNotFound, candidateID)
		}

		fp := domain.ComputeFingerprint(latest, profile, catalogVersion)
		if entry.result != nil && entry.result.Fingerprint == fp {
			// The append that raised the stale flag did not change the
			// effective inputs (a duplicate or superseded signal), so
			// the cached result stands.
			return entry.result, nil
		}

		obsCtx := o.observer.RecomputeStarted(ctx, candidateID, attempt)
		result, err := o.compute(obsCtx, candidateID, latest, profile, fp, entry.state)
		o.observer.RecomputeFinished(obsCtx, candidateID, result, err)
		if err != nil {
			return nil, err
		}

		// Revalidate: an append racing this recompute changed the
		// inputs the result no longer reflects.
		fresh, err := o.store.Latest(ctx, candidateID)
		if err != nil {
			return nil, err
		}
		if domain.ComputeFingerprint(fresh, profile, catalogVersion) != fp {
			o.metrics.RecordCounter("evaluation_retries_total", 1, nil)
			o.logger.Debug("evaluation invalidated mid-flight",
				zap.String("candidate_id", candidateID),
				zap.Int("attempt", attempt))
			continue
		}

		entry.state = result.State
		entry.result = result

		o.metrics.RecordCounter("evaluations_total", 1, map[string]string{"state": string(result.State)})
		o.metrics.RecordHistogram("evaluation_completeness", result.Completeness, nil)
		if result.CompositeScore != nil {
			o.metrics.RecordHistogram("composite_score", *result.CompositeScore, nil)
		}
		o.logger.Info("evaluation computed",
			zap.String("candidate_id", candidateID),
			zap.String("role", profile.Role),
			zap.String("state", string(result.State)),
			zap.Float64("completeness", result.Completeness),
			zap.String("fingerprint", result.Fingerprint.Short()),
			zap.Int("attempt", attempt))
		return result, nil
	}

	o.metrics.RecordCounter("evaluation_unstable_total", 1, nil)
	o.logger.Warn("evaluation did not settle",
		zap.String("candidate_id", candidateID),
		zap.Int("attempts", o.retryLimit))
	return nil, &domain.UnstableError{
		CandidateID: candidateID,
		Attempts:    o.retryLimit,
		LastStable:  entry.result.Clone(),
	}
}

// cacheMatches reports whether a cached result was built with the same
// profile and catalog a request resolves to. Mismatches (a reload, a
// different role) force revalidation even without new signals.
func cacheMatches(result *domain.EvaluationResult, profile domain.WeightProfile, catalogVersion string) bool {
	return result.Role == profile.Role &&
		result.ProfileVersion == profile.Version &&
		result.CatalogVersion == catalogVersion
}

// compute runs one full evaluation over a fixed snapshot of signals.
// Insufficient completeness and missing market data degrade the result
// with issues; only normalizer contract violations and store failures
// are fatal.
func (o *Orchestrator) compute(
	ctx context.Context,
	candidateID string,
	latest []domain.StoredSignal,
	profile domain.WeightProfile,
	fp domain.Fingerprint,
	prior domain.CandidateState,
) (*domain.EvaluationResult, error) {
	normalized, issues := o.normalizer.Normalize(latest)

	agg, err := domain.Aggregate(normalized, profile, o.minCompleteness)
	var insufficient *domain.InsufficientSignalError
	if err != nil && !errors.As(err, &insufficient) {
		return nil, fmt.Errorf("aggregate candidate %s: %w", candidateID, err)
	}

	next := domain.StateComplete
	if insufficient != nil {
		// A candidate that has produced usable signal is never demoted
		// back to PENDING; losing coverage later parks them at PARTIAL.
		next = domain.StatePartial
		if agg.Completeness == 0 && prior == domain.StatePending {
			next = domain.StatePending
		}
		issues = append(issues, domain.Issue{
			Code:   domain.IssueInsufficientSignal,
			Detail: insufficient.Error(),
		})
	}
	state, err := prior.Transition(next)
	if err != nil {
		return nil, fmt.Errorf("candidate %s: %w", candidateID, err)
	}

	result := &domain.EvaluationResult{
		ID:             domain.ResultID(candidateID, fp),
		CandidateID:    candidateID,
		Role:           profile.Role,
		ProfileVersion: profile.Version,
		CatalogVersion: o.normalizer.Version(),
		State:          state,
		PhaseScores:    agg.PhaseScores,
		Completeness:   agg.Completeness,
		Issues:         issues,
		ComputedAt:     o.now().UTC(),
		Fingerprint:    fp,
	}

	if agg.CompositeDefined {
		composite := agg.Composite
		result.CompositeScore = &composite
		result.Assessment = domain.AssessmentLabel(composite)
		o.compensate(ctx, result, profile.Role, composite)
	}

	return result, nil
}

// compensate attaches a compensation band to the result. Market lookups
// are best effort: any failure becomes a no_market_data issue and the
// scores stand on their own.
func (o *Orchestrator) compensate(ctx context.Context, result *domain.EvaluationResult, role string, composite float64) {
	table, err := o.market.Table(ctx, role)
	if err != nil {
		result.Issues = append(result.Issues, domain.Issue{
			Code:   domain.IssueNoMarketData,
			Detail: fmt.Sprintf("compensation skipped: %v", err),
		})
		o.logger.Warn("market table unavailable",
			zap.String("candidate_id", result.CandidateID),
			zap.String("role", role),
			zap.Error(err))
		return
	}

	band, err := domain.Compensate(composite, table)
	if err != nil {
		result.Issues = append(result.Issues, domain.Issue{
			Code:   domain.IssueNoMarketData,
			Detail: fmt.Sprintf("compensation skipped: %v", err),
		})
		return
	}
	result.Compensation = &band
}

// EvaluateAll evaluates every known candidate against the default role
// with bounded parallelism. Per-candidate failures are joined into the
// returned error; the successful results are returned regardless.
func (o *Orchestrator) EvaluateAll(ctx context.Context) (map[string]*domain.EvaluationResult, error) {
	candidates, err := o.store.Candidates(ctx)
	if err != nil {
		return nil, err
	}

	var (
		resultMu sync.Mutex
		results  = make(map[string]*domain.EvaluationResult, len(candidates))
		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for _, candidateID := range candidates {
		g.Go(func() error {
			result, err := o.Evaluate(gctx, candidateID, o.defaultRole)
			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Errorf("candidate %s: %w", candidateID, err))
				return nil
			}
			results[candidateID] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, errors.Join(failures...)
}

// noopMetrics and noopObserver back the orchestrator when no collector
// or observer is configured.
type noopMetrics struct{}

func (noopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (noopMetrics) RecordCounter(string, float64, map[string]string)      {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)        {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string)    {}

type noopObserver struct{}

func (noopObserver) RecomputeStarted(ctx context.Context, _ string, _ int) context.Context {
	return ctx
}

func (noopObserver) RecomputeFinished(context.Context, string, *domain.EvaluationResult, error) {}
