package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

// maxResponseBytes bounds how much of a rates response is read, so a
// misbehaving provider cannot exhaust memory.
const maxResponseBytes = 1 << 20

// Default HTTP source configuration constants.
const (
	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 10 * time.Second
	// DefaultCacheTTL is how long a fetched table is served from cache.
	DefaultCacheTTL = 15 * time.Minute
	// DefaultMaxAttempts is the number of retries after the first try.
	DefaultMaxAttempts = 2
	// DefaultBaseDelay is the initial backoff delay.
	DefaultBaseDelay = 200 * time.Millisecond
	// DefaultMaxDelay caps the backoff delay.
	DefaultMaxDelay = 5 * time.Second
	// DefaultJitterPercent is the backoff jitter fraction.
	DefaultJitterPercent = 0.1
	// DefaultRequestsPerSecond is the sustained request rate.
	DefaultRequestsPerSecond = 5
	// DefaultBurst is the momentary request allowance above the rate.
	DefaultBurst = 10
)

// HTTPConfig configures an HTTPSource. Zero timeouts, rates, and
// delays are replaced by the defaults above; BaseURL is required, and
// zero MaxAttempts (no retries) and CacheTTL (no caching) are kept
// as given.
type HTTPConfig struct {
	// BaseURL is the rates provider root, e.g. "https://rates.internal".
	// Tables are fetched from GET {BaseURL}/rates/{role}.
	BaseURL string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// Timeout bounds each fetch attempt.
	Timeout time.Duration

	// CacheTTL is how long fetched tables stay fresh. Zero or negative
	// disables caching.
	CacheTTL time.Duration

	// RequestsPerSecond and Burst configure the client-side token
	// bucket, keeping the engine inside the provider's rate limits.
	RequestsPerSecond float64
	Burst             int

	// MaxAttempts is the number of retries after the first try.
	// Only transient failures are retried.
	MaxAttempts int

	// BaseDelay, MaxDelay, and JitterPercent shape the exponential
	// backoff between retries.
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent float64
}

// DefaultHTTPConfig returns the config the source uses when fields are
// left zero.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:           DefaultTimeout,
		CacheTTL:          DefaultCacheTTL,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
		MaxAttempts:       DefaultMaxAttempts,
		BaseDelay:         DefaultBaseDelay,
		MaxDelay:          DefaultMaxDelay,
		JitterPercent:     DefaultJitterPercent,
	}
}

var _ ports.MarketSource = (*HTTPSource)(nil)

// cachedTable pairs a fetched table with its fetch time for TTL checks.
type cachedTable struct {
	table     domain.MarketTable
	fetchedAt time.Time
}

// HTTPSource fetches per-role market tables from a rates provider over
// HTTP with client-side rate limiting, bounded retries with exponential
// backoff, and a TTL cache. Responses are validated before they are
// served, so the compensation step can rely on table invariants.
type HTTPSource struct {
	config  HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedTable
}

// HTTPOption customizes an HTTPSource at construction.
type HTTPOption func(*HTTPSource)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if client != nil {
			s.client = client
		}
	}
}

// WithClock overrides the time source used for cache freshness.
func WithClock(now func() time.Time) HTTPOption {
	return func(s *HTTPSource) {
		if now != nil {
			s.now = now
		}
	}
}

// NewHTTPSource creates a rates client for the given provider.
func NewHTTPSource(config HTTPConfig, opts ...HTTPOption) (*HTTPSource, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("market provider base URL cannot be empty")
	}

	defaults := DefaultHTTPConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts cannot be negative, got %d", config.MaxAttempts)
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = defaults.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.JitterPercent < 0 || config.JitterPercent > 1 {
		return nil, fmt.Errorf("jitter percent must be in [0, 1], got %v", config.JitterPercent)
	}

	s := &HTTPSource{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		now:     time.Now,
		cache:   make(map[string]cachedTable),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Table returns the market table for a role, from cache when fresh.
// Transient provider failures are retried with backoff; a 404 maps to
// domain.ErrNoMarketData so callers can fall back to a static table.
func (s *HTTPSource) Table(ctx context.Context, role string) (domain.MarketTable, error) {
	if role == "" {
		return domain.MarketTable{}, ports.NewMarketError(role, "fetch", errors.New("role cannot be empty"))
	}
	if table, ok := s.cached(role); ok {
		return table, nil
	}

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return domain.MarketTable{}, ports.NewMarketError(role, "rate_limit", err)
		}

		table, err := s.fetch(ctx, role)
		if err == nil {
			s.store(role, table)
			return table.Clone(), nil
		}
		lastErr = err

		var marketErr *ports.MarketError
		if !errors.As(err, &marketErr) || !marketErr.IsRetryable() || attempt == s.config.MaxAttempts {
			break
		}

		delay := s.retryDelay(attempt)
		if marketErr.RetryAfter != nil && *marketErr.RetryAfter > delay {
			delay = *marketErr.RetryAfter
		}
		select {
		case <-ctx.Done():
			return domain.MarketTable{}, ports.NewMarketError(role, "fetch", ctx.Err())
		case <-time.After(delay):
		}
	}
	return domain.MarketTable{}, lastErr
}

// fetch performs one GET against the provider and validates the result.
func (s *HTTPSource) fetch(ctx context.Context, role string) (domain.MarketTable, error) {
	endpoint := strings.TrimRight(s.config.BaseURL, "/") + "/rates/" + url.PathEscape(role)

	reqCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.MarketTable{}, ports.NewMarketError(role, "fetch", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		cause := fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err)
		if errors.Is(err, context.DeadlineExceeded) {
			cause = fmt.Errorf("%w: %v", ports.ErrTimeout, err)
		}
		return domain.MarketTable{}, ports.NewMarketError(role, "fetch", cause)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return domain.MarketTable{}, fmt.Errorf("%w: provider has no table for role %q", domain.ErrNoMarketData, role)
	case resp.StatusCode == http.StatusTooManyRequests:
		marketErr := ports.NewMarketError(role, "fetch", ports.ErrRateLimited)
		if after := parseRetryAfter(resp.Header.Get("Retry-After")); after > 0 {
			marketErr.RetryAfter = &after
		}
		return domain.MarketTable{}, marketErr
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.MarketTable{}, ports.NewMarketError(role, "fetch",
			fmt.Errorf("%w: status %d", ports.ErrAuthenticationFailed, resp.StatusCode))
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.MarketTable{}, ports.NewMarketError(role, "fetch",
			fmt.Errorf("%w: status %d", ports.ErrServiceUnavailable, resp.StatusCode))
	default:
		return domain.MarketTable{}, ports.NewMarketError(role, "fetch",
			fmt.Errorf("%w: unexpected status %d", ports.ErrInvalidResponse, resp.StatusCode))
	}

	var table domain.MarketTable
	decoder := json.NewDecoder(http.MaxBytesReader(nil, resp.Body, maxResponseBytes))
	if err := decoder.Decode(&table); err != nil {
		return domain.MarketTable{}, ports.NewMarketError(role, "decode",
			fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err))
	}

	if table.Role != role {
		return domain.MarketTable{}, ports.NewMarketError(role, "validate",
			fmt.Errorf("%w: provider returned table for role %q", ports.ErrInvalidResponse, table.Role))
	}
	if err := table.Validate(); err != nil {
		return domain.MarketTable{}, ports.NewMarketError(role, "validate",
			fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err))
	}
	return table, nil
}

func (s *HTTPSource) cached(role string) (domain.MarketTable, bool) {
	if s.config.CacheTTL <= 0 {
		return domain.MarketTable{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[role]
	if !ok || s.now().Sub(entry.fetchedAt) >= s.config.CacheTTL {
		return domain.MarketTable{}, false
	}
	return entry.table.Clone(), true
}

func (s *HTTPSource) store(role string, table domain.MarketTable) {
	if s.config.CacheTTL <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[role] = cachedTable{table: table.Clone(), fetchedAt: s.now()}
}

// retryDelay computes the exponential backoff with jitter for an
// attempt, capped at MaxDelay.
func (s *HTTPSource) retryDelay(attempt int) time.Duration {
	delay := s.config.BaseDelay * time.Duration(1<<attempt)
	if delay > s.config.MaxDelay {
		delay = s.config.MaxDelay
	}

	jitter := int64(float64(delay) * s.config.JitterPercent)
	if jitter > 0 {
		delay += time.Duration(rand.Int64N(2*jitter) - jitter)
	}

	if delay < s.config.BaseDelay {
		return s.config.BaseDelay
	}
	return delay
}

// parseRetryAfter reads a Retry-After header given in seconds. Dates
// are ignored.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
