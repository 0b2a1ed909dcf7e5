package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

// fastConfig keeps retry delays off the test clock's critical path.
func fastConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:     baseURL,
		CacheTTL:    time.Hour,
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}
}

func serveTable(t *testing.T, w http.ResponseWriter, table domain.MarketTable) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(table))
}

func TestNewHTTPSourceValidation(t *testing.T) {
	_, err := NewHTTPSource(HTTPConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL cannot be empty")

	_, err = NewHTTPSource(HTTPConfig{BaseURL: "http://rates.local", MaxAttempts: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max attempts cannot be negative")

	_, err = NewHTTPSource(HTTPConfig{BaseURL: "http://rates.local", JitterPercent: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jitter percent must be in [0, 1]")

	source, err := NewHTTPSource(HTTPConfig{BaseURL: "http://rates.local"})
	require.NoError(t, err)
	assert.NotNil(t, source)
}

func TestHTTPSourceFetchesAndCaches(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/rates/backend-engineer", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		serveTable(t, w, backendTable())
	}))
	defer server.Close()

	config := fastConfig(server.URL)
	config.APIKey = "test-key"
	source, err := NewHTTPSource(config)
	require.NoError(t, err)
	ctx := context.Background()

	table, err := source.Table(ctx, "backend-engineer")
	require.NoError(t, err)
	assert.Equal(t, "EUR", table.Currency)
	assert.EqualValues(t, 1, requests.Load())

	// Within the TTL the cache answers.
	again, err := source.Table(ctx, "backend-engineer")
	require.NoError(t, err)
	assert.Equal(t, table, again)
	assert.EqualValues(t, 1, requests.Load())

	// Mutating a returned table must not poison the cache.
	again.Bands[0].Low = -1
	third, err := source.Table(ctx, "backend-engineer")
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), third.Bands[0].Low)
}

func TestHTTPSourceCacheExpiry(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		serveTable(t, w, backendTable())
	}))
	defer server.Close()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	config := fastConfig(server.URL)
	config.CacheTTL = 10 * time.Minute
	source, err := NewHTTPSource(config, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = source.Table(ctx, "backend-engineer")
	require.NoError(t, err)
	require.EqualValues(t, 1, requests.Load())

	now = now.Add(9 * time.Minute)
	_, err = source.Table(ctx, "backend-engineer")
	require.NoError(t, err)
	assert.EqualValues(t, 1, requests.Load())

	now = now.Add(2 * time.Minute)
	_, err = source.Table(ctx, "backend-engineer")
	require.NoError(t, err)
	assert.EqualValues(t, 2, requests.Load())
}

func TestHTTPSourceNotFound(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	source, err := NewHTTPSource(fastConfig(server.URL))
	require.NoError(t, err)

	_, err = source.Table(context.Background(), "backend-engineer")
	require.ErrorIs(t, err, domain.ErrNoMarketData)
	assert.EqualValues(t, 1, requests.Load(), "missing tables must not be retried")
}

func TestHTTPSourceRetriesTransientFailures(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		serveTable(t, w, backendTable())
	}))
	defer server.Close()

	source, err := NewHTTPSource(fastConfig(server.URL))
	require.NoError(t, err)

	table, err := source.Table(context.Background(), "backend-engineer")
	require.NoError(t, err)
	assert.Equal(t, "backend-engineer", table.Role)
	assert.EqualValues(t, 3, requests.Load())
}

func TestHTTPSourceExhaustsRetries(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	source, err := NewHTTPSource(fastConfig(server.URL))
	require.NoError(t, err)

	_, err = source.Table(context.Background(), "backend-engineer")
	require.ErrorIs(t, err, ports.ErrServiceUnavailable)

	var marketErr *ports.MarketError
	require.ErrorAs(t, err, &marketErr)
	assert.True(t, marketErr.IsRetryable())
	assert.Equal(t, "backend-engineer", marketErr.Role)
	assert.EqualValues(t, 3, requests.Load(), "one try plus two retries")
}

func TestHTTPSourceRecoversFromRateLimit(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		serveTable(t, w, backendTable())
	}))
	defer server.Close()

	source, err := NewHTTPSource(fastConfig(server.URL))
	require.NoError(t, err)

	_, err = source.Table(context.Background(), "backend-engineer")
	require.NoError(t, err)
	assert.EqualValues(t, 2, requests.Load())
}

func TestHTTPSourceRejectsBadResponses(t *testing.T) {
	mismatched := backendTable()
	mismatched.Role = "data-scientist"
	unordered := backendTable()
	unordered.Bands[1].Low = 10_000

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "garbage payload",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
		},
		{
			name: "role mismatch",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(mismatched)
			},
		},
		{
			name: "table violates invariants",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(unordered)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests atomic.Int64
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				tt.handler(w, r)
			}))
			defer server.Close()

			source, err := NewHTTPSource(fastConfig(server.URL))
			require.NoError(t, err)

			_, err = source.Table(context.Background(), "backend-engineer")
			require.ErrorIs(t, err, ports.ErrInvalidResponse)
			assert.EqualValues(t, 1, requests.Load(), "malformed responses must not be retried")
		})
	}
}

func TestHTTPSourceAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	source, err := NewHTTPSource(fastConfig(server.URL))
	require.NoError(t, err)

	_, err = source.Table(context.Background(), "backend-engineer")
	require.ErrorIs(t, err, ports.ErrAuthenticationFailed)
}

func TestHTTPSourceTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-r.Context().Done():
		}
		serveTable(t, w, backendTable())
	}))
	defer server.Close()

	config := fastConfig(server.URL)
	config.Timeout = 5 * time.Millisecond
	config.MaxAttempts = 0
	source, err := NewHTTPSource(config)
	require.NoError(t, err)

	_, err = source.Table(context.Background(), "backend-engineer")
	require.ErrorIs(t, err, ports.ErrTimeout)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-2"))
}
