package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiregauge/hiregauge/infrastructure/market"
	"github.com/hiregauge/hiregauge/infrastructure/middleware"
	"github.com/hiregauge/hiregauge/infrastructure/storage"
	"github.com/hiregauge/hiregauge/internal/application"
	"github.com/hiregauge/hiregauge/internal/domain"
)

// newTestServer builds the HTTP adapter around a real orchestrator on
// an in-memory store, with metrics isolated in a per-test registry.
func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()

	orch, err := application.NewOrchestrator(
		storage.NewMemoryStore(),
		application.DefaultCatalog(),
		application.NewDefaultProfileStore(),
		market.DefaultSource(),
	)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	srv, err := NewServer(orch,
		WithMetrics(middleware.NewPrometheusMetrics(middleware.WithRegistry(registry))),
		WithGatherer(registry),
	)
	require.NoError(t, err)
	return srv, registry
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func signalBody(phase, metric, raw string, producedAt time.Time) string {
	return fmt.Sprintf(
		`{"phase":%q,"metric_name":%q,"raw_value":%q,"produced_at":%q,"source_version":"assessor-v1"}`,
		phase, metric, raw, producedAt.UTC().Format(time.RFC3339),
	)
}

func TestSubmitSignalAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/candidates/cand-1/signals",
		signalBody("CODING", "correctness_ratio", "0.93", time.Now()))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var ack ackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "accepted", ack.Status)
	assert.Equal(t, uint64(1), ack.Seq)
	assert.False(t, ack.Duplicate)
	assert.Nil(t, ack.Warning)
}

func TestSubmitSignalDuplicateReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	body := signalBody("SCREENING", "skill_match_score", "0.8", time.Now())

	first := doRequest(t, handler, http.MethodPost, "/api/v1/candidates/cand-1/signals", body)
	require.Equal(t, http.StatusAccepted, first.Code)

	second := doRequest(t, handler, http.MethodPost, "/api/v1/candidates/cand-1/signals", body)
	require.Equal(t, http.StatusOK, second.Code)

	var ack ackResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &ack))
	assert.Equal(t, "duplicate", ack.Status)
	assert.True(t, ack.Duplicate)
}

func TestSubmitSignalUnknownMetricRecordedWithWarning(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	body := signalBody("CODING", "correctness_ration", "0.9", time.Now())

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/candidates/cand-2/signals", body)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var ack ackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "accepted_with_warning", ack.Status)
	assert.Equal(t, uint64(1), ack.Seq)
	require.NotNil(t, ack.Warning)
	assert.Equal(t, "unknown_metric", ack.Warning.Code)
	assert.Equal(t, "correctness_ratio", ack.Warning.Suggestion)

	// The signal was stored despite the warning: resubmitting the same
	// payload now reports a duplicate.
	again := doRequest(t, handler, http.MethodPost, "/api/v1/candidates/cand-2/signals", body)
	assert.Equal(t, http.StatusOK, again.Code)
}

func TestSubmitSignalSchemaViolation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/candidates/cand-1/signals",
		`{"phase":"CODING","metric_name":"correctness_ratio","raw_value":"0.9"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "schema_violation", resp.Code)
	assert.NotEmpty(t, resp.Fields)
}

func TestSubmitSignalMalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/candidates/cand-1/signals",
		"{ this is not json")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "malformed_json", resp.Code)
}

func TestSubmitSignalPayloadTooLarge(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/candidates/cand-1/signals",
		strings.Repeat("x", maxSignalBytes+1))

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "payload_too_large", resp.Code)
}

func TestGetEvaluationComplete(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	now := time.Now()
	for _, s := range []struct {
		phase, metric, raw string
	}{
		{"SCREENING", "skill_match_score", "0.9"},
		{"VIDEO", "technical_knowledge", "0.8"},
		{"CODING", "correctness_ratio", "0.95"},
		{"MANAGERIAL", "leadership_score", "4.5"},
	} {
		rec := doRequest(t, handler, http.MethodPost, "/api/v1/candidates/cand-9/signals",
			signalBody(s.phase, s.metric, s.raw, now))
		require.Equal(t, http.StatusAccepted, rec.Code, "submit %s/%s", s.phase, s.metric)
	}

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/candidates/cand-9/evaluation", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.EvaluationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "cand-9", result.CandidateID)
	assert.Equal(t, "default", result.Role)
	assert.Equal(t, domain.StateComplete, result.State)
	assert.InDelta(t, 1.0, result.Completeness, 1e-9)
	require.NotNil(t, result.CompositeScore)
	assert.GreaterOrEqual(t, *result.CompositeScore, 0.0)
	assert.LessOrEqual(t, *result.CompositeScore, 1.0)
	assert.NotNil(t, result.Compensation)
	assert.NotEmpty(t, result.Fingerprint)
}

func TestGetEvaluationPartial(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/candidates/cand-3/signals",
		signalBody("CODING", "correctness_ratio", "0.9", time.Now()))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/candidates/cand-3/evaluation", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.EvaluationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, domain.StatePartial, result.State)
	assert.InDelta(t, 0.40, result.Completeness, 1e-9)
	require.NotNil(t, result.CompositeScore)
}

func TestGetEvaluationUnknownCandidate(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/candidates/ghost/evaluation", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "candidate_not_found", resp.Code)
}

func TestGetEvaluationUnknownRole(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/candidates/cand-4/signals",
		signalBody("CODING", "correctness_ratio", "0.9", time.Now()))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/candidates/cand-4/evaluation?role=principal", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "missing_weight_profile", resp.Code)
}

func TestGetProfile(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/profiles/default", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var profile domain.WeightProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "default", profile.Role)
	assert.Equal(t, "1.0.0", profile.Version)
	assert.Len(t, profile.PhaseWeights, 4)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/profiles/principal", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/candidates/cand-1/signals",
		signalBody("CODING", "correctness_ratio", "0.93", time.Now()))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hiregauge_http_requests_total")
	assert.Contains(t, rec.Body.String(), `endpoint="submit_signal"`)
}

// panicEngine provokes the recovery middleware.
type panicEngine struct{}

func (panicEngine) SubmitSignal(context.Context, domain.PhaseSignal) (domain.StoredSignal, error) {
	panic("submit")
}
func (panicEngine) CheckMetric(domain.Phase, string) error { return nil }
func (panicEngine) Evaluate(context.Context, string, string) (*domain.EvaluationResult, error) {
	panic("evaluate")
}
func (panicEngine) GetWeightProfile(string) (domain.WeightProfile, error) {
	return domain.WeightProfile{}, nil
}

func TestPanicRecovery(t *testing.T) {
	srv, err := NewServer(panicEngine{})
	require.NoError(t, err)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/candidates/cand-1/evaluation", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal", resp.Code)
}

func TestNewServerRequiresEngine(t *testing.T) {
	_, err := NewServer(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine cannot be nil")
}
