// Package httpapi exposes the evaluation engine over JSON HTTP. The
// adapter owns transport concerns only: payload schema validation,
// status mapping, request logging, and request metrics. All scoring
// logic stays behind the Engine interface.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
	"github.com/hiregauge/hiregauge/internal/schemas"
)

// Engine is the slice of the orchestrator the HTTP adapter needs.
type Engine interface {
	// SubmitSignal appends one phase measurement to the candidate's
	// ledger. Duplicates fail with domain.ErrDuplicateSignal.
	SubmitSignal(ctx context.Context, signal domain.PhaseSignal) (domain.StoredSignal, error)

	// CheckMetric reports whether the catalog has a rule for the
	// metric, with a spelling suggestion when one is close.
	CheckMetric(phase domain.Phase, metric string) error

	// Evaluate returns the candidate's evaluation for a role, empty
	// role meaning the configured default.
	Evaluate(ctx context.Context, candidateID, role string) (*domain.EvaluationResult, error)

	// GetWeightProfile resolves the profile Evaluate would apply.
	GetWeightProfile(role string) (domain.WeightProfile, error)
}

// Server wires the engine's operations to HTTP routes.
type Server struct {
	engine    Engine
	validator *schemas.Validator
	logger    *zap.Logger
	metrics   ports.MetricsCollector
	gatherer  prometheus.Gatherer
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger attaches a logger for request logging. Defaults to a nop
// logger.
func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches a collector for request counters and latency.
func WithMetrics(metrics ports.MetricsCollector) ServerOption {
	return func(s *Server) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithGatherer selects the registry /metrics exposes. Defaults to the
// global Prometheus gatherer.
func WithGatherer(gatherer prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		if gatherer != nil {
			s.gatherer = gatherer
		}
	}
}

// NewServer creates the HTTP adapter around an engine.
func NewServer(engine Engine, opts ...ServerOption) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}

	validator, err := schemas.NewSubmitSignalValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{
		engine:    engine,
		validator: validator,
		logger:    zap.NewNop(),
		metrics:   noopMetrics{},
		gatherer:  prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler builds the route table. Every business route runs through
// the recovery, logging, and metrics middleware; /metrics stays bare
// so a wedged collector cannot take down scraping.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/candidates/{id}/signals",
		s.instrument("submit_signal", s.handleSubmitSignal))
	mux.Handle("GET /api/v1/candidates/{id}/evaluation",
		s.instrument("get_evaluation", s.handleGetEvaluation))
	mux.Handle("GET /api/v1/profiles/{role}",
		s.instrument("get_profile", s.handleGetProfile))
	mux.Handle("GET /healthz",
		s.instrument("healthz", s.handleHealthz))
	mux.Handle("GET /metrics",
		promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return mux
}

// instrument chains the standard middleware around one route handler.
func (s *Server) instrument(endpoint string, handler http.HandlerFunc) http.Handler {
	return recoverPanics(s.logger,
		logRequests(s.logger, endpoint,
			recordRequests(s.metrics, endpoint, handler)))
}

type errorResponse struct {
	Code    string               `json:"code"`
	Message string               `json:"message"`
	Fields  []schemas.FieldError `json:"fields,omitempty"`

	// LastStable carries the most recent settled evaluation when a
	// read could not stabilize.
	LastStable *domain.EvaluationResult `json:"last_stable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// noopMetrics keeps the hot path free of nil checks when no collector
// is configured.
type noopMetrics struct{}

var _ ports.MetricsCollector = noopMetrics{}

func (noopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (noopMetrics) RecordCounter(string, float64, map[string]string)      {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)        {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string)    {}
