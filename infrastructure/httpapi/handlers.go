package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/schemas"
)

// maxSignalBytes bounds submit payloads. Signals are small records;
// anything larger is a client bug.
const maxSignalBytes = 64 << 10

type submitSignalRequest struct {
	Phase         string    `json:"phase"`
	Metric        string    `json:"metric_name"`
	RawValue      string    `json:"raw_value"`
	Unit          string    `json:"unit"`
	ProducedAt    time.Time `json:"produced_at"`
	SourceVersion string    `json:"source_version"`
}

type signalWarning struct {
	Code       string `json:"code"`
	Detail     string `json:"detail"`
	Suggestion string `json:"suggestion,omitempty"`
}

type ackResponse struct {
	Status    string         `json:"status"`
	Duplicate bool           `json:"duplicate,omitempty"`
	Seq       uint64         `json:"seq,omitempty"`
	Warning   *signalWarning `json:"warning,omitempty"`
}

// handleSubmitSignal ingests one phase measurement. Unknown metrics
// are recorded anyway and flagged in the response so late catalog
// updates can pick them up without a resubmit.
func (s *Server) handleSubmitSignal(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSignalBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "unreadable_body", err)
		return
	}

	if err := s.validator.Validate(payload); err != nil {
		var invalid *schemas.ValidationError
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Code:    "schema_violation",
				Message: "payload does not match the submit signal schema",
				Fields:  invalid.Errors,
			})
			return
		}
		writeError(w, http.StatusBadRequest, "malformed_json", err)
		return
	}

	var req submitSignalRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_json", err)
		return
	}

	phase, err := domain.ParsePhase(req.Phase)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_signal", err)
		return
	}

	signal := domain.PhaseSignal{
		CandidateID:   r.PathValue("id"),
		Phase:         phase,
		Metric:        req.Metric,
		RawValue:      req.RawValue,
		Unit:          req.Unit,
		ProducedAt:    req.ProducedAt,
		SourceVersion: req.SourceVersion,
	}

	stored, err := s.engine.SubmitSignal(r.Context(), signal)
	switch {
	case errors.Is(err, domain.ErrDuplicateSignal):
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	case errors.Is(err, domain.ErrInvalidSignal):
		writeError(w, http.StatusBadRequest, "invalid_signal", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}

	if err := s.engine.CheckMetric(signal.Phase, signal.Metric); err != nil {
		var unknown *domain.UnknownMetricError
		if errors.As(err, &unknown) {
			writeJSON(w, http.StatusUnprocessableEntity, ackResponse{
				Status: "accepted_with_warning",
				Seq:    stored.Seq,
				Warning: &signalWarning{
					Code:       "unknown_metric",
					Detail:     unknown.Error(),
					Suggestion: unknown.Suggestion,
				},
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}

	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Seq: stored.Seq})
}

// handleGetEvaluation computes or serves the cached evaluation for a
// candidate, optionally under a specific role profile (?role=).
func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	candidateID := r.PathValue("id")
	role := r.URL.Query().Get("role")

	result, err := s.engine.Evaluate(r.Context(), candidateID, role)
	if err != nil {
		var unstable *domain.UnstableError
		switch {
		case errors.As(err, &unstable):
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{
				Code:       "computation_unstable",
				Message:    err.Error(),
				LastStable: unstable.LastStable,
			})
		case errors.Is(err, domain.ErrCandidateNotFound):
			writeError(w, http.StatusNotFound, "candidate_not_found", err)
		case errors.Is(err, domain.ErrMissingWeightProfile):
			writeError(w, http.StatusNotFound, "missing_weight_profile", err)
		case errors.Is(err, domain.ErrInvalidWeightProfile):
			writeError(w, http.StatusUnprocessableEntity, "invalid_weight_profile", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetProfile returns the weight profile Evaluate would apply for
// a role.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.engine.GetWeightProfile(r.PathValue("role"))
	if err != nil {
		if errors.Is(err, domain.ErrMissingWeightProfile) {
			writeError(w, http.StatusNotFound, "missing_weight_profile", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
