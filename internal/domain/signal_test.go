package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseSignalValidate(t *testing.T) {
	valid := PhaseSignal{
		CandidateID:   "cand-1",
		Phase:         PhaseCoding,
		Metric:        "correctness_ratio",
		RawValue:      "0.85",
		Unit:          "ratio",
		ProducedAt:    time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		SourceVersion: "sandbox-2.3",
	}

	tests := []struct {
		name          string
		mutate        func(*PhaseSignal)
		expectedError string
	}{
		{"valid", func(s *PhaseSignal) {}, ""},
		{"empty candidate", func(s *PhaseSignal) { s.CandidateID = "" }, "empty candidate_id"},
		{"unknown phase", func(s *PhaseSignal) { s.Phase = "ONSITE" }, "unknown phase"},
		{"empty metric", func(s *PhaseSignal) { s.Metric = "" }, "empty metric_name"},
		{"zero produced_at", func(s *PhaseSignal) { s.ProducedAt = time.Time{} }, "zero produced_at"},
		{"empty source version", func(s *PhaseSignal) { s.SourceVersion = "" }, "empty source_version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)

			err := s.Validate()
			if tt.expectedError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSignal)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestStoredSignalSupersedes(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	mk := func(seq uint64, producedAt time.Time) StoredSignal {
		return StoredSignal{
			PhaseSignal: PhaseSignal{
				CandidateID:   "cand-1",
				Phase:         PhaseVideo,
				Metric:        "communication_score",
				RawValue:      "0.7",
				ProducedAt:    producedAt,
				SourceVersion: "nlp-1.2",
			},
			Seq: seq,
		}
	}

	t.Run("later produced_at wins regardless of sequence", func(t *testing.T) {
		older := mk(10, at)
		newer := mk(2, at.Add(time.Second))
		assert.True(t, newer.Supersedes(older))
		assert.False(t, older.Supersedes(newer))
	})

	t.Run("produced_at tie falls back to ingestion sequence", func(t *testing.T) {
		first := mk(1, at)
		second := mk(2, at)
		assert.True(t, second.Supersedes(first))
		assert.False(t, first.Supersedes(second))
	})

	t.Run("identical timestamps in different zones compare by instant", func(t *testing.T) {
		ist := time.FixedZone("IST", 5*3600+1800)
		first := mk(1, at)
		second := mk(2, at.In(ist))
		assert.True(t, second.Supersedes(first))
	})
}

func TestSignalKeyLess(t *testing.T) {
	assert.True(t, SignalKey{PhaseScreening, "b"}.Less(SignalKey{PhaseVideo, "a"}))
	assert.True(t, SignalKey{PhaseCoding, "a"}.Less(SignalKey{PhaseCoding, "b"}))
	assert.False(t, SignalKey{PhaseManagerial, "a"}.Less(SignalKey{PhaseCoding, "z"}))
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("CODING")
	require.NoError(t, err)
	assert.Equal(t, PhaseCoding, p)

	_, err = ParsePhase("coding")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestAllPhasesOrdering(t *testing.T) {
	phases := AllPhases()
	require.Len(t, phases, 4)
	for i, p := range phases {
		assert.Equal(t, i, p.Order())
		assert.True(t, p.Valid())
	}
	assert.Equal(t, len(phases), Phase("ONSITE").Order())
	assert.False(t, Phase("ONSITE").Valid())
}
