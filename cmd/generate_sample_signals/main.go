// Command generate_sample_signals writes a synthetic corpus of phase
// signals for load testing and demos. The output is a JSON array
// consumable by "hiregauge evaluate --signals".
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hiregauge/hiregauge/internal/domain"
)

// archetype shapes a candidate's score distribution so a generated
// corpus exercises every band of the default market table.
type archetype struct {
	name string

	// base and spread define the [0,1] window numeric scores land in.
	base   float64
	spread float64

	// skipChance is the probability a whole phase is missing, which
	// yields PARTIAL evaluations downstream.
	skipChance float64
}

var archetypes = []archetype{
	{name: "elite", base: 0.85, spread: 0.15, skipChance: 0.05},
	{name: "strong", base: 0.60, spread: 0.25, skipChance: 0.10},
	{name: "average", base: 0.35, spread: 0.30, skipChance: 0.20},
	{name: "weak", base: 0.05, spread: 0.30, skipChance: 0.35},
}

// complexityClasses is ordered best to worst so an archetype's quality
// maps onto an index.
var complexityClasses = []string{
	"O(1)", "O(log n)", "O(n)", "O(n log n)", "O(n^2)", "O(n^3)", "O(2^n)",
}

// sourceVersions identify the producing system per phase.
var sourceVersions = map[domain.Phase]string{
	domain.PhaseScreening:  "ats-7.2",
	domain.PhaseVideo:      "interview-kit-1.4",
	domain.PhaseCoding:     "grader-3.1",
	domain.PhaseManagerial: "panel-form-2.0",
}

func main() {
	var (
		candidates = flag.Int("candidates", 25, "Number of candidates to generate")
		output     = flag.String("output", "testdata/sample_signals.json", "Output file path")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "Random seed; fix it for a reproducible corpus")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	signals := generateCorpus(rng, *candidates)

	data, err := json.MarshalIndent(signals, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode signals: %v", err)
	}
	if dir := filepath.Dir(*output); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}
	if err := os.WriteFile(*output, data, 0o600); err != nil {
		log.Fatalf("Failed to save signals: %v", err)
	}

	fmt.Printf("Generated sample signal corpus:\n")
	fmt.Printf("- Path: %s\n", *output)
	fmt.Printf("- Candidates: %d\n", *candidates)
	fmt.Printf("- Signals: %d\n", len(signals))
	fmt.Printf("- Seed: %d\n", *seed)
	fmt.Printf("\nScore it with: hiregauge evaluate --signals %s\n", *output)
}

// generateCorpus emits signals for every candidate, cycling through the
// archetypes so each quality tier is represented.
func generateCorpus(rng *rand.Rand, candidates int) []domain.PhaseSignal {
	now := time.Now().UTC().Truncate(time.Second)
	var signals []domain.PhaseSignal

	for i := 0; i < candidates; i++ {
		arch := archetypes[i%len(archetypes)]
		candidateID := fmt.Sprintf("cand-%03d", i+1)
		signals = append(signals, generateCandidate(rng, candidateID, arch, now)...)
	}
	return signals
}

func generateCandidate(rng *rand.Rand, candidateID string, arch archetype, now time.Time) []domain.PhaseSignal {
	var signals []domain.PhaseSignal

	// Phases happen in order, roughly a week apart, with the screening
	// furthest in the past.
	phaseTimes := map[domain.Phase]time.Time{
		domain.PhaseScreening:  now.Add(-21 * 24 * time.Hour),
		domain.PhaseVideo:      now.Add(-14 * 24 * time.Hour),
		domain.PhaseCoding:     now.Add(-7 * 24 * time.Hour),
		domain.PhaseManagerial: now.Add(-2 * 24 * time.Hour),
	}
	jitter := func(t time.Time) time.Time {
		return t.Add(time.Duration(rng.Intn(86400)) * time.Second)
	}
	emit := func(phase domain.Phase, metric, raw string) {
		signals = append(signals, domain.PhaseSignal{
			CandidateID:   candidateID,
			Phase:         phase,
			Metric:        metric,
			RawValue:      raw,
			ProducedAt:    jitter(phaseTimes[phase]),
			SourceVersion: sourceVersions[phase],
		})
	}

	quality := func() float64 {
		v := arch.base + rng.Float64()*arch.spread
		return math.Max(0, math.Min(1, v))
	}
	num := func(v float64) string {
		return strconv.FormatFloat(math.Round(v*100)/100, 'g', -1, 64)
	}

	if rng.Float64() >= arch.skipChance {
		emit(domain.PhaseScreening, "skill_match_score", num(quality()))
		emit(domain.PhaseScreening, "code_quality_score", num(quality()))
		emit(domain.PhaseScreening, "experience_years", num(1+quality()*15))
	}
	if rng.Float64() >= arch.skipChance {
		emit(domain.PhaseVideo, "technical_knowledge", num(quality()))
		emit(domain.PhaseVideo, "communication_score", num(quality()))
		emit(domain.PhaseVideo, "sentiment_score", num(quality()*2-1))
	}
	if rng.Float64() >= arch.skipChance {
		emit(domain.PhaseCoding, "correctness_ratio", num(quality()))
		emit(domain.PhaseCoding, "style_score", num(quality()*100))
		emit(domain.PhaseCoding, "time_complexity_class", pickComplexity(rng, quality()))
		emit(domain.PhaseCoding, "plagiarism_flag", pickPlagiarism(rng, arch))
	}
	if rng.Float64() >= arch.skipChance {
		emit(domain.PhaseManagerial, "leadership_score", num(1+quality()*4))
		emit(domain.PhaseManagerial, "cultural_fit_score", num(1+quality()*4))
		emit(domain.PhaseManagerial, "decision_score", num(1+quality()*4))
		emit(domain.PhaseManagerial, "behavior_score", num(1+quality()*4))
	}
	return signals
}

// pickComplexity maps quality onto the ordered class list with one
// position of noise, so strong candidates mostly land near O(log n).
func pickComplexity(rng *rand.Rand, quality float64) string {
	idx := int((1 - quality) * float64(len(complexityClasses)-1))
	idx += rng.Intn(3) - 1
	idx = max(0, min(len(complexityClasses)-1, idx))
	return complexityClasses[idx]
}

// pickPlagiarism is almost always clean; weak archetypes carry a small
// suspected rate so the corpus exercises the penalty path.
func pickPlagiarism(rng *rand.Rand, arch archetype) string {
	if arch.name == "weak" && rng.Float64() < 0.15 {
		return "suspected"
	}
	if rng.Float64() < 0.02 {
		return "suspected"
	}
	return "clean"
}
