package application

import (
	"fmt"
	"sort"

	"github.com/hiregauge/hiregauge/infrastructure/rules"
	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

// defaultExperienceCohort is the reference population for ranking
// candidate experience, in years of relevant work. Percentile ranking
// against a cohort beats a linear cap because the marginal value of a
// year falls off sharply past the median.
var defaultExperienceCohort = []float64{
	1, 1, 2, 2, 3, 3, 3, 4, 4, 5,
	5, 6, 6, 7, 8, 9, 10, 12, 14, 16,
}

// DefaultCatalog returns the built-in rule catalog covering every
// metric of the default weight profile. Deployments override it by
// pointing the catalog loader at their own YAML document.
func DefaultCatalog() *Catalog {
	catalog := &Catalog{
		version: "1.0.0",
		rules:   make(map[domain.SignalKey]ports.Rule),
		byPhase: make(map[domain.Phase][]string),
	}

	unitScale := rules.DefaultLinearConfig()

	percentScale := rules.DefaultLinearConfig()
	percentScale.Max = 100

	sentimentScale := rules.DefaultLinearConfig()
	sentimentScale.Min = -1

	panelScale := rules.DefaultLinearConfig()
	panelScale.Min = 1
	panelScale.Max = 5

	complexity := rules.DefaultCategoricalConfig()
	complexity.Table = rules.ComplexityClassTable()

	plagiarism := rules.DefaultCategoricalConfig()
	plagiarism.Table = rules.PlagiarismFlagTable()

	cohort := rules.DefaultPercentileConfig()
	cohort.Sample = defaultExperienceCohort

	entries := []struct {
		phase  domain.Phase
		metric string
		rule   ports.Rule
	}{
		{domain.PhaseScreening, "skill_match_score", mustRule(rules.NewLinearRule("skill_match_score", unitScale))},
		{domain.PhaseScreening, "code_quality_score", mustRule(rules.NewLinearRule("code_quality_score", unitScale))},
		{domain.PhaseScreening, "experience_years", mustRule(rules.NewPercentileRule("experience_years", cohort))},

		{domain.PhaseVideo, "technical_knowledge", mustRule(rules.NewLinearRule("technical_knowledge", unitScale))},
		{domain.PhaseVideo, "communication_score", mustRule(rules.NewLinearRule("communication_score", unitScale))},
		{domain.PhaseVideo, "sentiment_score", mustRule(rules.NewLinearRule("sentiment_score", sentimentScale))},

		{domain.PhaseCoding, "correctness_ratio", mustRule(rules.NewLinearRule("correctness_ratio", unitScale))},
		{domain.PhaseCoding, "style_score", mustRule(rules.NewLinearRule("style_score", percentScale))},
		{domain.PhaseCoding, "time_complexity_class", mustRule(rules.NewCategoricalRule("time_complexity_class", complexity))},
		{domain.PhaseCoding, "space_complexity_class", mustRule(rules.NewCategoricalRule("space_complexity_class", complexity))},
		{domain.PhaseCoding, "plagiarism_flag", mustRule(rules.NewCategoricalRule("plagiarism_flag", plagiarism))},

		{domain.PhaseManagerial, "leadership_score", mustRule(rules.NewLinearRule("leadership_score", panelScale))},
		{domain.PhaseManagerial, "cultural_fit_score", mustRule(rules.NewLinearRule("cultural_fit_score", panelScale))},
		{domain.PhaseManagerial, "decision_score", mustRule(rules.NewLinearRule("decision_score", panelScale))},
		{domain.PhaseManagerial, "behavior_score", mustRule(rules.NewLinearRule("behavior_score", panelScale))},
	}

	for _, e := range entries {
		catalog.rules[domain.SignalKey{Phase: e.phase, Metric: e.metric}] = e.rule
		catalog.byPhase[e.phase] = append(catalog.byPhase[e.phase], e.metric)
	}
	for phase := range catalog.byPhase {
		sort.Strings(catalog.byPhase[phase])
	}
	return catalog
}

// mustRule unwraps rule constructor results for the built-in catalog,
// whose configurations are constants.
func mustRule(rule ports.Rule, err error) ports.Rule {
	if err != nil {
		panic(fmt.Sprintf("built-in catalog rule: %v", err))
	}
	return rule
}
