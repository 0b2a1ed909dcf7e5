package application

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hiregauge/hiregauge/infrastructure/rules"
	"github.com/hiregauge/hiregauge/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.RuleRegistry = (*DefaultRuleRegistry)(nil)

// DefaultRuleRegistry implements RuleRegistry with the built-in
// normalization kinds pre-registered. Custom kinds can be added at
// runtime, which lets deployments plug in rules the engine does not
// ship with.
type DefaultRuleRegistry struct {
	// factories maps rule kind strings to their factory functions.
	factories map[string]ports.RuleFactory
	// mu protects concurrent access to the factories map.
	mu sync.RWMutex
}

// NewDefaultRuleRegistry creates a registry with the linear,
// categorical, and percentile kinds pre-registered.
func NewDefaultRuleRegistry() *DefaultRuleRegistry {
	registry := &DefaultRuleRegistry{
		factories: make(map[string]ports.RuleFactory),
	}
	registry.factories[rules.KindLinear] = rules.NewLinearFromConfig
	registry.factories[rules.KindCategorical] = rules.NewCategoricalFromConfig
	registry.factories[rules.KindPercentile] = rules.NewPercentileFromConfig
	return registry
}

// CreateRule instantiates a rule of the given kind for a metric,
// delegating to the kind's registered factory.
func (r *DefaultRuleRegistry) CreateRule(kind, metric string, config map[string]any) (ports.Rule, error) {
	r.mu.RLock()
	factory, exists := r.factories[kind]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported rule kind: %s", kind)
	}
	if metric == "" {
		return nil, fmt.Errorf("metric name cannot be empty")
	}
	if config == nil {
		config = make(map[string]any)
	}

	rule, err := factory(metric, config)
	if err != nil {
		return nil, fmt.Errorf("create %s rule for metric %s: %w", kind, metric, err)
	}
	return rule, nil
}

// RegisterRuleFactory adds or replaces the factory for a kind.
func (r *DefaultRuleRegistry) RegisterRuleFactory(kind string, factory ports.RuleFactory) error {
	if kind == "" {
		return fmt.Errorf("rule kind cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
	return nil
}

// SupportedKinds lists every registered rule kind in sorted order.
func (r *DefaultRuleRegistry) SupportedKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
