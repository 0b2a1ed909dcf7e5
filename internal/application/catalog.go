package application

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

// maxSuggestionDistance bounds how far a known metric name may be from
// an unknown one before "did you mean" stops suggesting it.
const maxSuggestionDistance = 3

// CatalogConfig is the YAML document declaring the rule catalog: one
// normalization rule per (phase, metric) pair plus a version that
// participates in evaluation fingerprints.
type CatalogConfig struct {
	// Version identifies this catalog revision, semver formatted.
	Version string `yaml:"version" validate:"required,semver"`

	// Metrics maps phase name -> metric name -> rule declaration.
	Metrics map[string]map[string]MetricConfig `yaml:"metrics" validate:"required,min=1"`
}

// MetricConfig declares which rule kind normalizes a metric and the
// kind-specific parameters passed to its factory.
type MetricConfig struct {
	// Rule is the registered rule kind, e.g. "linear" or "categorical".
	Rule string `yaml:"rule" validate:"required"`

	// Params holds kind-specific configuration, decoded lazily so each
	// factory can apply its own defaults and validation.
	Params yaml.Node `yaml:"params"`
}

// Catalog is a compiled, immutable rule catalog. It implements
// ports.Normalizer and is safe for concurrent use; loaders cache and
// share instances, so nothing may mutate one after construction.
type Catalog struct {
	version string
	rules   map[domain.SignalKey]ports.Rule
	// byPhase lists known metric names per phase, sorted, for
	// suggestion lookups and introspection.
	byPhase map[domain.Phase][]string
}

var _ ports.Normalizer = (*Catalog)(nil)

// Version identifies the loaded catalog revision.
func (c *Catalog) Version() string { return c.version }

// Metrics returns the known metric names for a phase, sorted.
func (c *Catalog) Metrics(phase domain.Phase) []string {
	out := make([]string, len(c.byPhase[phase]))
	copy(out, c.byPhase[phase])
	return out
}

// Lookup resolves the rule for a (phase, metric) pair. Unknown metrics
// fail with a domain.UnknownMetricError carrying the closest known
// metric name in that phase, when one is close enough to suggest.
func (c *Catalog) Lookup(phase domain.Phase, metric string) (ports.Rule, error) {
	rule, ok := c.rules[domain.SignalKey{Phase: phase, Metric: metric}]
	if !ok {
		return nil, &domain.UnknownMetricError{
			Phase:      phase,
			Metric:     metric,
			Suggestion: c.suggest(phase, metric),
		}
	}
	return rule, nil
}

// Check reports whether a metric has a rule in this catalog.
func (c *Catalog) Check(phase domain.Phase, metric string) error {
	_, err := c.Lookup(phase, metric)
	return err
}

// Normalize converts the latest signals onto the common scale. Unknown
// metrics are excluded with an issue; clamps and other degradations are
// reported alongside the normalized output, never instead of it.
func (c *Catalog) Normalize(signals []domain.StoredSignal) ([]domain.NormalizedSignal, []domain.Issue) {
	normalized := make([]domain.NormalizedSignal, 0, len(signals))
	var issues []domain.Issue

	for _, signal := range signals {
		rule, err := c.Lookup(signal.Phase, signal.Metric)
		if err != nil {
			detail := fmt.Sprintf("metric %q is not in catalog %s", signal.Metric, c.version)
			var unknown *domain.UnknownMetricError
			if errors.As(err, &unknown) && unknown.Suggestion != "" {
				detail += fmt.Sprintf(", did you mean %q", unknown.Suggestion)
			}
			issues = append(issues, domain.Issue{
				Phase:  signal.Phase,
				Metric: signal.Metric,
				Code:   domain.IssueUnknownMetric,
				Detail: detail,
			})
			continue
		}

		out, issue := rule.Normalize(signal.PhaseSignal)
		if issue != nil {
			issues = append(issues, *issue)
		}
		normalized = append(normalized, out)
	}
	return normalized, issues
}

// suggest returns the closest known metric name in the phase, or empty
// when nothing is within maxSuggestionDistance edits.
func (c *Catalog) suggest(phase domain.Phase, metric string) string {
	best := ""
	bestDistance := maxSuggestionDistance + 1
	for _, known := range c.byPhase[phase] {
		if d := levenshtein.ComputeDistance(metric, known); d < bestDistance {
			best = known
			bestDistance = d
		}
	}
	return best
}

// CatalogLoader parses, validates, compiles, and caches rule catalogs
// from YAML. Compilation is cached by the SHA256 hash of the normalized
// document, and singleflight collapses concurrent loads of the same
// document into one compilation.
type CatalogLoader struct {
	// validator performs struct field validation for catalog documents.
	validator *validator.Validate
	// registry provides factory methods for creating rules by kind.
	registry ports.RuleRegistry
	// cache stores compiled catalogs indexed by document hash.
	// Cached catalogs are shared and must never be mutated.
	cache map[string]*Catalog
	// cacheMu provides thread-safe access to the cache map.
	cacheMu sync.RWMutex
	// sf prevents duplicate compilation of the same document.
	sf singleflight.Group
}

// NewCatalogLoader creates a catalog loader with an empty cache.
func NewCatalogLoader(registry ports.RuleRegistry) (*CatalogLoader, error) {
	v := validator.New()
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return nil, fmt.Errorf("register semver validator: %w", err)
	}

	return &CatalogLoader{
		validator: v,
		registry:  registry,
		cache:     make(map[string]*Catalog),
	}, nil
}

// LoadFromFile loads and compiles a catalog from a YAML file.
func (cl *CatalogLoader) LoadFromFile(ctx context.Context, path string) (*Catalog, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return cl.load(ctx, data)
}

// LoadFromReader loads and compiles a catalog from an io.Reader.
func (cl *CatalogLoader) LoadFromReader(ctx context.Context, r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog data: %w", err)
	}
	return cl.load(ctx, data)
}

// load parses, hashes, and compiles catalog documents, serving repeat
// loads from cache. The hash covers the normalized document, so
// formatting differences do not defeat the cache.
func (cl *CatalogLoader) load(ctx context.Context, data []byte) (*Catalog, error) {
	config, err := cl.parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	hash, err := configHash(config)
	if err != nil {
		return nil, fmt.Errorf("hash catalog: %w", err)
	}

	v, err, _ := cl.sf.Do(hash, func() (any, error) {
		if catalog, ok := cl.cached(hash); ok {
			return catalog, nil
		}

		if err := cl.validateConfig(config); err != nil {
			return nil, fmt.Errorf("validate catalog: %w", err)
		}

		catalog, err := cl.compile(config)
		if err != nil {
			return nil, fmt.Errorf("compile catalog: %w", err)
		}

		cl.store(hash, catalog)
		return catalog, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Catalog), nil
}

// parseYAML decodes strictly so configuration typos fail loudly instead
// of silently dropping rules.
func (cl *CatalogLoader) parseYAML(data []byte) (*CatalogConfig, error) {
	var config CatalogConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &config, nil
}

func (cl *CatalogLoader) validateConfig(config *CatalogConfig) error {
	if err := cl.validator.Struct(config); err != nil {
		return fmt.Errorf("struct validation failed: %w", err)
	}

	for phaseName, metrics := range config.Metrics {
		if _, err := domain.ParsePhase(phaseName); err != nil {
			return fmt.Errorf("unknown phase %q in catalog", phaseName)
		}
		if len(metrics) == 0 {
			return fmt.Errorf("phase %q declares no metrics", phaseName)
		}
		for metric, mc := range metrics {
			if metric == "" {
				return fmt.Errorf("phase %q declares an empty metric name", phaseName)
			}
			if mc.Rule == "" {
				return fmt.Errorf("metric %s/%s declares no rule kind", phaseName, metric)
			}
		}
	}
	return nil
}

// compile instantiates every declared rule through the registry and
// validates each one before the catalog serves any signal.
func (cl *CatalogLoader) compile(config *CatalogConfig) (*Catalog, error) {
	catalog := &Catalog{
		version: config.Version,
		rules:   make(map[domain.SignalKey]ports.Rule),
		byPhase: make(map[domain.Phase][]string),
	}

	for phaseName, metrics := range config.Metrics {
		phase, err := domain.ParsePhase(phaseName)
		if err != nil {
			return nil, err
		}

		for metric, mc := range metrics {
			var params map[string]any
			if !mc.Params.IsZero() {
				if err := mc.Params.Decode(&params); err != nil {
					return nil, fmt.Errorf("decode params for %s/%s: %w", phaseName, metric, err)
				}
			}

			rule, err := cl.registry.CreateRule(mc.Rule, metric, params)
			if err != nil {
				return nil, fmt.Errorf("metric %s/%s: %w", phaseName, metric, err)
			}
			if err := rule.Validate(); err != nil {
				return nil, fmt.Errorf("metric %s/%s failed validation: %w", phaseName, metric, err)
			}

			catalog.rules[domain.SignalKey{Phase: phase, Metric: metric}] = rule
			catalog.byPhase[phase] = append(catalog.byPhase[phase], metric)
		}
	}

	for phase := range catalog.byPhase {
		sort.Strings(catalog.byPhase[phase])
	}
	return catalog, nil
}

// configHash computes the cache key from a normalized re-encoding of
// the document, so key order and whitespace do not matter.
func configHash(config *CatalogConfig) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	if err := encoder.Encode(config); err != nil {
		return "", fmt.Errorf("encode config for hashing: %w", err)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

func (cl *CatalogLoader) cached(hash string) (*Catalog, bool) {
	cl.cacheMu.RLock()
	defer cl.cacheMu.RUnlock()
	catalog, ok := cl.cache[hash]
	return catalog, ok
}

func (cl *CatalogLoader) store(hash string, catalog *Catalog) {
	cl.cacheMu.Lock()
	defer cl.cacheMu.Unlock()
	cl.cache[hash] = catalog
}

// ClearCache drops all compiled catalogs, forcing recompilation.
func (cl *CatalogLoader) ClearCache() {
	cl.cacheMu.Lock()
	defer cl.cacheMu.Unlock()
	cl.cache = make(map[string]*Catalog)
}

// validateSemver validates X.Y.Z version strings.
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3
}
