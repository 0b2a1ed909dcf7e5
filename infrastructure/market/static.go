// Package market provides the market-rate table sources behind the
// compensation step: a static source fed from configuration and an
// HTTP source that pulls per-role tables from a rates provider.
package market

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hiregauge/hiregauge/internal/domain"
	"github.com/hiregauge/hiregauge/internal/ports"
)

var _ ports.MarketSource = (*StaticSource)(nil)

// marketDocument is the YAML layout for market table files.
type marketDocument struct {
	Tables []domain.MarketTable `yaml:"tables"`
}

// StaticSource serves market tables from configuration. Roles without
// a dedicated table fall back to the "default" role when one is
// registered, mirroring how weight profiles resolve. Safe for
// concurrent use.
type StaticSource struct {
	mu     sync.RWMutex
	tables map[string]domain.MarketTable
}

// NewStaticSource creates a source from validated tables. Duplicate
// roles and invalid tables fail construction.
func NewStaticSource(tables ...domain.MarketTable) (*StaticSource, error) {
	s := &StaticSource{tables: make(map[string]domain.MarketTable, len(tables))}
	for _, table := range tables {
		if err := s.Register(table); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DefaultSource returns a source carrying the built-in default table,
// so compensation works before any market data is configured.
func DefaultSource() *StaticSource {
	source, err := NewStaticSource(DefaultTable())
	if err != nil {
		panic(fmt.Sprintf("built-in market table: %v", err))
	}
	return source
}

// DefaultTable is the built-in USD reference table applied when a role
// has no dedicated market data.
func DefaultTable() domain.MarketTable {
	return domain.MarketTable{
		Role:     "default",
		Currency: "USD",
		Bands: []domain.MarketBand{
			{MinScore: 0, Low: 60_000, Mid: 70_000, High: 80_000, Label: "junior"},
			{MinScore: 0.50, Low: 85_000, Mid: 95_000, High: 110_000, Label: "mid"},
			{MinScore: 0.65, Low: 115_000, Mid: 130_000, High: 145_000, Label: "senior"},
			{MinScore: 0.85, Low: 150_000, Mid: 170_000, High: 190_000, Label: "staff"},
		},
	}
}

// Register validates and stores a table, replacing any previous table
// for the same role.
func (s *StaticSource) Register(table domain.MarketTable) error {
	if err := table.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table.Role] = table.Clone()
	return nil
}

// Table resolves the market table for a role, falling back to the
// "default" role's table. Fails with domain.ErrNoMarketData when
// neither exists.
func (s *StaticSource) Table(_ context.Context, role string) (domain.MarketTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if table, ok := s.tables[role]; ok {
		return table.Clone(), nil
	}
	if table, ok := s.tables["default"]; ok {
		return table.Clone(), nil
	}
	return domain.MarketTable{}, fmt.Errorf("%w: role %q and no default table registered",
		domain.ErrNoMarketData, role)
}

// Roles lists the roles with a registered table, in lexical order.
func (s *StaticSource) Roles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := make([]string, 0, len(s.tables))
	for role := range s.tables {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// LoadFromFile registers every table in a YAML file. On any invalid
// table the whole load fails and the source keeps its previous state.
func (s *StaticSource) LoadFromFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read market tables file: %w", err)
	}
	return s.load(data)
}

// LoadFromReader registers every table read from r.
func (s *StaticSource) LoadFromReader(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read market tables data: %w", err)
	}
	return s.load(data)
}

func (s *StaticSource) load(data []byte) error {
	var doc marketDocument
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("parse market tables: %w", err)
	}
	if len(doc.Tables) == 0 {
		return fmt.Errorf("market document declares no tables")
	}

	seen := make(map[string]struct{}, len(doc.Tables))
	for _, table := range doc.Tables {
		if _, dup := seen[table.Role]; dup {
			return fmt.Errorf("market document declares role %q twice", table.Role)
		}
		seen[table.Role] = struct{}{}
		if err := table.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, table := range doc.Tables {
		s.tables[table.Role] = table.Clone()
	}
	return nil
}
