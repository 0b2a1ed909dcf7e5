package application

import (
	"bytes"
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

var _ ports.WeightSource = (*ProfileStore)(nil)

// profilesDocument is the YAML layout for weight profile files: a list
// of profiles under one key so a single file can carry every role.
type profilesDocument struct {
	Profiles []domain.WeightProfile `yaml:"profiles"`
}

// ProfileStore holds validated weight profiles keyed by role and serves
// them as the engine's WeightSource. Lookups for roles without a
// dedicated profile fall back to the "default" role when one is
// registered. Safe for concurrent use; profiles are validated once at
// registration and handed out as clones.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.WeightProfile
}

// NewProfileStore creates an empty store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]domain.WeightProfile)}
}

// NewDefaultProfileStore creates a store pre-seeded with the built-in
// default profile, so evaluations work before any role is configured.
func NewDefaultProfileStore() *ProfileStore {
	store := NewProfileStore()
	if err := store.Register(domain.DefaultWeightProfile()); err != nil {
		panic(fmt.Sprintf("built-in weight profile: %v", err))
	}
	return store
}

// Register validates and stores a profile, replacing any previous
// registration for the same role. Invalid profiles fail with a
// domain.ProfileError listing every violation.
func (s *ProfileStore) Register(profile domain.WeightProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.Role] = profile.Clone()
	return nil
}

// Profile resolves the weight profile for a role: the role's own
// profile when registered, the "default" profile otherwise. Fails with
// domain.ErrMissingWeightProfile when neither exists.
func (s *ProfileStore) Profile(role string) (domain.WeightProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if profile, ok := s.profiles[role]; ok {
		return profile.Clone(), nil
	}
	if profile, ok := s.profiles["default"]; ok {
		return profile.Clone(), nil
	}
	return domain.WeightProfile{}, fmt.Errorf("%w: role %q and no default registered",
		domain.ErrMissingWeightProfile, role)
}

// Roles lists the registered roles in lexical order.
func (s *ProfileStore) Roles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := make([]string, 0, len(s.profiles))
	for role := range s.profiles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// LoadFromFile registers every profile in a YAML file. On any invalid
// profile the whole load fails and the store keeps its previous state.
func (s *ProfileStore) LoadFromFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read profiles file: %w", err)
	}
	return s.load(data)
}

// LoadFromReader registers every profile read from r.
func (s *ProfileStore) LoadFromReader(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read profiles data: %w", err)
	}
	return s.load(data)
}

func (s *ProfileStore) load(data []byte) error {
	var doc profilesDocument
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("parse profiles: %w", err)
	}
	if len(doc.Profiles) == 0 {
		return fmt.Errorf("profiles document declares no profiles")
	}

	// Validate everything before registering anything, so a bad file
	// cannot leave the store half-updated.
	seen := make(map[string]struct{}, len(doc.Profiles))
	for _, profile := range doc.Profiles {
		if _, dup := seen[profile.Role]; dup {
			return fmt.Errorf("profiles document declares role %q twice", profile.Role)
		}
		seen[profile.Role] = struct{}{}
		if err := profile.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, profile := range doc.Profiles {
		s.profiles[profile.Role] = profile.Clone()
	}
	return nil
}
