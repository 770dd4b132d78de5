package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

// ProfileEngine holds the enabled weight profiles, keyed by ID.
type ProfileEngine struct {
	mu       sync.RWMutex
	profiles map[string]*domain.WeightProfile
}

// NewProfileEngine creates an empty profile registry.
func NewProfileEngine() *ProfileEngine {
	return &ProfileEngine{
		profiles: make(map[string]*domain.WeightProfile),
	}
}

// ValidateProfile checks a profile's weights and minimum score.
func ValidateProfile(p *domain.WeightProfile) error {
	if p == nil {
		return fmt.Errorf("profile is required")
	}
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	if err := scoring.ValidateWeights(p.Weights); err != nil {
		return fmt.Errorf("profile %s: %w", p.ID, err)
	}
	if p.MinScore < 0 || p.MinScore > 100 {
		return fmt.Errorf("profile %s: minScore must be within 0-100, got %g", p.ID, p.MinScore)
	}
	return nil
}

// LoadProfiles replaces the loaded set with the enabled profiles.
// Invalid profiles reject the whole load and leave the current set intact.
func (e *ProfileEngine) LoadProfiles(profiles []*domain.WeightProfile) error {
	next := make(map[string]*domain.WeightProfile, len(profiles))
	for _, p := range profiles {
		if !p.Enabled {
			continue
		}
		if err := ValidateProfile(p); err != nil {
			return err
		}
		next[p.ID] = p
	}

	e.mu.Lock()
	e.profiles = next
	e.mu.Unlock()
	return nil
}

// ReloadProfiles clears and reloads profiles (hot reload).
func (e *ProfileEngine) ReloadProfiles(profiles []*domain.WeightProfile) error {
	return e.LoadProfiles(profiles)
}

// GetLoadedProfiles returns currently loaded profiles ordered by ID.
func (e *ProfileEngine) GetLoadedProfiles() []*domain.WeightProfile {
	e.mu.RLock()
	result := make([]*domain.WeightProfile, 0, len(e.profiles))
	for _, p := range e.profiles {
		result = append(result, p)
	}
	e.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ProfileCount returns the number of loaded profiles.
func (e *ProfileEngine) ProfileCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.profiles)
}

// Resolve returns a loaded profile by ID.
func (e *ProfileEngine) Resolve(id string) (*domain.WeightProfile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.profiles[id]
	return p, ok
}

// Close cleans up the engine.
func (e *ProfileEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profiles = make(map[string]*domain.WeightProfile)
	return nil
}

// DefaultProfiles returns the stock profiles seeded for new tenants.
func DefaultProfiles() []*domain.WeightProfile {
	return []*domain.WeightProfile{
		{
			ID:          domain.ProfileDefault,
			Name:        "Balanced",
			Description: "Equal urgency and readiness, light distance penalty",
			Version:     "1.0.0",
			Weights:     domain.DefaultMatchWeights(),
			Enabled:     true,
		},
		{
			ID:          domain.ProfileEmergency,
			Name:        "Emergency",
			Description: "Favour urgency; accept weaker readiness",
			Version:     "1.0.0",
			Weights:     domain.MatchWeights{RUS: 0.6, DRS: 0.3, Distance: 0.1},
			Enabled:     true,
		},
		{
			ID:          domain.ProfileNearby,
			Name:        "Nearby donors",
			Description: "Heavy distance penalty for walk-in collection",
			Version:     "1.0.0",
			Weights:     domain.MatchWeights{RUS: 0.3, DRS: 0.3, Distance: 0.4},
			MinScore:    10,
			Enabled:     true,
		},
	}
}
