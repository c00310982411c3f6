package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/UglyGameFace/oddbot-sub001/internal/config"
	"github.com/UglyGameFace/oddbot-sub001/pkg/models"
)

// SportRegistry holds the sports this deployment ingests. It is seeded
// from configuration at startup and only active sports are scheduled.
type SportRegistry struct {
	sports map[string]models.Sport
	mu     sync.RWMutex
}

func NewSportRegistry() *SportRegistry {
	return &SportRegistry{sports: make(map[string]models.Sport)}
}

// FromSeeds builds a registry from the configured sport list.
func FromSeeds(seeds []config.SportSeed) (*SportRegistry, error) {
	r := NewSportRegistry()
	for _, seed := range seeds {
		sport := models.Sport{Key: seed.Key, Title: seed.Title, Active: seed.IsActive()}
		if err := r.Register(sport); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a sport. Registering the same key twice is a wiring
// mistake and fails loudly.
func (r *SportRegistry) Register(sport models.Sport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sport.Key == "" {
		return fmt.Errorf("sport key must not be empty")
	}
	if _, exists := r.sports[sport.Key]; exists {
		return fmt.Errorf("sport %s is already registered", sport.Key)
	}

	r.sports[sport.Key] = sport
	return nil
}

// Get retrieves a sport by key.
func (r *SportRegistry) Get(sportKey string) (models.Sport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sport, exists := r.sports[sportKey]
	return sport, exists
}

// All returns every registered sport ordered by key.
func (r *SportRegistry) All() []models.Sport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sports := make([]models.Sport, 0, len(r.sports))
	for _, sport := range r.sports {
		sports = append(sports, sport)
	}
	sort.Slice(sports, func(i, j int) bool { return sports[i].Key < sports[j].Key })
	return sports
}

// ActiveKeys returns the keys the ingestion scheduler should cycle
// through, ordered for deterministic batching.
func (r *SportRegistry) ActiveKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.sports))
	for key, sport := range r.sports {
		if sport.Active {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of registered sports.
func (r *SportRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sports)
}
