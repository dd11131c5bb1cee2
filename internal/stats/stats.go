// Package stats tracks usage counters and derives badges and an
// environmental impact estimate from them.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"leftover-chef/internal/storage"
)

// StorageKey is the key the stats record is stored under.
const StorageKey = "@LeftoverChef:stats"

// Stats are the persisted usage counters.
type Stats struct {
	RecipesViewed    int `json:"recipesViewed"`
	RecipesSaved     int `json:"recipesSaved"`
	MealsMade        int `json:"mealsMade"`
	IngredientsSaved int `json:"ingredientsSaved,omitempty"`
}

// Store owns the counters.
type Store struct {
	kv    storage.KV
	mu    sync.RWMutex
	stats Stats

	persistMu sync.Mutex
}

// NewStore loads stats from kv. A corrupt record is logged and reset.
func NewStore(ctx context.Context, kv storage.KV) (*Store, error) {
	s := &Store{kv: kv}
	raw, ok, err := kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &s.stats); err != nil {
			slog.Warn("Ignoring corrupt stats record", "error", err)
			s.stats = Stats{}
		}
	}
	return s, nil
}

// Snapshot returns the current counters.
func (s *Store) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// IncrementRecipesViewed adds n viewed recipes.
func (s *Store) IncrementRecipesViewed(ctx context.Context, n int) {
	s.update(ctx, func(st *Stats) { st.RecipesViewed += n })
}

// IncrementRecipesSaved counts one more saved recipe.
func (s *Store) IncrementRecipesSaved(ctx context.Context) {
	s.update(ctx, func(st *Stats) { st.RecipesSaved++ })
}

// IncrementMealsMade counts one more cooked meal.
func (s *Store) IncrementMealsMade(ctx context.Context) {
	s.update(ctx, func(st *Stats) { st.MealsMade++ })
}

// AddIngredientsSaved counts n leftover ingredients used up.
func (s *Store) AddIngredientsSaved(ctx context.Context, n int) {
	s.update(ctx, func(st *Stats) { st.IngredientsSaved += n })
}

func (s *Store) update(ctx context.Context, f func(*Stats)) {
	s.mu.Lock()
	f(&s.stats)
	s.mu.Unlock()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.mu.RLock()
	data, err := json.Marshal(s.stats)
	s.mu.RUnlock()
	if err != nil {
		slog.Error("Failed to marshal stats", "error", err)
		return
	}
	if err := s.kv.Set(ctx, StorageKey, string(data)); err != nil {
		slog.Warn("Failed to persist stats", "error", err)
	}
}
