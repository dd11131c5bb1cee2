// Package favorites keeps the user's saved recipes as one persisted record.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"leftover-chef/internal/recipe"
	"leftover-chef/internal/storage"
)

// StorageKey is the key the favorites record is stored under.
const StorageKey = "@LeftoverChef:favorites"

// ErrMissingID is returned when adding a recipe without an id.
var ErrMissingID = errors.New("favorite recipe has no id")

// Store holds favorites in insertion order.
type Store struct {
	kv        storage.KV
	mu        sync.RWMutex
	favorites []recipe.Recipe

	persistMu sync.Mutex
}

// NewStore loads favorites from kv. A corrupt record is logged and ignored.
func NewStore(ctx context.Context, kv storage.KV) (*Store, error) {
	s := &Store{kv: kv, favorites: []recipe.Recipe{}}

	raw, ok, err := kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	if !ok {
		return s, nil
	}

	var stored []recipe.Recipe
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		slog.Warn("Ignoring corrupt favorites record", "error", err)
		return s, nil
	}
	seen := make(map[string]bool, len(stored))
	for _, r := range stored {
		r = recipe.Normalize(r)
		if r.ID == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		s.favorites = append(s.favorites, r)
	}
	return s, nil
}

// Add saves a snapshot of r. It reports false when r is already a favorite.
func (s *Store) Add(ctx context.Context, r recipe.Recipe) (bool, error) {
	r = recipe.Normalize(r)
	if r.ID == "" {
		return false, ErrMissingID
	}

	s.mu.Lock()
	for _, f := range s.favorites {
		if f.ID == r.ID {
			s.mu.Unlock()
			return false, nil
		}
	}
	s.favorites = append(s.favorites, r)
	s.mu.Unlock()

	s.persist(ctx)
	return true, nil
}

// Remove drops the favorite with id. It reports whether one was removed.
func (s *Store) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	idx := -1
	for i, f := range s.favorites {
		if f.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.favorites = append(s.favorites[:idx], s.favorites[idx+1:]...)
	s.mu.Unlock()

	s.persist(ctx)
	return true
}

// IsFavorite reports whether id is saved.
func (s *Store) IsFavorite(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.favorites {
		if f.ID == id {
			return true
		}
	}
	return false
}

// Get returns the saved snapshot of id.
func (s *Store) Get(id string) (recipe.Recipe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.favorites {
		if f.ID == id {
			return f.Copy(), true
		}
	}
	return recipe.Recipe{}, false
}

// List returns copies of all favorites.
func (s *Store) List() []recipe.Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]recipe.Recipe, len(s.favorites))
	for i, f := range s.favorites {
		out[i] = f.Copy()
	}
	return out
}

// persist writes the current favorites. Writes are serialized and marshal the
// state as of the write, so a slower writer never stores an older list last.
func (s *Store) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	data, err := json.Marshal(s.favorites)
	s.mu.RUnlock()
	if err != nil {
		slog.Error("Failed to marshal favorites", "error", err)
		return
	}
	if err := s.kv.Set(ctx, StorageKey, string(data)); err != nil {
		slog.Warn("Failed to persist favorites", "error", err)
	}
}
