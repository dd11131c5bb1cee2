// Package pantry holds the ingredients the user has on hand and searches
// recipes that use them.
package pantry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"leftover-chef/internal/recipe"
	"leftover-chef/internal/shared"
	"leftover-chef/internal/storage"
)

// RecentKey is the key the recently used ingredients are stored under.
const RecentKey = "@LeftoverChef:recent-ingredients"

// MaxRecent bounds the recent ingredients record.
const MaxRecent = 10

// Suggested are offered when the user has no recent ingredients.
var Suggested = []string{
	"Chicken", "Rice", "Pasta", "Tomato", "Onion",
	"Potato", "Carrot", "Broccoli", "Beef", "Salmon",
	"Spinach", "Garlic", "Lemon", "Cheese", "Eggs",
}

var (
	ErrEmptyIngredient = errors.New("ingredient is empty")
	ErrNoIngredients   = errors.New("no ingredients to search with")
)

// Searcher finds recipes that use an ingredient.
type Searcher interface {
	SearchByIngredient(ctx context.Context, ingredient string) ([]recipe.Summary, error)
}

// Results is the outcome of the latest committed search.
type Results struct {
	Recipes []recipe.Recipe
	Err     error
	Loading bool
	Token   shared.Token
}

// Pantry is the ingredient list state container.
type Pantry struct {
	kv      storage.KV
	search  Searcher
	lookup  recipe.Lookup
	workers int

	mu          sync.RWMutex
	ingredients []string
	recent      []string
	results     Results
	gen         shared.Generation

	persistMu sync.Mutex
}

// New creates a Pantry and loads the recent ingredients from kv.
func New(ctx context.Context, kv storage.KV, search Searcher, lookup recipe.Lookup, workers int) (*Pantry, error) {
	if workers <= 0 {
		workers = 4
	}
	p := &Pantry{kv: kv, search: search, lookup: lookup, workers: workers}

	raw, ok, err := kv.Get(ctx, RecentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent ingredients: %w", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &p.recent); err != nil {
			slog.Warn("Ignoring corrupt recent ingredients record", "error", err)
			p.recent = nil
		}
	}
	return p, nil
}

// AddIngredient appends name unless an ingredient with the same name in any
// casing is already present. The first casing entered is kept.
func (p *Pantry) AddIngredient(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrEmptyIngredient
	}

	p.mu.Lock()
	for _, ing := range p.ingredients {
		if strings.EqualFold(ing, name) {
			p.mu.Unlock()
			return false, nil
		}
	}
	p.ingredients = append(p.ingredients, name)
	p.pushRecent(name)
	p.mu.Unlock()

	p.persistRecent(ctx)
	return true, nil
}

// persistRecent writes the recent list as of the write. Writes are serialized
// so the last push is the last record stored.
func (p *Pantry) persistRecent(ctx context.Context) {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()

	p.mu.RLock()
	data, err := json.Marshal(p.recent)
	p.mu.RUnlock()
	if err != nil {
		slog.Error("Failed to marshal recent ingredients", "error", err)
		return
	}
	if err := p.kv.Set(ctx, RecentKey, string(data)); err != nil {
		slog.Warn("Failed to persist recent ingredients", "error", err)
	}
}

// pushRecent moves name to the front of the recent list. Callers hold mu.
func (p *Pantry) pushRecent(name string) {
	recent := []string{name}
	for _, r := range p.recent {
		if !strings.EqualFold(r, name) && len(recent) < MaxRecent {
			recent = append(recent, r)
		}
	}
	p.recent = recent
}

// RemoveIngredient removes name, ignoring case.
func (p *Pantry) RemoveIngredient(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, ing := range p.ingredients {
		if strings.EqualFold(ing, strings.TrimSpace(name)) {
			p.ingredients = append(p.ingredients[:i], p.ingredients[i+1:]...)
			return true
		}
	}
	return false
}

// ClearIngredients empties the ingredient list.
func (p *Pantry) ClearIngredients() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ingredients = nil
}

// Ingredients returns the current ingredients in entry order.
func (p *Pantry) Ingredients() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string{}, p.ingredients...)
}

// Recent returns recently added ingredients, most recent first, falling back
// to Suggested when there are none.
func (p *Pantry) Recent() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.recent) == 0 {
		return append([]string{}, Suggested...)
	}
	return append([]string{}, p.recent...)
}

// Results returns the latest committed search outcome.
func (p *Pantry) Results() Results {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := p.results
	out.Recipes = append([]recipe.Recipe{}, p.results.Recipes...)
	return out
}

// Search queries recipes for the first ingredient. With more than one
// ingredient, each result is resolved and kept only if it uses at least one of
// the others. Only the most recently started search commits its results; the
// returned bool reports whether this one did.
func (p *Pantry) Search(ctx context.Context) ([]recipe.Recipe, bool, error) {
	ingredients := p.Ingredients()
	if len(ingredients) == 0 {
		return nil, false, ErrNoIngredients
	}

	p.mu.Lock()
	token := p.gen.Next()
	p.results.Loading = true
	p.mu.Unlock()

	found, err := p.run(ctx, ingredients)
	if err != nil {
		slog.Warn("Recipe search failed", "ingredient", ingredients[0], "error", err)
		found = nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.gen.IsLatest(token) {
		return found, false, err
	}
	p.results = Results{Recipes: found, Err: err, Token: token}
	return found, true, err
}

func (p *Pantry) run(ctx context.Context, ingredients []string) ([]recipe.Recipe, error) {
	summaries, err := p.search.SearchByIngredient(ctx, ingredients[0])
	if err != nil {
		return nil, err
	}
	if len(ingredients) == 1 {
		out := make([]recipe.Recipe, 0, len(summaries))
		for _, s := range summaries {
			out = append(out, recipe.FromSummary(s))
		}
		return out, nil
	}

	others := ingredients[1:]
	details := make([]*recipe.Recipe, len(summaries))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, s := range summaries {
		g.Go(func() error {
			r, err := p.lookup.LookupByID(ctx, s.ID)
			if err != nil {
				slog.Debug("Skipping search result", "recipe_id", s.ID, "error", err)
				return nil
			}
			for _, other := range others {
				if r.HasIngredient(other) {
					details[i] = &r
					break
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]recipe.Recipe, 0, len(details))
	for _, r := range details {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}
