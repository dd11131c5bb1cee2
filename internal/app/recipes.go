package app

import (
	"context"
	"fmt"
	"strings"

	"leftover-chef/internal/recipe"
	"leftover-chef/internal/stats"
)

// SearchRecipes runs the pantry search and counts the results as viewed.
func (a *App) SearchRecipes(ctx context.Context) ([]recipe.Recipe, error) {
	found, applied, err := a.pantry.Search(ctx)
	if err != nil {
		return nil, err
	}
	if applied {
		a.stats.IncrementRecipesViewed(ctx, 1)
	}
	return found, nil
}

// ViewRecipe resolves the full detail of id. Favorites are answered from
// their saved snapshot when the lookup fails.
func (a *App) ViewRecipe(ctx context.Context, id string) (recipe.Recipe, error) {
	r, err := a.resolver.LookupByID(ctx, id)
	if err != nil {
		if fav, ok := a.favorites.Get(id); ok {
			return fav, nil
		}
		return recipe.Recipe{}, err
	}
	a.stats.IncrementRecipesViewed(ctx, 1)
	return r, nil
}

// RandomRecipe returns a random TheMealDB recipe.
func (a *App) RandomRecipe(ctx context.Context) (recipe.Recipe, error) {
	r, err := a.mealDB.Random(ctx)
	if err != nil {
		return recipe.Recipe{}, err
	}
	a.stats.IncrementRecipesViewed(ctx, 1)
	return r, nil
}

// AddFavorite saves recipe id. It reports false if it was already saved.
func (a *App) AddFavorite(ctx context.Context, id string) (bool, error) {
	r, err := a.ViewRecipe(ctx, id)
	if err != nil {
		return false, err
	}
	added, err := a.favorites.Add(ctx, r)
	if err != nil {
		return false, err
	}
	if added {
		a.stats.IncrementRecipesSaved(ctx)
	}
	return added, nil
}

// RemoveFavorite drops recipe id from favorites.
func (a *App) RemoveFavorite(ctx context.Context, id string) bool {
	return a.favorites.Remove(ctx, id)
}

// Favorites returns saved recipes.
func (a *App) Favorites() []recipe.Recipe {
	return a.favorites.List()
}

// IsFavorite reports whether id is saved.
func (a *App) IsFavorite(id string) bool {
	return a.favorites.IsFavorite(id)
}

// Stats returns the usage counters.
func (a *App) Stats() stats.Stats {
	return a.stats.Snapshot()
}

// MarkCooked counts the meal in (date, slot) as made and credits every pantry
// ingredient it uses as saved from waste.
func (a *App) MarkCooked(ctx context.Context, date, slot string) (int, error) {
	s, err := parseSlot(slot)
	if err != nil {
		return 0, err
	}
	r, ok := a.plan.Meal(date, s)
	if !ok {
		return 0, fmt.Errorf("no meal planned for %s %s", date, slot)
	}
	if len(r.Ingredients) == 0 {
		if full, err := a.resolver.LookupByID(ctx, r.ID); err == nil {
			r = full
		}
	}

	used := 0
	for _, ing := range a.pantry.Ingredients() {
		if r.HasIngredient(ing) {
			used++
		}
	}
	a.stats.IncrementMealsMade(ctx)
	if used > 0 {
		a.stats.AddIngredientsSaved(ctx, used)
	}
	return used, nil
}

// ImportedRecipes lists recipes clipped or imported into the local repository.
func (a *App) ImportedRecipes(ctx context.Context) ([]recipe.Recipe, error) {
	return a.recipeRepo.List(ctx)
}

// resolveForPlan picks the recipe snapshot to store in the plan.
func (a *App) resolveForPlan(ctx context.Context, id string) (recipe.Recipe, error) {
	id = strings.TrimSpace(id)
	if fav, ok := a.favorites.Get(id); ok && len(fav.Ingredients) > 0 {
		return fav, nil
	}
	return a.resolver.LookupByID(ctx, id)
}
