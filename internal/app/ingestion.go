package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"leftover-chef/internal/recipe"
)

// ClipRecipe imports the recipe published at url into the local repository.
func (a *App) ClipRecipe(ctx context.Context, url string) (*recipe.Recipe, error) {
	r, err := a.clipper.ClipURL(ctx, url)
	if err != nil {
		return nil, err
	}
	a.stats.IncrementRecipesSaved(ctx)
	return r, nil
}

// ImportRecipesFromDir reads every *.json file in dir and saves the recipes it
// holds. A file may contain one recipe, a list of recipes, or a TheMealDB
// response ({"meals": [...]}). Ids without the local prefix get one so
// imported recipes never shadow TheMealDB ids.
func (a *App) ImportRecipesFromDir(ctx context.Context, dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to list recipe files: %w", err)
	}

	existing, err := a.recipeRepo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list existing recipes in DB: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		known[r.ID] = struct{}{}
	}

	imported := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("Skipping unreadable recipe file", "path", path, "error", err)
			continue
		}
		recipes, err := decodeRecipes(data)
		if err != nil {
			slog.Warn("Skipping malformed recipe file", "path", path, "error", err)
			continue
		}

		for _, r := range recipes {
			if r.ID == "" || r.Title == "" {
				slog.Warn("Skipping recipe without id or title", "path", path)
				continue
			}
			if !strings.HasPrefix(r.ID, recipe.LocalPrefix) {
				r.ID = recipe.LocalPrefix + r.ID
			}
			if _, ok := known[r.ID]; ok {
				slog.Debug("Recipe already imported", "recipe_id", r.ID)
				continue
			}
			if err := a.recipeRepo.Save(ctx, r); err != nil {
				slog.Warn("Failed to import recipe", "recipe_id", r.ID, "error", err)
				continue
			}
			known[r.ID] = struct{}{}
			imported++
		}
	}

	slog.Info("Recipe import complete", "files", len(files), "imported", imported)
	return imported, nil
}

func decodeRecipes(data []byte) ([]recipe.Recipe, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []recipe.Recipe
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if _, ok := probe["meals"]; ok {
		var resp struct {
			Meals []map[string]any `json:"meals"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, err
		}
		out := make([]recipe.Recipe, 0, len(resp.Meals))
		for _, m := range resp.Meals {
			out = append(out, recipe.FromMealDB(m))
		}
		return out, nil
	}

	var r recipe.Recipe
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return []recipe.Recipe{r}, nil
}
