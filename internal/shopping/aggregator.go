package shopping

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"leftover-chef/internal/recipe"
)

// DefaultWorkers bounds concurrent recipe lookups during one aggregation.
const DefaultWorkers = 4

// PlanSource enumerates the distinct recipe ids scheduled on a set of dates.
type PlanSource interface {
	RecipeIDs(dates []string) ([]string, error)
}

// Aggregator builds shopping lists from the meal plan.
type Aggregator struct {
	lookup  recipe.Lookup
	workers int
	newID   func(category, name string) string
}

// AggregatorOption customizes an Aggregator.
type AggregatorOption func(*Aggregator)

// WithWorkers sets the number of concurrent lookups.
func WithWorkers(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithIDFunc replaces the synthetic item id generator.
func WithIDFunc(f func(category, name string) string) AggregatorOption {
	return func(a *Aggregator) { a.newID = f }
}

// NewAggregator creates an Aggregator resolving recipes through lookup.
func NewAggregator(lookup recipe.Lookup, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		lookup:  lookup,
		workers: DefaultWorkers,
		newID:   itemID,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// itemID is unique within one result; it is regenerated on every run.
func itemID(category, name string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s-%s-%s", category, name, suffix)
}

// Aggregate resolves every distinct recipe scheduled on dates and folds their
// ingredients into a List. A recipe whose lookup fails contributes nothing; only
// a failure to enumerate the plan fails the whole run.
func (a *Aggregator) Aggregate(ctx context.Context, plan PlanSource, dates []string) (*List, error) {
	ids, err := plan.RecipeIDs(dates)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanUnavailable, err)
	}

	resolved := make([]*recipe.Recipe, len(ids))
	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, id := range ids {
		g.Go(func() error {
			r, err := a.lookup.LookupByID(ctx, id)
			if err != nil {
				slog.Warn("Skipping recipe in shopping list", "recipe_id", id, "error", err)
				return nil
			}
			if r.ID == "" {
				slog.Warn("Skipping empty recipe in shopping list", "recipe_id", id)
				return nil
			}
			r = recipe.Normalize(r)
			resolved[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	list := NewList()
	list.RecipeIDs = ids
	seen := make(map[string]bool)
	for _, r := range resolved {
		if r == nil {
			continue
		}
		category := r.Category
		if category == "" {
			category = OtherCategory
		}
		for _, ing := range r.Ingredients {
			key := itemKey(category, ing.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			if _, ok := list.Categories[category]; !ok {
				list.Order = append(list.Order, category)
			}
			list.Categories[category] = append(list.Categories[category], Item{
				ID:       a.newID(category, ing.Name),
				Name:     ing.Name,
				Measure:  ing.Measure,
				Category: category,
			})
		}
	}
	list.recount()

	slog.Debug("Aggregated shopping list", "recipes", len(ids), "items", list.TotalItems)
	return list, nil
}
