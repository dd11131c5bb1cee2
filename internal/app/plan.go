package app

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"leftover-chef/internal/planner"
	"leftover-chef/internal/shopping"
)

func parseSlot(s string) (planner.MealSlot, error) {
	return planner.ParseSlot(strings.ToLower(strings.TrimSpace(s)))
}

// ResolveDate accepts an ISO date or a weekday name ("mon", "Tuesday") within
// the selected week.
func (a *App) ResolveDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if _, err := planner.ParseDate(s); err == nil {
		return s, nil
	}
	lower := strings.ToLower(s)
	if len(lower) >= 3 {
		for _, date := range a.plan.WeekDates() {
			if strings.HasPrefix(strings.ToLower(planner.DayName(date)), lower) {
				return date, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", planner.ErrInvalidDate, s)
}

// PlanMeal assigns recipe id to (date, slot). date may be a weekday name.
func (a *App) PlanMeal(ctx context.Context, date, slot, id string) (planner.MealSlot, string, error) {
	d, err := a.ResolveDate(date)
	if err != nil {
		return "", "", err
	}
	s, err := parseSlot(slot)
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", "", planner.ErrMissingRecipe
	}
	r, err := a.resolveForPlan(ctx, id)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve recipe %s: %w", id, err)
	}
	if err := a.plan.AddMeal(ctx, d, s, r); err != nil {
		return "", "", err
	}
	return s, d, nil
}

// UnplanMeal clears (date, slot).
func (a *App) UnplanMeal(ctx context.Context, date, slot string) error {
	d, err := a.ResolveDate(date)
	if err != nil {
		return err
	}
	s, err := parseSlot(slot)
	if err != nil {
		return err
	}
	return a.plan.RemoveMeal(ctx, d, s)
}

// NextWeek moves the selected week forward.
func (a *App) NextWeek(ctx context.Context) (string, error) {
	return a.plan.NextWeek(ctx)
}

// PreviousWeek moves the selected week back.
func (a *App) PreviousWeek(ctx context.Context) (string, error) {
	return a.plan.PreviousWeek(ctx)
}

// Week returns the selected week's plan.
func (a *App) Week() (string, planner.MealPlan) {
	start := a.plan.SelectedWeekStart()
	dates, _ := planner.WeekDates(start)
	return start, a.plan.MealsFor(dates)
}

// GenerateShoppingList aggregates the selected week.
func (a *App) GenerateShoppingList(ctx context.Context) (shopping.Result, error) {
	return a.shopping.Generate(ctx, a.plan.SelectedWeekStart())
}

// ShoppingList returns the current list state. The loaded or saved list is
// used only while it was built from the recipes the selected week plans now;
// otherwise the list is generated again.
func (a *App) ShoppingList(ctx context.Context) (shopping.State, error) {
	week := a.plan.SelectedWeekStart()
	dates, err := planner.WeekDates(week)
	if err != nil {
		return shopping.State{}, err
	}
	ids, err := a.plan.RecipeIDs(dates)
	if err != nil {
		return shopping.State{}, err
	}
	current := func(st shopping.State) bool {
		return st.List != nil && st.List.WeekStart == week && slices.Equal(st.List.RecipeIDs, ids)
	}

	if st := a.shopping.Tracker().State(); current(st) {
		return st, nil
	}
	if ok, err := a.shopping.Restore(ctx, week); err == nil && ok {
		if st := a.shopping.Tracker().State(); current(st) {
			return st, nil
		}
	}
	if _, err := a.GenerateShoppingList(ctx); err != nil {
		return a.shopping.Tracker().State(), err
	}
	return a.shopping.Tracker().State(), nil
}

// ResetShoppingList drops the saved list for the selected week, checked
// items included, and generates it again from the plan.
func (a *App) ResetShoppingList(ctx context.Context) (shopping.Result, error) {
	week := a.plan.SelectedWeekStart()
	if err := a.lists.DeleteByWeek(ctx, week); err != nil {
		return shopping.Result{}, err
	}
	a.shopping.Tracker().Discard()
	return a.shopping.Generate(ctx, week)
}

// ToggleItem flips a shopping item by id.
func (a *App) ToggleItem(ctx context.Context, id string) error {
	return a.shopping.ToggleID(ctx, id)
}

// ToggleItemAt flips the item at index within category.
func (a *App) ToggleItemAt(ctx context.Context, category string, index int) error {
	return a.shopping.Toggle(ctx, category, index)
}

// ClearChecked removes checked items and returns how many went.
func (a *App) ClearChecked(ctx context.Context) int {
	n := a.shopping.ClearChecked(ctx)
	if a.recorder != nil {
		if st := a.shopping.Tracker().State(); st.List != nil {
			a.recorder.ObserveListSize(st.List.TotalItems)
		}
	}
	return n
}

// ShareText renders the current list for sharing.
func (a *App) ShareText(ctx context.Context) (string, error) {
	st, err := a.ShoppingList(ctx)
	if err != nil {
		return "", err
	}
	return shopping.FormatText(st.List), nil
}

// ShareLink returns a signed link to the selected week's saved list.
func (a *App) ShareLink(ctx context.Context) (string, error) {
	if _, err := a.ShoppingList(ctx); err != nil {
		return "", err
	}
	return a.share.Link(a.plan.SelectedWeekStart())
}
