package planner

import (
	"encoding/json"
	"errors"
	"fmt"

	"leftover-chef/internal/recipe"
)

// MealSlot is one of the meals of a calendar day.
type MealSlot string

const (
	Breakfast MealSlot = "breakfast"
	Lunch     MealSlot = "lunch"
	Dinner    MealSlot = "dinner"
)

// Slots lists the meal slots in the order a day is walked.
var Slots = []MealSlot{Breakfast, Lunch, Dinner}

// ParseSlot parses a slot name.
func ParseSlot(s string) (MealSlot, error) {
	slot := MealSlot(s)
	if !slot.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlot, s)
	}
	return slot, nil
}

// Valid reports whether s is a known slot.
func (s MealSlot) Valid() bool {
	switch s {
	case Breakfast, Lunch, Dinner:
		return true
	}
	return false
}

// DayMeals holds the recipes assigned to the slots of one day.
type DayMeals map[MealSlot]recipe.Recipe

// MealPlan maps an ISO date (YYYY-MM-DD) to that day's meals.
// A date with no meals is never present as a key.
type MealPlan map[string]DayMeals

// Copy returns a deep copy of the plan.
func (p MealPlan) Copy() MealPlan {
	out := make(MealPlan, len(p))
	for date, day := range p {
		d := make(DayMeals, len(day))
		for slot, r := range day {
			d[slot] = r.Copy()
		}
		out[date] = d
	}
	return out
}

// CurrentVersion is the schema version of the persisted meal plan record.
const CurrentVersion = 1

// StorageKey is the key the meal plan record is stored under.
const StorageKey = "leftoverchef-meal-plan"

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidSlot        = errors.New("invalid meal slot")
	ErrMissingRecipe      = errors.New("missing recipe")
	ErrUnsupportedVersion = errors.New("unsupported meal plan version")
)

type persistedState struct {
	Version           int      `json:"version"`
	MealPlan          MealPlan `json:"mealPlan"`
	SelectedWeekStart string   `json:"selectedWeekStart"`
}

// decodeState parses a stored record and migrates it to CurrentVersion.
// Records written before versioning carry no version field and read as 0.
func decodeState(raw string) (persistedState, error) {
	var st persistedState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return persistedState{}, fmt.Errorf("failed to unmarshal meal plan: %w", err)
	}

	switch {
	case st.Version > CurrentVersion:
		return persistedState{}, fmt.Errorf("%w: stored %d, supported %d", ErrUnsupportedVersion, st.Version, CurrentVersion)
	case st.Version < 0:
		return persistedState{}, fmt.Errorf("%w: stored %d", ErrUnsupportedVersion, st.Version)
	}

	for st.Version < CurrentVersion {
		migrate, ok := migrations[st.Version]
		if !ok {
			return persistedState{}, fmt.Errorf("%w: no migration from %d", ErrUnsupportedVersion, st.Version)
		}
		st = migrate(st)
	}

	if st.MealPlan == nil {
		st.MealPlan = MealPlan{}
	}
	for date, day := range st.MealPlan {
		for slot, r := range day {
			if !slot.Valid() || r.ID == "" {
				delete(day, slot)
				continue
			}
			day[slot] = recipe.Normalize(r)
		}
		if len(day) == 0 {
			delete(st.MealPlan, date)
		}
	}
	return st, nil
}

// migrations maps a stored version to the step producing the next version.
var migrations = map[int]func(persistedState) persistedState{
	0: func(st persistedState) persistedState {
		st.Version = 1
		return st
	},
}
