package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"testing"
	"time"

	"leftover-chef/internal/recipe"
	"leftover-chef/internal/storage"
)

// failingKV accepts reads but fails every write.
type failingKV struct {
	mu     sync.Mutex
	writes int
}

func (f *failingKV) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (f *failingKV) Set(context.Context, string, string) error {
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return errors.New("disk full")
}
func (f *failingKV) Remove(context.Context, string) error { return nil }

func fixedClock() time.Time { return time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC) } // Wednesday

func newTestStore(t *testing.T, kv storage.KV) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), kv, WithClock(fixedClock))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func sampleRecipe(id, title string) recipe.Recipe {
	return recipe.Recipe{
		ID:    id,
		Title: title,
		Ingredients: []recipe.Ingredient{
			{Name: "Tomato", Measure: "2"},
		},
	}
}

func TestNewStoreDefaultsToCurrentWeek(t *testing.T) {
	s := newTestStore(t, storage.NewMemoryStore())
	if got := s.SelectedWeekStart(); got != "2024-01-15" {
		t.Errorf("Expected week start 2024-01-15, got %s", got)
	}
	dates := s.WeekDates()
	if len(dates) != 7 || dates[0] != "2024-01-15" || dates[6] != "2024-01-21" {
		t.Errorf("Unexpected week dates: %v", dates)
	}
	if len(s.Snapshot()) != 0 {
		t.Errorf("Expected empty plan")
	}
}

func TestAddMeal(t *testing.T) {
	ctx := context.Background()

	t.Run("overwrites existing slot", func(t *testing.T) {
		s := newTestStore(t, storage.NewMemoryStore())
		if err := s.AddMeal(ctx, "2024-01-15", Dinner, sampleRecipe("1", "Pasta")); err != nil {
			t.Fatal(err)
		}
		if err := s.AddMeal(ctx, "2024-01-15", Dinner, sampleRecipe("2", "Soup")); err != nil {
			t.Fatal(err)
		}
		got, ok := s.Meal("2024-01-15", Dinner)
		if !ok || got.ID != "2" {
			t.Errorf("Expected recipe 2 in slot, got %+v (ok=%v)", got, ok)
		}
		if n := len(s.Snapshot()["2024-01-15"]); n != 1 {
			t.Errorf("Expected one meal on date, got %d", n)
		}
	})

	t.Run("stores a snapshot", func(t *testing.T) {
		s := newTestStore(t, storage.NewMemoryStore())
		r := sampleRecipe("1", "Pasta")
		if err := s.AddMeal(ctx, "2024-01-15", Lunch, r); err != nil {
			t.Fatal(err)
		}
		r.Ingredients[0].Name = "Changed"
		got, _ := s.Meal("2024-01-15", Lunch)
		if got.Ingredients[0].Name != "Tomato" {
			t.Errorf("Stored recipe was mutated through caller slice")
		}
	})

	t.Run("validates input", func(t *testing.T) {
		s := newTestStore(t, storage.NewMemoryStore())
		cases := []struct {
			name string
			date string
			slot MealSlot
			r    recipe.Recipe
			want error
		}{
			{"bad date", "15/01/2024", Dinner, sampleRecipe("1", "x"), ErrInvalidDate},
			{"bad slot", "2024-01-15", MealSlot("brunch"), sampleRecipe("1", "x"), ErrInvalidSlot},
			{"missing recipe", "2024-01-15", Dinner, recipe.Recipe{}, ErrMissingRecipe},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				err := s.AddMeal(ctx, tc.date, tc.slot, tc.r)
				if !errors.Is(err, tc.want) {
					t.Errorf("Expected %v, got %v", tc.want, err)
				}
			})
		}
		if len(s.Snapshot()) != 0 {
			t.Errorf("Rejected adds must not change the plan")
		}
	})
}

func TestRemoveMealPrunesEmptyDates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore())

	_ = s.AddMeal(ctx, "2024-01-16", Breakfast, sampleRecipe("1", "Eggs"))
	_ = s.AddMeal(ctx, "2024-01-16", Dinner, sampleRecipe("2", "Stew"))

	if err := s.RemoveMeal(ctx, "2024-01-16", Breakfast); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Snapshot()["2024-01-16"]; !ok {
		t.Fatalf("Date with a remaining meal was pruned")
	}

	if err := s.RemoveMeal(ctx, "2024-01-16", Dinner); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Snapshot()["2024-01-16"]; ok {
		t.Errorf("Expected empty date to be pruned")
	}

	// Removing again is a no-op.
	if err := s.RemoveMeal(ctx, "2024-01-16", Dinner); err != nil {
		t.Errorf("Expected no error removing empty slot, got %v", err)
	}
}

func TestRandomEditsKeepPlanShape(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore())
	rng := rand.New(rand.NewSource(1))

	dates := []string{"2024-01-15", "2024-01-16", "2024-01-17", "2024-01-21"}
	type key struct {
		date string
		slot MealSlot
	}
	want := make(map[key]string)

	for i := 0; i < 300; i++ {
		k := key{dates[rng.Intn(len(dates))], Slots[rng.Intn(len(Slots))]}
		if rng.Intn(2) == 0 {
			id := fmt.Sprintf("r%d", rng.Intn(5))
			if err := s.AddMeal(ctx, k.date, k.slot, sampleRecipe(id, "Recipe "+id)); err != nil {
				t.Fatalf("step %d: AddMeal failed: %v", i, err)
			}
			want[k] = id
		} else {
			if err := s.RemoveMeal(ctx, k.date, k.slot); err != nil {
				t.Fatalf("step %d: RemoveMeal failed: %v", i, err)
			}
			delete(want, k)
		}

		plan := s.Snapshot()
		entries := 0
		for date, day := range plan {
			if len(day) == 0 {
				t.Fatalf("step %d: empty date %s kept in plan", i, date)
			}
			entries += len(day)
		}
		if entries != len(want) {
			t.Fatalf("step %d: expected %d planned meals, got %d", i, len(want), entries)
		}
		for _, date := range dates {
			for _, slot := range Slots {
				r, ok := s.Meal(date, slot)
				id, planned := want[key{date, slot}]
				if ok != planned || (ok && r.ID != id) {
					t.Fatalf("step %d: %s %s = %q (%v), want %q (%v)", i, date, slot, r.ID, ok, id, planned)
				}
			}
		}
	}
}

func TestSetSelectedWeekStart(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{}
	s := newTestStore(t, kv)

	if err := s.SetSelectedWeekStart(ctx, "2024-02-05"); err != nil {
		t.Fatal(err)
	}
	dates := s.WeekDates()

	ch, cancel := s.Subscribe()
	defer cancel()
	kv.mu.Lock()
	writes := kv.writes
	kv.mu.Unlock()

	if err := s.SetSelectedWeekStart(ctx, "2024-02-05"); err != nil {
		t.Fatal(err)
	}
	if got := s.SelectedWeekStart(); got != "2024-02-05" {
		t.Errorf("Expected 2024-02-05, got %s", got)
	}
	if got := s.WeekDates(); !slices.Equal(got, dates) {
		t.Errorf("Expected week dates %v, got %v", dates, got)
	}
	select {
	case c := <-ch:
		t.Errorf("Expected no change for the same week, got %+v", c)
	default:
	}
	kv.mu.Lock()
	if kv.writes != writes {
		t.Errorf("Expected no write for the same week, got %d more", kv.writes-writes)
	}
	kv.mu.Unlock()

	if err := s.SetSelectedWeekStart(ctx, "not-a-date"); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("Expected ErrInvalidDate, got %v", err)
	}

	next, err := s.NextWeek(ctx)
	if err != nil || next != "2024-02-12" {
		t.Errorf("NextWeek = %s, %v", next, err)
	}
	prev, err := s.PreviousWeek(ctx)
	if err != nil || prev != "2024-02-05" {
		t.Errorf("PreviousWeek = %s, %v", prev, err)
	}
}

func TestRecipeIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore())

	_ = s.AddMeal(ctx, "2024-01-15", Dinner, sampleRecipe("b", "B"))
	_ = s.AddMeal(ctx, "2024-01-15", Breakfast, sampleRecipe("a", "A"))
	_ = s.AddMeal(ctx, "2024-01-16", Lunch, sampleRecipe("a", "A"))
	_ = s.AddMeal(ctx, "2024-01-30", Lunch, sampleRecipe("z", "Outside"))

	ids, err := s.RecipeIDs(s.WeekDates())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b"}
	if len(ids) != len(want) {
		t.Fatalf("Expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, ids)
		}
	}

	if _, err := s.RecipeIDs([]string{"bogus"}); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("Expected ErrInvalidDate, got %v", err)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()

	s := newTestStore(t, kv)
	_ = s.AddMeal(ctx, "2024-01-15", Dinner, sampleRecipe("1", "Pasta"))
	_ = s.SetSelectedWeekStart(ctx, "2024-01-22")

	raw, ok, _ := kv.Get(ctx, StorageKey)
	if !ok {
		t.Fatal("Expected persisted record")
	}
	var st persistedState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		t.Fatal(err)
	}
	if st.Version != CurrentVersion {
		t.Errorf("Expected version %d, got %d", CurrentVersion, st.Version)
	}

	reloaded := newTestStore(t, kv)
	if got := reloaded.SelectedWeekStart(); got != "2024-01-22" {
		t.Errorf("Expected reloaded week 2024-01-22, got %s", got)
	}
	if r, ok := reloaded.Meal("2024-01-15", Dinner); !ok || r.Title != "Pasta" {
		t.Errorf("Expected reloaded meal, got %+v", r)
	}
}

func TestPersistenceFailureKeepsChange(t *testing.T) {
	kv := &failingKV{}
	s := newTestStore(t, kv)

	if err := s.AddMeal(context.Background(), "2024-01-15", Dinner, sampleRecipe("1", "Pasta")); err != nil {
		t.Fatalf("AddMeal should not surface persistence errors, got %v", err)
	}
	if _, ok := s.Meal("2024-01-15", Dinner); !ok {
		t.Errorf("Expected in-memory change to survive failed write")
	}
	if kv.writes != 1 {
		t.Errorf("Expected one write attempt, got %d", kv.writes)
	}
}

func TestStoredVersions(t *testing.T) {
	ctx := context.Background()

	t.Run("migrates unversioned record", func(t *testing.T) {
		kv := storage.NewMemoryStore()
		_ = kv.Set(ctx, StorageKey, `{"mealPlan":{"2024-01-15":{"lunch":{"id":"7","title":"Salad","ingredients":[{"name":" Lettuce ","measure":"1"}]},"snack":{"id":"8"}},"2024-01-16":{}},"selectedWeekStart":"2024-01-15"}`)

		s := newTestStore(t, kv)
		r, ok := s.Meal("2024-01-15", Lunch)
		if !ok || r.Ingredients[0].Name != "Lettuce" {
			t.Errorf("Expected migrated, normalized meal, got %+v", r)
		}
		plan := s.Snapshot()
		if len(plan["2024-01-15"]) != 1 {
			t.Errorf("Expected unknown slot to be dropped, got %v", plan["2024-01-15"])
		}
		if _, ok := plan["2024-01-16"]; ok {
			t.Errorf("Expected empty date to be pruned on load")
		}
	})

	t.Run("rejects future version", func(t *testing.T) {
		kv := storage.NewMemoryStore()
		_ = kv.Set(ctx, StorageKey, `{"version":2,"mealPlan":{},"selectedWeekStart":"2024-01-15"}`)
		if _, err := NewStore(ctx, kv); !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("Expected ErrUnsupportedVersion, got %v", err)
		}
	})

	t.Run("resets malformed week", func(t *testing.T) {
		kv := storage.NewMemoryStore()
		_ = kv.Set(ctx, StorageKey, `{"version":1,"mealPlan":{},"selectedWeekStart":"garbage"}`)
		s := newTestStore(t, kv)
		if got := s.SelectedWeekStart(); got != "2024-01-15" {
			t.Errorf("Expected reset week, got %s", got)
		}
	})
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, storage.NewMemoryStore())

	ch, cancel := s.Subscribe()
	_ = s.AddMeal(ctx, "2024-01-15", Dinner, sampleRecipe("1", "Pasta"))

	select {
	case c := <-ch:
		if c.Kind != ChangeMealAdded || c.Date != "2024-01-15" || c.Slot != Dinner {
			t.Errorf("Unexpected change: %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for change")
	}

	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Errorf("Expected channel closed after cancel")
	}
	_ = s.RemoveMeal(ctx, "2024-01-15", Dinner)
}

func TestWeekHelpers(t *testing.T) {
	cases := []struct {
		day   time.Time
		first time.Weekday
		want  string
	}{
		{time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC), time.Monday, "2024-01-15"},
		{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.Monday, "2024-01-15"},
		{time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC), time.Monday, "2024-01-08"},
		{time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC), time.Sunday, "2024-01-14"},
	}
	for _, tc := range cases {
		if got := WeekStartFor(tc.day, tc.first); got != tc.want {
			t.Errorf("WeekStartFor(%s, %s) = %s, want %s", tc.day.Format(DateLayout), tc.first, got, tc.want)
		}
	}

	dates, err := WeekDates("2024-02-26")
	if err != nil {
		t.Fatal(err)
	}
	if dates[3] != "2024-02-29" || dates[6] != "2024-03-03" {
		t.Errorf("Unexpected dates across leap day: %v", dates)
	}

	if got, _ := ShiftWeek("2024-12-30", 1); got != "2025-01-06" {
		t.Errorf("ShiftWeek across year = %s", got)
	}
	if DayName("2024-01-15") != "Monday" {
		t.Errorf("Expected Monday")
	}
}
