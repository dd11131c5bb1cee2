package shopping

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"leftover-chef/internal/mealdb"
	"leftover-chef/internal/planner"
	"leftover-chef/internal/recipe"
	"leftover-chef/internal/storage"
)

type mockLookup struct {
	mu      sync.Mutex
	recipes map[string]recipe.Recipe
	fail    map[string]error
	gates   map[string]chan struct{}
	started chan string
	calls   map[string]int
}

func newMockLookup(recipes ...recipe.Recipe) *mockLookup {
	m := &mockLookup{
		recipes: map[string]recipe.Recipe{},
		fail:    map[string]error{},
		gates:   map[string]chan struct{}{},
		calls:   map[string]int{},
	}
	for _, r := range recipes {
		m.recipes[r.ID] = r
	}
	return m
}

func (m *mockLookup) LookupByID(ctx context.Context, id string) (recipe.Recipe, error) {
	m.mu.Lock()
	m.calls[id]++
	gate := m.gates[id]
	started := m.started
	m.mu.Unlock()

	if started != nil {
		started <- id
	}
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[id]; ok {
		return recipe.Recipe{}, err
	}
	r, ok := m.recipes[id]
	if !ok {
		return recipe.Recipe{}, mealdb.ErrNotFound
	}
	return r, nil
}

type brokenPlan struct{}

func (brokenPlan) RecipeIDs([]string) ([]string, error) {
	return nil, errors.New("corrupt plan")
}

func makeRecipe(id, category string, ings ...string) recipe.Recipe {
	r := recipe.Recipe{ID: id, Title: "Recipe " + id, Category: category}
	for _, s := range ings {
		name, measure, _ := strings.Cut(s, ":")
		r.Ingredients = append(r.Ingredients, recipe.Ingredient{Name: name, Measure: measure})
	}
	return r
}

const week = "2024-01-15"

func newPlan(t *testing.T) *planner.Store {
	t.Helper()
	s, err := planner.NewStore(context.Background(), storage.NewMemoryStore(),
		planner.WithClock(func() time.Time { return time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC) }))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func addMeal(t *testing.T, s *planner.Store, date string, slot planner.MealSlot, id string) {
	t.Helper()
	if err := s.AddMeal(context.Background(), date, slot, recipe.Recipe{ID: id, Title: id}); err != nil {
		t.Fatal(err)
	}
}

func checkTotals(t *testing.T, l *List) {
	t.Helper()
	total, checked := 0, 0
	for _, items := range l.Categories {
		total += len(items)
		for _, it := range items {
			if it.Checked {
				checked++
			}
		}
	}
	if l.TotalItems != total || l.CheckedItems != checked {
		t.Errorf("Counters drifted: total %d/%d checked %d/%d", l.TotalItems, total, l.CheckedItems, checked)
	}
	if l.CheckedItems > l.TotalItems {
		t.Errorf("Checked %d exceeds total %d", l.CheckedItems, l.TotalItems)
	}
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()

	t.Run("dedupes case-insensitively, first wins", func(t *testing.T) {
		plan := newPlan(t)
		addMeal(t, plan, "2024-01-15", planner.Lunch, "1")
		addMeal(t, plan, "2024-01-16", planner.Dinner, "2")
		lookup := newMockLookup(
			makeRecipe("1", "Vegetarian", "Tomato:2 large", "Basil:1 bunch"),
			makeRecipe("2", "Vegetarian", "tomato:500g", "Garlic:3 cloves"),
		)

		list, err := NewAggregator(lookup).Aggregate(ctx, plan, mustWeek(t))
		if err != nil {
			t.Fatal(err)
		}
		items := list.Categories["Vegetarian"]
		if len(items) != 3 {
			t.Fatalf("Expected 3 items, got %+v", items)
		}
		var tomatoes []Item
		for _, it := range items {
			if strings.EqualFold(it.Name, "tomato") {
				tomatoes = append(tomatoes, it)
			}
		}
		if len(tomatoes) != 1 || tomatoes[0].Measure != "2 large" || tomatoes[0].Name != "Tomato" {
			t.Errorf("Expected one Tomato (2 large), got %+v", tomatoes)
		}
		if !slices.Equal(list.RecipeIDs, []string{"1", "2"}) {
			t.Errorf("Expected list built from [1 2], got %v", list.RecipeIDs)
		}
		checkTotals(t, list)
	})

	t.Run("same name across categories is kept twice", func(t *testing.T) {
		plan := newPlan(t)
		addMeal(t, plan, "2024-01-15", planner.Lunch, "1")
		addMeal(t, plan, "2024-01-15", planner.Dinner, "2")
		lookup := newMockLookup(
			makeRecipe("1", "Beef", "Onion:1"),
			makeRecipe("2", "", "Onion:2"),
		)
		list, err := NewAggregator(lookup).Aggregate(ctx, plan, mustWeek(t))
		if err != nil {
			t.Fatal(err)
		}
		if len(list.Categories["Beef"]) != 1 || len(list.Categories[OtherCategory]) != 1 {
			t.Errorf("Expected Onion in Beef and Other, got %+v", list.Categories)
		}
		if list.Order[0] != "Beef" || list.Order[1] != OtherCategory {
			t.Errorf("Expected first-appearance order, got %v", list.Order)
		}
	})

	t.Run("empty week", func(t *testing.T) {
		list, err := NewAggregator(newMockLookup()).Aggregate(ctx, newPlan(t), mustWeek(t))
		if err != nil {
			t.Fatal(err)
		}
		if list.TotalItems != 0 || len(list.Categories) != 0 {
			t.Errorf("Expected empty list, got %+v", list)
		}
		if list.Progress() != 0 {
			t.Errorf("Expected zero progress")
		}
	})

	t.Run("same recipe twice is looked up once", func(t *testing.T) {
		plan := newPlan(t)
		addMeal(t, plan, "2024-01-17", planner.Lunch, "1")
		addMeal(t, plan, "2024-01-17", planner.Dinner, "1")
		lookup := newMockLookup(makeRecipe("1", "Pasta", "Penne:200g", "Cream:100ml"))

		list, err := NewAggregator(lookup).Aggregate(ctx, plan, mustWeek(t))
		if err != nil {
			t.Fatal(err)
		}
		if lookup.calls["1"] != 1 {
			t.Errorf("Expected one lookup, got %d", lookup.calls["1"])
		}
		if list.TotalItems != 2 {
			t.Errorf("Expected 2 items, got %d", list.TotalItems)
		}
	})

	t.Run("one failing lookup out of three", func(t *testing.T) {
		plan := newPlan(t)
		addMeal(t, plan, "2024-01-15", planner.Breakfast, "1")
		addMeal(t, plan, "2024-01-16", planner.Lunch, "2")
		addMeal(t, plan, "2024-01-17", planner.Dinner, "3")
		lookup := newMockLookup(
			makeRecipe("1", "Breakfast", "Eggs:2"),
			makeRecipe("2", "Breakfast", "Bread:1"),
			makeRecipe("3", "Breakfast", "Ham:3"),
		)
		lookup.fail["2"] = mealdb.ErrTimeout

		list, err := NewAggregator(lookup, WithWorkers(1)).Aggregate(ctx, plan, mustWeek(t))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		names := []string{}
		for _, it := range list.Categories["Breakfast"] {
			names = append(names, it.Name)
		}
		if strings.Join(names, ",") != "Eggs,Ham" {
			t.Errorf("Expected Eggs,Ham, got %v", names)
		}
	})

	t.Run("plan failure", func(t *testing.T) {
		_, err := NewAggregator(newMockLookup()).Aggregate(ctx, brokenPlan{}, mustWeek(t))
		if !errors.Is(err, ErrPlanUnavailable) {
			t.Errorf("Expected ErrPlanUnavailable, got %v", err)
		}
	})

	t.Run("item ids are unique", func(t *testing.T) {
		plan := newPlan(t)
		addMeal(t, plan, "2024-01-15", planner.Lunch, "1")
		lookup := newMockLookup(makeRecipe("1", "Misc", "Salt:pinch", "Pepper:pinch", "Oil:1 tbsp"))
		list, _ := NewAggregator(lookup).Aggregate(ctx, plan, mustWeek(t))
		ids := map[string]bool{}
		for _, it := range list.Categories["Misc"] {
			if !strings.HasPrefix(it.ID, "Misc-"+it.Name+"-") {
				t.Errorf("Unexpected id shape %q", it.ID)
			}
			if ids[it.ID] {
				t.Errorf("Duplicate id %q", it.ID)
			}
			ids[it.ID] = true
		}
	})
}

func mustWeek(t *testing.T) []string {
	t.Helper()
	dates, err := planner.WeekDates(week)
	if err != nil {
		t.Fatal(err)
	}
	return dates
}

func sampleList() *List {
	l := &List{
		Categories: map[string][]Item{
			"Veg":  {{ID: "v1", Name: "Carrot", Measure: "2", Category: "Veg"}, {ID: "v2", Name: "Leek", Category: "Veg"}},
			"Meat": {{ID: "m1", Name: "Chicken", Measure: "500g", Category: "Meat"}},
		},
		Order: []string{"Veg", "Meat"},
	}
	l.recount()
	return l
}

func TestTracker(t *testing.T) {
	t.Run("toggle round trip", func(t *testing.T) {
		tr := NewTracker()
		tr.Commit(tr.Begin(), sampleList())

		before := tr.State().List.CheckedItems
		if err := tr.Toggle("Veg", 1); err != nil {
			t.Fatal(err)
		}
		if got := tr.State().List.CheckedItems; got != before+1 {
			t.Errorf("Expected %d checked, got %d", before+1, got)
		}
		if err := tr.ToggleID("v2"); err != nil {
			t.Fatal(err)
		}
		st := tr.State()
		if st.List.CheckedItems != before {
			t.Errorf("Checked count drifted after round trip: %d", st.List.CheckedItems)
		}
		checkTotals(t, st.List)
	})

	t.Run("unknown item", func(t *testing.T) {
		tr := NewTracker()
		if err := tr.Toggle("Veg", 0); !errors.Is(err, ErrItemNotFound) {
			t.Errorf("Expected ErrItemNotFound before any list, got %v", err)
		}
		tr.Commit(tr.Begin(), sampleList())
		if err := tr.Toggle("Veg", 5); !errors.Is(err, ErrItemNotFound) {
			t.Errorf("Expected ErrItemNotFound, got %v", err)
		}
		if err := tr.ToggleID("nope"); !errors.Is(err, ErrItemNotFound) {
			t.Errorf("Expected ErrItemNotFound, got %v", err)
		}
	})

	t.Run("clear checked keeps empty categories", func(t *testing.T) {
		tr := NewTracker()
		tr.Commit(tr.Begin(), sampleList())
		_ = tr.ToggleID("m1")
		_ = tr.ToggleID("v1")

		if tr.Progress() != 2.0/3.0 {
			t.Errorf("Unexpected progress %v", tr.Progress())
		}
		if n := tr.ClearChecked(); n != 2 {
			t.Errorf("Expected 2 removed, got %d", n)
		}
		st := tr.State()
		if st.List.TotalItems != 1 || st.List.CheckedItems != 0 {
			t.Errorf("Unexpected counters %+v", st.List)
		}
		if items, ok := st.List.Categories["Meat"]; !ok || len(items) != 0 {
			t.Errorf("Expected empty Meat category to remain, got %v (present=%v)", items, ok)
		}
		if tr.Progress() != 0 {
			t.Errorf("Expected zero progress after clear")
		}
	})

	t.Run("stale commit discarded", func(t *testing.T) {
		tr := NewTracker()
		a := tr.Begin()
		b := tr.Begin()

		bList := sampleList()
		bList.WeekStart = "B"
		if !tr.Commit(b, bList) {
			t.Fatal("Expected latest commit to apply")
		}
		aList := NewList()
		aList.WeekStart = "A"
		if tr.Commit(a, aList) {
			t.Error("Expected stale commit to be discarded")
		}
		if tr.Fail(a, errors.New("late")) {
			t.Error("Expected stale failure to be discarded")
		}
		st := tr.State()
		if st.List.WeekStart != "B" || st.Err != nil || st.Token != b {
			t.Errorf("Expected B's result, got %+v", st)
		}
	})

	t.Run("error state distinct from empty", func(t *testing.T) {
		tr := NewTracker()
		tok := tr.Begin()
		if !tr.State().Loading {
			t.Error("Expected loading after Begin")
		}
		tr.Fail(tok, ErrPlanUnavailable)
		st := tr.State()
		if st.Err == nil || st.List != nil || st.Loading {
			t.Errorf("Expected error state, got %+v", st)
		}

		tr.Commit(tr.Begin(), NewList())
		st = tr.State()
		if st.Err != nil || st.List == nil || st.List.TotalItems != 0 {
			t.Errorf("Expected empty list state, got %+v", st)
		}
	})

	t.Run("regenerate resets checked by default", func(t *testing.T) {
		tr := NewTracker()
		tr.Commit(tr.Begin(), sampleList())
		_ = tr.ToggleID("v1")
		tr.Commit(tr.Begin(), sampleList())
		if tr.State().List.CheckedItems != 0 {
			t.Error("Expected checked state to reset")
		}
	})

	t.Run("keep checked across regenerate", func(t *testing.T) {
		tr := NewTracker(WithKeepChecked(true))
		tr.Commit(tr.Begin(), sampleList())
		_ = tr.ToggleID("v1")

		regen := sampleList()
		regen.Categories["Veg"][0].ID = "new-id"
		regen.Categories["Veg"][0].Name = "CARROT"
		tr.Commit(tr.Begin(), regen)
		st := tr.State()
		if st.List.CheckedItems != 1 || !st.List.Categories["Veg"][0].Checked {
			t.Errorf("Expected carrot to stay checked, got %+v", st.List.Categories["Veg"])
		}

		other := sampleList()
		other.WeekStart = "2024-01-22"
		tr.Commit(tr.Begin(), other)
		if tr.State().List.CheckedItems != 0 {
			t.Error("Checked state must not carry into a different week")
		}
	})

	t.Run("discard drops carried checks", func(t *testing.T) {
		tr := NewTracker(WithKeepChecked(true))
		tr.Commit(tr.Begin(), sampleList())
		_ = tr.ToggleID("v1")

		tr.Discard()
		if tr.State().List != nil {
			t.Fatal("Expected no list after discard")
		}
		tr.Commit(tr.Begin(), sampleList())
		if tr.State().List.CheckedItems != 0 {
			t.Error("Checked state must not survive a discard")
		}
	})

	t.Run("state is a copy", func(t *testing.T) {
		tr := NewTracker()
		tr.Commit(tr.Begin(), sampleList())
		st := tr.State()
		st.List.Categories["Veg"][0].Checked = true
		if tr.State().List.CheckedItems != 0 {
			t.Error("Mutating a snapshot leaked into the tracker")
		}
	})
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE shopping_lists (week_start TEXT PRIMARY KEY, data TEXT NOT NULL, created_at DATETIME NOT NULL);`)
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))

	got, err := repo.GetByWeek(ctx, week)
	if err != nil || got != nil {
		t.Fatalf("Expected nil, nil for missing list, got %v, %v", got, err)
	}

	if err := repo.Save(ctx, NewList()); err == nil {
		t.Error("Expected error saving list without week")
	}

	l := sampleList()
	l.WeekStart = week
	l.Categories["Veg"][0].Checked = true
	l.recount()
	if err := repo.Save(ctx, l); err != nil {
		t.Fatal(err)
	}
	l.Categories["Veg"][1].Checked = true
	l.recount()
	if err := repo.Save(ctx, l); err != nil {
		t.Fatal(err)
	}

	got, err = repo.GetByWeek(ctx, week)
	if err != nil {
		t.Fatal(err)
	}
	if got.CheckedItems != 2 || got.TotalItems != 3 || got.Order[0] != "Veg" {
		t.Errorf("Unexpected reloaded list %+v", got)
	}

	if err := repo.DeleteByWeek(ctx, week); err != nil {
		t.Fatal(err)
	}
	if got, _ := repo.GetByWeek(ctx, week); got != nil {
		t.Error("Expected list to be deleted")
	}
}

func TestServiceStaleGenerationDiscarded(t *testing.T) {
	ctx := context.Background()
	plan := newPlan(t)
	addMeal(t, plan, "2024-01-15", planner.Dinner, "a")
	addMeal(t, plan, "2024-01-22", planner.Dinner, "b")

	lookup := newMockLookup(
		makeRecipe("a", "Old", "Flour:1kg"),
		makeRecipe("b", "New", "Rice:500g"),
	)
	gate := make(chan struct{})
	lookup.gates["a"] = gate
	lookup.started = make(chan string, 2)

	svc := NewService(NewAggregator(lookup), plan, NewTracker(), nil)

	done := make(chan Result, 1)
	go func() {
		res, _ := svc.Generate(ctx, "2024-01-15")
		done <- res
	}()
	if id := <-lookup.started; id != "a" {
		t.Fatalf("Expected lookup a first, got %s", id)
	}

	resB, err := svc.Generate(ctx, "2024-01-22")
	if err != nil || !resB.Applied {
		t.Fatalf("Expected B applied, got %+v, %v", resB, err)
	}

	close(gate)
	resA := <-done
	if resA.Applied {
		t.Error("Expected stale run A to be discarded")
	}

	st := svc.Tracker().State()
	if _, ok := st.List.Categories["New"]; !ok || st.List.WeekStart != "2024-01-22" {
		t.Errorf("Expected B's list to be shown, got %+v", st.List)
	}
}

func TestServicePersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	plan := newPlan(t)
	addMeal(t, plan, "2024-01-15", planner.Lunch, "1")
	lookup := newMockLookup(makeRecipe("1", "Soup", "Leek:2", "Potato:3"))
	repo := NewRepository(newTestDB(t))

	svc := NewService(NewAggregator(lookup), plan, NewTracker(), repo)
	res, err := svc.Generate(ctx, week)
	if err != nil || !res.Applied {
		t.Fatalf("Generate failed: %+v, %v", res, err)
	}
	if err := svc.Toggle(ctx, "Soup", 0); err != nil {
		t.Fatal(err)
	}

	fresh := NewService(NewAggregator(lookup), plan, NewTracker(), repo)
	ok, err := fresh.Restore(ctx, week)
	if err != nil || !ok {
		t.Fatalf("Restore failed: %v, %v", ok, err)
	}
	st := fresh.Tracker().State()
	if st.List.CheckedItems != 1 || !st.List.Categories["Soup"][0].Checked {
		t.Errorf("Expected restored checked item, got %+v", st.List)
	}

	if n := fresh.ClearChecked(ctx); n != 1 {
		t.Errorf("Expected 1 cleared, got %d", n)
	}
	saved, _ := repo.GetByWeek(ctx, week)
	if saved.TotalItems != 1 {
		t.Errorf("Expected cleared list saved, got %+v", saved)
	}

	if ok, _ := fresh.Restore(ctx, "2024-03-04"); ok {
		t.Error("Expected nothing to restore for unsaved week")
	}
}

func TestServiceRejectsBadWeek(t *testing.T) {
	svc := NewService(NewAggregator(newMockLookup()), newPlan(t), NewTracker(), nil)
	if _, err := svc.Generate(context.Background(), "bad"); !errors.Is(err, planner.ErrInvalidDate) {
		t.Errorf("Expected ErrInvalidDate, got %v", err)
	}
}

func TestFollowRegeneratesOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plan := newPlan(t)
	lookup := newMockLookup(makeRecipe("1", "Soup", "Leek:2"))
	svc := NewService(NewAggregator(lookup), plan, NewTracker(), nil)

	stopped := make(chan struct{})
	go func() {
		svc.Follow(ctx, plan)
		close(stopped)
	}()

	refreshed := func() bool {
		for i := 0; i < 20; i++ {
			if st := svc.Tracker().State(); st.List != nil && st.List.TotalItems == 1 {
				return true
			}
			time.Sleep(10 * time.Millisecond)
		}
		return false
	}

	// Follow subscribes asynchronously, so repeat the change until it is seen.
	for attempt := 0; ; attempt++ {
		_ = plan.RemoveMeal(ctx, "2024-01-15", planner.Lunch)
		addMeal(t, plan, "2024-01-15", planner.Lunch, "1")
		if refreshed() {
			break
		}
		if attempt == 10 {
			t.Fatal("Timed out waiting for automatic refresh")
		}
	}

	cancel()
	<-stopped
}

func TestFormatText(t *testing.T) {
	l := sampleList()
	l.Categories["Veg"][0].Checked = true
	l.recount()

	want := "📋 Shopping List for the Week\n\n" +
		"🛒 Veg:\n✓ Carrot (2)\n◻ Leek\n\n" +
		"🛒 Meat:\n◻ Chicken (500g)\n\n" +
		"\nProgress: 1/3 items (33%)"
	if got := FormatText(l); got != want {
		t.Errorf("FormatText mismatch:\n%q\nwant\n%q", got, want)
	}

	if got := FormatText(NewList()); !strings.HasSuffix(got, "Progress: 0/0 items (0%)") {
		t.Errorf("Unexpected empty output %q", got)
	}
}
