package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"leftover-chef/internal/recipe"
	"leftover-chef/internal/storage"
)

// ChangeKind names the mutation that produced a Change.
type ChangeKind string

const (
	ChangeMealAdded   ChangeKind = "meal_added"
	ChangeMealRemoved ChangeKind = "meal_removed"
	ChangeWeek        ChangeKind = "week_changed"
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind      ChangeKind
	Date      string
	Slot      MealSlot
	WeekStart string
}

// Store owns the meal plan and the selected week. All mutation goes through its
// methods; every mutation is persisted, and a failed write is logged without
// rolling back the in-memory state.
type Store struct {
	kv        storage.KV
	firstDay  time.Weekday
	now       func() time.Time
	mu        sync.RWMutex
	plan      MealPlan
	weekStart string

	persistMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]chan Change
	nextID int
}

// Option customizes a Store.
type Option func(*Store)

// WithFirstDay sets the weekday a week window starts on.
func WithFirstDay(d time.Weekday) Option {
	return func(s *Store) { s.firstDay = d }
}

// WithClock replaces time.Now when choosing the initial week.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore loads the persisted meal plan from kv. An absent record starts an
// empty plan on the current week.
func NewStore(ctx context.Context, kv storage.KV, opts ...Option) (*Store, error) {
	s := &Store{
		kv:       kv,
		firstDay: time.Monday,
		now:      time.Now,
		plan:     MealPlan{},
		subs:     make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, ok, err := kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load meal plan: %w", err)
	}
	if !ok {
		s.weekStart = WeekStartFor(s.now(), s.firstDay)
		return s, nil
	}

	st, err := decodeState(raw)
	if err != nil {
		return nil, err
	}
	s.plan = st.MealPlan
	s.weekStart = st.SelectedWeekStart
	if _, err := ParseDate(s.weekStart); err != nil {
		slog.Warn("Stored selected week is malformed, resetting to current week", "value", s.weekStart)
		s.weekStart = WeekStartFor(s.now(), s.firstDay)
	}
	return s, nil
}

// SelectedWeekStart returns the first date of the displayed week.
func (s *Store) SelectedWeekStart() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weekStart
}

// WeekDates returns the seven dates of the selected week.
func (s *Store) WeekDates() []string {
	dates, _ := WeekDates(s.SelectedWeekStart())
	return dates
}

// SetSelectedWeekStart replaces the selected week. Selecting the week that is
// already selected writes nothing and notifies no one.
func (s *Store) SetSelectedWeekStart(ctx context.Context, date string) error {
	if _, err := ParseDate(date); err != nil {
		return err
	}

	s.mu.Lock()
	if s.weekStart == date {
		s.mu.Unlock()
		return nil
	}
	s.weekStart = date
	s.mu.Unlock()

	s.persist(ctx)
	s.notify(Change{Kind: ChangeWeek, WeekStart: date})
	return nil
}

// NextWeek moves the selected week forward by seven days.
func (s *Store) NextWeek(ctx context.Context) (string, error) {
	return s.shiftWeek(ctx, 1)
}

// PreviousWeek moves the selected week back by seven days.
func (s *Store) PreviousWeek(ctx context.Context) (string, error) {
	return s.shiftWeek(ctx, -1)
}

func (s *Store) shiftWeek(ctx context.Context, weeks int) (string, error) {
	next, err := ShiftWeek(s.SelectedWeekStart(), weeks)
	if err != nil {
		return "", err
	}
	if err := s.SetSelectedWeekStart(ctx, next); err != nil {
		return "", err
	}
	return next, nil
}

// AddMeal assigns a snapshot of r to (date, slot), replacing any existing entry.
func (s *Store) AddMeal(ctx context.Context, date string, slot MealSlot, r recipe.Recipe) error {
	if _, err := ParseDate(date); err != nil {
		return err
	}
	if !slot.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	snapshot := recipe.Normalize(r)
	if snapshot.ID == "" {
		return ErrMissingRecipe
	}

	s.mu.Lock()
	day, ok := s.plan[date]
	if !ok {
		day = DayMeals{}
		s.plan[date] = day
	}
	day[slot] = snapshot
	weekStart := s.weekStart
	s.mu.Unlock()

	s.persist(ctx)
	s.notify(Change{Kind: ChangeMealAdded, Date: date, Slot: slot, WeekStart: weekStart})
	return nil
}

// RemoveMeal clears (date, slot). Dates left without meals are pruned.
// Removing an empty slot is a no-op.
func (s *Store) RemoveMeal(ctx context.Context, date string, slot MealSlot) error {
	if _, err := ParseDate(date); err != nil {
		return err
	}
	if !slot.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}

	s.mu.Lock()
	day, ok := s.plan[date]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if _, ok := day[slot]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(day, slot)
	if len(day) == 0 {
		delete(s.plan, date)
	}
	weekStart := s.weekStart
	s.mu.Unlock()

	s.persist(ctx)
	s.notify(Change{Kind: ChangeMealRemoved, Date: date, Slot: slot, WeekStart: weekStart})
	return nil
}

// Meal returns the recipe assigned to (date, slot).
func (s *Store) Meal(date string, slot MealSlot) (recipe.Recipe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.plan[date][slot]
	if !ok {
		return recipe.Recipe{}, false
	}
	return r.Copy(), true
}

// MealsFor returns a deep copy of the plan restricted to dates.
func (s *Store) MealsFor(dates []string) MealPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub := MealPlan{}
	for _, date := range dates {
		if day, ok := s.plan[date]; ok {
			sub[date] = day
		}
	}
	return sub.Copy()
}

// Snapshot returns a deep copy of the whole plan.
func (s *Store) Snapshot() MealPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan.Copy()
}

// RecipeIDs returns the distinct recipe ids scheduled on dates, in order of
// first appearance walking each date's slots in Slots order.
func (s *Store) RecipeIDs(dates []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, date := range dates {
		if _, err := ParseDate(date); err != nil {
			return nil, err
		}
		day, ok := s.plan[date]
		if !ok {
			continue
		}
		for _, slot := range Slots {
			r, ok := day[slot]
			if !ok {
				continue
			}
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

// Subscribe returns a channel receiving every subsequent Change and a function
// that cancels the subscription. Slow subscribers miss changes rather than
// block mutations.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan Change, 16)
	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
			slog.Warn("Dropping meal plan change for slow subscriber", "kind", c.Kind)
		}
	}
}

// persist writes the current state. Writes are serialized and always carry
// the state as of the write, so the last mutation is the last record stored.
func (s *Store) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	data, err := json.Marshal(persistedState{
		Version:           CurrentVersion,
		MealPlan:          s.plan,
		SelectedWeekStart: s.weekStart,
	})
	s.mu.RUnlock()
	if err != nil {
		slog.Error("Failed to marshal meal plan", "error", err)
		return
	}

	if err := s.kv.Set(ctx, StorageKey, string(data)); err != nil {
		slog.Warn("Failed to persist meal plan; change kept in memory", "error", err)
	}
}
