package shopping

import (
	"context"
	"log/slog"
	"slices"

	"leftover-chef/internal/planner"
	"leftover-chef/internal/shared"
)

// ListStore persists shopping lists by week.
type ListStore interface {
	Save(ctx context.Context, list *List) error
	GetByWeek(ctx context.Context, weekStart string) (*List, error)
}

// Result reports the outcome of one Generate call. Applied is false when a
// newer run had already been started and this result was discarded.
type Result struct {
	List    *List
	Applied bool
	Token   shared.Token
}

// Generation results reported to a GenerationObserver.
const (
	GenerationApplied = "applied"
	GenerationStale   = "stale"
	GenerationFailed  = "failed"
)

// GenerationObserver is notified after every Generate call.
type GenerationObserver interface {
	ObserveGeneration(result string, items int)
}

// Service generates the shopping list for a week and keeps it tracked and saved.
type Service struct {
	aggregator *Aggregator
	plan       PlanSource
	tracker    *Tracker
	store      ListStore
	observer   GenerationObserver
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithGenerationObserver reports every Generate outcome to o.
func WithGenerationObserver(o GenerationObserver) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// NewService creates a Service. store may be nil to disable persistence.
func NewService(aggregator *Aggregator, plan PlanSource, tracker *Tracker, store ListStore, opts ...ServiceOption) *Service {
	s := &Service{
		aggregator: aggregator,
		plan:       plan,
		tracker:    tracker,
		store:      store,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tracker returns the tracker holding the current list.
func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// Generate aggregates the seven days starting at weekStart. Only the most
// recently started call commits its result.
func (s *Service) Generate(ctx context.Context, weekStart string) (Result, error) {
	dates, err := planner.WeekDates(weekStart)
	if err != nil {
		return Result{}, err
	}

	token := s.tracker.Begin()
	list, err := s.aggregator.Aggregate(ctx, s.plan, dates)
	if err != nil {
		applied := s.tracker.Fail(token, err)
		slog.Error("Failed to generate shopping list", "week_start", weekStart, "error", err)
		s.observe(GenerationFailed, 0)
		return Result{Applied: applied, Token: token}, err
	}
	list.WeekStart = weekStart

	res := Result{List: list, Token: token}
	res.Applied = s.tracker.Commit(token, list)
	if !res.Applied {
		slog.Debug("Discarding stale shopping list", "week_start", weekStart, "token", token)
		s.observe(GenerationStale, 0)
		return res, nil
	}
	res.List = s.tracker.State().List
	s.observe(GenerationApplied, res.List.TotalItems)
	s.persist(ctx)
	return res, nil
}

func (s *Service) observe(result string, items int) {
	if s.observer != nil {
		s.observer.ObserveGeneration(result, items)
	}
}

// Restore loads the saved list for weekStart into the tracker. It reports
// false when nothing was saved.
func (s *Service) Restore(ctx context.Context, weekStart string) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	list, err := s.store.GetByWeek(ctx, weekStart)
	if err != nil {
		return false, err
	}
	if list == nil {
		return false, nil
	}
	return s.tracker.Commit(s.tracker.Begin(), list), nil
}

// Toggle flips one item and saves the list.
func (s *Service) Toggle(ctx context.Context, category string, index int) error {
	if err := s.tracker.Toggle(category, index); err != nil {
		return err
	}
	s.persist(ctx)
	return nil
}

// ToggleID flips the item with id and saves the list.
func (s *Service) ToggleID(ctx context.Context, id string) error {
	if err := s.tracker.ToggleID(id); err != nil {
		return err
	}
	s.persist(ctx)
	return nil
}

// ClearChecked removes checked items and saves the list.
func (s *Service) ClearChecked(ctx context.Context) int {
	n := s.tracker.ClearChecked()
	if n > 0 {
		s.persist(ctx)
	}
	return n
}

// WeekSource is the part of the meal plan store Follow observes.
type WeekSource interface {
	Subscribe() (<-chan planner.Change, func())
	SelectedWeekStart() string
}

// Follow regenerates the list whenever the selected week changes or a meal in
// it is added or removed. It blocks until ctx is done.
func (s *Service) Follow(ctx context.Context, src WeekSource) {
	changes, cancel := src.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if !affectsWeek(c) {
				continue
			}
			if _, err := s.Generate(ctx, src.SelectedWeekStart()); err != nil {
				slog.Warn("Automatic shopping list refresh failed", "error", err)
			}
		}
	}
}

func affectsWeek(c planner.Change) bool {
	if c.Kind == planner.ChangeWeek {
		return true
	}
	dates, err := planner.WeekDates(c.WeekStart)
	if err != nil {
		return false
	}
	return slices.Contains(dates, c.Date)
}

func (s *Service) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	list := s.tracker.State().List
	if list == nil || list.WeekStart == "" {
		return
	}
	if err := s.store.Save(ctx, list); err != nil {
		slog.Warn("Failed to persist shopping list", "week_start", list.WeekStart, "error", err)
	}
}
