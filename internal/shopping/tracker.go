package shopping

import (
	"fmt"
	"sync"

	"leftover-chef/internal/shared"
)

// State is a read-only view of the tracker. Err != nil is an error state, which
// is distinct from a list with zero items.
type State struct {
	List    *List
	Err     error
	Loading bool
	Token   shared.Token
}

// Tracker owns the current shopping list and its checked state. Results of
// aggregation runs are committed only when they carry the latest token.
type Tracker struct {
	mu          sync.RWMutex
	gen         shared.Generation
	list        *List
	err         error
	loading     bool
	committed   shared.Token
	keepChecked bool
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithKeepChecked carries checked flags from the previous list of the same
// week into a regenerated one, matching items by category and name.
func WithKeepChecked(keep bool) TrackerOption {
	return func(t *Tracker) { t.keepChecked = keep }
}

// NewTracker creates an empty Tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin starts an aggregation run and supersedes every earlier one.
func (t *Tracker) Begin() shared.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = true
	return t.gen.Next()
}

// Commit applies list if token is the latest. It reports whether it did.
func (t *Tracker) Commit(token shared.Token, list *List) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.gen.IsLatest(token) {
		return false
	}

	next := list.Copy()
	if next == nil {
		next = NewList()
	}
	if t.keepChecked && t.list != nil && t.list.WeekStart == next.WeekStart {
		checked := make(map[string]bool)
		for cat, items := range t.list.Categories {
			for _, it := range items {
				if it.Checked {
					checked[itemKey(cat, it.Name)] = true
				}
			}
		}
		for cat, items := range next.Categories {
			for i := range items {
				if checked[itemKey(cat, items[i].Name)] {
					items[i].Checked = true
				}
			}
		}
	}
	next.recount()

	t.list = next
	t.err = nil
	t.loading = false
	t.committed = token
	return true
}

// Fail records err as the outcome of the run if token is the latest. The
// previous list is dropped so an error is never shown alongside stale items.
func (t *Tracker) Fail(token shared.Token, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.gen.IsLatest(token) {
		return false
	}
	t.list = nil
	t.err = err
	t.loading = false
	t.committed = token
	return true
}

// Discard drops the current list so the next commit starts without carried
// checked flags.
func (t *Tracker) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.list = nil
	t.err = nil
}

// Toggle flips the item at index within category.
func (t *Tracker) Toggle(category string, index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.list == nil {
		return ErrItemNotFound
	}
	items, ok := t.list.Categories[category]
	if !ok || index < 0 || index >= len(items) {
		return fmt.Errorf("%w: %s[%d]", ErrItemNotFound, category, index)
	}
	t.flip(&items[index])
	return nil
}

// ToggleID flips the item with id.
func (t *Tracker) ToggleID(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.list == nil {
		return ErrItemNotFound
	}
	cat, i, ok := t.list.find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	t.flip(&t.list.Categories[cat][i])
	return nil
}

func (t *Tracker) flip(it *Item) {
	it.Checked = !it.Checked
	if it.Checked {
		t.list.CheckedItems++
	} else {
		t.list.CheckedItems--
	}
}

// ClearChecked removes every checked item and returns how many were removed.
// Categories left empty stay in the list.
func (t *Tracker) ClearChecked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.list == nil {
		return 0
	}
	removed := 0
	for cat, items := range t.list.Categories {
		kept := items[:0]
		for _, it := range items {
			if it.Checked {
				removed++
				continue
			}
			kept = append(kept, it)
		}
		t.list.Categories[cat] = kept
	}
	t.list.recount()
	return removed
}

// Progress returns the checked ratio of the current list.
func (t *Tracker) Progress() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.list.Progress()
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return State{
		List:    t.list.Copy(),
		Err:     t.err,
		Loading: t.loading,
		Token:   t.committed,
	}
}
