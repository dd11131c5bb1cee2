package shopping

import (
	"errors"
	"slices"
	"strings"
)

// OtherCategory collects ingredients of recipes without a category.
const OtherCategory = "Other"

var (
	// ErrItemNotFound is returned when a toggle names no item of the current list.
	ErrItemNotFound = errors.New("shopping item not found")
	// ErrPlanUnavailable is returned when the meal plan cannot be enumerated.
	ErrPlanUnavailable = errors.New("meal plan unavailable")
)

// Item is one line of a shopping list.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Measure  string `json:"measure"`
	Checked  bool   `json:"checked"`
	Category string `json:"category"`
}

// List is a categorized, deduplicated shopping list. TotalItems and
// CheckedItems always equal the counts over Categories. RecipeIDs are the
// planned recipes the list was built from, in plan order.
type List struct {
	WeekStart    string            `json:"weekStart,omitempty"`
	Categories   map[string][]Item `json:"categories"`
	Order        []string          `json:"order"`
	TotalItems   int               `json:"totalItems"`
	CheckedItems int               `json:"checkedItems"`
	RecipeIDs    []string          `json:"recipeIds,omitempty"`
}

// NewList returns an empty list.
func NewList() *List {
	return &List{Categories: map[string][]Item{}, Order: []string{}}
}

// Copy returns a deep copy of l.
func (l *List) Copy() *List {
	if l == nil {
		return nil
	}
	out := &List{
		WeekStart:    l.WeekStart,
		Categories:   make(map[string][]Item, len(l.Categories)),
		Order:        append([]string{}, l.Order...),
		TotalItems:   l.TotalItems,
		CheckedItems: l.CheckedItems,
		RecipeIDs:    slices.Clone(l.RecipeIDs),
	}
	for cat, items := range l.Categories {
		out.Categories[cat] = append([]Item{}, items...)
	}
	return out
}

// Progress returns CheckedItems/TotalItems, or 0 for an empty list.
func (l *List) Progress() float64 {
	if l == nil || l.TotalItems == 0 {
		return 0
	}
	return float64(l.CheckedItems) / float64(l.TotalItems)
}

// recount recomputes the counters and repairs Order so every category appears
// exactly once.
func (l *List) recount() {
	if l.Categories == nil {
		l.Categories = map[string][]Item{}
	}
	l.TotalItems, l.CheckedItems = 0, 0
	for _, items := range l.Categories {
		l.TotalItems += len(items)
		for _, it := range items {
			if it.Checked {
				l.CheckedItems++
			}
		}
	}

	seen := make(map[string]bool, len(l.Order))
	order := make([]string, 0, len(l.Categories))
	for _, cat := range l.Order {
		if _, ok := l.Categories[cat]; ok && !seen[cat] {
			seen[cat] = true
			order = append(order, cat)
		}
	}
	for cat := range l.Categories {
		if !seen[cat] {
			order = append(order, cat)
		}
	}
	l.Order = order
}

// find returns the position of the item with id.
func (l *List) find(id string) (string, int, bool) {
	for cat, items := range l.Categories {
		for i, it := range items {
			if it.ID == id {
				return cat, i, true
			}
		}
	}
	return "", 0, false
}

func itemKey(category, name string) string {
	return category + "\x00" + strings.ToLower(strings.TrimSpace(name))
}
