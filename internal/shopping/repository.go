package shopping

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository handles persistence of shopping lists, one per week.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new shopping list repository.
func NewRepository(d *sql.DB) *Repository {
	return &Repository{db: d}
}

// Save stores list under its week start, replacing any earlier list.
func (r *Repository) Save(ctx context.Context, list *List) error {
	if list.WeekStart == "" {
		return fmt.Errorf("failed to save shopping list: empty week start")
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal shopping list: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO shopping_lists (week_start, data, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(week_start) DO UPDATE SET data = excluded.data, created_at = excluded.created_at`,
		list.WeekStart, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save shopping list: %w", err)
	}
	return nil
}

// GetByWeek retrieves the list saved for weekStart. A missing list returns nil, nil.
func (r *Repository) GetByWeek(ctx context.Context, weekStart string) (*List, error) {
	var data string
	err := r.db.QueryRowContext(ctx, "SELECT data FROM shopping_lists WHERE week_start = ?", weekStart).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get shopping list by week: %w", err)
	}

	var list List
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shopping list: %w", err)
	}
	list.WeekStart = weekStart
	list.recount()
	return &list, nil
}

// DeleteByWeek deletes the list saved for weekStart.
func (r *Repository) DeleteByWeek(ctx context.Context, weekStart string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM shopping_lists WHERE week_start = ?", weekStart); err != nil {
		return fmt.Errorf("failed to delete shopping list: %w", err)
	}
	return nil
}
