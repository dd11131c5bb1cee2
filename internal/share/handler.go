package share

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"leftover-chef/internal/shopping"
)

// ListSource loads a saved shopping list by week.
type ListSource interface {
	GetByWeek(ctx context.Context, weekStart string) (*shopping.List, error)
}

// Handler serves GET /share/{token}. The list is rendered as text unless the
// client asks for JSON with ?format=json.
func Handler(m *Manager, lists ListSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.Validate(r.PathValue("token"))
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, ErrDisabled) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}

		list, err := lists.GetByWeek(r.Context(), claims.WeekStart)
		if err != nil {
			slog.Error("Failed to load shared shopping list", "week_start", claims.WeekStart, "error", err)
			http.Error(w, "failed to load shopping list", http.StatusInternalServerError)
			return
		}
		if list == nil {
			http.Error(w, "shopping list not found", http.StatusNotFound)
			return
		}

		if r.URL.Query().Get("format") == "json" {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(list); err != nil {
				slog.Error("Failed to encode shared shopping list", "error", err)
			}
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(shopping.FormatText(list)))
	}
}
