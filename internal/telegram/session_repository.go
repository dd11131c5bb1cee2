package telegram

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Session types and states of the multi-step conversations.
const (
	SessionAddMeal = "add_meal"

	StatePickDay  = "pick_day"
	StatePickSlot = "pick_slot"
)

// Session represents an active user conversation (e.g., picking a day for a meal)
type Session struct {
	ID          int64
	UserID      string
	SessionType string
	State       string
	ContextData string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// SessionContextData holds structured data stored in the context_data JSON field
type SessionContextData struct {
	RecipeID    string `json:"recipe_id"`
	RecipeTitle string `json:"recipe_title,omitempty"`
	Date        string `json:"date,omitempty"`
}

// SessionRepository provides access to session persistence operations
type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Create starts a session, replacing any the user already has, and returns its ID.
func (sr *SessionRepository) Create(ctx context.Context, userID, sessionType, state string, contextData SessionContextData, ttl time.Duration) (int64, error) {
	jsonData, err := json.Marshal(contextData)
	if err != nil {
		return 0, err
	}

	if _, err := sr.db.ExecContext(ctx, `DELETE FROM telegram_sessions WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("failed to replace session: %w", err)
	}

	now := sr.now()
	res, err := sr.db.ExecContext(ctx,
		`INSERT INTO telegram_sessions (user_id, session_type, state, context_data, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, sessionType, state, string(jsonData), now.Add(ttl).Unix(), now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create session: %w", err)
	}
	return res.LastInsertId()
}

// GetActive retrieves the most recent non-expired session for a user.
func (sr *SessionRepository) GetActive(ctx context.Context, userID string) (*Session, error) {
	var (
		s                  Session
		expires, createdAt int64
	)
	err := sr.db.QueryRowContext(ctx,
		`SELECT id, user_id, session_type, state, context_data, expires_at, created_at
		 FROM telegram_sessions
		 WHERE user_id = ? AND expires_at > ?
		 ORDER BY id DESC LIMIT 1`,
		userID, sr.now().Unix(),
	).Scan(&s.ID, &s.UserID, &s.SessionType, &s.State, &s.ContextData, &expires, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.ExpiresAt = time.Unix(expires, 0)
	s.CreatedAt = time.Unix(createdAt, 0)
	return &s, nil
}

// GetContextData unmarshals the context_data JSON field
func (s *Session) GetContextData() (SessionContextData, error) {
	var data SessionContextData
	err := json.Unmarshal([]byte(s.ContextData), &data)
	return data, err
}

// Update updates the state and context_data for a session
func (sr *SessionRepository) Update(ctx context.Context, sessionID int64, state string, contextData SessionContextData) error {
	jsonData, err := json.Marshal(contextData)
	if err != nil {
		return err
	}

	_, err = sr.db.ExecContext(ctx,
		`UPDATE telegram_sessions SET state = ?, context_data = ? WHERE id = ?`,
		state, string(jsonData), sessionID)
	return err
}

// Delete removes a session
func (sr *SessionRepository) Delete(ctx context.Context, sessionID int64) error {
	_, err := sr.db.ExecContext(ctx, `DELETE FROM telegram_sessions WHERE id = ?`, sessionID)
	return err
}

// CleanupExpired removes all expired sessions and reports how many went.
func (sr *SessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := sr.db.ExecContext(ctx, `DELETE FROM telegram_sessions WHERE expires_at <= ?`, sr.now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
