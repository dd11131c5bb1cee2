// Package share issues signed, expiring read-only links to a week's shopping list.
package share

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid or expired share token")
	ErrDisabled     = errors.New("sharing is not configured")
)

// Claims identify the shared week.
type Claims struct {
	WeekStart string `json:"week_start"`
	jwt.RegisteredClaims
}

// Manager signs and validates share tokens.
type Manager struct {
	secretKey []byte
	ttl       time.Duration
	baseURL   string
	now       func() time.Time
}

// NewManager creates a Manager. Links are built under baseURL.
func NewManager(secretKey, baseURL string, ttl time.Duration) *Manager {
	return &Manager{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
	}
}

// Generate signs a token for weekStart.
func (m *Manager) Generate(weekStart string) (string, error) {
	if len(m.secretKey) == 0 {
		return "", ErrDisabled
	}
	now := m.now()
	claims := &Claims{
		WeekStart: weekStart,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   "shopping-list",
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign share token: %w", err)
	}
	return signed, nil
}

// Link returns the public URL for weekStart's list.
func (m *Manager) Link(weekStart string) (string, error) {
	token, err := m.Generate(weekStart)
	if err != nil {
		return "", err
	}
	return m.baseURL + "/share/" + token, nil
}

// Validate parses token and returns its claims.
func (m *Manager) Validate(token string) (*Claims, error) {
	if len(m.secretKey) == 0 {
		return nil, ErrDisabled
	}
	parsed, err := jwt.ParseWithClaims(
		token,
		&Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secretKey, nil
		},
		jwt.WithTimeFunc(m.now),
		jwt.WithSubject("shopping-list"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.WeekStart == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
