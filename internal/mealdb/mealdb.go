// Package mealdb is a client for the public TheMealDB JSON API.
package mealdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leftover-chef/internal/config"
	"leftover-chef/internal/recipe"
)

var (
	// ErrNotFound is returned when TheMealDB has no meal for an id.
	ErrNotFound = fmt.Errorf("meal %w", recipe.ErrNotFound)
	// ErrTimeout is returned when a request exceeds the lookup timeout.
	ErrTimeout = errors.New("mealdb request timed out")
	// ErrNetwork covers transport failures and non-200 responses.
	ErrNetwork = errors.New("mealdb request failed")
)

// Observer is notified after every request.
type Observer interface {
	ObserveRequest(endpoint string, latency time.Duration, err error)
}

// Client is the TheMealDB API surface the app consumes.
type Client interface {
	LookupByID(ctx context.Context, id string) (recipe.Recipe, error)
	SearchByIngredient(ctx context.Context, ingredient string) ([]recipe.Summary, error)
	Random(ctx context.Context) (recipe.Recipe, error)
}

type mealDBClient struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	observer   Observer
}

// Option customizes the client.
type Option func(*mealDBClient)

// WithObserver reports request outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *mealDBClient) { c.observer = o }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *mealDBClient) { c.httpClient = hc }
}

// NewClient creates a new TheMealDB API client.
func NewClient(cfg *config.Config, opts ...Option) Client {
	c := &mealDBClient{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.MealDBURL, "/"),
		timeout:    cfg.LookupTimeout,
	}
	if c.timeout <= 0 {
		c.timeout = config.DefaultLookupTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type mealsResponse struct {
	Meals []map[string]any `json:"meals"`
}

type filterResponse struct {
	Meals []struct {
		IDMeal       string `json:"idMeal"`
		StrMeal      string `json:"strMeal"`
		StrMealThumb string `json:"strMealThumb"`
	} `json:"meals"`
}

// LookupByID fetches the full detail of one meal.
func (c *mealDBClient) LookupByID(ctx context.Context, id string) (recipe.Recipe, error) {
	var resp mealsResponse
	if err := c.get(ctx, "lookup", "lookup.php?i="+url.QueryEscape(id), &resp); err != nil {
		return recipe.Recipe{}, err
	}
	if len(resp.Meals) == 0 || resp.Meals[0] == nil {
		return recipe.Recipe{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return recipe.FromMealDB(resp.Meals[0]), nil
}

// SearchByIngredient returns the meals using ingredient. A null result is an empty slice.
func (c *mealDBClient) SearchByIngredient(ctx context.Context, ingredient string) ([]recipe.Summary, error) {
	var resp filterResponse
	if err := c.get(ctx, "filter", "filter.php?i="+url.QueryEscape(ingredient), &resp); err != nil {
		return nil, err
	}

	summaries := make([]recipe.Summary, 0, len(resp.Meals))
	for _, m := range resp.Meals {
		summaries = append(summaries, recipe.Summary{
			ID:        m.IDMeal,
			Title:     m.StrMeal,
			Thumbnail: m.StrMealThumb,
		})
	}
	return summaries, nil
}

// Random fetches one random meal.
func (c *mealDBClient) Random(ctx context.Context) (recipe.Recipe, error) {
	var resp mealsResponse
	if err := c.get(ctx, "random", "random.php", &resp); err != nil {
		return recipe.Recipe{}, err
	}
	if len(resp.Meals) == 0 || resp.Meals[0] == nil {
		return recipe.Recipe{}, fmt.Errorf("%w: random", ErrNotFound)
	}
	return recipe.FromMealDB(resp.Meals[0]), nil
}

// get performs one bounded GET and decodes the JSON body into out.
func (c *mealDBClient) get(ctx context.Context, endpoint, path string, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveRequest(endpoint, time.Since(start), err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	slog.Debug("mealdb request", "endpoint", endpoint, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(err, c.timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status=%d body=%s", ErrNetwork, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return classify(ctx.Err(), c.timeout)
		}
		return fmt.Errorf("%w: failed to decode response: %v", ErrNetwork, err)
	}
	return nil
}

func classify(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
