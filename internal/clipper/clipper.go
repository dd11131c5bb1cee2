package clipper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"leftover-chef/internal/recipe"
)

// ErrNoRecipe is returned when a page carries no schema.org Recipe markup.
var ErrNoRecipe = errors.New("no recipe found on page")

// Saver persists an imported recipe.
type Saver interface {
	Save(ctx context.Context, r recipe.Recipe) error
}

// Clipper imports recipes from web pages into the local recipe repository.
type Clipper struct {
	httpClient *http.Client
	saver      Saver
}

// NewClipper creates a new Clipper instance.
func NewClipper(saver Saver) *Clipper {
	return &Clipper{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		saver:      saver,
	}
}

// ClipURL fetches the page at url, extracts its recipe and saves it. The id is
// derived from the URL so clipping the same page twice updates one recipe.
func (c *Clipper) ClipURL(ctx context.Context, url string) (*recipe.Recipe, error) {
	doc, err := c.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content: %w", err)
	}

	r, err := Extract(doc)
	if err != nil {
		return nil, err
	}
	r.ID = IDForURL(url)
	if r.Source == "" {
		r.Source = url
	}
	r = recipe.Normalize(r)

	if c.saver != nil {
		if err := c.saver.Save(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to save clipped recipe: %w", err)
		}
	}
	slog.Info("Clipped recipe", "recipe_id", r.ID, "title", r.Title, "ingredients", len(r.Ingredients))
	return &r, nil
}

// IDForURL returns the local recipe id for a page URL.
func IDForURL(url string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
	return recipe.LocalPrefix + strings.ReplaceAll(id, "-", "")[:12]
}

func (c *Clipper) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// Extract reads a recipe from JSON-LD, falling back to microdata.
func Extract(doc *goquery.Document) (recipe.Recipe, error) {
	var found *recipe.Recipe
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			slog.Debug("Skipping malformed JSON-LD block", "error", err)
			return true
		}
		if node := findRecipeNode(raw); node != nil {
			r := fromJSONLD(node)
			found = &r
			return false
		}
		return true
	})
	if found != nil && found.Title != "" {
		return *found, nil
	}

	if r, ok := fromMicrodata(doc); ok {
		return r, nil
	}
	return recipe.Recipe{}, ErrNoRecipe
}

// findRecipeNode walks arrays and @graph containers for a node typed Recipe.
func findRecipeNode(v any) map[string]any {
	switch n := v.(type) {
	case []any:
		for _, item := range n {
			if found := findRecipeNode(item); found != nil {
				return found
			}
		}
	case map[string]any:
		if isRecipeType(n["@type"]) {
			return n
		}
		if graph, ok := n["@graph"]; ok {
			return findRecipeNode(graph)
		}
	}
	return nil
}

func isRecipeType(v any) bool {
	for _, t := range strs(v) {
		if t == "Recipe" {
			return true
		}
	}
	return false
}

func fromJSONLD(n map[string]any) recipe.Recipe {
	r := recipe.Recipe{
		Title:        first(strs(n["name"])),
		Thumbnail:    image(n["image"]),
		Category:     first(strs(n["recipeCategory"])),
		Area:         first(strs(n["recipeCuisine"])),
		Instructions: strings.Join(instructions(n["recipeInstructions"]), "\n"),
		Tags:         strings.Join(strs(n["keywords"]), ","),
		Source:       first(strs(n["url"])),
	}
	for _, line := range strs(n["recipeIngredient"]) {
		r.Ingredients = append(r.Ingredients, ParseIngredient(line))
	}
	return r
}

func fromMicrodata(doc *goquery.Document) (recipe.Recipe, bool) {
	scope := doc.Find(`[itemtype*="schema.org/Recipe"]`).First()
	if scope.Length() == 0 {
		return recipe.Recipe{}, false
	}

	prop := func(name string) string {
		s := scope.Find(`[itemprop="` + name + `"]`).First()
		if v, ok := s.Attr("content"); ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(s.Text())
	}

	r := recipe.Recipe{
		Title:    prop("name"),
		Category: prop("recipeCategory"),
		Area:     prop("recipeCuisine"),
	}
	if src, ok := scope.Find(`[itemprop="image"]`).First().Attr("src"); ok {
		r.Thumbnail = src
	}
	scope.Find(`[itemprop="recipeIngredient"], [itemprop="ingredients"]`).Each(func(_ int, s *goquery.Selection) {
		r.Ingredients = append(r.Ingredients, ParseIngredient(s.Text()))
	})
	var steps []string
	scope.Find(`[itemprop="recipeInstructions"]`).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			steps = append(steps, text)
		}
	})
	r.Instructions = strings.Join(steps, "\n")
	return r, r.Title != ""
}

// strs flattens a JSON-LD value that may be a string or a list of strings.
func strs(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func image(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			return image(t[0])
		}
	case map[string]any:
		if u, ok := t["url"].(string); ok {
			return u
		}
	}
	return ""
}

// instructions flattens text, HowToStep and HowToSection forms.
func instructions(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, instructions(item)...)
		}
		return out
	case map[string]any:
		if items, ok := t["itemListElement"]; ok {
			return instructions(items)
		}
		if text, ok := t["text"].(string); ok {
			return instructions(text)
		}
	}
	return nil
}
