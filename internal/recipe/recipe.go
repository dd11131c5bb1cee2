package recipe

import (
	"fmt"
	"strings"
)

// MaxIngredients is the number of ingredient/measure slots a TheMealDB record carries.
const MaxIngredients = 20

// Ingredient is one ingredient/measure pair of a recipe.
type Ingredient struct {
	Name    string `json:"name"`
	Measure string `json:"measure"`
}

// Recipe is the canonical recipe shape every producer is normalized into.
type Recipe struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Thumbnail    string       `json:"thumbnail"`
	Category     string       `json:"category"`
	Area         string       `json:"area"`
	Instructions string       `json:"instructions"`
	Tags         string       `json:"tags,omitempty"`
	YouTube      string       `json:"youtube,omitempty"`
	Source       string       `json:"source,omitempty"`
	Ingredients  []Ingredient `json:"ingredients"`
}

// Summary is the lightweight reference returned by ingredient searches.
// It needs a follow-up lookup to obtain ingredients.
type Summary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// Normalize returns a copy of r with trimmed text fields and only the
// ingredients that have a name, capped at MaxIngredients, in producer order.
func Normalize(r Recipe) Recipe {
	out := Recipe{
		ID:           strings.TrimSpace(r.ID),
		Title:        strings.TrimSpace(r.Title),
		Thumbnail:    strings.TrimSpace(r.Thumbnail),
		Category:     strings.TrimSpace(r.Category),
		Area:         strings.TrimSpace(r.Area),
		Instructions: strings.TrimSpace(r.Instructions),
		Tags:         strings.TrimSpace(r.Tags),
		YouTube:      strings.TrimSpace(r.YouTube),
		Source:       strings.TrimSpace(r.Source),
		Ingredients:  make([]Ingredient, 0, len(r.Ingredients)),
	}
	for _, ing := range r.Ingredients {
		if len(out.Ingredients) == MaxIngredients {
			break
		}
		name := strings.TrimSpace(ing.Name)
		if name == "" {
			continue
		}
		out.Ingredients = append(out.Ingredients, Ingredient{
			Name:    name,
			Measure: strings.TrimSpace(ing.Measure),
		})
	}
	return out
}

// FromMealDB converts a full TheMealDB meal object. Null or missing fields
// become empty strings.
func FromMealDB(meal map[string]any) Recipe {
	r := Recipe{
		ID:           field(meal, "idMeal"),
		Title:        field(meal, "strMeal"),
		Thumbnail:    field(meal, "strMealThumb"),
		Category:     field(meal, "strCategory"),
		Area:         field(meal, "strArea"),
		Instructions: field(meal, "strInstructions"),
		Tags:         field(meal, "strTags"),
		YouTube:      field(meal, "strYoutube"),
		Source:       field(meal, "strSource"),
	}
	for i := 1; i <= MaxIngredients; i++ {
		r.Ingredients = append(r.Ingredients, Ingredient{
			Name:    field(meal, fmt.Sprintf("strIngredient%d", i)),
			Measure: field(meal, fmt.Sprintf("strMeasure%d", i)),
		})
	}
	return Normalize(r)
}

// FromSummary converts a search result into a Recipe with no ingredients.
func FromSummary(s Summary) Recipe {
	return Normalize(Recipe{
		ID:        s.ID,
		Title:     s.Title,
		Thumbnail: s.Thumbnail,
	})
}

// Copy returns a deep copy of r so a stored snapshot cannot be mutated through
// the caller's slice.
func (r Recipe) Copy() Recipe {
	out := r
	out.Ingredients = append([]Ingredient(nil), r.Ingredients...)
	if out.Ingredients == nil {
		out.Ingredients = []Ingredient{}
	}
	return out
}

// HasIngredient reports whether any ingredient name contains needle, case-insensitively.
func (r Recipe) HasIngredient(needle string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return false
	}
	for _, ing := range r.Ingredients {
		if strings.Contains(strings.ToLower(ing.Name), needle) {
			return true
		}
	}
	return false
}

func field(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
