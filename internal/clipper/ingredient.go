package clipper

import (
	"strings"
	"unicode"

	"leftover-chef/internal/recipe"
)

var units = map[string]bool{
	"g": true, "gram": true, "grams": true, "kg": true, "mg": true,
	"ml": true, "l": true, "litre": true, "liter": true, "litres": true, "liters": true,
	"cup": true, "cups": true, "tbsp": true, "tbs": true, "tablespoon": true, "tablespoons": true,
	"tsp": true, "teaspoon": true, "teaspoons": true, "oz": true, "ounce": true, "ounces": true,
	"lb": true, "lbs": true, "pound": true, "pounds": true, "pinch": true, "dash": true,
	"clove": true, "cloves": true, "can": true, "cans": true, "slice": true, "slices": true,
	"handful": true, "bunch": true, "sprig": true, "sprigs": true,
}

// ParseIngredient splits a free text line such as "2 cups plain flour" into a
// measure ("2 cups") and a name ("plain flour").
func ParseIngredient(line string) recipe.Ingredient {
	fields := strings.Fields(line)
	i := 0
	for i < len(fields) && isQuantity(fields[i]) {
		i++
	}
	if i > 0 && i < len(fields) && units[strings.ToLower(strings.TrimSuffix(fields[i], "."))] {
		i++
	}
	if i == 0 || i == len(fields) {
		return recipe.Ingredient{Name: strings.Join(fields, " ")}
	}
	name := strings.TrimPrefix(strings.Join(fields[i:], " "), "of ")
	return recipe.Ingredient{
		Name:    name,
		Measure: strings.Join(fields[:i], " "),
	}
}

func isQuantity(tok string) bool {
	seenDigit := false
	for _, r := range tok {
		switch {
		case unicode.IsDigit(r):
			seenDigit = true
		case r >= '¼' && r <= '¾', r >= '⅐' && r <= '⅞':
			seenDigit = true
		case r == '/' || r == '.' || r == '-' || r == ',':
		default:
			return false
		}
	}
	return seenDigit
}
