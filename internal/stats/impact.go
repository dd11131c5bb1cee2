package stats

// Average per-meal savings, after EPA and FAO estimates.
const (
	CO2PerMealKg       = 2.5
	WaterPerMealLiters = 1500
	WastePerIngredient = 0.5
)

// Impact is the estimated environmental saving.
type Impact struct {
	CO2SavedKg       float64 `json:"co2Saved"`
	WaterSavedLiters float64 `json:"waterSaved"`
	WasteSavedKg     float64 `json:"wasteSaved"`
}

// CalculateImpact estimates savings from cooked meals and used-up ingredients.
func CalculateImpact(mealsMade, ingredientsSaved int) Impact {
	return Impact{
		CO2SavedKg:       float64(mealsMade) * CO2PerMealKg,
		WaterSavedLiters: float64(mealsMade) * WaterPerMealLiters,
		WasteSavedKg:     float64(ingredientsSaved) * WastePerIngredient,
	}
}

// Impact estimates the savings for s.
func (s Stats) Impact() Impact {
	return CalculateImpact(s.MealsMade, s.IngredientsSaved)
}

// Badge is an achievement unlocked by reaching a counter threshold.
type Badge struct {
	ID          string
	Name        string
	Description string
	unlocked    func(Stats) bool
}

// Unlocked reports whether s meets the badge requirement.
func (b Badge) Unlocked(s Stats) bool {
	return b.unlocked(s)
}

// Badges lists every badge in display order.
var Badges = []Badge{
	{"waste-warrior", "Waste Warrior", "Used leftovers for 5+ meals", func(s Stats) bool { return s.MealsMade >= 5 }},
	{"healthy-hero", "Healthy Hero", "Made 10 nutritious meals", func(s Stats) bool { return s.MealsMade >= 10 }},
	{"recipe-explorer", "Recipe Explorer", "Viewed 20+ recipes", func(s Stats) bool { return s.RecipesViewed >= 20 }},
	{"super-saver", "Super Saver", "Saved 15 recipes to favorites", func(s Stats) bool { return s.RecipesSaved >= 15 }},
	{"efficient-cook", "Efficient Cook", "Made 3 recipes in one week", func(s Stats) bool { return s.MealsMade >= 3 }},
	{"master-chef", "Master Chef", "Made 25 meals from leftovers", func(s Stats) bool { return s.MealsMade >= 25 }},
}

// UnlockedBadges splits Badges into unlocked and locked for s.
func UnlockedBadges(s Stats) (unlocked, locked []Badge) {
	for _, b := range Badges {
		if b.Unlocked(s) {
			unlocked = append(unlocked, b)
		} else {
			locked = append(locked, b)
		}
	}
	return unlocked, locked
}
