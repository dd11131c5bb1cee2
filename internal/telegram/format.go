package telegram

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"leftover-chef/internal/metrics"
	"leftover-chef/internal/planner"
	"leftover-chef/internal/recipe"
	"leftover-chef/internal/shopping"
	"leftover-chef/internal/stats"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxListButtons keeps the inline keyboard within Telegram's limits.
const maxListButtons = 40

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func formatWeek(start string, dates []string, plan planner.MealPlan) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📅 *Week of %s*\n\n", start))

	for _, date := range dates {
		day := plan[date]
		sb.WriteString(fmt.Sprintf("*%s* %s\n", planner.DayName(date), date))
		if len(day) == 0 {
			sb.WriteString("_Nothing planned_\n\n")
			continue
		}
		for _, slot := range planner.Slots {
			r, ok := day[slot]
			if !ok {
				continue
			}
			sb.WriteString(fmt.Sprintf("• %s: %s (`%s`)\n", slot, escape(r.Title), r.ID))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatRecipe(r recipe.Recipe, favorite bool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🍲 *%s*", escape(r.Title)))
	if favorite {
		sb.WriteString(" ⭐")
	}
	sb.WriteString(fmt.Sprintf("\n`%s`", r.ID))
	if r.Category != "" || r.Area != "" {
		sb.WriteString("\n_" + escape(strings.Trim(r.Category+" · "+r.Area, " ·")) + "_")
	}
	sb.WriteString("\n\n")

	if len(r.Ingredients) > 0 {
		sb.WriteString("*Ingredients*\n")
		for _, ing := range r.Ingredients {
			if ing.Measure != "" {
				sb.WriteString(fmt.Sprintf("• %s (%s)\n", escape(ing.Name), escape(ing.Measure)))
			} else {
				sb.WriteString(fmt.Sprintf("• %s\n", escape(ing.Name)))
			}
		}
		sb.WriteString("\n")
	}
	if r.Instructions != "" {
		sb.WriteString("*Instructions*\n")
		sb.WriteString(escape(r.Instructions))
		sb.WriteString("\n")
	}
	if r.Source != "" {
		sb.WriteString("\n" + r.Source + "\n")
	}
	return sb.String()
}

func formatSearchResults(found []recipe.Recipe) string {
	if len(found) == 0 {
		return "🔍 No recipes use those ingredients. Try removing one."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔍 *%d recipe(s) found*\n\n", len(found)))
	for _, r := range found {
		sb.WriteString(fmt.Sprintf("• %s `%s`\n", escape(r.Title), r.ID))
	}
	sb.WriteString("\nSend /recipe <id> for details or /add <id> to plan it.")
	return sb.String()
}

func formatPantry(ingredients, recent []string) string {
	var sb strings.Builder
	if len(ingredients) == 0 {
		sb.WriteString("🧺 Your pantry is empty.\n")
	} else {
		sb.WriteString("🧺 *Pantry*\n")
		for _, ing := range ingredients {
			sb.WriteString("• " + escape(ing) + "\n")
		}
	}
	if len(recent) > 0 {
		sb.WriteString("\n_Try:_ " + escape(strings.Join(recent, ", ")))
	}
	return sb.String()
}

// numberedItems flattens list in display order; /check numbers index into it.
func numberedItems(list *shopping.List) []shopping.Item {
	if list == nil {
		return nil
	}
	var items []shopping.Item
	for _, cat := range list.Order {
		items = append(items, list.Categories[cat]...)
	}
	return items
}

func formatList(list *shopping.List) string {
	if list == nil || list.TotalItems == 0 {
		return "🛒 Your shopping list is empty. Plan some meals with /add."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🛒 *Shopping List* (week of %s)\n\n", list.WeekStart))
	n := 0
	for _, cat := range list.Order {
		items := list.Categories[cat]
		if len(items) == 0 {
			continue
		}
		sb.WriteString("*" + escape(cat) + "*\n")
		for _, it := range items {
			n++
			mark := "◻"
			if it.Checked {
				mark = "✓"
			}
			line := fmt.Sprintf("%d. %s %s", n, mark, escape(it.Name))
			if it.Measure != "" {
				line += " (" + escape(it.Measure) + ")"
			}
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n")
	}
	pct := int(math.Round(list.Progress() * 100))
	sb.WriteString(fmt.Sprintf("Progress: %d/%d items (%d%%)", list.CheckedItems, list.TotalItems, pct))
	return sb.String()
}

// listKeyboard returns one toggle button per item, five to a row, or nil when
// the list is empty or too long for a keyboard.
func listKeyboard(list *shopping.List) *tgbotapi.InlineKeyboardMarkup {
	items := numberedItems(list)
	if len(items) == 0 || len(items) > maxListButtons {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i, it := range items {
		label := strconv.Itoa(i + 1)
		if it.Checked {
			label += " ✓"
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "toggle|"+strconv.Itoa(i+1)))
		if len(row) == 5 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func dayKeyboard(dates []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, date := range dates {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(planner.DayName(date)[:3], "day|"+date))
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func slotKeyboard() tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for _, slot := range planner.Slots {
		label := strings.ToUpper(string(slot[:1])) + string(slot[1:])
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "slot|"+string(slot)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func formatFavorites(favs []recipe.Recipe) string {
	if len(favs) == 0 {
		return "⭐ No favorites yet. Save one with /fav <id>."
	}
	var sb strings.Builder
	sb.WriteString("⭐ *Favorites*\n\n")
	for _, r := range favs {
		sb.WriteString(fmt.Sprintf("• %s `%s`\n", escape(r.Title), r.ID))
	}
	return sb.String()
}

func formatStats(s stats.Stats) string {
	impact := s.Impact()
	unlocked, locked := stats.UnlockedBadges(s)

	var sb strings.Builder
	sb.WriteString("📊 *Your Impact*\n\n")
	sb.WriteString(fmt.Sprintf("• Meals made: %d\n", s.MealsMade))
	sb.WriteString(fmt.Sprintf("• Ingredients saved: %d\n", s.IngredientsSaved))
	sb.WriteString(fmt.Sprintf("• Recipes viewed: %d\n", s.RecipesViewed))
	sb.WriteString(fmt.Sprintf("• Recipes saved: %d\n\n", s.RecipesSaved))

	sb.WriteString("🌍 *Estimated Savings*\n")
	sb.WriteString(fmt.Sprintf("• CO₂: %.1f kg\n", impact.CO2SavedKg))
	sb.WriteString(fmt.Sprintf("• Water: %.0f L\n", impact.WaterSavedLiters))
	sb.WriteString(fmt.Sprintf("• Food waste: %.1f kg\n\n", impact.WasteSavedKg))

	sb.WriteString(fmt.Sprintf("🏅 *Badges* (%d/%d)\n", len(unlocked), len(unlocked)+len(locked)))
	for _, b := range unlocked {
		sb.WriteString(fmt.Sprintf("• %s - %s\n", b.Name, b.Description))
	}
	return sb.String()
}

func formatMetrics(usage []metrics.DailyUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent TheMealDB Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d requests, %d failed, %.0fms avg\n", d.Date, d.Requests, d.Failures, d.AvgLatencyMS))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Uptime: %s\n", health.Uptime))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", health.DataSize))
	return sb.String()
}
