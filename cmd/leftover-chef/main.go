package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"leftover-chef/internal/app"
	"leftover-chef/internal/config"
	"leftover-chef/internal/database"
	"leftover-chef/internal/logging"
	"leftover-chef/internal/planner"
	"leftover-chef/internal/recipe"
	"leftover-chef/internal/shopping"
	"leftover-chef/internal/stats"
)

func main() {
	logging.Setup()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		fatal("Failed to load configuration", err)
	}

	ctx := context.Background()
	cmd, args := os.Args[1], os.Args[2:]

	if cmd == "migrate" {
		if err := database.RunMigrations(cfg.DatabasePath); err != nil {
			fatal("Migration failed", err)
		}
		fmt.Println("Database schema is up to date.")
		return
	}

	application, err := app.Open(ctx, cfg)
	if err != nil {
		fatal("Failed to initialize application", err)
	}
	defer application.Close()

	if err := run(ctx, application, cmd, args); err != nil {
		application.Close()
		fatal(cmd+" failed", err)
	}
}

func run(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "search":
		return searchCmd(ctx, a, args)
	case "view":
		if len(args) != 1 {
			return fmt.Errorf("usage: view <recipe id>")
		}
		r, err := a.ViewRecipe(ctx, args[0])
		if err != nil {
			return err
		}
		printRecipe(r)
	case "random":
		r, err := a.RandomRecipe(ctx)
		if err != nil {
			return err
		}
		printRecipe(r)
	case "plan":
		return planCmd(ctx, a, args)
	case "week":
		return weekCmd(ctx, a, args)
	case "list":
		return listCmd(ctx, a, args)
	case "fav":
		return favCmd(ctx, a, args)
	case "stats":
		printStats(a.Stats())
	case "clip":
		if len(args) != 1 {
			return fmt.Errorf("usage: clip <url>")
		}
		r, err := a.ClipRecipe(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Saved %q as %s (%d ingredients)\n", r.Title, r.ID, len(r.Ingredients))
	case "import-recipes":
		fs := flag.NewFlagSet("import-recipes", flag.ExitOnError)
		dir := fs.String("dir", "recipes", "Directory of JSON recipe files")
		fs.Parse(args)
		n, err := a.ImportRecipesFromDir(ctx, *dir)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d recipe(s).\n", n)
	case "metrics-cleanup":
		fs := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := fs.Int("days", 30, "Keep records for the last N days")
		fs.Parse(args)
		affected, err := a.CleanupMetrics(ctx, *days)
		if err != nil {
			return err
		}
		fmt.Printf("Successfully removed %d old metric records.\n", affected)
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	return nil
}

func searchCmd(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: search <ingredient> [ingredient...]")
	}
	p := a.Pantry()
	p.ClearIngredients()
	for _, ing := range args {
		if _, err := p.AddIngredient(ctx, ing); err != nil {
			return err
		}
	}
	found, err := a.SearchRecipes(ctx)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("No recipes found.")
		return nil
	}
	for _, r := range found {
		fmt.Printf("%-8s %s\n", r.ID, r.Title)
	}
	return nil
}

func planCmd(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 || args[0] == "show" {
		printWeek(a)
		return nil
	}
	switch args[0] {
	case "add":
		if len(args) != 4 {
			return fmt.Errorf("usage: plan add <day> <slot> <recipe id>")
		}
		slot, date, err := a.PlanMeal(ctx, args[1], args[2], args[3])
		if err != nil {
			return err
		}
		fmt.Printf("Planned %s for %s %s.\n", args[3], planner.DayName(date), slot)
	case "remove":
		if len(args) != 3 {
			return fmt.Errorf("usage: plan remove <day> <slot>")
		}
		if err := a.UnplanMeal(ctx, args[1], args[2]); err != nil {
			return err
		}
		fmt.Println("Meal removed.")
	case "cooked":
		if len(args) != 3 {
			return fmt.Errorf("usage: plan cooked <day> <slot>")
		}
		date, err := a.ResolveDate(args[1])
		if err != nil {
			return err
		}
		used, err := a.MarkCooked(ctx, date, args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Marked as made; %d pantry ingredient(s) used.\n", used)
	default:
		return fmt.Errorf("unknown plan command %q", args[0])
	}
	return nil
}

func weekCmd(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: week next|prev")
	}
	var err error
	switch args[0] {
	case "next":
		_, err = a.NextWeek(ctx)
	case "prev":
		_, err = a.PreviousWeek(ctx)
	default:
		return fmt.Errorf("usage: week next|prev")
	}
	if err != nil {
		return err
	}
	printWeek(a)
	return nil
}

func listCmd(ctx context.Context, a *app.App, args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}
	switch sub {
	case "show":
		st, err := a.ShoppingList(ctx)
		if err != nil {
			return err
		}
		fmt.Println(shopping.FormatText(st.List))
	case "generate":
		res, err := a.GenerateShoppingList(ctx)
		if err != nil {
			return err
		}
		fmt.Println(shopping.FormatText(res.List))
	case "reset":
		res, err := a.ResetShoppingList(ctx)
		if err != nil {
			return err
		}
		fmt.Println(shopping.FormatText(res.List))
	case "toggle":
		if len(args) != 2 {
			return fmt.Errorf("usage: list toggle <item id>")
		}
		if err := a.ToggleItem(ctx, args[1]); err != nil {
			return err
		}
	case "ids":
		st, err := a.ShoppingList(ctx)
		if err != nil {
			return err
		}
		if st.List == nil {
			return nil
		}
		for _, cat := range st.List.Order {
			for _, it := range st.List.Categories[cat] {
				fmt.Printf("%s\t%s\t%s\n", it.ID, cat, it.Name)
			}
		}
	case "clear":
		fmt.Printf("Removed %d checked item(s).\n", a.ClearChecked(ctx))
	case "share":
		link, err := a.ShareLink(ctx)
		if err != nil {
			return err
		}
		fmt.Println(link)
	default:
		return fmt.Errorf("unknown list command %q", sub)
	}
	return nil
}

func favCmd(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		for _, r := range a.Favorites() {
			fmt.Printf("%-8s %s\n", r.ID, r.Title)
		}
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: fav add|remove <recipe id>")
	}
	switch args[0] {
	case "add":
		added, err := a.AddFavorite(ctx, args[1])
		if err != nil {
			return err
		}
		if !added {
			fmt.Println("Already in favorites.")
		}
	case "remove":
		if !a.RemoveFavorite(ctx, args[1]) {
			fmt.Println("Not in favorites.")
		}
	default:
		return fmt.Errorf("usage: fav add|remove <recipe id>")
	}
	return nil
}

func printWeek(a *app.App) {
	start, plan := a.Week()
	dates, _ := planner.WeekDates(start)
	fmt.Printf("Week of %s\n\n", start)
	for _, date := range dates {
		fmt.Printf("%-9s %s\n", planner.DayName(date), date)
		for _, slot := range planner.Slots {
			if r, ok := plan[date][slot]; ok {
				fmt.Printf("  %-9s %s (%s)\n", slot, r.Title, r.ID)
			}
		}
	}
}

func printRecipe(r recipe.Recipe) {
	fmt.Printf("%s [%s]\n", r.Title, r.ID)
	if meta := strings.Trim(r.Category+" / "+r.Area, " /"); meta != "" {
		fmt.Println(meta)
	}
	fmt.Println()
	for _, ing := range r.Ingredients {
		if ing.Measure != "" {
			fmt.Printf("- %s (%s)\n", ing.Name, ing.Measure)
		} else {
			fmt.Printf("- %s\n", ing.Name)
		}
	}
	if r.Instructions != "" {
		fmt.Printf("\n%s\n", r.Instructions)
	}
}

func printStats(s stats.Stats) {
	impact := s.Impact()
	fmt.Printf("Recipes viewed:    %d\n", s.RecipesViewed)
	fmt.Printf("Recipes saved:     %d\n", s.RecipesSaved)
	fmt.Printf("Meals made:        %d\n", s.MealsMade)
	fmt.Printf("Ingredients saved: %d\n\n", s.IngredientsSaved)
	fmt.Printf("CO2 saved:   %.1f kg\n", impact.CO2SavedKg)
	fmt.Printf("Water saved: %.0f L\n", impact.WaterSavedLiters)
	fmt.Printf("Waste saved: %.1f kg\n\n", impact.WasteSavedKg)

	unlocked, _ := stats.UnlockedBadges(s)
	for _, b := range unlocked {
		fmt.Printf("* %s: %s\n", b.Name, b.Description)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("Usage: leftover-chef <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  search <ingredient...>        Find recipes for ingredients you have")
	fmt.Println("  view <id>                     Show a recipe")
	fmt.Println("  random                        Show a random recipe")
	fmt.Println("  plan [show]                   Show the selected week")
	fmt.Println("  plan add <day> <slot> <id>    Plan a meal")
	fmt.Println("  plan remove <day> <slot>      Clear a meal")
	fmt.Println("  plan cooked <day> <slot>      Mark a planned meal as made")
	fmt.Println("  week next|prev                Change the selected week")
	fmt.Println("  list [show|generate|reset|ids|toggle <id>|clear|share]")
	fmt.Println("                                Shopping list for the selected week")
	fmt.Println("  fav [list|add <id>|remove <id>]")
	fmt.Println("  stats                         Usage stats and estimated impact")
	fmt.Println("  clip <url>                    Import a recipe from a web page")
	fmt.Println("  import-recipes -dir <dir>     Import JSON recipe files")
	fmt.Println("  metrics-cleanup -days <n>     Remove old request log records")
	fmt.Println("  migrate                       Apply database migrations")
}
