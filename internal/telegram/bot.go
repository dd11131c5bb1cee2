package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leftover-chef/internal/app"
	"leftover-chef/internal/config"
	"leftover-chef/internal/planner"
	"leftover-chef/internal/share"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SessionTTL bounds how long a multi-step conversation stays open.
const SessionTTL = 10 * time.Minute

// sender is the part of *tgbotapi.BotAPI the bot uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot wraps the Telegram API and the application core.
type Bot struct {
	api      sender
	app      *app.App
	sessions *SessionRepository
	cfg      *config.Config
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, a *app.App, sessions *SessionRepository) (*Bot, error) {
	if cfg.TelegramBotToken == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN environment variable is required")
	}
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	slog.Info("Authorized on account", "username", api.Self.UserName)

	if cfg.TelegramWebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
		}
		resp, err := api.Request(wh)
		if err != nil {
			return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
		}
		slog.Info("Webhook set", "description", resp.Description)
	}

	return newBot(api, cfg, a, sessions), nil
}

func newBot(api sender, cfg *config.Config, a *app.App, sessions *SessionRepository) *Bot {
	return &Bot{api: api, app: a, sessions: sessions, cfg: cfg}
}

// RegisterHandlers registers the webhook, health, metrics and share endpoints on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook", b.handleWebhook)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if rec := b.app.Recorder(); rec != nil {
		mux.Handle("GET /metrics", rec.Handler())
	}
	mux.HandleFunc("GET /share/{token}", share.Handler(b.app.ShareManager(), b.app.ShoppingLists()))
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("Error parsing update", "error", err)
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	switch {
	case update.CallbackQuery != nil:
		if update.CallbackQuery.From == nil || !b.isAllowed(update.CallbackQuery.From.ID) {
			return
		}
		go b.handleCallbackQuery(update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		if !b.isAllowed(update.Message.From.ID) {
			slog.Warn("Unauthorized access attempt", "user_id", update.Message.From.ID, "username", update.Message.From.UserName)
			return
		}
		go b.processMessage(update.Message)
	}
}

func (b *Bot) isAllowed(userID int64) bool {
	for _, id := range b.cfg.TelegramAllowedUserIDs {
		if userID == id {
			return true
		}
	}
	return false
}

// parseCommand splits "/cmd@bot arg1 arg2" into "cmd" and its arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", fields
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), fields[1:]
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		b.handleClip(ctx, chatID, text)
		return
	}

	cmd, args := parseCommand(text)
	switch cmd {
	case "start", "help":
		b.reply(chatID, helpText)
	case "pantry":
		b.handlePantry(ctx, chatID, args)
	case "search":
		b.handleSearch(ctx, chatID)
	case "recipe":
		b.handleRecipe(ctx, chatID, args)
	case "random":
		b.handleRandom(ctx, chatID)
	case "plan":
		b.sendWeek(chatID)
	case "add":
		b.handleAdd(ctx, msg, args)
	case "remove":
		b.handleRemove(ctx, chatID, args)
	case "cooked":
		b.handleCooked(ctx, chatID, args)
	case "next", "prev":
		b.handleShiftWeek(ctx, chatID, cmd)
	case "list":
		b.sendList(ctx, chatID, 0)
	case "check":
		b.handleCheck(ctx, chatID, args)
	case "clear":
		n := b.app.ClearChecked(ctx)
		b.reply(chatID, fmt.Sprintf("🧹 Removed %d checked item(s).", n))
	case "share":
		b.handleShare(ctx, chatID)
	case "fav":
		b.handleFavorite(ctx, chatID, args)
	case "unfav":
		b.handleUnfavorite(ctx, chatID, args)
	case "favorites":
		b.reply(chatID, formatFavorites(b.app.Favorites()))
	case "stats":
		b.reply(chatID, formatStats(b.app.Stats()))
	case "metrics":
		b.handleMetricsRequest(ctx, msg)
	default:
		b.reply(chatID, "🤔 Unknown command. Send /help for the list.")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeMarkdown
	b.send(chatID, m)
}

// send delivers c and logs a failure; the update that caused it is not retried.
func (b *Bot) send(chatID int64, c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		slog.Warn("Failed to send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) replyError(chatID int64, prefix string, err error) {
	slog.Warn(prefix, "chat_id", chatID, "error", err)
	safeErr := strings.ReplaceAll(err.Error(), "`", "'")
	b.reply(chatID, fmt.Sprintf("❌ *%s:*\n```\n%s\n```", prefix, safeErr))
}

func (b *Bot) handleClip(ctx context.Context, chatID int64, url string) {
	r, err := b.app.ClipRecipe(ctx, url)
	if err != nil {
		b.replyError(chatID, "Error clipping recipe", err)
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ *Recipe Saved!*\n\n*Title:* %s\n*ID:* `%s`\n%d ingredients",
		escape(r.Title), r.ID, len(r.Ingredients)))
}

func (b *Bot) handlePantry(ctx context.Context, chatID int64, args []string) {
	p := b.app.Pantry()
	if len(args) == 1 && strings.EqualFold(args[0], "clear") {
		p.ClearIngredients()
		b.reply(chatID, "🧺 Pantry cleared.")
		return
	}
	if len(args) > 1 && strings.EqualFold(args[0], "remove") {
		if !p.RemoveIngredient(strings.Join(args[1:], " ")) {
			b.reply(chatID, "Not in your pantry.")
			return
		}
		b.reply(chatID, formatPantry(p.Ingredients(), p.Recent()))
		return
	}
	if len(args) > 0 {
		for _, name := range strings.Split(strings.Join(args, " "), ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			if _, err := p.AddIngredient(ctx, name); err != nil {
				b.replyError(chatID, "Error adding ingredient", err)
				return
			}
		}
	}
	b.reply(chatID, formatPantry(p.Ingredients(), p.Recent()))
}

func (b *Bot) handleSearch(ctx context.Context, chatID int64) {
	found, err := b.app.SearchRecipes(ctx)
	if err != nil {
		b.replyError(chatID, "Error searching recipes", err)
		return
	}
	b.reply(chatID, formatSearchResults(found))
}

func (b *Bot) handleRecipe(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.reply(chatID, "Usage: /recipe <id>")
		return
	}
	r, err := b.app.ViewRecipe(ctx, args[0])
	if err != nil {
		b.replyError(chatID, "Error loading recipe", err)
		return
	}
	b.reply(chatID, formatRecipe(r, b.app.IsFavorite(r.ID)))
}

func (b *Bot) handleRandom(ctx context.Context, chatID int64) {
	r, err := b.app.RandomRecipe(ctx)
	if err != nil {
		b.replyError(chatID, "Error loading recipe", err)
		return
	}
	b.reply(chatID, formatRecipe(r, b.app.IsFavorite(r.ID)))
}

func (b *Bot) sendWeek(chatID int64) {
	start, plan := b.app.Week()
	dates, _ := planner.WeekDates(start)
	b.reply(chatID, formatWeek(start, dates, plan))
}

// handleAdd plans a meal. With a day and slot it is immediate
// (/add mon dinner 52772); with only a recipe id it asks for both.
func (b *Bot) handleAdd(ctx context.Context, msg *tgbotapi.Message, args []string) {
	chatID := msg.Chat.ID
	switch len(args) {
	case 3:
		slot, date, err := b.app.PlanMeal(ctx, args[0], args[1], args[2])
		if err != nil {
			b.replyError(chatID, "Error planning meal", err)
			return
		}
		b.reply(chatID, fmt.Sprintf("✅ Planned for %s %s.", planner.DayName(date), slot))
	case 1:
		r, err := b.app.ViewRecipe(ctx, args[0])
		if err != nil {
			b.replyError(chatID, "Error loading recipe", err)
			return
		}
		userID := strconv.FormatInt(msg.From.ID, 10)
		data := SessionContextData{RecipeID: r.ID, RecipeTitle: r.Title}
		if _, err := b.sessions.Create(ctx, userID, SessionAddMeal, StatePickDay, data, SessionTTL); err != nil {
			b.replyError(chatID, "Error starting session", err)
			return
		}
		m := tgbotapi.NewMessage(chatID, fmt.Sprintf("🗓️ Which day for *%s*?", escape(r.Title)))
		m.ParseMode = tgbotapi.ModeMarkdown
		m.ReplyMarkup = dayKeyboard(b.app.Plan().WeekDates())
		b.send(chatID, m)
	default:
		b.reply(chatID, "Usage: /add <recipe id> or /add <day> <slot> <recipe id>")
	}
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args []string) {
	if len(args) != 2 {
		b.reply(chatID, "Usage: /remove <day> <slot>")
		return
	}
	if err := b.app.UnplanMeal(ctx, args[0], args[1]); err != nil {
		b.replyError(chatID, "Error removing meal", err)
		return
	}
	b.reply(chatID, "🗑️ Meal removed.")
}

func (b *Bot) handleCooked(ctx context.Context, chatID int64, args []string) {
	if len(args) != 2 {
		b.reply(chatID, "Usage: /cooked <day> <slot>")
		return
	}
	date, err := b.app.ResolveDate(args[0])
	if err != nil {
		b.replyError(chatID, "Error marking meal", err)
		return
	}
	used, err := b.app.MarkCooked(ctx, date, args[1])
	if err != nil {
		b.replyError(chatID, "Error marking meal", err)
		return
	}
	b.reply(chatID, fmt.Sprintf("👩‍🍳 Nice! %d pantry ingredient(s) saved from the bin.", used))
}

func (b *Bot) handleShiftWeek(ctx context.Context, chatID int64, cmd string) {
	var err error
	if cmd == "next" {
		_, err = b.app.NextWeek(ctx)
	} else {
		_, err = b.app.PreviousWeek(ctx)
	}
	if err != nil {
		b.replyError(chatID, "Error changing week", err)
		return
	}
	b.sendWeek(chatID)
}

// sendList posts the shopping list with one toggle button per item. A
// non-zero messageID edits that message instead.
func (b *Bot) sendList(ctx context.Context, chatID int64, messageID int) {
	st, err := b.app.ShoppingList(ctx)
	if err != nil {
		b.replyError(chatID, "Error building shopping list", err)
		return
	}
	text := formatList(st.List)
	keyboard := listKeyboard(st.List)

	if messageID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		edit.ParseMode = tgbotapi.ModeMarkdown
		if keyboard != nil {
			edit.ReplyMarkup = keyboard
		}
		b.send(chatID, edit)
		return
	}
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeMarkdown
	if keyboard != nil {
		m.ReplyMarkup = *keyboard
	}
	b.send(chatID, m)
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.reply(chatID, "Usage: /check <item number>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		b.reply(chatID, "Usage: /check <item number>")
		return
	}
	if err := b.toggleNumber(ctx, n); err != nil {
		b.replyError(chatID, "Error checking item", err)
		return
	}
	b.sendList(ctx, chatID, 0)
}

func (b *Bot) toggleNumber(ctx context.Context, n int) error {
	st, err := b.app.ShoppingList(ctx)
	if err != nil {
		return err
	}
	items := numberedItems(st.List)
	if n < 1 || n > len(items) {
		return fmt.Errorf("no item number %d", n)
	}
	return b.app.ToggleItem(ctx, items[n-1].ID)
}

func (b *Bot) handleShare(ctx context.Context, chatID int64) {
	text, err := b.app.ShareText(ctx)
	if err != nil {
		b.replyError(chatID, "Error sharing list", err)
		return
	}
	m := tgbotapi.NewMessage(chatID, text)
	b.send(chatID, m)

	link, err := b.app.ShareLink(ctx)
	if errors.Is(err, share.ErrDisabled) {
		return
	}
	if err != nil {
		b.replyError(chatID, "Error creating share link", err)
		return
	}
	b.send(chatID, tgbotapi.NewMessage(chatID, "🔗 "+link))
}

func (b *Bot) handleFavorite(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.reply(chatID, "Usage: /fav <recipe id>")
		return
	}
	added, err := b.app.AddFavorite(ctx, args[0])
	if err != nil {
		b.replyError(chatID, "Error saving favorite", err)
		return
	}
	if !added {
		b.reply(chatID, "⭐ Already in favorites.")
		return
	}
	b.reply(chatID, "⭐ Saved to favorites.")
}

func (b *Bot) handleUnfavorite(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.reply(chatID, "Usage: /unfav <recipe id>")
		return
	}
	if !b.app.RemoveFavorite(ctx, args[0]) {
		b.reply(chatID, "Not in favorites.")
		return
	}
	b.reply(chatID, "Removed from favorites.")
}

func (b *Bot) handleMetricsRequest(ctx context.Context, msg *tgbotapi.Message) {
	if b.cfg.TelegramAdminID == 0 || msg.From.ID != b.cfg.TelegramAdminID {
		b.reply(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
		return
	}
	usage, err := b.app.Usage(ctx, 7)
	if err != nil {
		b.reply(msg.Chat.ID, "❌ Error fetching metrics.")
		return
	}
	b.reply(msg.Chat.ID, formatMetrics(usage, b.app.Health()))
}

// handleCallbackQuery handles inline keyboard presses:
// "day|<date>", "slot|<slot>" and "toggle|<n>".
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Answer callback to remove spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		slog.Warn("Failed to answer callback query", "query_id", query.ID, "error", err)
	}

	if query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID

	action, value, ok := strings.Cut(query.Data, "|")
	if !ok {
		return
	}

	switch action {
	case "toggle":
		n, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		if err := b.toggleNumber(ctx, n); err != nil {
			b.replyError(chatID, "Error checking item", err)
			return
		}
		b.sendList(ctx, chatID, messageID)
	case "day", "slot":
		b.continueAddMeal(ctx, strconv.FormatInt(query.From.ID, 10), chatID, messageID, action, value)
	}
}

func (b *Bot) continueAddMeal(ctx context.Context, userID string, chatID int64, messageID int, action, value string) {
	sess, err := b.sessions.GetActive(ctx, userID)
	if err != nil {
		b.replyError(chatID, "Error loading session", err)
		return
	}
	if sess == nil || sess.SessionType != SessionAddMeal {
		b.send(chatID, tgbotapi.NewEditMessageText(chatID, messageID, "⌛ This request expired. Send /add again."))
		return
	}
	data, err := sess.GetContextData()
	if err != nil {
		b.replyError(chatID, "Error loading session", err)
		return
	}

	switch {
	case action == "day" && sess.State == StatePickDay:
		if _, err := planner.ParseDate(value); err != nil {
			return
		}
		data.Date = value
		if err := b.sessions.Update(ctx, sess.ID, StatePickSlot, data); err != nil {
			b.replyError(chatID, "Error saving session", err)
			return
		}
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID,
			fmt.Sprintf("🍽️ Which meal on %s?", planner.DayName(value)), slotKeyboard())
		b.send(chatID, edit)

	case action == "slot" && sess.State == StatePickSlot:
		slot, date, err := b.app.PlanMeal(ctx, data.Date, value, data.RecipeID)
		if err != nil {
			b.replyError(chatID, "Error planning meal", err)
			return
		}
		if err := b.sessions.Delete(ctx, sess.ID); err != nil {
			slog.Warn("Failed to delete session", "session_id", sess.ID, "error", err)
		}
		b.send(chatID, tgbotapi.NewEditMessageText(chatID, messageID,
			fmt.Sprintf("✅ %s planned for %s %s.", data.RecipeTitle, planner.DayName(date), slot)))
	}
}

const helpText = `🧑‍🍳 *Leftover Chef*

*Pantry*
/pantry egg, rice - add ingredients
/pantry - show ingredients
/pantry remove egg - drop one
/pantry clear - empty the pantry
/search - recipes for your ingredients
/recipe <id> - recipe details
/random - a random recipe

*Plan*
/plan - this week's meals
/add <id> - plan a recipe
/add <day> <slot> <id> - plan directly
/remove <day> <slot> - clear a meal
/cooked <day> <slot> - mark a meal as made
/next, /prev - change week

*Shopping*
/list - shopping list
/check <n> - tick an item
/clear - drop ticked items
/share - share the list

*More*
/fav <id>, /unfav <id>, /favorites
/stats - your impact
Send a recipe URL to import it.`
