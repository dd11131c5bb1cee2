package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"leftover-chef/internal/clipper"
	"leftover-chef/internal/config"
	"leftover-chef/internal/database"
	"leftover-chef/internal/favorites"
	"leftover-chef/internal/mealdb"
	"leftover-chef/internal/metrics"
	"leftover-chef/internal/pantry"
	"leftover-chef/internal/planner"
	"leftover-chef/internal/recipe"
	"leftover-chef/internal/share"
	"leftover-chef/internal/shopping"
	"leftover-chef/internal/stats"
	"leftover-chef/internal/storage"
)

// App holds the application's dependencies and the operations both front
// ends call.
type App struct {
	cfg     *config.Config
	db      *database.DB
	started time.Time

	mealDB       mealdb.Client
	recipeRepo   *recipe.Repository
	resolver     *recipe.Resolver
	metricsStore *metrics.Store
	recorder     *metrics.Recorder

	plan      *planner.Store
	lists     *shopping.Repository
	shopping  *shopping.Service
	pantry    *pantry.Pantry
	favorites *favorites.Store
	stats     *stats.Store
	clipper   *clipper.Clipper
	share     *share.Manager
}

// Open initializes the database, metrics and the TheMealDB client from cfg.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	metricsStore := metrics.NewStore(db.SQL)
	recorder := metrics.NewRecorder(metricsStore)
	client := mealdb.NewClient(cfg, mealdb.WithObserver(recorder))

	a, err := NewApp(ctx, cfg, db, client, recorder)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.metricsStore = metricsStore
	return a, nil
}

// newKV opens the key-value backend named by cfg.StorageBackend. An empty
// backend means sqlite.
func newKV(cfg *config.Config, db *database.DB) (storage.KV, error) {
	switch cfg.StorageBackend {
	case "", config.StorageSQLite:
		return storage.NewSQLStore(db.SQL), nil
	case config.StorageFile:
		kv, err := storage.NewFileStore(cfg.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open file storage: %w", err)
		}
		slog.Info("Using file storage", "dir", cfg.StorageDir)
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// NewApp creates and initializes a new App instance over an open database.
func NewApp(ctx context.Context, cfg *config.Config, db *database.DB, client mealdb.Client, recorder *metrics.Recorder) (*App, error) {
	kv, err := newKV(cfg, db)
	if err != nil {
		return nil, err
	}
	recipeRepo := recipe.NewRepository(db.SQL)
	resolver := recipe.NewResolver(recipeRepo, client)

	plan, err := planner.NewStore(ctx, kv, planner.WithFirstDay(cfg.WeekStartDay))
	if err != nil {
		return nil, fmt.Errorf("failed to load meal plan: %w", err)
	}

	favs, err := favorites.NewStore(ctx, kv)
	if err != nil {
		return nil, err
	}
	st, err := stats.NewStore(ctx, kv)
	if err != nil {
		return nil, err
	}
	pan, err := pantry.New(ctx, kv, client, resolver, cfg.LookupWorkers)
	if err != nil {
		return nil, err
	}

	lists := shopping.NewRepository(db.SQL)
	var serviceOpts []shopping.ServiceOption
	if recorder != nil {
		serviceOpts = append(serviceOpts, shopping.WithGenerationObserver(recorder))
	}
	svc := shopping.NewService(
		shopping.NewAggregator(resolver, shopping.WithWorkers(cfg.LookupWorkers)),
		plan,
		shopping.NewTracker(shopping.WithKeepChecked(cfg.ShoppingKeepChecked)),
		lists,
		serviceOpts...,
	)

	a := &App{
		cfg:        cfg,
		db:         db,
		started:    time.Now(),
		mealDB:     client,
		recipeRepo: recipeRepo,
		resolver:   resolver,
		recorder:   recorder,
		plan:       plan,
		lists:      lists,
		shopping:   svc,
		pantry:     pan,
		favorites:  favs,
		stats:      st,
		clipper:    clipper.NewClipper(recipeRepo),
		share:      share.NewManager(cfg.ShareSecret, cfg.ShareBaseURL, cfg.ShareTTL),
	}

	if ok, err := svc.Restore(ctx, plan.SelectedWeekStart()); err != nil {
		slog.Warn("Failed to restore shopping list", "week_start", plan.SelectedWeekStart(), "error", err)
	} else if ok {
		slog.Info("Restored shopping list", "week_start", plan.SelectedWeekStart())
	}
	return a, nil
}

// Close closes the database connection.
func (a *App) Close() error {
	return a.db.Close()
}

// Run keeps the shopping list in step with the meal plan and feeds plan
// changes into metrics. It blocks until ctx is done.
func (a *App) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.shopping.Follow(ctx, a.plan)
	}()

	if a.recorder != nil {
		changes, cancel := a.plan.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case c, ok := <-changes:
					if !ok {
						return
					}
					a.recorder.ObservePlanChange(string(c.Kind))
				}
			}
		}()
	}
	wg.Wait()
}

// DB returns the underlying SQL connection for front-end owned tables.
func (a *App) DB() *sql.DB { return a.db.SQL }

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Plan returns the meal plan store.
func (a *App) Plan() *planner.Store { return a.plan }

// Pantry returns the ingredient list.
func (a *App) Pantry() *pantry.Pantry { return a.pantry }

// Recorder returns the metrics recorder, or nil if metrics are disabled.
func (a *App) Recorder() *metrics.Recorder { return a.recorder }

// ShoppingLists returns the saved shopping list repository.
func (a *App) ShoppingLists() *shopping.Repository { return a.lists }

// ShareManager returns the share link manager.
func (a *App) ShareManager() *share.Manager { return a.share }

// Health reports process health and the size of the data directory.
func (a *App) Health() metrics.SysHealth {
	return metrics.GetSysHealth(filepath.Dir(a.cfg.DatabasePath), a.started)
}

// Usage returns recipe API usage for the last days. It is empty when the
// request log is not kept.
func (a *App) Usage(ctx context.Context, days int) ([]metrics.DailyUsage, error) {
	if a.metricsStore == nil {
		return nil, nil
	}
	return a.metricsStore.GetDailyUsage(ctx, days)
}

// CleanupMetrics removes request log rows older than days.
func (a *App) CleanupMetrics(ctx context.Context, days int) (int64, error) {
	if a.metricsStore == nil {
		return 0, nil
	}
	return a.metricsStore.Cleanup(ctx, days)
}
