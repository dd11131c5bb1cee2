package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMealDBURL     = "https://www.themealdb.com/api/json/v1/1"
	DefaultLookupTimeout = 10 * time.Second
	DefaultLookupWorkers = 4
	DefaultDatabasePath  = "data/leftover-chef.db"
	DefaultShareTTL      = 72 * time.Hour
	DefaultPort          = "8080"
	DefaultStorageDir    = "data/kv"
)

// Storage backends for the key-value records (meal plan, favorites, stats,
// recent ingredients).
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
)

// Config holds the configuration for the application.
type Config struct {
	MealDBURL     string
	LookupTimeout time.Duration
	LookupWorkers int
	DatabasePath  string

	// StorageBackend is StorageSQLite or StorageFile. StorageDir holds one
	// JSON file per key for the file backend.
	StorageBackend string
	StorageDir     string

	WeekStartDay        time.Weekday
	ShoppingKeepChecked bool

	// Share links are disabled when ShareSecret is empty.
	ShareSecret  string
	ShareBaseURL string
	ShareTTL     time.Duration

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	TelegramAdminID        int64

	Port string
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	cfg := &Config{
		MealDBURL:     getEnv("MEALDB_API_URL", DefaultMealDBURL),
		LookupTimeout: DefaultLookupTimeout,
		LookupWorkers: DefaultLookupWorkers,
		DatabasePath:  getEnv("DATABASE_PATH", DefaultDatabasePath),
		StorageDir:    getEnv("STORAGE_DIR", DefaultStorageDir),
		WeekStartDay:  time.Monday,
		ShareTTL:      DefaultShareTTL,
		Port:          getEnv("PORT", DefaultPort),

		ShareSecret:        os.Getenv("SHARE_SECRET"),
		ShareBaseURL:       strings.TrimRight(os.Getenv("SHARE_BASE_URL"), "/"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL: os.Getenv("TELEGRAM_WEBHOOK_URL"),
	}

	if v := os.Getenv("LOOKUP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, invalid("LOOKUP_TIMEOUT", v)
		}
		cfg.LookupTimeout = d
	}

	if v := os.Getenv("LOOKUP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, invalid("LOOKUP_WORKERS", v)
		}
		cfg.LookupWorkers = n
	}

	cfg.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", StorageSQLite))
	if cfg.StorageBackend != StorageSQLite && cfg.StorageBackend != StorageFile {
		return nil, invalid("STORAGE_BACKEND", os.Getenv("STORAGE_BACKEND"))
	}

	if v := os.Getenv("WEEK_START_DAY"); v != "" {
		switch strings.ToLower(v) {
		case "monday":
			cfg.WeekStartDay = time.Monday
		case "sunday":
			cfg.WeekStartDay = time.Sunday
		default:
			return nil, invalid("WEEK_START_DAY", v)
		}
	}

	if v := os.Getenv("SHOPPING_KEEP_CHECKED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, invalid("SHOPPING_KEEP_CHECKED", v)
		}
		cfg.ShoppingKeepChecked = b
	}

	if v := os.Getenv("SHARE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, invalid("SHARE_TTL", v)
		}
		cfg.ShareTTL = d
	}

	// Telegram Config (Optional for CLI, required for Bot)
	if v := os.Getenv("TELEGRAM_ALLOWED_USER_IDS"); v != "" {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, invalid("TELEGRAM_ALLOWED_USER_IDS", v)
			}
			cfg.TelegramAllowedUserIDs = append(cfg.TelegramAllowedUserIDs, id)
		}
	}

	if v := os.Getenv("TELEGRAM_ADMIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, invalid("TELEGRAM_ADMIN_ID", v)
		}
		cfg.TelegramAdminID = id
	}

	return cfg, nil
}

// ShareEnabled reports whether share links can be issued.
func (c *Config) ShareEnabled() bool {
	return c.ShareSecret != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func invalid(key, value string) error {
	return fmt.Errorf("%s environment variable is invalid: %q", key, value)
}
