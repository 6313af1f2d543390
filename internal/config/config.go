// Package config loads runtime configuration from environment variables and
// an optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendBigQuery = "bigquery"
	BackendSQLite   = "sqlite"
)

// Config is the application configuration.
type Config struct {
	Store   StoreConfig
	Redis   RedisConfig
	Gemini  GeminiConfig
	Archive ArchiveConfig
	API     APIConfig

	// RulesFile, when set, loads automation rules from a YAML file instead of the store.
	RulesFile string
	TimeZone  string
	LogLevel  string

	RulesCacheTTL   time.Duration
	BalanceCacheTTL time.Duration
}

// StoreConfig selects and locates the record store.
type StoreConfig struct {
	Backend    string
	ProjectID  string
	Dataset    string
	SQLitePath string
}

// RedisConfig locates the cache. An empty URL disables caching.
type RedisConfig struct {
	URL      string
	Password string
}

// GeminiConfig configures the extractor.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// ArchiveConfig names the bucket raw messages are archived to. Empty disables archiving.
type ArchiveConfig struct {
	Bucket string
}

// APIConfig configures the HTTP front-end.
type APIConfig struct {
	Port   string
	APIKey string
	AppURL string
}

// Load reads configuration from the environment. It loads the .env file at
// envPath when given, otherwise ./.env if present.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	rulesTTL, err := parseDurationEnv("RULES_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	balanceTTL, err := parseDurationEnv("BALANCE_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Store: StoreConfig{
			Backend:    strings.ToLower(getEnvOrDefault("STORE_BACKEND", BackendSQLite)),
			ProjectID:  getEnvOrDefault("GCP_PROJECT_ID", os.Getenv("GOOGLE_CLOUD_PROJECT")),
			Dataset:    getEnvOrDefault("BQ_DATASET", "expenses"),
			SQLitePath: getEnvOrDefault("SQLITE_PATH", "./expenses.db"),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  os.Getenv("GEMINI_MODEL"),
		},
		Archive: ArchiveConfig{
			Bucket: os.Getenv("ARCHIVE_BUCKET"),
		},
		API: APIConfig{
			Port:   getEnvOrDefault("PORT", "8080"),
			APIKey: os.Getenv("API_KEY"),
			AppURL: os.Getenv("APP_URL"),
		},
		RulesFile:       os.Getenv("RULES_FILE"),
		TimeZone:        getEnvOrDefault("TIME_ZONE", "America/Bogota"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		RulesCacheTTL:   rulesTTL,
		BalanceCacheTTL: balanceTTL,
	}

	switch cfg.Store.Backend {
	case BackendBigQuery, BackendSQLite:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q: want %s or %s", cfg.Store.Backend, BackendBigQuery, BackendSQLite)
	}

	return cfg, nil
}

// Validate checks that every named setting is present. Names are
// section.field keys such as "gemini.apiKey"; the selected store backend
// is always checked.
func (c *Config) Validate(required ...string) error {
	var missing []string
	if c.Store.Backend == BackendBigQuery && c.Store.ProjectID == "" {
		missing = append(missing, "store.projectId")
	}
	for _, key := range required {
		if c.value(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}
	return nil
}

func (c *Config) value(key string) string {
	switch key {
	case "store.projectId":
		return c.Store.ProjectID
	case "store.dataset":
		return c.Store.Dataset
	case "store.sqlitePath":
		return c.Store.SQLitePath
	case "redis.url":
		return c.Redis.URL
	case "gemini.apiKey":
		return c.Gemini.APIKey
	case "archive.bucket":
		return c.Archive.Bucket
	case "api.apiKey":
		return c.API.APIKey
	case "api.port":
		return c.API.Port
	}
	return ""
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
