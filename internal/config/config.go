// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/subwatch/internal/domain"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir         string // Base directory for the database, always absolute
	LogLevel        string
	DefaultCurrency string
	Rates           RateConfig
	Schedules       ScheduleConfig
	Port            int
	NotifyWorkers   int
	LogPretty       bool
	DevMode         bool
}

// RateConfig configures exchange rate providers and the rate cache
type RateConfig struct {
	PrimaryURL      string
	FallbackURL     string
	WarmBases       []string
	WarmCurrencies  []string
	ProviderTimeout time.Duration
	CacheTTL        time.Duration
	StaleRetention  time.Duration
}

// ScheduleConfig holds six-field cron expressions for background jobs
type ScheduleConfig struct {
	RenewalAlerts  string
	MonthlySummary string
	RateWarmup     string
	CachePrune     string
}

// DatabasePath returns the SQLite file location
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "subwatch.db")
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvAsBool("LOG_PRETTY", true),
		Port:            getEnvAsInt("PORT", 8080),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "USD"),
		NotifyWorkers:   getEnvAsInt("NOTIFY_CONCURRENCY", 4),
		Rates: RateConfig{
			PrimaryURL:      getEnv("RATE_PRIMARY_URL", "https://api.exchangerate-api.com/v4/latest"),
			FallbackURL:     getEnv("RATE_FALLBACK_URL", "https://api.frankfurter.app"),
			ProviderTimeout: getEnvAsDuration("RATE_PROVIDER_TIMEOUT", 10*time.Second),
			CacheTTL:        getEnvAsDuration("RATE_CACHE_TTL", time.Hour),
			StaleRetention:  getEnvAsDuration("RATE_STALE_RETENTION", 48*time.Hour),
			WarmBases:       getEnvAsList("RATE_WARM_BASES", []string{"USD", "EUR"}),
			WarmCurrencies:  getEnvAsList("RATE_WARM_CURRENCIES", []string{"USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CHF"}),
		},
		Schedules: ScheduleConfig{
			RenewalAlerts:  getEnv("SCHEDULE_RENEWAL_ALERTS", "0 0 9 * * *"),
			MonthlySummary: getEnv("SCHEDULE_MONTHLY_SUMMARY", "0 0 8 * * *"),
			RateWarmup:     getEnv("SCHEDULE_RATE_WARMUP", "0 */30 * * * *"),
			CachePrune:     getEnv("SCHEDULE_CACHE_PRUNE", "0 0 3 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present.
// Returned errors are *domain.ConfigurationError.
func (c *Config) Validate() error {
	if err := validateEndpoint("RATE_PRIMARY_URL", c.Rates.PrimaryURL); err != nil {
		return err
	}
	if err := validateEndpoint("RATE_FALLBACK_URL", c.Rates.FallbackURL); err != nil {
		return err
	}
	if c.Rates.ProviderTimeout <= 0 {
		return &domain.ConfigurationError{Key: "RATE_PROVIDER_TIMEOUT", Reason: "must be positive"}
	}
	if c.Rates.CacheTTL <= 0 {
		return &domain.ConfigurationError{Key: "RATE_CACHE_TTL", Reason: "must be positive"}
	}
	if c.Rates.StaleRetention <= 0 {
		return &domain.ConfigurationError{Key: "RATE_STALE_RETENTION", Reason: "must be positive"}
	}

	code, err := domain.ParseCurrency(c.DefaultCurrency)
	if err != nil {
		return &domain.ConfigurationError{Key: "DEFAULT_CURRENCY", Reason: err.Error()}
	}
	c.DefaultCurrency = code

	if c.Port <= 0 || c.Port > 65535 {
		return &domain.ConfigurationError{Key: "PORT", Reason: "must be between 1 and 65535"}
	}
	if c.NotifyWorkers <= 0 {
		return &domain.ConfigurationError{Key: "NOTIFY_CONCURRENCY", Reason: "must be positive"}
	}
	return nil
}

func validateEndpoint(key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &domain.ConfigurationError{Key: key, Reason: "provider endpoint is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &domain.ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid provider endpoint %q", raw)}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration parses Go durations ("90s", "1h"). Unparseable values return 0
// so Validate reports them instead of silently using the default.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

// getEnvAsList splits a comma-separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, strings.ToUpper(item))
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
