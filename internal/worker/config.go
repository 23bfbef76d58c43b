// Package worker runs forecast sync cycles in the background: on a fixed
// schedule, on Pub/Sub request and on demand through the API.
package worker

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/forecastsync/forecastsync/internal/weather"
)

// Config holds the worker configuration.
type Config struct {
	// Port serves the ops and API endpoints. Default: 8080
	Port string

	// Env is the deployment environment. Default: development
	Env string

	// LogLevel is a zerolog level name. Default: info
	LogLevel zerolog.Level

	// Endpoints are the provider base URLs and keys.
	Endpoints weather.Endpoints

	// SyncInterval is the period of the scheduled sync. Default: 3 hours
	SyncInterval time.Duration

	// SyncTimeout bounds one sync cycle. Default: 60 seconds
	SyncTimeout time.Duration

	// FetchTimeout bounds each provider request. Default: 10 seconds
	FetchTimeout time.Duration

	// SyncOnStart runs a cycle right after startup instead of waiting one interval.
	// Default: true
	SyncOnStart bool

	// PersistAviation stores each fetched METAR observation. Default: false
	PersistAviation bool

	// DefaultLocation seeds the preferred location name. Default: London
	DefaultLocation string

	// NotificationsEnabled seeds the notification preference. Default: true
	NotificationsEnabled bool

	// Pub/Sub settings. The subscriber and the notification publisher are only
	// started when ProjectID and the respective name are set.
	PubSubProjectID    string
	PubSubSubscription string
	PubSubNotifyTopic  string

	// DBEnabled switches the stores from memory to PostgreSQL.
	DBEnabled bool
}

// LoadDotEnv loads variables from .env files into the environment. Missing files
// are not an error; variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() (Config, error) {
	var err error
	cfg := Config{
		Port:               getEnvOrDefault("APP_PORT", "8080"),
		Env:                getEnvOrDefault("APP_ENV", "development"),
		DefaultLocation:    getEnvOrDefault("DEFAULT_LOCATION", "London"),
		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
		PubSubNotifyTopic:  os.Getenv("PUBSUB_NOTIFY_TOPIC"),
		Endpoints: weather.Endpoints{
			ForecastBaseURL: getEnvOrDefault("FORECAST_BASE_URL", weather.DefaultForecastBaseURL),
			MetarBaseURL:    getEnvOrDefault("METAR_BASE_URL", weather.DefaultMetarBaseURL),
			TAFBaseURL:      getEnvOrDefault("TAF_BASE_URL", weather.DefaultTAFBaseURL),
			ForecastAPIKey:  os.Getenv("FORECAST_API_KEY"),
			AviationAPIKey:  os.Getenv("AVIATION_API_KEY"),
		},
	}

	if cfg.LogLevel, err = zerolog.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info")); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if cfg.Endpoints.DayCount, err = strconv.Atoi(getEnvOrDefault("FORECAST_DAY_COUNT", strconv.Itoa(weather.DefaultDayCount))); err != nil {
		return Config{}, fmt.Errorf("invalid FORECAST_DAY_COUNT: %w", err)
	}
	if cfg.SyncInterval, err = time.ParseDuration(getEnvOrDefault("SYNC_INTERVAL", "3h")); err != nil {
		return Config{}, fmt.Errorf("invalid SYNC_INTERVAL: %w", err)
	}
	if cfg.SyncTimeout, err = time.ParseDuration(getEnvOrDefault("SYNC_TIMEOUT", "60s")); err != nil {
		return Config{}, fmt.Errorf("invalid SYNC_TIMEOUT: %w", err)
	}
	if cfg.FetchTimeout, err = time.ParseDuration(getEnvOrDefault("FETCH_TIMEOUT", "10s")); err != nil {
		return Config{}, fmt.Errorf("invalid FETCH_TIMEOUT: %w", err)
	}
	if cfg.SyncOnStart, err = strconv.ParseBool(getEnvOrDefault("SYNC_ON_START", "true")); err != nil {
		return Config{}, fmt.Errorf("invalid SYNC_ON_START: %w", err)
	}
	if cfg.PersistAviation, err = strconv.ParseBool(getEnvOrDefault("PERSIST_AVIATION", "false")); err != nil {
		return Config{}, fmt.Errorf("invalid PERSIST_AVIATION: %w", err)
	}
	if cfg.NotificationsEnabled, err = strconv.ParseBool(getEnvOrDefault("NOTIFICATIONS_ENABLED", "true")); err != nil {
		return Config{}, fmt.Errorf("invalid NOTIFICATIONS_ENABLED: %w", err)
	}
	if cfg.DBEnabled, err = strconv.ParseBool(getEnvOrDefault("DB_ENABLED", "false")); err != nil {
		return Config{}, fmt.Errorf("invalid DB_ENABLED: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	if c.SyncInterval < time.Minute {
		return fmt.Errorf("SYNC_INTERVAL must be at least 1m, got %s", c.SyncInterval)
	}
	if c.SyncTimeout <= 0 {
		return errors.New("SYNC_TIMEOUT must be positive")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("FETCH_TIMEOUT must be positive")
	}
	if c.Endpoints.DayCount < 1 || c.Endpoints.DayCount > 16 {
		return fmt.Errorf("FORECAST_DAY_COUNT must be between 1 and 16, got %d", c.Endpoints.DayCount)
	}
	if _, err := weather.NewURLBuilder(c.Endpoints); err != nil {
		return err
	}
	return nil
}

// PubSubEnabled reports whether the trigger subscription is configured.
func (c Config) PubSubEnabled() bool {
	return c.PubSubProjectID != "" && c.PubSubSubscription != ""
}

// NotifyTopicEnabled reports whether notifications are published to Pub/Sub.
func (c Config) NotifyTopicEnabled() bool {
	return c.PubSubProjectID != "" && c.PubSubNotifyTopic != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
