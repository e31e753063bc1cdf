// Package config loads service configuration from the environment and an optional .env file
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the root configuration of the rate engine
type Config struct {
	HTTPPort string `envconfig:"APP_PORT" default:"8080"`
	DataDir  string `envconfig:"DATA_DIR" default:"./data"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`
	MockMode bool   `envconfig:"MOCK_MODE" default:"false"`

	Provider ProviderConfig `envconfig:"PROVIDER"`
	Cache    CacheConfig    `envconfig:"CACHE"`
	History  HistoryConfig  `envconfig:"HISTORY"`
}

// ProviderConfig configures the remote rate provider
type ProviderConfig struct {
	BaseURL      string        `envconfig:"BASE_URL" default:"https://api.exchangerate.host"`
	APIKey       string        `envconfig:"API_KEY"`
	BaseCurrency string        `envconfig:"BASE_CURRENCY" default:"USD"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"10s"`
	MaxAttempts  int           `envconfig:"MAX_ATTEMPTS" default:"2"`
	RetryBackoff time.Duration `envconfig:"RETRY_BACKOFF" default:"500ms"`
}

// CacheConfig configures latest-rate expiry and background refresh
type CacheConfig struct {
	MarketOpenHour     int           `envconfig:"MARKET_OPEN_HOUR" default:"8"`
	MarketCloseHour    int           `envconfig:"MARKET_CLOSE_HOUR" default:"20"`
	MarketHoursExpiry  time.Duration `envconfig:"MARKET_HOURS_EXPIRY" default:"1h"`
	OffHoursExpiry     time.Duration `envconfig:"OFF_HOURS_EXPIRY" default:"2h"`
	StaleAfter         time.Duration `envconfig:"STALE_AFTER" default:"30m"`
	BackgroundCooldown time.Duration `envconfig:"BACKGROUND_COOLDOWN" default:"5m"`
	BackgroundTimeout  time.Duration `envconfig:"BACKGROUND_TIMEOUT" default:"15s"`
	Timezone           string        `envconfig:"TIMEZONE" default:"Local"`
}

// HistoryConfig configures the rolling historical cache
type HistoryConfig struct {
	MaxDays          int `envconfig:"MAX_DAYS" default:"365"`
	PerDayThreshold  int `envconfig:"PER_DAY_THRESHOLD" default:"3"`
	FetchConcurrency int `envconfig:"CONCURRENCY" default:"4"`
}

// Load reads the optional env files, then the process environment
func Load(envFiles ...string) (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location resolves the market-hours timezone
func (c CacheConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid cache timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks the cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	var errs []error

	if c.Provider.Timeout <= 0 {
		errs = append(errs, errors.New("provider timeout must be positive"))
	}
	if c.Provider.MaxAttempts < 1 {
		errs = append(errs, errors.New("provider max attempts must be at least 1"))
	}
	if len(c.Provider.BaseCurrency) != 3 {
		errs = append(errs, fmt.Errorf("base currency %q is not a 3-letter code", c.Provider.BaseCurrency))
	}

	cache := c.Cache
	if cache.MarketOpenHour < 0 || cache.MarketCloseHour > 24 || cache.MarketOpenHour >= cache.MarketCloseHour {
		errs = append(errs, fmt.Errorf("market hours %d-%d are not a valid window", cache.MarketOpenHour, cache.MarketCloseHour))
	}
	if cache.MarketHoursExpiry <= 0 || cache.OffHoursExpiry <= 0 {
		errs = append(errs, errors.New("cache expiry thresholds must be positive"))
	}
	if cache.StaleAfter <= 0 || cache.StaleAfter >= cache.MarketHoursExpiry || cache.StaleAfter >= cache.OffHoursExpiry {
		errs = append(errs, fmt.Errorf("stale threshold %s must be positive and shorter than both expiry thresholds", cache.StaleAfter))
	}
	if cache.BackgroundCooldown < 0 || cache.BackgroundTimeout <= 0 {
		errs = append(errs, errors.New("background refresh cooldown and timeout must not be negative"))
	}
	if _, err := cache.Location(); err != nil {
		errs = append(errs, err)
	}

	if c.History.MaxDays < 1 {
		errs = append(errs, errors.New("history max days must be at least 1"))
	}
	if c.History.PerDayThreshold < 0 || c.History.FetchConcurrency < 1 {
		errs = append(errs, errors.New("history per-day threshold must not be negative and concurrency must be at least 1"))
	}

	return errors.Join(errs...)
}
