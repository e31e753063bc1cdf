package service

import (
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/config"
	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/cache"
)

// Options tunes a RateService. Zero values fall back to the defaults below.
type Options struct {
	BaseCurrency       string
	Expiry             cache.ExpiryPolicy
	BackgroundCooldown time.Duration
	BackgroundTimeout  time.Duration

	// Calendar decides which calendar day "yesterday" is
	Calendar *time.Location

	HistoryMaxDays   int
	PerDayThreshold  int
	FetchConcurrency int

	MockMode bool

	// Now is the service clock
	Now func() time.Time
}

// DefaultOptions returns a USD-based configuration with the market-hours expiry policy
func DefaultOptions() Options {
	return Options{
		BaseCurrency:       "USD",
		Expiry:             cache.DefaultExpiryPolicy(),
		BackgroundCooldown: 5 * time.Minute,
		BackgroundTimeout:  15 * time.Second,
		Calendar:           time.UTC,
		HistoryMaxDays:     365,
		PerDayThreshold:    3,
		FetchConcurrency:   4,
		Now:                time.Now,
	}
}

// OptionsFromConfig maps the loaded configuration onto service options
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	loc, err := cfg.Cache.Location()
	if err != nil {
		return Options{}, err
	}

	opts := DefaultOptions()
	opts.BaseCurrency = entity.NormalizeCode(cfg.Provider.BaseCurrency)
	opts.Expiry = cache.ExpiryPolicy{
		MarketOpenHour:    cfg.Cache.MarketOpenHour,
		MarketCloseHour:   cfg.Cache.MarketCloseHour,
		MarketHoursExpiry: cfg.Cache.MarketHoursExpiry,
		OffHoursExpiry:    cfg.Cache.OffHoursExpiry,
		StaleAfter:        cfg.Cache.StaleAfter,
		Location:          loc,
	}
	opts.BackgroundCooldown = cfg.Cache.BackgroundCooldown
	opts.BackgroundTimeout = cfg.Cache.BackgroundTimeout
	opts.HistoryMaxDays = cfg.History.MaxDays
	opts.PerDayThreshold = cfg.History.PerDayThreshold
	opts.FetchConcurrency = cfg.History.FetchConcurrency
	opts.MockMode = cfg.MockMode

	return opts, nil
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()

	if o.BaseCurrency == "" {
		o.BaseCurrency = def.BaseCurrency
	}
	if o.Expiry.MarketHoursExpiry == 0 && o.Expiry.OffHoursExpiry == 0 {
		o.Expiry = def.Expiry
	}
	if o.BackgroundTimeout <= 0 {
		o.BackgroundTimeout = def.BackgroundTimeout
	}
	if o.Calendar == nil {
		o.Calendar = def.Calendar
	}
	if o.HistoryMaxDays <= 0 {
		o.HistoryMaxDays = def.HistoryMaxDays
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = def.FetchConcurrency
	}
	if o.Now == nil {
		o.Now = def.Now
	}

	return o
}
