package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Referral    ReferralConfig    `yaml:"referral"`
	Enforcement EnforcementConfig `yaml:"enforcement"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ReferralConfig holds the defaults for new books and the hall-wide
// procedural rules that are not per-book.
type ReferralConfig struct {
	ReSignIntervalDays int `yaml:"re_sign_interval_days"`
	GraceDays          int `yaml:"grace_days"`
	MaxCheckMarks      int `yaml:"max_check_marks"`
	MaxExemptionDays   int `yaml:"max_exemption_days"`
	ShortCallHours     int `yaml:"short_call_hours"`
	BlackoutDays       int `yaml:"blackout_days"`

	// Bidding window: bids open in the evening and close early morning.
	BidWindowOpenHour  int `yaml:"bid_window_open_hour"`
	BidWindowCloseHour int `yaml:"bid_window_close_hour"`
	MorningCutoffHour  int `yaml:"morning_cutoff_hour"`

	BidRejectionLimit       int `yaml:"bid_rejection_limit"`
	BidRejectionWindowDays  int `yaml:"bid_rejection_window_days"`
	CollusionThreshold      int `yaml:"collusion_threshold"`
	CollusionWindowDays     int `yaml:"collusion_window_days"`
	EarlyStartCheckMarkHour int `yaml:"early_start_check_mark_hour"`
}

// EnforcementConfig holds the sweep scheduler configuration.
type EnforcementConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron expression
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every field at its default value.
// Used by tests and as the fallback when no config file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 20
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}

	r := &cfg.Referral
	if r.ReSignIntervalDays <= 0 {
		r.ReSignIntervalDays = 30
	}
	if r.GraceDays <= 0 {
		r.GraceDays = 5
	}
	if r.MaxCheckMarks <= 0 {
		r.MaxCheckMarks = 3
	}
	if r.MaxExemptionDays <= 0 {
		r.MaxExemptionDays = 90
	}
	if r.ShortCallHours <= 0 {
		r.ShortCallHours = 80 // two work weeks
	}
	if r.BlackoutDays <= 0 {
		r.BlackoutDays = 14
	}
	if r.BidWindowOpenHour <= 0 {
		r.BidWindowOpenHour = 18
	}
	if r.BidWindowCloseHour <= 0 {
		r.BidWindowCloseHour = 6
	}
	if r.MorningCutoffHour <= 0 {
		r.MorningCutoffHour = 9
	}
	if r.BidRejectionLimit <= 0 {
		r.BidRejectionLimit = 2
	}
	if r.BidRejectionWindowDays <= 0 {
		r.BidRejectionWindowDays = 365
	}
	if r.CollusionThreshold <= 0 {
		r.CollusionThreshold = 3
	}
	if r.CollusionWindowDays <= 0 {
		r.CollusionWindowDays = 90
	}
	if r.EarlyStartCheckMarkHour <= 0 {
		r.EarlyStartCheckMarkHour = 6
	}

	if cfg.Enforcement.Schedule == "" {
		cfg.Enforcement.Schedule = "0 2 * * *" // nightly at 02:00
	}
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Referral.BidWindowOpenHour == cfg.Referral.BidWindowCloseHour {
		return fmt.Errorf("bidding window open and close hours must differ")
	}
	return nil
}

// ConnMaxLifetime returns the configured connection lifetime as a duration.
func (d *DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeMinutes) * time.Minute
}
