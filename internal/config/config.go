// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultSlotMinutes    = 30
	defaultMaxWindowDays  = 366
	defaultAuditCron      = "15 3 * * *"
	defaultAuditLookback  = 31
	defaultPhoneRegion    = "US"
	defaultRedisChannel   = "courtdesk:feed"
	defaultFeedBufferSize = 64
	defaultShutdownSecs   = 30
	defaultWritesPerMin   = 120
	defaultWriteBurst     = 20
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	Password string `yaml:"-"` // Loaded from environment
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		// ShutdownTimeoutSeconds bounds graceful shutdown.
		ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`

	Schedule struct {
		SlotMinutes int `yaml:"slot_minutes"`
	} `yaml:"schedule"`

	Reports struct {
		MaxWindowDays int `yaml:"max_window_days"`
	} `yaml:"reports"`

	Ledger struct {
		AuditCron         string `yaml:"audit_cron"`
		AuditLookbackDays int    `yaml:"audit_lookback_days"`
		RepairOnAudit     bool   `yaml:"repair_on_audit"`
	} `yaml:"ledger"`

	Clients struct {
		PhoneRegion string `yaml:"phone_region"`
	} `yaml:"clients"`

	Feed struct {
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"feed"`

	Redis RedisConfig `yaml:"redis"`

	RateLimit struct {
		Enabled         bool `yaml:"enabled"`
		WritesPerMinute int  `yaml:"writes_per_minute"`
		Burst           int  `yaml:"burst"`
		TrustProxy      bool `yaml:"trust_proxy"`
	} `yaml:"rate_limit"`

	Features struct {
		EnableMetrics bool `yaml:"enable_metrics"`
		EnableDebug   bool `yaml:"enable_debug"`
	} `yaml:"features"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Load sensitive values from environment
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and fills defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.ShutdownTimeoutSeconds == 0 {
		c.App.ShutdownTimeoutSeconds = defaultShutdownSecs
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Schedule.SlotMinutes == 0 {
		c.Schedule.SlotMinutes = defaultSlotMinutes
	}
	if c.Reports.MaxWindowDays == 0 {
		c.Reports.MaxWindowDays = defaultMaxWindowDays
	}
	if c.Ledger.AuditCron == "" {
		c.Ledger.AuditCron = defaultAuditCron
	}
	if c.Ledger.AuditLookbackDays == 0 {
		c.Ledger.AuditLookbackDays = defaultAuditLookback
	}
	if c.Clients.PhoneRegion == "" {
		c.Clients.PhoneRegion = defaultPhoneRegion
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = defaultFeedBufferSize
	}
	if c.RateLimit.WritesPerMinute == 0 {
		c.RateLimit.WritesPerMinute = defaultWritesPerMin
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = defaultWriteBurst
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = defaultRedisChannel
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Schedule.SlotMinutes < 5 || c.Schedule.SlotMinutes > 240 || (24*60)%c.Schedule.SlotMinutes != 0 {
		return fmt.Errorf("schedule slot_minutes must divide a day and be between 5 and 240")
	}
	if c.Reports.MaxWindowDays < 1 {
		return fmt.Errorf("reports max_window_days must be positive")
	}
	if c.Ledger.AuditLookbackDays < 1 {
		return fmt.Errorf("ledger audit_lookback_days must be positive")
	}
	if c.Feed.BufferSize < 1 {
		return fmt.Errorf("feed buffer_size must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.WritesPerMinute < 1 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("rate_limit writes_per_minute and burst must be positive")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}

	return nil
}
