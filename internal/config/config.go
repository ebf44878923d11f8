// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver        string `yaml:"driver"`
	Filename      string `yaml:"filename"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

type BookingConfig struct {
	// TimeZone is the IANA zone in which reservation days and start times are expressed.
	TimeZone       string `yaml:"time_zone"`
	HorizonHours   int    `yaml:"horizon_hours"`
	RequestTimeout string `yaml:"request_timeout"`
	MaxAttempts    int    `yaml:"max_attempts"`
}

type EmailConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Sender          string `yaml:"sender"`
	AccessKeyID     string `yaml:"-"` // Loaded from environment
	SecretAccessKey string `yaml:"-"` // Loaded from environment
}

type SchedulerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	PruneCron     string `yaml:"prune_cron"`
	RetentionDays int    `yaml:"retention_days"`
}

type RateLimitConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MemberPerMinute float64 `yaml:"member_per_minute"`
	IPPerMinute     float64 `yaml:"ip_per_minute"`
	Burst           int     `yaml:"burst"`
	TrustProxy      bool    `yaml:"trust_proxy"`
}

type Config struct {
	App struct {
		Name            string `yaml:"name"`
		Environment     string `yaml:"environment"`
		Port            int    `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Booking   BookingConfig   `yaml:"booking"`
	Email     EmailConfig     `yaml:"email"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
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
	cfg.Email.AccessKeyID = os.Getenv("AWS_SES_ACCESS_KEY_ID")
	cfg.Email.SecretAccessKey = os.Getenv("AWS_SES_SECRET_ACCESS_KEY")
	if port := os.Getenv("PORT"); port != "" {
		if _, err := fmt.Sscanf(port, "%d", &cfg.App.Port); err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
	}
	if filename := os.Getenv("DATABASE_FILENAME"); filename != "" {
		cfg.Database.Filename = filename
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration and fills defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.ShutdownTimeout == "" {
		c.App.ShutdownTimeout = "30s"
	}
	if c.Booking.TimeZone == "" {
		c.Booking.TimeZone = "Europe/Madrid"
	}
	if c.Booking.HorizonHours == 0 {
		c.Booking.HorizonHours = 24
	}
	if c.Booking.RequestTimeout == "" {
		c.Booking.RequestTimeout = "5s"
	}
	if c.Booking.MaxAttempts == 0 {
		c.Booking.MaxAttempts = 2
	}
	if c.Scheduler.PruneCron == "" {
		c.Scheduler.PruneCron = "15 3 * * *"
	}
	if c.Scheduler.RetentionDays == 0 {
		c.Scheduler.RetentionDays = 90
	}
	if c.RateLimit.MemberPerMinute == 0 {
		c.RateLimit.MemberPerMinute = 10
	}
	if c.RateLimit.IPPerMinute == 0 {
		c.RateLimit.IPPerMinute = 60
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 5
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if _, err := time.ParseDuration(c.App.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if _, err := time.LoadLocation(c.Booking.TimeZone); err != nil {
		return fmt.Errorf("invalid booking time zone: %w", err)
	}
	if c.Booking.HorizonHours < 0 {
		return fmt.Errorf("booking horizon must not be negative")
	}
	if d, err := time.ParseDuration(c.Booking.RequestTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid booking request timeout %q", c.Booking.RequestTimeout)
	}
	if c.Booking.MaxAttempts < 1 {
		return fmt.Errorf("booking max attempts must be at least 1")
	}

	if c.Email.Enabled {
		if c.Email.Region == "" || c.Email.Sender == "" {
			return fmt.Errorf("email region and sender are required when email is enabled")
		}
		if c.Email.AccessKeyID == "" || c.Email.SecretAccessKey == "" {
			return fmt.Errorf("ses credentials are required when email is enabled")
		}
	}

	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.PruneCron); err != nil {
			return fmt.Errorf("invalid prune cron %q: %w", c.Scheduler.PruneCron, err)
		}
		if c.Scheduler.RetentionDays < 1 {
			return fmt.Errorf("retention days must be at least 1")
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MemberPerMinute <= 0 || c.RateLimit.IPPerMinute <= 0 {
			return fmt.Errorf("rate limits must be positive")
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("rate limit burst must be at least 1")
		}
	}

	return nil
}

// Location returns the club time zone. Validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Horizon() time.Duration {
	return time.Duration(c.Booking.HorizonHours) * time.Hour
}

func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Booking.RequestTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

func (c *Config) ShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.App.ShutdownTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
