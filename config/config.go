/*
Package config loads service-level configuration.

PURPOSE:
  Installation-wide knobs for the compliance engine: HTTP port, database
  path, notification delivery, digest calendar, retention. Loaded from
  defaults, an optional YAML file, and COMPLIANCE_-prefixed environment
  variables, in increasing precedence.

SCOPE:
  Per-course recompletion policy is NOT configuration; it lives in the
  settings table and is managed through the API. This package covers
  only what an operator sets once per deployment.

USAGE:
  cfg, err := config.Load("")            // defaults + env
  cfg, err := config.Load("config.yaml") // plus a file
*/
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config carries all service-level settings.
type Config struct {
	Port   int    `mapstructure:"port"`
	DBPath string `mapstructure:"db_path"`

	// BaseURL is the host platform root used in email links.
	BaseURL string `mapstructure:"base_url"`

	// Email delivery. Backend is "console" or "sendgrid"; sendgrid
	// requires a key.
	EmailBackend string `mapstructure:"email_backend"`
	SendgridKey  string `mapstructure:"sendgrid_key"`
	FromName     string `mapstructure:"from_name"`
	FromEmail    string `mapstructure:"from_email"`

	// ThirdPartyEmail, when set, receives a prefixed copy of every
	// notification.
	ThirdPartyEmail string `mapstructure:"third_party_email"`
	ThirdPartyName  string `mapstructure:"third_party_name"`

	// Notification calendar.
	NotifyHour int    `mapstructure:"notify_hour"`
	BulkDay1   int    `mapstructure:"bulk_day1"`
	BulkDay2   int    `mapstructure:"bulk_day2"`
	Timezone   string `mapstructure:"timezone"`

	// RetentionDays bounds how long synced export rows are kept.
	RetentionDays int `mapstructure:"retention_days"`

	// Scheduler cadence.
	CheckInterval time.Duration `mapstructure:"check_interval"`
	DailyInterval time.Duration `mapstructure:"daily_interval"`
}

// Load reads configuration from defaults, the optional file at path,
// and COMPLIANCE_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "compliance.db")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("email_backend", "console")
	v.SetDefault("sendgrid_key", "")
	v.SetDefault("from_name", "Compliance Engine")
	v.SetDefault("from_email", "noreply@localhost")
	v.SetDefault("third_party_email", "")
	v.SetDefault("third_party_name", "")
	v.SetDefault("notify_hour", 0)
	v.SetDefault("bulk_day1", 1)
	v.SetDefault("bulk_day2", 15)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("retention_days", 30)
	v.SetDefault("check_interval", time.Hour)
	v.SetDefault("daily_interval", 24*time.Hour)

	v.SetEnvPrefix("COMPLIANCE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.EmailBackend != "console" && c.EmailBackend != "sendgrid" {
		return fmt.Errorf("unknown email backend %q", c.EmailBackend)
	}
	if c.EmailBackend == "sendgrid" && c.SendgridKey == "" {
		return fmt.Errorf("sendgrid backend requires a key")
	}
	if c.BulkDay1 < 1 || c.BulkDay1 > 28 || c.BulkDay2 < 1 || c.BulkDay2 > 28 {
		return fmt.Errorf("bulk digest days must fall in 1..28")
	}
	if c.NotifyHour < 0 || c.NotifyHour > 23 {
		return fmt.Errorf("notify hour must fall in 0..23")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Retention returns the synced-row retention window as a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
