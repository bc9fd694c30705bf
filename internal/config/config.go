package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Appointment source (CallDoc-style frontend API).
	SourceBaseURL        string `mapstructure:"SOURCE_BASE_URL"`
	SourceTimeoutSeconds int    `mapstructure:"SOURCE_TIMEOUT_SECONDS"`

	// Reconciliation defaults. The practitioner and location fallbacks
	// are applied when a source id has no mapping table entry.
	DefaultProcedureKindID       int64 `mapstructure:"DEFAULT_PROCEDURE_KIND_ID"`
	DefaultPractitionerBillingID int64 `mapstructure:"DEFAULT_PRACTITIONER_BILLING_ID"`
	DefaultLocationDeviceID      int64 `mapstructure:"DEFAULT_LOCATION_DEVICE_ID"`
	DeleteObsolete               bool  `mapstructure:"DELETE_OBSOLETE"`

	// Task coordinator.
	SyncWorkers          int `mapstructure:"SYNC_WORKERS"`
	TaskTimeoutSeconds   int `mapstructure:"TASK_TIMEOUT_SECONDS"`
	TaskRetentionMinutes int `mapstructure:"TASK_RETENTION_MINUTES"`

	// Change detector.
	DetectorEnabled         bool `mapstructure:"DETECTOR_ENABLED"`
	DetectorIntervalMinutes int  `mapstructure:"DETECTOR_INTERVAL_MINUTES"`

	// Notification sink.
	NotifyWebhookURL string `mapstructure:"NOTIFY_WEBHOOK_URL"`
	NotifyChannel    string `mapstructure:"NOTIFY_CHANNEL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SOURCE_TIMEOUT_SECONDS", 30)
	v.SetDefault("DEFAULT_PROCEDURE_KIND_ID", 24)
	v.SetDefault("DEFAULT_PRACTITIONER_BILLING_ID", 999)
	v.SetDefault("DEFAULT_LOCATION_DEVICE_ID", 1)
	v.SetDefault("DELETE_OBSOLETE", false)
	v.SetDefault("SYNC_WORKERS", 4)
	v.SetDefault("TASK_TIMEOUT_SECONDS", 60)
	v.SetDefault("TASK_RETENTION_MINUTES", 5)
	v.SetDefault("DETECTOR_ENABLED", false)
	v.SetDefault("DETECTOR_INTERVAL_MINUTES", 5)
	v.SetDefault("NOTIFY_CHANNEL", "#ti-status")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"CORS_ORIGINS", "SOURCE_BASE_URL", "SOURCE_TIMEOUT_SECONDS",
		"DEFAULT_PROCEDURE_KIND_ID", "DEFAULT_PRACTITIONER_BILLING_ID",
		"DEFAULT_LOCATION_DEVICE_ID", "DELETE_OBSOLETE", "SYNC_WORKERS",
		"TASK_TIMEOUT_SECONDS", "TASK_RETENTION_MINUTES",
		"DETECTOR_ENABLED", "DETECTOR_INTERVAL_MINUTES",
		"NOTIFY_WEBHOOK_URL", "NOTIFY_CHANNEL",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SourceBaseURL == "" {
		return nil, fmt.Errorf("SOURCE_BASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks ranges that would otherwise only surface at runtime.
func (c *Config) Validate() error {
	if c.SyncWorkers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be at least 1, got %d", c.SyncWorkers)
	}
	if c.TaskTimeoutSeconds < 1 {
		return fmt.Errorf("TASK_TIMEOUT_SECONDS must be at least 1, got %d", c.TaskTimeoutSeconds)
	}
	if c.DetectorIntervalMinutes < 1 || c.DetectorIntervalMinutes > 60 {
		return fmt.Errorf("DETECTOR_INTERVAL_MINUTES must be between 1 and 60, got %d", c.DetectorIntervalMinutes)
	}
	return nil
}

func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutSeconds) * time.Second
}

func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

func (c *Config) TaskRetention() time.Duration {
	return time.Duration(c.TaskRetentionMinutes) * time.Minute
}

func (c *Config) DetectorInterval() time.Duration {
	return time.Duration(c.DetectorIntervalMinutes) * time.Minute
}
