package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variable.
type Config struct {
	// Server Configurations
	ServerAddress string `mapstructure:"SERVER_ADDRESS" validate:"required"`
	TLSCertFile   string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile    string `mapstructure:"TLS_KEY_FILE" validate:"required_with=TLSCertFile"`

	// Backend Configurations
	BackendURL            string `mapstructure:"BACKEND_URL" validate:"required,url"`
	BackendTimeoutSeconds int    `mapstructure:"BACKEND_TIMEOUT_SECONDS" validate:"gt=0"`

	// Plugin and Presentation Configurations
	PluginsDir          string `mapstructure:"PLUGINS_DIR"`
	TranslationsFile    string `mapstructure:"TRANSLATIONS_FILE"`
	Language            string `mapstructure:"LANGUAGE" validate:"required"`
	HeadlineMetricLimit int    `mapstructure:"HEADLINE_METRIC_LIMIT" validate:"gt=0"`

	// Worker Configurations
	AvailabilityIntervalSeconds   int `mapstructure:"AVAILABILITY_INTERVAL_SECONDS" validate:"gt=0"`
	SessionIdleTimeoutSeconds     int `mapstructure:"SESSION_IDLE_TIMEOUT_SECONDS" validate:"gte=0"`
	RefreshWorkerConcurrency      int `mapstructure:"REFRESH_WORKER_CONCURRENCY" validate:"gt=0"`
	SnapshotTTLSeconds            int `mapstructure:"SNAPSHOT_TTL_SECONDS" validate:"gte=0"`
	PendingConfirmationTTLSeconds int `mapstructure:"PENDING_CONFIRMATION_TTL_SECONDS" validate:"gt=0"`

	// Internal Queue Settings
	InternalQueueSize int `mapstructure:"INTERNAL_QUEUE_SIZE" validate:"gt=0"`

	// Database Configurations
	HistoryEnabled        bool   `mapstructure:"HISTORY_ENABLED"`
	HistoryRetentionHours int    `mapstructure:"HISTORY_RETENTION_HOURS" validate:"gte=0"`
	DBHost                string `mapstructure:"DB_HOST"`
	DBUser                string `mapstructure:"DB_USER"`
	DBPassword            string `mapstructure:"DB_PASSWORD"`
	DBName                string `mapstructure:"DB_NAME"`
	DBPort                string `mapstructure:"DB_PORT"`

	// Security/Encryption Configurations
	EncryptionKey string `mapstructure:"CONSOLE_SECRET" validate:"required,hexadecimal,len=64"`

	LogLevel string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// 1. Set Defaults
	v.SetDefault("SERVER_ADDRESS", ":8080")
	v.SetDefault("TLS_CERT_FILE", "")
	v.SetDefault("TLS_KEY_FILE", "")
	v.SetDefault("BACKEND_URL", "http://localhost:8000/api")
	v.SetDefault("BACKEND_TIMEOUT_SECONDS", 30)
	v.SetDefault("PLUGINS_DIR", "plugins")
	v.SetDefault("TRANSLATIONS_FILE", "")
	v.SetDefault("LANGUAGE", "en")
	v.SetDefault("HEADLINE_METRIC_LIMIT", 4)
	v.SetDefault("AVAILABILITY_INTERVAL_SECONDS", 5)
	v.SetDefault("SESSION_IDLE_TIMEOUT_SECONDS", 60)
	v.SetDefault("REFRESH_WORKER_CONCURRENCY", 4)
	v.SetDefault("SNAPSHOT_TTL_SECONDS", 10)
	v.SetDefault("PENDING_CONFIRMATION_TTL_SECONDS", 120)
	v.SetDefault("INTERNAL_QUEUE_SIZE", 100)
	v.SetDefault("HISTORY_ENABLED", false)
	v.SetDefault("HISTORY_RETENTION_HOURS", 168)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_USER", "console")
	v.SetDefault("DB_PASSWORD", "console")
	v.SetDefault("DB_NAME", "console")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("CONSOLE_SECRET", "1234567890123456789012345678901212345678901234567890123456789012")
	v.SetDefault("LOG_LEVEL", "info")

	// 2. Read app.yaml if exists
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	// 3. Read .env if exists (overriding app.yaml)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig()

	// 4. Allow Viper to read Environment Variables (highest priority)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSeconds) * time.Second
}

func (c *Config) AvailabilityInterval() time.Duration {
	return time.Duration(c.AvailabilityIntervalSeconds) * time.Second
}

// SessionIdleTimeout is zero when console sessions never expire.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutSeconds) * time.Second
}

func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}

func (c *Config) PendingConfirmationTTL() time.Duration {
	return time.Duration(c.PendingConfirmationTTLSeconds) * time.Second
}

// HistoryRetention is zero when history is kept forever.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionHours) * time.Hour
}

// TLSEnabled reports whether the server should serve HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
