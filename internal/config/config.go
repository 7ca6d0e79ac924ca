// Package config provides configuration loading and management for Vigil.
// It supports loading configuration from YAML files with sensible defaults
// for any unset values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageMode represents the storage backend mode.
type StorageMode string

const (
	// StorageModeMemory uses in-memory implementations for all storage.
	StorageModeMemory StorageMode = "memory"
	// StorageModeStorage uses real storage backends (Kafka, Redis, PostgreSQL).
	StorageModeStorage StorageMode = "storage"
)

// IsValid returns true if the storage mode is valid.
func (m StorageMode) IsValid() bool {
	return m == StorageModeMemory || m == StorageModeStorage
}

// Config represents the complete application configuration.
type Config struct {
	Storage      StorageConfig      `yaml:"storage"`
	Server       ServerConfig       `yaml:"server"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Redis        RedisConfig        `yaml:"redis"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Logger       LoggerConfig       `yaml:"logger"`
	Alerting     AlertingConfig     `yaml:"alerting"`
	Notification NotificationConfig `yaml:"notification"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Routing      RoutingConfig      `yaml:"routing"`
}

// StorageConfig holds the storage mode configuration.
type StorageConfig struct {
	Mode StorageMode `yaml:"mode"`
}

// UseMemory returns true if in-memory storage should be used.
func (c *StorageConfig) UseMemory() bool {
	return c.Mode == StorageModeMemory
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig holds Kafka connection and topic settings.
type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	Topic          string   `yaml:"topic"`
	ConsumerGroup  string   `yaml:"consumer_group"`
	PartitionCount int      `yaml:"partition_count"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Addr returns the Redis address in host:port format.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int32  `yaml:"max_open_conns"`
	MaxIdleConns int32  `yaml:"max_idle_conns"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// AlertingConfig holds the alert service settings.
type AlertingConfig struct {
	// DefaultCooldownMinutes applies to rules with no cooldown of their own.
	DefaultCooldownMinutes int `yaml:"default_cooldown_minutes"`

	// MaxActiveAlerts caps open alerts; evaluation stops creating alerts
	// beyond this bound until older ones close.
	MaxActiveAlerts int `yaml:"max_active_alerts"`

	// EscalationTimeout is how long an alert may stay active before its
	// escalation level is bumped.
	EscalationTimeout time.Duration `yaml:"escalation_timeout"`

	// EscalationCheckInterval is how often the escalation sweep runs.
	EscalationCheckInterval time.Duration `yaml:"escalation_check_interval"`

	// FeedbackRetentionDays is advisory for downstream feedback consumers.
	FeedbackRetentionDays int `yaml:"feedback_retention_days"`
}

// NotificationConfig holds the notification service settings.
type NotificationConfig struct {
	// MaxRetries bounds how many times a failed delivery is retried.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the interval between retry sweeps.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// BatchSize bounds concurrent sends within a bulk operation.
	BatchSize int `yaml:"batch_size"`

	// TemplateCacheSize bounds the LRU template cache.
	TemplateCacheSize int `yaml:"template_cache_size"`

	// ProviderTimeout bounds a single provider send call.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
}

// ProvidersConfig holds per-provider credentials and settings.
type ProvidersConfig struct {
	SMTP  SMTPConfig  `yaml:"smtp"`
	Slack SlackConfig `yaml:"slack"`
	Teams TeamsConfig `yaml:"teams"`
	InApp InAppConfig `yaml:"in_app"`
}

// SMTPConfig holds email provider settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Addr returns the SMTP address in host:port format.
func (c *SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlackConfig holds Slack provider settings.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
}

// TeamsConfig holds Microsoft Teams provider settings.
type TeamsConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// InAppConfig holds in-app provider settings.
type InAppConfig struct {
	DefaultExpirationDays   int  `yaml:"default_expiration_days"`
	MaxNotificationsPerUser int  `yaml:"max_notifications_per_user"`
	EnableRealTimeUpdates   bool `yaml:"enable_real_time_updates"`
}

// Route lists the channels and recipients alerts of one severity go to.
type Route struct {
	Channels   []string `yaml:"channels"`
	Recipients []string `yaml:"recipients"`
}

// RoutingConfig maps alert severities to notification routes. The default
// route applies when no severity-specific route is configured.
type RoutingConfig struct {
	Default  Route `yaml:"default"`
	Low      Route `yaml:"low"`
	Medium   Route `yaml:"medium"`
	High     Route `yaml:"high"`
	Critical Route `yaml:"critical"`
}

// ForSeverity returns the route for a severity, falling back to the default.
func (c *RoutingConfig) ForSeverity(severity string) Route {
	var route Route
	switch severity {
	case "low":
		route = c.Low
	case "medium":
		route = c.Medium
	case "high":
		route = c.High
	case "critical":
		route = c.Critical
	}
	if len(route.Channels) == 0 {
		return c.Default
	}
	return route
}

// Load reads configuration from the specified YAML file path.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	// Clean the path to prevent path traversal attacks
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a configuration with all defaults applied, suitable for
// tests and for running without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets sensible default values for configuration fields
// that are not explicitly set in the config file.
func applyDefaults(cfg *Config) {
	// Storage defaults
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StorageModeMemory
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	// Kafka defaults
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "vigil-metrics"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "vigil-processor"
	}
	if cfg.Kafka.PartitionCount == 0 {
		cfg.Kafka.PartitionCount = 32
	}

	// Redis defaults
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	// Postgres defaults
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}

	// Alerting defaults
	if cfg.Alerting.DefaultCooldownMinutes == 0 {
		cfg.Alerting.DefaultCooldownMinutes = 30
	}
	if cfg.Alerting.MaxActiveAlerts == 0 {
		cfg.Alerting.MaxActiveAlerts = 1000
	}
	if cfg.Alerting.EscalationTimeout == 0 {
		cfg.Alerting.EscalationTimeout = 4 * time.Hour
	}
	if cfg.Alerting.EscalationCheckInterval == 0 {
		cfg.Alerting.EscalationCheckInterval = time.Minute
	}
	if cfg.Alerting.FeedbackRetentionDays == 0 {
		cfg.Alerting.FeedbackRetentionDays = 90
	}

	// Notification defaults
	if cfg.Notification.MaxRetries == 0 {
		cfg.Notification.MaxRetries = 3
	}
	if cfg.Notification.RetryDelay == 0 {
		cfg.Notification.RetryDelay = time.Minute
	}
	if cfg.Notification.BatchSize == 0 {
		cfg.Notification.BatchSize = 10
	}
	if cfg.Notification.TemplateCacheSize == 0 {
		cfg.Notification.TemplateCacheSize = 100
	}
	if cfg.Notification.ProviderTimeout == 0 {
		cfg.Notification.ProviderTimeout = 15 * time.Second
	}

	// Provider defaults
	if cfg.Providers.SMTP.Port == 0 {
		cfg.Providers.SMTP.Port = 587
	}
	if cfg.Providers.InApp.DefaultExpirationDays == 0 {
		cfg.Providers.InApp.DefaultExpirationDays = 30
	}
	if cfg.Providers.InApp.MaxNotificationsPerUser == 0 {
		cfg.Providers.InApp.MaxNotificationsPerUser = 100
	}

	// Routing defaults: everything lands in-app unless configured otherwise.
	if len(cfg.Routing.Default.Channels) == 0 {
		cfg.Routing.Default.Channels = []string{"in_app"}
	}
}
