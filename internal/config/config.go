// Package config loads and validates the assessment API configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < .env file <
// environment variables. Environment variables use the ASSESS_ prefix (e.g.,
// ASSESS_DATABASE_HOST overrides database.host in the YAML). The same binary runs
// with a config.yaml in local development and with pure environment variables in
// containerized deployments.
//
// ENCRYPTION_KEY has no ASSESS_ prefix because it is usually injected by
// infrastructure tooling (Kubernetes secrets, Vault agent) under a generic name.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix applied to every bound environment variable.
const EnvPrefix = "ASSESS"

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Sessions     SessionsConfig     `mapstructure:"sessions"`
	Completion   CompletionConfig   `mapstructure:"completion"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Webhooks     WebhooksConfig     `mapstructure:"webhooks"`
	Archive      ArchiveConfig      `mapstructure:"archive"`
	Jobs         JobsConfig         `mapstructure:"jobs"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Security     SecurityConfig     `mapstructure:"security"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the optional Redis connection used by the distributed
// rate limiters. An empty Addr disables Redis entirely.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address is configured.
func (r *RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// AuthConfig holds tenant API key and admin JWT configuration
type AuthConfig struct {
	APIKeys APIKeyConfig `mapstructure:"api_keys"`
	// JWTSecret signs admin tokens. Falls back to ASSESS_JWT_SECRET when empty.
	JWTSecret string `mapstructure:"jwt_secret"`
	// EncryptionKey seals organization webhook secrets at rest. Falls back to
	// ENCRYPTION_KEY when empty.
	EncryptionKey string `mapstructure:"encryption_key"`
}

// APIKeyConfig holds API key authentication configuration
type APIKeyConfig struct {
	Prefix           string `mapstructure:"prefix"`
	DefaultRateLimit int    `mapstructure:"default_rate_limit"`
}

// SessionsConfig controls the lifetime rules of assessment sessions.
type SessionsConfig struct {
	DefaultExpiryMinutes     int           `mapstructure:"default_expiry_minutes"`
	MaxExpiryMinutes         int           `mapstructure:"max_expiry_minutes"`
	DefaultExtensionMinutes  int           `mapstructure:"default_extension_minutes"`
	MaxExtensionMinutes      int           `mapstructure:"max_extension_minutes"`
	RecoveryExtensionMinutes int           `mapstructure:"recovery_extension_minutes"`
	RecoveryGrace            time.Duration `mapstructure:"recovery_grace"`
	DefaultPageSize          int           `mapstructure:"default_page_size"`
}

// CompletionConfig controls result generation.
type CompletionConfig struct {
	MaxRecommendations int `mapstructure:"max_recommendations"`
}

// RateLimitingConfig holds the per-key limiter and the pre-auth IP guard settings
type RateLimitingConfig struct {
	// Backend is "postgres" (default) or "redis".
	Backend string        `mapstructure:"backend"`
	Window  time.Duration `mapstructure:"window"`
	IPGuard IPGuardConfig `mapstructure:"ip_guard"`
}

// IPGuardConfig protects the authentication path from unauthenticated floods.
type IPGuardConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// WebhooksConfig holds outbound completion webhook settings
type WebhooksConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRecommendations int           `mapstructure:"max_recommendations"`
	UserAgent          string        `mapstructure:"user_agent"`
}

// ArchiveConfig holds result snapshot archive configuration
type ArchiveConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Prefix  string        `mapstructure:"prefix"`
	Storage StorageConfig `mapstructure:"storage"`
}

// StorageConfig holds storage backend configuration
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	Azure          AzureStorageConfig `mapstructure:"azure"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	GCS            GCSStorageConfig   `mapstructure:"gcs"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// AuthMethod is "default", "static" or "assume_role"
	AuthMethod      string `mapstructure:"auth_method"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	RoleARN         string `mapstructure:"role_arn"`
	RoleSessionName string `mapstructure:"role_session_name"`
	ExternalID      string `mapstructure:"external_id"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
	// AuthMethod is "default", "service_account" or "none" (emulators)
	AuthMethod      string `mapstructure:"auth_method"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	// Endpoint is an optional custom endpoint (for GCS emulators)
	Endpoint string `mapstructure:"endpoint"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// JobsConfig holds background job schedules
type JobsConfig struct {
	SessionSweeper SweeperConfig `mapstructure:"session_sweeper"`
}

// SweeperConfig schedules the expired session sweeper.
type SweeperConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// AuditConfig routes the admin audit trail. Each destination is optional.
type AuditConfig struct {
	File    AuditFileConfig    `mapstructure:"file"`
	Webhook AuditWebhookConfig `mapstructure:"webhook"`
}

// AuditFileConfig appends audit events as JSON lines to Path.
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// AuditWebhookConfig posts each audit event to URL, e.g. a SIEM collector.
type AuditWebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
	TLS  TLSConfig  `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// AutomaticEnv() alone doesn't work with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",

		// Auth
		"auth.api_keys.prefix",
		"auth.api_keys.default_rate_limit",
		"auth.jwt_secret",
		"auth.encryption_key",

		// Sessions
		"sessions.default_expiry_minutes",
		"sessions.max_expiry_minutes",
		"sessions.default_extension_minutes",
		"sessions.max_extension_minutes",
		"sessions.recovery_extension_minutes",
		"sessions.recovery_grace",
		"sessions.default_page_size",
		"completion.max_recommendations",

		// Rate limiting
		"rate_limiting.backend",
		"rate_limiting.window",
		"rate_limiting.ip_guard.enabled",
		"rate_limiting.ip_guard.requests_per_minute",
		"rate_limiting.ip_guard.burst",

		// Webhooks
		"webhooks.timeout",
		"webhooks.max_recommendations",
		"webhooks.user_agent",

		// Archive
		"archive.enabled",
		"archive.prefix",
		"archive.storage.default_backend",
		"archive.storage.azure.account_name",
		"archive.storage.azure.account_key",
		"archive.storage.azure.container_name",
		"archive.storage.s3.endpoint",
		"archive.storage.s3.region",
		"archive.storage.s3.bucket",
		"archive.storage.s3.auth_method",
		"archive.storage.s3.access_key_id",
		"archive.storage.s3.secret_access_key",
		"archive.storage.s3.role_arn",
		"archive.storage.s3.role_session_name",
		"archive.storage.s3.external_id",
		"archive.storage.gcs.bucket",
		"archive.storage.gcs.auth_method",
		"archive.storage.gcs.credentials_file",
		"archive.storage.gcs.credentials_json",
		"archive.storage.gcs.endpoint",
		"archive.storage.local.base_path",

		// Jobs
		"jobs.session_sweeper.enabled",
		"jobs.session_sweeper.schedule",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging / telemetry
		"logging.level",
		"logging.format",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch loads the configuration like Load and then watches the config file.
// onChange receives every successfully re-decoded configuration; invalid
// edits are reported through onError and the previous configuration stays.
func Watch(configPath string, onChange func(*Config), onError func(error)) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return cfg, nil
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(next)
	})
	v.WatchConfig()
	return cfg, nil
}

func newViper(configPath string) (*viper.Viper, error) {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/assessment-api")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Auth.JWTSecret = expandEnv(cfg.Auth.JWTSecret)
	cfg.Auth.EncryptionKey = expandEnv(cfg.Auth.EncryptionKey)
	if cfg.Auth.EncryptionKey == "" {
		cfg.Auth.EncryptionKey = os.Getenv("ENCRYPTION_KEY")
	}
	cfg.Archive.Storage.Azure.AccountKey = expandEnv(cfg.Archive.Storage.Azure.AccountKey)
	cfg.Archive.Storage.S3.AccessKeyID = expandEnv(cfg.Archive.Storage.S3.AccessKeyID)
	cfg.Archive.Storage.S3.SecretAccessKey = expandEnv(cfg.Archive.Storage.S3.SecretAccessKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "assessments")
	v.SetDefault("database.user", "assessments")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.api_keys.prefix", "ask")
	v.SetDefault("auth.api_keys.default_rate_limit", 60)

	v.SetDefault("sessions.default_expiry_minutes", 60)
	v.SetDefault("sessions.max_expiry_minutes", 1440)
	v.SetDefault("sessions.default_extension_minutes", 30)
	v.SetDefault("sessions.max_extension_minutes", 120)
	v.SetDefault("sessions.recovery_extension_minutes", 30)
	v.SetDefault("sessions.recovery_grace", "24h")
	v.SetDefault("sessions.default_page_size", 5)
	v.SetDefault("completion.max_recommendations", 5)

	v.SetDefault("rate_limiting.backend", "postgres")
	v.SetDefault("rate_limiting.window", "60s")
	v.SetDefault("rate_limiting.ip_guard.enabled", true)
	v.SetDefault("rate_limiting.ip_guard.requests_per_minute", 600)
	v.SetDefault("rate_limiting.ip_guard.burst", 50)

	v.SetDefault("webhooks.timeout", "5s")
	v.SetDefault("webhooks.max_recommendations", 3)
	v.SetDefault("webhooks.user_agent", "assessment-api-webhook/1.0")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.prefix", "results")
	v.SetDefault("archive.storage.default_backend", "local")
	v.SetDefault("archive.storage.local.base_path", "./archive")
	v.SetDefault("archive.storage.s3.auth_method", "default")
	v.SetDefault("archive.storage.gcs.auth_method", "default")

	v.SetDefault("jobs.session_sweeper.enabled", true)
	v.SetDefault("jobs.session_sweeper.schedule", "@every 15m")

	v.SetDefault("audit.file.max_size_mb", 100)
	v.SetDefault("audit.file.max_backups", 5)
	v.SetDefault("audit.webhook.timeout", "10s")

	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.tls.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.service_name", "assessment-api")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Auth.APIKeys.Prefix == "" {
		return fmt.Errorf("auth.api_keys.prefix is required")
	}
	if c.Auth.APIKeys.DefaultRateLimit < 1 {
		return fmt.Errorf("auth.api_keys.default_rate_limit must be at least 1")
	}

	if c.Auth.EncryptionKey != "" && len(c.Auth.EncryptionKey) < 16 {
		return fmt.Errorf("auth.encryption_key must be at least 16 characters")
	}

	s := c.Sessions
	if s.DefaultExpiryMinutes < 1 {
		return fmt.Errorf("sessions.default_expiry_minutes must be at least 1")
	}
	if s.MaxExpiryMinutes < s.DefaultExpiryMinutes {
		return fmt.Errorf("sessions.max_expiry_minutes (%d) must not be below default_expiry_minutes (%d)",
			s.MaxExpiryMinutes, s.DefaultExpiryMinutes)
	}
	if s.DefaultExtensionMinutes < 1 || s.MaxExtensionMinutes < s.DefaultExtensionMinutes {
		return fmt.Errorf("sessions.default_extension_minutes must be between 1 and max_extension_minutes")
	}
	if s.RecoveryExtensionMinutes < 1 {
		return fmt.Errorf("sessions.recovery_extension_minutes must be at least 1")
	}
	if s.RecoveryGrace < 0 {
		return fmt.Errorf("sessions.recovery_grace must not be negative")
	}
	if s.DefaultPageSize < 1 {
		return fmt.Errorf("sessions.default_page_size must be at least 1")
	}
	if c.Completion.MaxRecommendations < 1 {
		return fmt.Errorf("completion.max_recommendations must be at least 1")
	}

	switch c.RateLimiting.Backend {
	case "postgres":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("redis.addr is required when rate_limiting.backend is redis")
		}
	default:
		return fmt.Errorf("invalid rate limiting backend: %s (must be postgres or redis)", c.RateLimiting.Backend)
	}
	if c.RateLimiting.Window <= 0 {
		return fmt.Errorf("rate_limiting.window must be positive")
	}
	if c.RateLimiting.IPGuard.Enabled && c.RateLimiting.IPGuard.RequestsPerMinute < 1 {
		return fmt.Errorf("rate_limiting.ip_guard.requests_per_minute must be at least 1")
	}

	if c.Webhooks.Timeout <= 0 || c.Webhooks.Timeout > time.Minute {
		return fmt.Errorf("webhooks.timeout must be between 0 and 1m, got %s", c.Webhooks.Timeout)
	}

	if c.Archive.Enabled {
		if err := c.Archive.Storage.validate(); err != nil {
			return err
		}
	}

	if u := c.Audit.Webhook.URL; u != "" && !strings.HasPrefix(u, "https://") && !strings.HasPrefix(u, "http://") {
		return fmt.Errorf("audit.webhook.url must be an http(s) URL")
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

func (s *StorageConfig) validate() error {
	switch s.DefaultBackend {
	case "azure":
		if s.Azure.AccountName == "" || s.Azure.AccountKey == "" || s.Azure.ContainerName == "" {
			return fmt.Errorf("archive.storage.azure requires account_name, account_key and container_name")
		}
	case "s3":
		if s.S3.Bucket == "" {
			return fmt.Errorf("archive.storage.s3.bucket is required when using S3 backend")
		}
		if s.S3.Region == "" {
			return fmt.Errorf("archive.storage.s3.region is required when using S3 backend")
		}
		if s.S3.Endpoint != "" {
			if _, err := url.ParseRequestURI(s.S3.Endpoint); err != nil {
				return fmt.Errorf("archive.storage.s3.endpoint is not a valid URL: %w", err)
			}
		}
	case "gcs":
		if s.GCS.Bucket == "" {
			return fmt.Errorf("archive.storage.gcs.bucket is required when using GCS backend")
		}
	case "local":
		if s.Local.BasePath == "" {
			return fmt.Errorf("archive.storage.local.base_path is required when using local backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be azure, s3, gcs, or local)", s.DefaultBackend)
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
