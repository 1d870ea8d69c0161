// Package config provides centralized configuration management for the forms
// service. Settings come from struct tag defaults, an optional YAML file and
// environment variables, in that order of precedence, and are validated on
// startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Security SecurityConfig  `yaml:"security"`
	Rate     RateLimitConfig `yaml:"rate_limit"`
	Export   ExportConfig    `yaml:"export"`
	Sequence SequenceConfig  `yaml:"sequence"`
	Logging  LoggingConfig   `yaml:"logging"`
	Clock    ClockConfig     `yaml:"clock"`
	S3       S3Config        `yaml:"s3"`
	Features FeatureConfig   `yaml:"features"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	Port int `yaml:"port" env:"SERVER_PORT" envAlt:"PORT" default:"8000"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 0, CSV exports stream)
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including export drain (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars.
	URL string `yaml:"url" env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `yaml:"max_conns" env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `yaml:"min_conns" env:"DB_MIN_CONNS" default:"2"`

	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies embedded migrations at server startup (default: false)
	AutoMigrate bool `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" default:"false"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// AdminToken guards every /api/admin route.
	AdminToken string `yaml:"admin_token" env:"ADMIN_TOKEN" required:"true"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES"`
}

// RateLimitConfig holds per-client rate limits.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" env:"RATE_LIMIT_ENABLED" default:"true"`

	// AdminPerMinute applies to /api/admin routes (default: 300)
	AdminPerMinute int `yaml:"admin_per_minute" env:"RATE_LIMIT_ADMIN_PER_MINUTE" default:"300"`

	// SubmitPerMinute applies to the public form routes (default: 60)
	SubmitPerMinute int `yaml:"submit_per_minute" env:"RATE_LIMIT_SUBMIT_PER_MINUTE" default:"60"`

	// Burst is the token bucket size (default: 10)
	Burst int `yaml:"burst" env:"RATE_LIMIT_BURST" default:"10"`
}

// ExportConfig bounds concurrent CSV exports.
type ExportConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent" env:"EXPORT_MAX_CONCURRENT" default:"4"`
	MaxWaitTime   time.Duration `yaml:"max_wait_time" env:"EXPORT_MAX_WAIT_TIME" default:"10s"`
}

// SequenceConfig tunes the submission sequence retry loop.
type SequenceConfig struct {
	MaxRetries int           `yaml:"max_retries" env:"SEQUENCE_MAX_RETRIES" default:"8"`
	Backoff    time.Duration `yaml:"backoff" env:"SEQUENCE_BACKOFF" default:"5ms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`
}

// ClockConfig pins the service clock.
type ClockConfig struct {
	// FixedNow, when non-zero, is used as "now" in epoch seconds.
	FixedNow int64 `yaml:"fixed_now" env:"FORMS_FIXED_NOW"`
}

// S3Config is used by formsctl when exporting to s3:// destinations.
type S3Config struct {
	Bucket          string `yaml:"bucket" env:"S3_BUCKET"`
	Region          string `yaml:"region" env:"S3_REGION" envAlt:"AWS_REGION" default:"us-east-1"`
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"S3_USE_PATH_STYLE" default:"false"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
}

// FeatureConfig holds feature flags.
type FeatureConfig struct {
	// Demo seeds the demo intake form at server startup.
	Demo bool `yaml:"demo" env:"FORMS_FLAG_DEMO" default:"false"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
