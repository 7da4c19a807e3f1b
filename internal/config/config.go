package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values come from, in increasing precedence: built-in defaults, the YAML
// config file, QUOTAWARD_* environment variables, and command flags.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the counter store backend.
// Driver is one of libsql, redis, postgres or memory.
type StoreConfig struct {
	Driver    string        `mapstructure:"driver"`
	Path      string        `mapstructure:"path"`
	URL       string        `mapstructure:"url"`
	AuthToken string        `mapstructure:"auth_token"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// RedisConfig configures the redis counter store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// PostgresConfig configures the postgres counter store.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PolicyConfig points at a YAML policy document. Empty uses the built-in policy.
type PolicyConfig struct {
	Path string `mapstructure:"path"`
}

// QuotaConfig tunes counter checks and garbage collection.
type QuotaConfig struct {
	// CheckTimeout bounds a single counter check before it fails open.
	CheckTimeout time.Duration `mapstructure:"check_timeout"`

	Cleanup CleanupConfig `mapstructure:"cleanup"`
}

// CleanupConfig configures expired counter collection.
type CleanupConfig struct {
	MaxAge    time.Duration `mapstructure:"max_age"`
	Interval  time.Duration `mapstructure:"interval"` // zero disables the in-process janitor
	BatchSize int           `mapstructure:"batch_size"`

	// BatchesPerSecond paces drain loops.
	BatchesPerSecond float64 `mapstructure:"batches_per_second"`
}

// AuthConfig maps inbound credentials to principals.
type AuthConfig struct {
	Header string         `mapstructure:"header"`
	Keys   []APIKeyConfig `mapstructure:"keys"`

	// TrustHeaders accepts principal headers set by an upstream auth proxy.
	TrustHeaders    bool   `mapstructure:"trust_headers"`
	PrincipalHeader string `mapstructure:"principal_header"`
	TierHeader      string `mapstructure:"tier_header"`
}

// APIKeyConfig binds one API key to a principal and tier.
type APIKeyConfig struct {
	Key       string `mapstructure:"key"`
	Principal string `mapstructure:"principal"`
	Tier      string `mapstructure:"tier"`
}

// UpstreamConfig is the business backend admitted requests are proxied to.
type UpstreamConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AdminConfig protects the admin endpoints.
type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}
