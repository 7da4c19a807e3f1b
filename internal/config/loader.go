// Package config provides centralized configuration management for quotaward.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the binary and its XDG directories.
	AppName = "quotaward"

	// EnvPrefix prefixes environment overrides, e.g. QUOTAWARD_STORE_DRIVER.
	EnvPrefix = "QUOTAWARD"
)

// Store drivers.
const (
	DriverLibsql   = "libsql"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Store defaults
	v.SetDefault("store.driver", DriverLibsql)
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.timeout", "5s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "quota:")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)

	v.SetDefault("policy.path", "")

	// Quota defaults
	v.SetDefault("quota.check_timeout", "2s")
	v.SetDefault("quota.cleanup.max_age", "24h")
	v.SetDefault("quota.cleanup.interval", "0s")
	v.SetDefault("quota.cleanup.batch_size", 500)
	v.SetDefault("quota.cleanup.batches_per_second", 2.0)

	// Auth defaults
	v.SetDefault("auth.header", "X-API-Key")
	v.SetDefault("auth.keys", []map[string]any{})
	v.SetDefault("auth.trust_headers", false)
	v.SetDefault("auth.principal_header", "X-Principal-ID")
	v.SetDefault("auth.tier_header", "X-Principal-Tier")

	v.SetDefault("upstream.url", "")
	v.SetDefault("upstream.timeout", "30s")

	v.SetDefault("admin.token", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)
}

// BindEnv makes v read QUOTAWARD_* variables, with nested keys joined by underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Decode unmarshals the settings held by v into a validated Config and makes
// it the current configuration.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch strings.TrimSpace(c.Store.Driver) {
	case DriverLibsql, DriverMemory:
	case DriverRedis:
		if strings.TrimSpace(c.Redis.URL) == "" && strings.TrimSpace(c.Redis.Addr) == "" {
			errs = append(errs, errors.New("redis.addr or redis.url is required for the redis driver"))
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported store.driver %q", c.Store.Driver))
	}

	if c.Quota.CheckTimeout < 0 {
		errs = append(errs, errors.New("quota.check_timeout must not be negative"))
	}
	if c.Quota.Cleanup.MaxAge <= 0 {
		errs = append(errs, errors.New("quota.cleanup.max_age must be positive"))
	}
	if c.Quota.Cleanup.Interval < 0 {
		errs = append(errs, errors.New("quota.cleanup.interval must not be negative"))
	}
	if c.Quota.Cleanup.BatchSize < 0 || c.Quota.Cleanup.BatchSize > 500 {
		errs = append(errs, fmt.Errorf("quota.cleanup.batch_size must be between 0 and 500 (got %d)", c.Quota.Cleanup.BatchSize))
	}

	seen := make(map[string]struct{}, len(c.Auth.Keys))
	for i, key := range c.Auth.Keys {
		if strings.TrimSpace(key.Key) == "" || strings.TrimSpace(key.Principal) == "" {
			errs = append(errs, fmt.Errorf("auth.keys[%d]: key and principal are required", i))
			continue
		}
		if _, dup := seen[key.Key]; dup {
			errs = append(errs, fmt.Errorf("auth.keys[%d]: duplicate key", i))
		}
		seen[key.Key] = struct{}{}
	}

	if raw := strings.TrimSpace(c.Upstream.URL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("upstream.url %q must be an absolute URL", raw))
		}
	}

	return errors.Join(errs...)
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns the XDG-compliant config directory.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the counter database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
