// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrRateLimitBackendRequired is returned by Validate when the service is
// configured for production without a distributed rate-limit backend. The
// in-memory fallback has no cross-process visibility, so a horizontally
// scaled deployment would silently under-count submissions.
var ErrRateLimitBackendRequired = errors.New(
	"config: production requires a Redis rate-limit backend (ratelimit.redis_addr)")

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Supabase    SupabaseConfig  `mapstructure:"supabase"`
	HubSpot     HubSpotConfig   `mapstructure:"hubspot"`
	RateLimit   RateLimitConfig `mapstructure:"ratelimit"`
	Queue       QueueConfig     `mapstructure:"queue"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SupabaseConfig points at the REST document store holding lead rows.
type SupabaseConfig struct {
	URL            string `mapstructure:"url"`
	ServiceRoleKey string `mapstructure:"service_role_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type HubSpotConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RateLimitConfig governs the dual email+IP submission limiter.
type RateLimitConfig struct {
	Limit         int           `mapstructure:"limit"`
	Window        time.Duration `mapstructure:"window"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// QueueConfig configures the optional RabbitMQ hand-off for needs_sync leads.
type QueueConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from environment variables and an optional file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so AutomaticEnv-only values survive Unmarshal.
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.service_role_key", "")
	v.SetDefault("supabase.timeout_seconds", 10)
	v.SetDefault("hubspot.base_url", "https://api.hubapi.com")
	v.SetDefault("hubspot.token", "")
	v.SetDefault("hubspot.timeout_seconds", 10)
	v.SetDefault("ratelimit.limit", 3)
	v.SetDefault("ratelimit.window", time.Hour)
	v.SetDefault("ratelimit.redis_addr", "")
	v.SetDefault("ratelimit.redis_password", "")
	v.SetDefault("ratelimit.redis_db", 0)
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.url", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces startup invariants before any request is served.
func (c Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("config: unknown environment %q", c.Environment)
	}

	if c.Supabase.URL == "" {
		return errors.New("config: supabase.url is required")
	}
	if c.Supabase.ServiceRoleKey == "" {
		return errors.New("config: supabase.service_role_key is required")
	}
	if c.HubSpot.Token == "" {
		return errors.New("config: hubspot.token is required")
	}

	if c.RateLimit.Limit <= 0 {
		return errors.New("config: ratelimit.limit must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("config: ratelimit.window must be positive")
	}
	if c.Environment == EnvProduction && c.RateLimit.RedisAddr == "" {
		return ErrRateLimitBackendRequired
	}

	if c.Queue.Enabled && c.Queue.URL == "" {
		return errors.New("config: queue.url is required when queue.enabled")
	}

	return nil
}

// IsProduction reports whether the hardened production invariants apply.
func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
