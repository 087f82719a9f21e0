// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Rate limit backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port            string
		Env             string
		Timeout         time.Duration
		ShutdownTimeout time.Duration
		TrustedProxies  []string
	}

	// RateLimit configures the sliding-window limiter
	RateLimit struct {
		Requests      int
		Window        time.Duration
		Backend       string
		SweepInterval time.Duration
		KeyPrefix     string
	}

	// Redis connection used by the redis backend
	Redis struct {
		Addr     string
		Password string
		DB       int
		Timeout  time.Duration
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Observability toggles
	Observability struct {
		MetricsEnabled bool
		TracingEnabled bool
	}

	// Health checker settings
	Health struct {
		CheckPeriod time.Duration
	}

	// OpenAPIValidation enables request validation against the API document
	OpenAPIValidation bool
}

// defaults are applied before the environment is consulted
var defaults = map[string]any{
	"PORT":                      "8081",
	"APP_ENV":                   "development",
	"SERVER_TIMEOUT":            "30s",
	"SHUTDOWN_TIMEOUT":          "10s",
	"TRUSTED_PROXIES":           "127.0.0.1",
	"RATE_LIMIT_REQUESTS":       10,
	"RATE_LIMIT_WINDOW":         "1m",
	"RATE_LIMIT_BACKEND":        BackendMemory,
	"RATE_LIMIT_SWEEP_INTERVAL": "0s",
	"RATE_LIMIT_KEY_PREFIX":     "ratelimit:",
	"REDIS_URL":                 "localhost:6379",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"REDIS_TIMEOUT":             "100ms",
	"LOG_LEVEL":                 "info",
	"LOG_FORMAT":                "json",
	"METRICS_ENABLED":           true,
	"TRACING_ENABLED":           false,
	"HEALTH_CHECK_PERIOD":       "30s",
	"OPENAPI_VALIDATION":        true,
}

// Load reads a .env file if one exists, then builds the configuration from
// environment variables and defaults, and validates it.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{}

	cfg.Server.Port = v.GetString("PORT")
	cfg.Server.Env = v.GetString("APP_ENV")
	cfg.Server.Timeout = v.GetDuration("SERVER_TIMEOUT")
	cfg.Server.ShutdownTimeout = v.GetDuration("SHUTDOWN_TIMEOUT")
	cfg.Server.TrustedProxies = splitList(v.GetString("TRUSTED_PROXIES"))

	cfg.RateLimit.Requests = v.GetInt("RATE_LIMIT_REQUESTS")
	cfg.RateLimit.Window = v.GetDuration("RATE_LIMIT_WINDOW")
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(v.GetString("RATE_LIMIT_BACKEND")))
	cfg.RateLimit.SweepInterval = v.GetDuration("RATE_LIMIT_SWEEP_INTERVAL")
	cfg.RateLimit.KeyPrefix = v.GetString("RATE_LIMIT_KEY_PREFIX")

	cfg.Redis.Addr = v.GetString("REDIS_URL")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.Timeout = v.GetDuration("REDIS_TIMEOUT")

	cfg.Logging.Level = v.GetString("LOG_LEVEL")
	cfg.Logging.Format = v.GetString("LOG_FORMAT")

	cfg.Observability.MetricsEnabled = v.GetBool("METRICS_ENABLED")
	cfg.Observability.TracingEnabled = v.GetBool("TRACING_ENABLED")

	cfg.Health.CheckPeriod = v.GetDuration("HEALTH_CHECK_PERIOD")

	cfg.OpenAPIValidation = v.GetBool("OPENAPI_VALIDATION")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the rate limiter cannot run without
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimit.Window)
	}
	if c.RateLimit.SweepInterval < 0 {
		return fmt.Errorf("RATE_LIMIT_SWEEP_INTERVAL must not be negative, got %s", c.RateLimit.SweepInterval)
	}

	switch c.RateLimit.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_URL is required for the %s backend", BackendRedis)
		}
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q (want %s or %s)", c.RateLimit.Backend, BackendMemory, BackendRedis)
	}

	if c.Health.CheckPeriod <= 0 {
		return fmt.Errorf("HEALTH_CHECK_PERIOD must be positive, got %s", c.Health.CheckPeriod)
	}
	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
