// Package di builds every long-lived dependency once and hands them out.
package di

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"learning-hub/backend/api"
	"learning-hub/backend/pkg/config"
	"learning-hub/backend/pkg/health"
	"learning-hub/backend/pkg/logger"
	"learning-hub/backend/pkg/ratelimit"
	"learning-hub/backend/pkg/resilience"
	"learning-hub/backend/pkg/validator"
	"learning-hub/backend/shared/observability"
	redisclient "learning-hub/backend/shared/redis"
)

// ServiceName identifies this service in telemetry
const ServiceName = "learning-hub-ratelimiter"

// Container holds all the dependencies for the application
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	// Limiter is the decision maker injected into the middleware
	Limiter ratelimit.Limiter
	// Local is the in-memory limiter; with the redis backend it is the fallback
	Local *ratelimit.RateLimiter

	Redis   *redisclient.RedisClient
	Breaker *resilience.CircuitBreaker

	Health    *health.Checker
	Metrics   *observability.Metrics
	Validator *validator.OpenAPIValidator

	shutdownTracing func(context.Context) error
}

// Options tweaks how the container is built
type Options struct {
	// TraceOutput receives spans when tracing is enabled (defaults to os.Stdout)
	TraceOutput io.Writer
}

// New creates a new dependency injection container
func New(cfg *config.Config, log *logger.Logger, opts ...Options) (*Container, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.TraceOutput == nil {
		o.TraceOutput = os.Stdout
	}

	c := &Container{
		Config: cfg,
		Logger: log,
		Health: health.NewChecker(log, cfg.Health.CheckPeriod),
	}

	if cfg.Observability.MetricsEnabled {
		metrics, err := observability.SetupPrometheusMetrics(ServiceName)
		if err != nil {
			return nil, err
		}
		c.Metrics = metrics
	}

	if cfg.Observability.TracingEnabled {
		shutdown, err := observability.SetupTracing(ServiceName, o.TraceOutput)
		if err != nil {
			return nil, err
		}
		c.shutdownTracing = shutdown
	}

	if cfg.OpenAPIValidation {
		v, err := validator.NewOpenAPIValidator(api.OpenAPISpec)
		if err != nil {
			return nil, err
		}
		c.Validator = v
	}

	c.Local = ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	c.Limiter = c.Local

	c.Health.RegisterCriticalCheck("ratelimiter", func(context.Context) (health.Status, string, error) {
		return health.StatusUp, fmt.Sprintf("%s backend, %d local clients tracked", cfg.RateLimit.Backend, c.Local.Clients()), nil
	})

	if cfg.RateLimit.Backend == config.BackendRedis {
		c.wireRedis()
	}

	return c, nil
}

func (c *Container) wireRedis() {
	cfg := c.Config

	c.Redis = redisclient.NewRedisClient(cfg)
	c.Breaker = resilience.NewCircuitBreaker(resilience.DefaultConfig("redis-ratelimit"), c.Logger)

	primary := ratelimit.NewRedisLimiter(c.Redis.Client(), cfg.RateLimit.Requests, cfg.RateLimit.Window,
		ratelimit.RedisOptions{
			KeyPrefix: cfg.RateLimit.KeyPrefix,
			Timeout:   cfg.Redis.Timeout,
			Logger:    c.Logger,
		},
	)
	c.Limiter = ratelimit.NewFallbackLimiter(primary, c.Local, c.Breaker, c.Logger)

	// Redis being down degrades to per-instance limiting, it does not stop the service
	c.Health.RegisterCheck("redis", func(ctx context.Context) (health.Status, string, error) {
		if err := c.Redis.Ping(ctx); err != nil {
			return health.StatusDegraded, "Falling back to in-memory limiting", err
		}
		return health.StatusUp, "Redis is reachable", nil
	})
	c.Health.RegisterCheck("redis-circuit", func(context.Context) (health.Status, string, error) {
		m := c.Breaker.Metrics()
		if m.State == resilience.StateOpen {
			return health.StatusDegraded, fmt.Sprintf("circuit open, %d failures", m.TotalFailures), nil
		}
		return health.StatusUp, "circuit " + string(m.State), nil
	})
}

// Start launches background work: the health checker and, if configured,
// the stale client sweeper. Both stop when ctx is done.
func (c *Container) Start(ctx context.Context) {
	c.Health.Start(ctx)

	if interval := c.Config.RateLimit.SweepInterval; interval > 0 {
		go c.Local.StartSweeper(ctx, interval, func(removed int) {
			if removed > 0 {
				c.Logger.Debug("Swept expired rate limit clients", "removed", removed)
			}
		})
		c.Logger.Info("Rate limit sweeper started", "interval", interval.String())
	}
}

// Close releases external resources
func (c *Container) Close(ctx context.Context) error {
	var errs []error

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.Metrics != nil {
		if err := c.Metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown metrics: %w", err))
		}
	}
	if c.shutdownTracing != nil {
		if err := c.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}

	return errors.Join(errs...)
}
