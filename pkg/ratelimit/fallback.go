package ratelimit

import (
	"errors"
	"time"

	"learning-hub/backend/pkg/logger"
	"learning-hub/backend/pkg/resilience"
)

// FallbackLimiter prefers a shared Redis quota and falls back to a local
// in-memory quota while Redis is failing or its circuit is open. Requests
// admitted by Redis are also recorded locally, so a failover continues from
// the same count instead of a fresh quota.
type FallbackLimiter struct {
	primary  *RedisLimiter
	fallback *RateLimiter
	breaker  *resilience.CircuitBreaker
	log      *logger.Logger
}

// NewFallbackLimiter wires primary behind breaker with fallback as the
// local decision maker.
func NewFallbackLimiter(primary *RedisLimiter, fallback *RateLimiter, breaker *resilience.CircuitBreaker, log *logger.Logger) *FallbackLimiter {
	return &FallbackLimiter{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		log:      log,
	}
}

// Allow implements Limiter
func (fl *FallbackLimiter) Allow(clientID string, now time.Time) bool {
	var allowed bool
	err := fl.breaker.Execute(func() error {
		ctx, cancel := fl.primary.context()
		defer cancel()

		var err error
		allowed, err = fl.primary.AllowContext(ctx, clientID, now)
		return err
	})
	if err == nil {
		if allowed {
			fl.fallback.record(clientID, now)
		}
		return allowed
	}

	if !errors.Is(err, resilience.ErrCircuitOpen) {
		fl.log.Debug("Falling back to in-memory rate limiter",
			"client", clientID,
			"error", err.Error(),
		)
	}
	return fl.fallback.Allow(clientID, now)
}

// Remaining reports from Redis, or from the local log while the circuit is
// open or Redis errors
func (fl *FallbackLimiter) Remaining(clientID string, now time.Time) int {
	if fl.breaker.State() == resilience.StateOpen {
		return fl.fallback.Remaining(clientID, now)
	}

	ctx, cancel := fl.primary.context()
	defer cancel()

	remaining, err := fl.primary.RemainingContext(ctx, clientID, now)
	if err != nil {
		return fl.fallback.Remaining(clientID, now)
	}
	return remaining
}

// Limit returns the maximum number of admissions per window.
func (fl *FallbackLimiter) Limit() int {
	return fl.primary.Limit()
}

// Window returns the sliding window length.
func (fl *FallbackLimiter) Window() time.Duration {
	return fl.primary.Window()
}

// Breaker exposes the circuit breaker for health reporting
func (fl *FallbackLimiter) Breaker() *resilience.CircuitBreaker {
	return fl.breaker
}
