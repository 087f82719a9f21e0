package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"learning-hub/backend/pkg/logger"
	"learning-hub/backend/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// RateLimitExceededMessage is the error text returned with every 429
const RateLimitExceededMessage = "rate limit exceeded"

const instrumentationName = "learning-hub/backend/pkg/middleware"

// RateLimiterOptions configures the rate limiter middleware
type RateLimiterOptions struct {
	// KeyFunc extracts the limiting key from a request (defaults to client IP)
	KeyFunc func(*gin.Context) string
	// Clock supplies the decision time (defaults to time.Now)
	Clock func() time.Time
	// Meter records admit/reject counters (defaults to the global provider)
	Meter metric.Meter
	// Tracer wraps each decision in a span (defaults to the global provider)
	Tracer trace.Tracer
	// RejectLogLimit caps how often rejections are logged
	RejectLogLimit rate.Limit
	// RejectLogBurst is the number of rejections logged before sampling applies
	RejectLogBurst int
}

// DefaultRateLimiterOptions returns sensible defaults
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
		Clock:          time.Now,
		Meter:          otel.Meter(instrumentationName),
		Tracer:         otel.Tracer(instrumentationName),
		RejectLogLimit: rate.Every(time.Second),
		RejectLogBurst: 10,
	}
}

// RateLimiter turns a ratelimit.Limiter decision into an HTTP interceptor
type RateLimiter struct {
	limiter    ratelimit.Limiter
	options    RateLimiterOptions
	retryAfter string
	logger     *logger.Logger
	logSampler *rate.Limiter
	decisions  metric.Int64Counter
}

// NewRateLimiter creates the middleware around limiter. window is only used
// to build the fixed Retry-After value.
func NewRateLimiter(limiter ratelimit.Limiter, window time.Duration, log *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = mergeOptions(opts, options[0])
	}

	decisions, err := opts.Meter.Int64Counter("ratelimit.decisions",
		metric.WithDescription("Rate limiter decisions by outcome"),
	)
	if err != nil {
		log.LogError(err, "Failed to create rate limit counter, metrics disabled")
		decisions, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("ratelimit.decisions")
	}

	return &RateLimiter{
		limiter:    limiter,
		options:    opts,
		retryAfter: strconv.Itoa(int(math.Ceil(window.Seconds()))),
		logger:     log,
		logSampler: rate.NewLimiter(opts.RejectLogLimit, opts.RejectLogBurst),
		decisions:  decisions,
	}
}

// Middleware returns a Gin middleware for rate limiting. Rejected requests
// are aborted with 429 so no later handler runs.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)

		if !r.allow(c.Request.Context(), logger.FromContext(c), key, c.Request.URL.Path) {
			c.Header("Retry-After", r.retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": RateLimitExceededMessage})
			return
		}

		c.Next()
	}
}

// Handler applies the same contract to a plain net/http handler, keyed on
// the host part of the remote address.
func (r *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key := remoteHost(req.RemoteAddr)

		if !r.allow(req.Context(), r.logger, key, req.URL.Path) {
			w.Header().Set("Retry-After", r.retryAfter)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": RateLimitExceededMessage})
			return
		}

		next.ServeHTTP(w, req)
	})
}

// RetryAfter returns the header value sent with rejections
func (r *RateLimiter) RetryAfter() string {
	return r.retryAfter
}

func (r *RateLimiter) allow(ctx context.Context, log *logger.Logger, key, path string) bool {
	ctx, span := r.options.Tracer.Start(ctx, "ratelimit.allow",
		trace.WithAttributes(attribute.String("ratelimit.client", key)),
	)
	defer span.End()

	allowed := r.limiter.Allow(key, r.options.Clock())

	decision := "admit"
	if !allowed {
		decision = "reject"
	}
	span.SetAttributes(attribute.String("ratelimit.decision", decision))
	r.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))

	if !allowed && r.logSampler.Allow() {
		log.WithClient(key).Warn("Rate limit exceeded", "path", path)
	}

	return allowed
}

func mergeOptions(defaults, custom RateLimiterOptions) RateLimiterOptions {
	if custom.KeyFunc != nil {
		defaults.KeyFunc = custom.KeyFunc
	}
	if custom.Clock != nil {
		defaults.Clock = custom.Clock
	}
	if custom.Meter != nil {
		defaults.Meter = custom.Meter
	}
	if custom.Tracer != nil {
		defaults.Tracer = custom.Tracer
	}
	if custom.RejectLogLimit != 0 {
		defaults.RejectLogLimit = custom.RejectLogLimit
	}
	if custom.RejectLogBurst != 0 {
		defaults.RejectLogBurst = custom.RejectLogBurst
	}
	return defaults
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	// No port: a bare or bracketed address
	return strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
}
