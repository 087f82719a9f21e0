// Package router assembles the gin engine and registers every route.
package router

import (
	"net/http"
	"time"

	"learning-hub/backend/pkg/config"
	"learning-hub/backend/pkg/di"
	"learning-hub/backend/pkg/errors"
	"learning-hub/backend/pkg/logger"
	"learning-hub/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Router is the main router for the application
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	Config      *config.Config
	RateLimiter *middleware.RateLimiter
}

// quotaReporter is implemented by every limiter in pkg/ratelimit
type quotaReporter interface {
	Remaining(clientID string, now time.Time) int
	Limit() int
	Window() time.Duration
}

// New creates a new router with the given container
func New(container *di.Container) (*Router, error) {
	logger.SetGlobal(container.Logger)
	cfg := container.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, err
	}

	// Request ID first so every later log line carries it
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	engine.NoRoute(errors.NotFound())
	engine.NoMethod(errors.MethodNotAllowed())

	return &Router{
		Engine:      engine,
		Container:   container,
		Logger:      container.Logger,
		Config:      cfg,
		RateLimiter: middleware.NewRateLimiter(container.Limiter, cfg.RateLimit.Window, container.Logger),
	}, nil
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.setupHealthRoutes()
	r.setupDocsRoutes()

	// Everything under /api/v1 counts against the caller's quota
	v1 := r.Engine.Group("/api/v1")
	v1.Use(r.RateLimiter.Middleware())
	r.addOpenAPIValidation(v1)

	v1.GET("/ping", r.pingHandler())
	v1.GET("/ratelimit", r.rateLimitStatusHandler())
}

func (r *Router) pingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	}
}

// rateLimitStatusHandler reports the limiter settings and the remaining
// quota of the caller, or of the client named in the query string
func (r *Router) rateLimitStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.Query("client")
		if client == "" {
			client = c.ClientIP()
		}

		reporter, ok := r.Container.Limiter.(quotaReporter)
		if !ok {
			_ = c.Error(errors.NewInternalServerError(errors.CodeInternal, "Limiter does not report quotas"))
			return
		}

		body := gin.H{
			"client":         client,
			"limit":          reporter.Limit(),
			"window_seconds": int(reporter.Window().Seconds()),
			"remaining":      reporter.Remaining(client, time.Now()),
		}
		if counter, ok := r.Container.Limiter.(interface{ Clients() int }); ok {
			body["clients"] = counter.Clients()
		}

		c.JSON(http.StatusOK, body)
	}
}
