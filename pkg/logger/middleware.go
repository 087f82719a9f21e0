package logger

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKey is the gin context key holding the request-scoped logger
const ContextKey = "logger"

// Middleware returns a Gin middleware function that logs requests. It should
// run after the request ID middleware so the ID is available.
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLogger := logger.WithRequestID(c.GetString("requestID"))
		c.Set(ContextKey, reqLogger)

		start := time.Now()

		c.Next()

		reqLogger.LogRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// FromContext returns the request-scoped logger, or the global one if none was set
func FromContext(c *gin.Context) *Logger {
	if l, exists := c.Get(ContextKey); exists {
		if log, ok := l.(*Logger); ok {
			return log
		}
	}
	return GetGlobal()
}
