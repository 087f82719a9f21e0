package router

import (
	"github.com/gin-gonic/gin"
)

// setupHealthRoutes registers the health and metrics endpoints. Neither is
// rate limited so probes and scrapers never use up a client's quota.
func (r *Router) setupHealthRoutes() {
	r.Engine.GET("/health", r.Container.Health.Handler())

	if r.Container.Metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(r.Container.Metrics.Handler))
	}
}
