package router

import (
	"net/http"

	"learning-hub/backend/api"

	"github.com/gin-gonic/gin"
)

// addOpenAPIValidation adds the request validator to group when enabled
func (r *Router) addOpenAPIValidation(group *gin.RouterGroup) {
	if r.Container.Validator == nil {
		r.Logger.Info("OpenAPI validation disabled")
		return
	}

	group.Use(r.Container.Validator.Middleware())
	r.Logger.Debug("OpenAPI validation enabled")
}

// setupDocsRoutes serves the embedded OpenAPI document
func (r *Router) setupDocsRoutes() {
	r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", api.OpenAPISpec)
	})
}
