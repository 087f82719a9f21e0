package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"learning-hub/backend/api"
	apperrors "learning-hub/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupValidatedRouter(t *testing.T) *gin.Engine {
	t.Helper()

	v, err := NewOpenAPIValidator(api.OpenAPISpec)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorHandler(), v.Middleware())
	r.GET("/api/v1/ratelimit", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"client": c.Query("client")})
	})
	r.GET("/undocumented", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestNewOpenAPIValidator_LoadsEmbeddedDocument(t *testing.T) {
	v, err := NewOpenAPIValidator(api.OpenAPISpec)
	require.NoError(t, err)

	doc := v.Document()
	assert.NotNil(t, doc.Paths.Find("/api/v1/ping"))
	assert.NotNil(t, doc.Paths.Find("/api/v1/ratelimit"))
}

func TestNewOpenAPIValidator_RejectsGarbage(t *testing.T) {
	_, err := NewOpenAPIValidator([]byte("not: [valid"))
	assert.Error(t, err)
}

func TestMiddleware_AdmitsValidRequest(t *testing.T) {
	r := setupValidatedRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ratelimit?client=abc", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"client":"abc"}`, w.Body.String())
}

func TestMiddleware_RejectsOversizedClient(t *testing.T) {
	r := setupValidatedRouter(t)

	target := "/api/v1/ratelimit?client=" + strings.Repeat("x", 256)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeBadRequest)
}

func TestMiddleware_PassesUndocumentedRoutes(t *testing.T) {
	r := setupValidatedRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/undocumented", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
}
