package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"learning-hub/backend/pkg/config"
	"learning-hub/backend/pkg/di"
	"learning-hub/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(limit int) *config.Config {
	cfg := &config.Config{}
	cfg.Server.Port = "8081"
	cfg.Server.Env = "test"
	cfg.Server.TrustedProxies = []string{"127.0.0.1"}
	cfg.RateLimit.Requests = limit
	cfg.RateLimit.Window = time.Minute
	cfg.RateLimit.Backend = config.BackendMemory
	cfg.RateLimit.KeyPrefix = "ratelimit:"
	cfg.Health.CheckPeriod = time.Minute
	cfg.Observability.MetricsEnabled = true
	cfg.OpenAPIValidation = true
	return cfg
}

func setupTestRouter(t *testing.T, limit int) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	container, err := di.New(testConfig(limit), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(t.Context()) })

	r, err := New(container)
	require.NoError(t, err)
	r.SetupRoutes()
	return r
}

func get(r *Router, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "203.0.113.7:40000"
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	r := setupTestRouter(t, 5)

	w := get(r, "/api/v1/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestPing_RateLimited(t *testing.T) {
	r := setupTestRouter(t, 3)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, get(r, "/api/v1/ping").Code)
	}

	w := get(r, "/api/v1/ping")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestHealthAndDocsAreNotRateLimited(t *testing.T) {
	r := setupTestRouter(t, 1)
	r.Container.Health.RunChecks(t.Context())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/health").Code)
		assert.Equal(t, http.StatusOK, get(r, "/api/docs/openapi.yaml").Code)
	}

	assert.Equal(t, http.StatusOK, get(r, "/api/v1/ping").Code)
}

func TestUnknownRoute(t *testing.T) {
	r := setupTestRouter(t, 5)

	w := get(r, "/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"NOT_FOUND"`)
}

func TestRateLimitStatus(t *testing.T) {
	r := setupTestRouter(t, 3)

	require.Equal(t, http.StatusOK, get(r, "/api/v1/ping").Code)

	w := get(r, "/api/v1/ratelimit")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Client        string `json:"client"`
		Limit         int    `json:"limit"`
		WindowSeconds int    `json:"window_seconds"`
		Remaining     int    `json:"remaining"`
		Clients       int    `json:"clients"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, "203.0.113.7", body.Client)
	assert.Equal(t, 3, body.Limit)
	assert.Equal(t, 60, body.WindowSeconds)
	assert.Equal(t, 1, body.Remaining, "both requests count against the quota")
	assert.Equal(t, 1, body.Clients)

	w = get(r, "/api/v1/ratelimit?client=someone-else")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "someone-else", body.Client)
	assert.Equal(t, 3, body.Remaining)
}

func TestRateLimitStatus_ValidatesQuery(t *testing.T) {
	r := setupTestRouter(t, 5)

	w := get(r, "/api/v1/ratelimit?client="+strings.Repeat("a", 300))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"BAD_REQUEST"`)
}

func TestMetricsEndpoint(t *testing.T) {
	r := setupTestRouter(t, 1)

	get(r, "/api/v1/ping")
	get(r, "/api/v1/ping")

	w := get(r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ratelimit_decisions")
	assert.Contains(t, w.Body.String(), `decision="reject"`)
}
