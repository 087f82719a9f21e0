package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details"`
	} `json:"error"`
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(ErrorHandler(), RecoveryWithLogger())
	r.NoRoute(NotFound())
	r.NoMethod(MethodNotAllowed())
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_RendersAppError(t *testing.T) {
	r := newTestRouter()
	r.GET("/bad", func(c *gin.Context) {
		_ = c.Error(NewBadRequestError(CodeBadRequest, "bad input").WithDetails("client too long"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, CodeBadRequest, body.Error.Code)
	assert.Equal(t, "bad input", body.Error.Message)
	assert.Equal(t, "client too long", body.Error.Details)
}

func TestErrorHandler_WrapsPlainErrors(t *testing.T) {
	r := newTestRouter()
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(stderrors.New("disk on fire"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeInternal, decode(t, w).Error.Code)
}

func TestErrorHandler_KeepsWrittenResponse(t *testing.T) {
	r := newTestRouter()
	r.GET("/limited", func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		_ = c.Error(NewInternalServerError(CodeInternal, "late error"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestRecoveryWithLogger(t *testing.T) {
	r := newTestRouter()
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeServerPanic, decode(t, w).Error.Code)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	r := newTestRouter()
	r.GET("/only-get", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decode(t, w).Error.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/only-get", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, CodeMethodNotAllowed, decode(t, w).Error.Code)
}

func TestFromError(t *testing.T) {
	appErr := NewNotFoundError(CodeNotFound, "nope")

	assert.Same(t, appErr, FromError(appErr))
	assert.Nil(t, FromError(nil))

	wrapped := FromError(stderrors.New("x"))
	assert.Equal(t, http.StatusInternalServerError, wrapped.StatusCode)
	assert.Equal(t, CodeInternal, wrapped.Code)
	assert.Equal(t, "[NOT_FOUND] nope", appErr.Error())
}
