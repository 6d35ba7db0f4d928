package modules

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/oksasatya/biolink/internal/domain/repository"
	handlers "github.com/oksasatya/biolink/internal/interface/http"
	"github.com/oksasatya/biolink/internal/interface/middleware"
)

type noModels struct{}

func (noModels) Model(string) (repository.ModelDelegate, bool) { return nil, false }

func TestStudioModuleRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	newEngine := func(privateOnly bool) *gin.Engine {
		e := gin.New()
		_ = e.SetTrustedProxies(nil)
		e.Use(middleware.RealIP())
		mod := NewStudioModule(handlers.NewStudioHandler(noModels{}, nil, nil, 0), nil, 0, 0, privateOnly)
		mod.Register(e.Group("/api"))
		return e
	}
	call := func(e *gin.Engine, path, ip string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip + ":4000"
		w := httptest.NewRecorder()
		e.ServeHTTP(w, req)
		return w.Code
	}

	open := newEngine(false)
	assert.Equal(t, http.StatusOK, call(open, "/api/studio/models", "203.0.113.1"))
	assert.Equal(t, http.StatusServiceUnavailable, call(open, "/api/studio/search?q=ana", "203.0.113.1"))
	for _, path := range []string{"/api/studio/Pet", "/api/studio/Pet/count", "/api/studio/Pet/aggregate", "/api/studio/Pet/groupBy", "/api/studio/Pet/p1"} {
		assert.Equal(t, http.StatusNotFound, call(open, path, "203.0.113.1"), path)
	}

	private := newEngine(true)
	assert.Equal(t, http.StatusForbidden, call(private, "/api/studio/models", "203.0.113.1"))
	assert.Equal(t, http.StatusOK, call(private, "/api/studio/models", "10.0.0.2"))

	req := httptest.NewRequest(http.MethodGet, "/api/studio/models", nil)
	req.RemoteAddr = "203.0.113.1:4000"
	req.Header.Set("X-Real-IP", "127.0.0.1")
	w := httptest.NewRecorder()
	private.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDebugModule(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.Use(middleware.RealIP())
	NewDebugModule(nil).Register(e.Group("/api"))

	req := httptest.NewRequest(http.MethodGet, "/api/debug/vars", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "memstats")
}
