package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	t.Run("generated", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
		_, err := uuid.Parse(w.Body.String())
		require.NoError(t, err)
		assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))
	})

	t.Run("caller uuid kept", func(t *testing.T) {
		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, id)
		assert.Equal(t, id, serve(r, req).Body.String())
	})

	t.Run("garbage replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "not-a-uuid")
		assert.NotEqual(t, "not-a-uuid", serve(r, req).Body.String())
	})
}

func TestRealIP(t *testing.T) {
	r := gin.New()
	r.Use(RealIP())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(RealIPKey)) })

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "cloudflare first", headers: map[string]string{"CF-Connecting-IP": "203.0.113.7", "X-Real-IP": "198.51.100.1"}, want: "203.0.113.7"},
		{name: "x-real-ip", headers: map[string]string{"X-Real-IP": " 198.51.100.1 "}, want: "198.51.100.1"},
		{name: "left-most forwarded", headers: map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.1"}, want: "198.51.100.2"},
		{name: "invalid header ignored", headers: map[string]string{"CF-Connecting-IP": "nope", "X-Real-IP": "198.51.100.3"}, want: "198.51.100.3"},
		{name: "remote address", want: "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, serve(r, req).Body.String())
		})
	}
}

func TestPrivateNetworkOnly(t *testing.T) {
	newEngine := func(proxies []string) *gin.Engine {
		r := gin.New()
		require.NoError(t, r.SetTrustedProxies(proxies))
		r.Use(RealIP(), PrivateNetworkOnly())
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return r
	}
	direct := newEngine(nil)

	for remote, status := range map[string]int{
		"127.0.0.1:4000":   http.StatusNoContent,
		"10.1.2.3:4000":    http.StatusNoContent,
		"[fd00::1]:4000":   http.StatusNoContent,
		"203.0.113.9:4000": http.StatusForbidden,
	} {
		t.Run(remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = remote
			assert.Equal(t, status, serve(direct, req).Code)
		})
	}

	t.Run("forwarding headers from a public peer are ignored", func(t *testing.T) {
		for _, h := range []string{"X-Real-IP", "X-Forwarded-For", "CF-Connecting-IP"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "203.0.113.7:4000"
			req.Header.Set(h, "127.0.0.1")
			assert.Equal(t, http.StatusForbidden, serve(direct, req).Code, h)
		}
	})

	t.Run("trusted proxy forwards the client address", func(t *testing.T) {
		proxied := newEngine([]string{"10.0.0.1"})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		assert.Equal(t, http.StatusForbidden, serve(proxied, req).Code)

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req.Header.Set("X-Forwarded-For", "192.168.1.20")
		assert.Equal(t, http.StatusNoContent, serve(proxied, req).Code)
	})
}

// counter is an in-memory stand-in for the redis calls the limiter makes.
type counter struct {
	hits map[string]int64
	err  error
}

func (s *counter) eval(keys []string) *redis.Cmd {
	if s.err != nil {
		return redis.NewCmdResult(nil, s.err)
	}
	s.hits[keys[0]]++
	return redis.NewCmdResult(s.hits[keys[0]], nil)
}

func (s *counter) Eval(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.eval(keys)
}

func (s *counter) EvalSha(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.eval(keys)
}

func (s *counter) EvalRO(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.eval(keys)
}

func (s *counter) EvalShaRO(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.eval(keys)
}

func (s *counter) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (s *counter) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (s *counter) TTL(_ context.Context, _ string) *redis.DurationCmd {
	return redis.NewDurationResult(30*time.Second, nil)
}

func TestRateLimit(t *testing.T) {
	newRouter := func(s Scripter, allow AllowFunc) *gin.Engine {
		r := gin.New()
		r.Use(RealIP(), RateLimit(s, 2, time.Minute, KeyByIP(), allow))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return r
	}
	from := func(ip string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", ip)
		return req
	}

	t.Run("limits per ip", func(t *testing.T) {
		s := &counter{hits: map[string]int64{}}
		r := newRouter(s, nil)

		w := serve(r, from("203.0.113.1"))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "30", w.Header().Get("X-RateLimit-Reset"))

		serve(r, from("203.0.113.1"))
		w = serve(r, from("203.0.113.1"))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "30", w.Header().Get("Retry-After"))

		assert.Equal(t, http.StatusNoContent, serve(r, from("203.0.113.2")).Code)
		assert.Equal(t, int64(3), s.hits["rl:ip:203.0.113.1"])
	})

	t.Run("fails open", func(t *testing.T) {
		r := newRouter(&counter{err: errors.New("redis down")}, nil)
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusNoContent, serve(r, from("203.0.113.1")).Code)
		}
	})

	t.Run("allowlist bypass", func(t *testing.T) {
		s := &counter{hits: map[string]int64{}}
		r := newRouter(s, AllowPrivateIP())
		require.NoError(t, r.SetTrustedProxies(nil))
		for i := 0; i < 5; i++ {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.5:4000"
			assert.Equal(t, http.StatusNoContent, serve(r, req).Code)
		}
		assert.Empty(t, s.hits)

		spoofed := from("10.0.0.5")
		spoofed.RemoteAddr = "203.0.113.50:4000"
		serve(r, spoofed)
		assert.Equal(t, int64(1), s.hits["rl:ip:10.0.0.5"])
	})

	t.Run("disabled without a client", func(t *testing.T) {
		r := newRouter(nil, nil)
		assert.Equal(t, http.StatusNoContent, serve(r, from("203.0.113.1")).Code)
	})
}

func TestKeyByIPAndPath(t *testing.T) {
	r := gin.New()
	r.Use(RealIP())
	r.GET("/studio/:model", func(c *gin.Context) { c.String(http.StatusOK, KeyByIPAndPath()(c)) })
	req := httptest.NewRequest(http.MethodGet, "/studio/User", nil)
	req.Header.Set("X-Real-IP", "203.0.113.1")
	assert.Equal(t, "rl:path:/studio/:model:ip:203.0.113.1", serve(r, req).Body.String())
}
