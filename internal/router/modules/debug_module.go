package modules

import (
	"expvar"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/biolink/internal/interface/middleware"
)

type DebugModule struct {
	Limiter middleware.Scripter
}

func NewDebugModule(limiter middleware.Scripter) *DebugModule { return &DebugModule{Limiter: limiter} }

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	// Metrics endpoint (expvar), private networks only and rate-limited per IP
	handlers := []gin.HandlerFunc{middleware.PrivateNetworkOnly()}
	if m.Limiter != nil {
		handlers = append(handlers, middleware.RateLimit(m.Limiter, 120, time.Minute, middleware.KeyByIP(), nil))
	}
	handlers = append(handlers, gin.WrapH(expvar.Handler()))
	rg.GET("/debug/vars", handlers...)
}
