package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	handlers "github.com/oksasatya/biolink/internal/interface/http"
	"github.com/oksasatya/biolink/internal/interface/middleware"
)

// StudioModule wires the read-only data browser under /api/studio.
// GET /studio/models, /studio/search, /studio/:model, /studio/:model/count,
// /studio/:model/aggregate, /studio/:model/groupBy, /studio/:model/:id
type StudioModule struct {
	Handler     *handlers.StudioHandler
	Limiter     middleware.Scripter
	RateLimit   int
	RateWindow  time.Duration
	PrivateOnly bool
}

func NewStudioModule(h *handlers.StudioHandler, limiter middleware.Scripter, rateLimit int, rateWindow time.Duration, privateOnly bool) *StudioModule {
	return &StudioModule{Handler: h, Limiter: limiter, RateLimit: rateLimit, RateWindow: rateWindow, PrivateOnly: privateOnly}
}

func (m *StudioModule) Register(rg *gin.RouterGroup) {
	studio := rg.Group("/studio")
	if m.PrivateOnly {
		studio.Use(middleware.PrivateNetworkOnly())
	}
	if m.Limiter != nil {
		studio.Use(middleware.RateLimit(m.Limiter, m.RateLimit, m.RateWindow, middleware.KeyByIP(), nil))
	}
	studio.GET("/models", m.Handler.ListModels)
	studio.GET("/search", m.Handler.SearchProfiles)
	studio.GET("/:model", m.Handler.FindMany)
	studio.GET("/:model/count", m.Handler.Count)
	studio.GET("/:model/aggregate", m.Handler.Aggregate)
	studio.GET("/:model/groupBy", m.Handler.GroupBy)
	studio.GET("/:model/:id", m.Handler.FindUnique)
}
