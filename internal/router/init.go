package router

import (
	"github.com/oksasatya/biolink/internal/application"
	"github.com/oksasatya/biolink/internal/container"
	"github.com/oksasatya/biolink/internal/infrastructure/search"
	handlers "github.com/oksasatya/biolink/internal/interface/http"
	"github.com/oksasatya/biolink/internal/interface/middleware"
	"github.com/oksasatya/biolink/internal/router/modules"
)

type StudioModuleDeps struct {
	Indexer *application.ProfileIndexer
	Handler *handlers.StudioHandler
}

func buildStudioDeps() StudioModuleDeps {
	cfg := container.GetConfig()
	client := container.GetClient()

	var deps StudioModuleDeps
	var searcher handlers.ProfileSearcher
	if es := container.GetES(); es != nil {
		index := search.NewProfiles(es, cfg.ESProfilesIndex, container.GetLogger())
		deps.Indexer = application.NewProfileIndexer(client.User(), index, container.GetLogger())
		searcher = deps.Indexer
	}
	deps.Handler = handlers.NewStudioHandler(client, searcher, container.GetLogger(), cfg.StudioMaxTake)
	return deps
}

// limiter returns the shared redis client, or nil when redis is not configured.
func limiter() middleware.Scripter {
	if rdb := container.GetRedis(); rdb != nil {
		return rdb
	}
	return nil
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) {
	cfg := container.GetConfig()
	studio := buildStudioDeps()
	r.Add(modules.NewStudioModule(studio.Handler, limiter(), cfg.StudioRateLimit, cfg.StudioRateWindow, cfg.StudioPrivateOnly))
	if cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(limiter()))
	}
}
