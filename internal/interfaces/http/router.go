// Package http assembles the HTTP API: router, middleware chain, and server
// lifecycle.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/helixforge/helixforge/internal/config"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
	"github.com/helixforge/helixforge/internal/interfaces/http/handlers"
	"github.com/helixforge/helixforge/internal/interfaces/http/middleware"
)

// RouterDependencies carries everything the router mounts.  Handlers left
// nil have their routes omitted; MetricsHandler nil omits /metrics.
type RouterDependencies struct {
	Runs           *handlers.RunHandler
	Archive        *handlers.ArchiveHandler
	Health         *handlers.HealthHandler
	MetricsHandler http.Handler
	Logger         logging.Logger
}

// RouterConfig tunes the middleware chain.
type RouterConfig struct {
	Mode      string
	CORS      middleware.CORSConfig
	RateLimit middleware.RateLimitConfig
	Logging   middleware.LoggingConfig
}

// DefaultRouterConfig derives a RouterConfig from the server config.
func DefaultRouterConfig(server config.ServerConfig) RouterConfig {
	return RouterConfig{
		Mode:      server.Mode,
		CORS:      middleware.DefaultCORSConfig(),
		RateLimit: middleware.DefaultRateLimitConfig(),
		Logging:   middleware.DefaultLoggingConfig(),
	}
}

// NewRouter builds the gin engine with the full middleware chain and the
// versioned API routes.
func NewRouter(cfg RouterConfig, deps RouterDependencies) *gin.Engine {
	switch cfg.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogging(deps.Logger, cfg.Logging))
	engine.Use(middleware.CORS(cfg.CORS))

	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter := middleware.NewTokenBucketLimiter(
			cfg.RateLimit.RequestsPerSecond,
			cfg.RateLimit.BurstSize,
			cfg.RateLimit.CleanupInterval,
		)
		engine.Use(middleware.RateLimit(limiter, cfg.RateLimit))
	}

	if deps.Health != nil {
		engine.GET("/healthz", deps.Health.Liveness)
		engine.GET("/readyz", deps.Health.Readiness)
	}
	if deps.MetricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	v1 := engine.Group("/api/v1")

	if deps.Runs != nil {
		runs := v1.Group("/runs")
		runs.POST("", deps.Runs.Start)
		runs.GET("", deps.Runs.List)
		runs.GET("/:id", deps.Runs.Get)
		runs.POST("/:id/resume", deps.Runs.Resume)
		runs.POST("/:id/cancel", deps.Runs.Cancel)
		runs.GET("/:id/generations", deps.Runs.Generations)
		runs.GET("/:id/candidates/top", deps.Runs.TopCandidates)
		runs.GET("/:id/candidates/:key", deps.Runs.GetCandidate)

		v1.GET("/candidates/:key/lineage", deps.Runs.Ancestry)
		v1.GET("/candidates/:key/descendants", deps.Runs.Descendants)
	}

	if deps.Archive != nil {
		v1.GET("/archive/search", deps.Archive.Search)
		v1.POST("/candidates/similar", deps.Archive.Similar)
		if deps.Runs != nil {
			v1.GET("/runs/:id/poses/:key", deps.Archive.PoseURL)
		}
	}

	return engine
}
