package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tailor-backend/internal/credits"
	"tailor-backend/internal/documents"
	"tailor-backend/internal/pipeline"
	"tailor-backend/internal/shared/config"
	"tailor-backend/internal/shared/metrics"
	"tailor-backend/internal/shared/server/middleware"
)

// RouterDeps carries the handlers the router mounts.
type RouterDeps struct {
	Config          config.Config
	PipelineHandler *pipeline.Handler
	DocumentHandler *documents.Handler
	CreditsHandler  *credits.Handler
}

// NewRouter builds the gin engine with the standard middleware chain
// and all API routes under /api/v1.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(deps.Config.CORSAllowOrigin))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(middleware.Identity())
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			// Generation routes hit the provider; keep them slow.
			"GENERATE": {Rate: 0.5, Burst: 3},
			"DEFAULT":  {Rate: 10, Burst: 20},
		},
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodPost && isGenerateRoute(c.FullPath()) {
				return "GENERATE"
			}
			return "DEFAULT"
		},
	}))

	deps.PipelineHandler.RegisterRoutes(api)
	deps.DocumentHandler.RegisterRoutes(api)
	deps.CreditsHandler.RegisterRoutes(api)

	if deps.Config.Env != "production" {
		dev := r.Group("/dev")
		dev.Use(middleware.Identity())
		deps.CreditsHandler.RegisterDevRoutes(dev)
	}

	return r
}

func isGenerateRoute(fullPath string) bool {
	switch fullPath {
	case "/api/v1/sessions",
		"/api/v1/sessions/:id/optimize",
		"/api/v1/sessions/:id/evaluate":
		return true
	default:
		return false
	}
}

// Addr formats the listen address for the given port.
func Addr(port string) string {
	if port == "" {
		port = "8080"
	}
	return ":" + port
}
