// Package httpapi assembles the gin router and handlers of the judge's
// HTTP surface.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"kodejudge/internal/catalog"
	"kodejudge/internal/health"
	"kodejudge/internal/metrics"
	"kodejudge/internal/middleware"
	"kodejudge/internal/service"
)

// Handler bundles the dependencies the endpoint handlers share.
type Handler struct {
	svc     *service.Service
	health  *health.Service
	catalog *catalog.Catalog
}

func NewHandler(svc *service.Service, hs *health.Service, cat *catalog.Catalog) *Handler {
	return &Handler{svc: svc, health: hs, catalog: cat}
}

// Options tunes the middleware chain.
type Options struct {
	Production  bool
	RateLimiter *middleware.IPRateLimiter
}

// NewRouter wires the full middleware chain and endpoint table.
func NewRouter(h *Handler, opts Options) *gin.Engine {
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.Use(metrics.Middleware())
	if opts.RateLimiter != nil {
		r.Use(middleware.RateLimit(opts.RateLimiter))
	}

	r.GET("/metrics", metrics.Handler())

	hg := r.Group("/health")
	{
		hg.GET("/ping", h.ping)
		hg.GET("/", h.healthOverall)
		hg.GET("/database", h.healthDatabase)
		hg.GET("/redis", h.healthRedis)
		hg.GET("/workers", h.healthWorkers)
		hg.GET("/info", h.healthInfo)
	}

	lg := r.Group("/languages")
	{
		lg.GET("/", h.listLanguages)
		lg.GET("/:id", h.getLanguage)
	}

	sg := r.Group("/submissions")
	{
		sg.POST("/", h.createSubmission)
		sg.POST("/batch", h.createBatch)
		sg.GET("/", h.listSubmissions)
		sg.GET("/batch", h.getBatch)
		sg.GET("/:id", h.getSubmission)
		sg.DELETE("/:id", h.deleteSubmission)
	}

	return r
}
