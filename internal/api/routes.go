package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/moderation/infrastructure/gin"
)

// RouteOptions carries the cross-cutting pieces the routes are mounted with.
type RouteOptions struct {
	// Auth sets the moderator identity on /api/v1 requests.
	Auth gin.HandlerFunc
	// Metrics, when set, wraps every route registered after it.
	Metrics gin.HandlerFunc
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// Stream serves the live event stream when set.
	Stream gin.HandlerFunc
	Health infragin.HealthOptions
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, handler *Handler, opts RouteOptions) {
	if opts.Metrics != nil {
		router.Use(opts.Metrics)
	}

	// Health, readiness and metrics
	infragin.RegisterHealthRoutes(router, opts.Health)
	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	if opts.Auth != nil {
		v1.Use(opts.Auth)
	}
	{
		v1.POST("/intake", handler.Intake) // POST /api/v1/intake
		v1.POST("/score", handler.Score)   // POST /api/v1/score

		// Moderator queue
		mod := v1.Group("/moderation")
		{
			mod.GET("/queue", handler.ListQueue)                  // GET /api/v1/moderation/queue
			mod.GET("/queue/:queue_id", handler.GetItem)          // GET /api/v1/moderation/queue/:queue_id
			mod.POST("/queue/:queue_id/claim", handler.ClaimItem) // POST /api/v1/moderation/queue/:queue_id/claim
			mod.POST("/queue/:queue_id/decision", handler.Decide) // POST /api/v1/moderation/queue/:queue_id/decision
			mod.GET("/queue/:queue_id/audit", handler.GetAudit)   // GET /api/v1/moderation/queue/:queue_id/audit
			mod.GET("/stats", handler.GetStats)                   // GET /api/v1/moderation/stats
			if opts.Stream != nil {
				mod.GET("/events", opts.Stream) // GET /api/v1/moderation/events
			}
		}

		// Policy
		pol := v1.Group("/policy")
		{
			pol.GET("", handler.GetPolicy)            // GET /api/v1/policy
			pol.POST("/reload", handler.ReloadPolicy) // POST /api/v1/policy/reload
		}
	}
}
