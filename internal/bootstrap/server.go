package bootstrap

import (
	"time"

	"github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/moderation/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/jwt"
	infralogger "github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/metrics"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/moderation/internal/api"
	"github.com/jonesrussell/north-cloud/moderation/internal/config"
	"github.com/jonesrussell/north-cloud/moderation/internal/moderation"
	"github.com/jonesrussell/north-cloud/moderation/internal/telemetry"
)

// SetupHTTPServer creates and configures the HTTP server.
func SetupHTTPServer(
	cfg *config.Config,
	svc *moderation.Service,
	tel *telemetry.Provider,
	stream *sse.Broker,
	log infralogger.Logger,
) *infragin.Server {
	handler := api.NewHandler(svc, log)
	httpMetrics := metrics.NewHTTPMetrics(tel.Registry(), "moderation")

	auth := jwt.HeaderMiddleware()
	if cfg.Auth.JWTSecret != "" {
		auth = jwt.Middleware(cfg.Auth.JWTSecret)
	} else {
		log.Warn("No JWT secret configured; trusting moderator identity headers from the gateway")
	}

	serverConfig := &infragin.Config{
		Port:           cfg.Service.Port,
		Debug:          cfg.Service.Debug,
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		CORS: infragin.CORSConfig{
			Enabled:        cfg.CORS.Enabled,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		},
	}
	startTime := time.Now()

	var streamHandler gin.HandlerFunc
	if stream != nil {
		streamHandler = sse.Handler(stream, log)
	}

	return infragin.NewServer(serverConfig, log, func(router *gin.Engine) {
		api.SetupRoutes(router, handler, api.RouteOptions{
			Auth:           auth,
			Metrics:        httpMetrics.Middleware(),
			MetricsHandler: tel.Handler(),
			Stream:         streamHandler,
			Health: infragin.HealthOptions{
				ServiceName:    cfg.Service.Name,
				ServiceVersion: cfg.Service.Version,
				StartTime:      startTime,
				Checks: map[string]infragin.HealthChecker{
					"store": infragin.PingChecker("store", true, svc.Ping),
				},
			},
		})
	})
}
