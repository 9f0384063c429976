package gin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus is the outcome of a health check.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const checkTimeout = 2 * time.Second

// HealthResponse is the body returned by /health and /ready.
type HealthResponse struct {
	Status  HealthStatus           `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the result of one named dependency check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthChecker probes a dependency.
type HealthChecker func(ctx context.Context) CheckResult

// HealthOptions configures the health routes.
type HealthOptions struct {
	ServiceName    string
	ServiceVersion string
	StartTime      time.Time
	// Checks run on /ready. /health only reports liveness.
	Checks map[string]HealthChecker
}

// RegisterHealthRoutes adds GET/HEAD /health (liveness) and GET /ready
// (dependency checks).
func RegisterHealthRoutes(router gin.IRoutes, opts HealthOptions) {
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:  HealthStatusHealthy,
			Service: opts.ServiceName,
			Version: opts.ServiceVersion,
			Uptime:  time.Since(opts.StartTime).Truncate(time.Second).String(),
		})
	})
	router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/ready", readyHandler(opts))
}

func readyHandler(opts HealthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := HealthResponse{
			Status:  HealthStatusHealthy,
			Service: opts.ServiceName,
			Version: opts.ServiceVersion,
			Checks:  make(map[string]CheckResult, len(opts.Checks)),
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()

		for name, check := range opts.Checks {
			result := check(ctx)
			resp.Checks[name] = result

			switch {
			case result.Status == HealthStatusUnhealthy:
				resp.Status = HealthStatusUnhealthy
			case result.Status == HealthStatusDegraded && resp.Status == HealthStatusHealthy:
				resp.Status = HealthStatusDegraded
			}
		}

		code := http.StatusOK
		if resp.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	}
}

// PingChecker wraps a ping function. A failing critical dependency makes the
// service unhealthy; a failing optional one only degrades it.
func PingChecker(name string, critical bool, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		err := ping(ctx)
		latency := time.Since(start).String()

		if err == nil {
			return CheckResult{Status: HealthStatusHealthy, Message: name + " connection OK", Latency: latency}
		}

		status := HealthStatusDegraded
		if critical {
			status = HealthStatusUnhealthy
		}
		return CheckResult{Status: status, Message: name + " connection failed", Latency: latency}
	}
}
