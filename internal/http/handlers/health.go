package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wote-dev/simplr-web-sub000/internal/cache"
	"github.com/wote-dev/simplr-web-sub000/internal/engine"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	engine    *engine.Engine
	cache     *cache.Cache
	startTime time.Time
	version   string
}

func NewHealthHandler(eng *engine.Engine, c *cache.Cache, version string) *HealthHandler {
	return &HealthHandler{
		engine:    eng,
		cache:     c,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Liveness returns simple alive status
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness reports the engine mode, stream state and cache reachability.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.cache.Ping(ctx); err != nil {
		checks["cache"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["cache"] = "healthy"
	}

	checks["mode"] = h.engine.Mode().String()
	checks["stream"] = h.engine.StreamState().String()
	if h.engine.Degraded() {
		checks["stream"] = "degraded: real-time sync unavailable"
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}
