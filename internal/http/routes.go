package http

import (
	"github.com/gin-gonic/gin"

	"github.com/wote-dev/simplr-web-sub000/internal/cache"
	"github.com/wote-dev/simplr-web-sub000/internal/engine"
	"github.com/wote-dev/simplr-web-sub000/internal/http/handlers"
	"github.com/wote-dev/simplr-web-sub000/internal/store"
)

// RegisterRoutes mounts the local facade: health probes plus the read-only
// task export consumed by the UI layer and backup tooling.
func RegisterRoutes(r *gin.Engine, eng *engine.Engine, st *store.Store, c *cache.Cache, version string) {
	healthHandler := handlers.NewHealthHandler(eng, c, version)
	tasksHandler := handlers.NewTasksHandler(st, eng)

	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/tasks", tasksHandler.List)
		v1.GET("/status", tasksHandler.Status)
	}
}
