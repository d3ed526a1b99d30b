package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wote-dev/simplr-web-sub000/internal/engine"
	"github.com/wote-dev/simplr-web-sub000/internal/store"
)

// TasksHandler is the read-only facade for the UI layer and backup/export
// tooling: it serves the store's current task list as plain data.
type TasksHandler struct {
	store  *store.Store
	engine *engine.Engine
}

func NewTasksHandler(st *store.Store, eng *engine.Engine) *TasksHandler {
	return &TasksHandler{store: st, engine: eng}
}

// List returns the raw task list, or a filtered view when ?view= is given.
func (h *TasksHandler) List(c *gin.Context) {
	view := c.Query("view")
	if view == "" {
		c.JSON(http.StatusOK, gin.H{"tasks": h.store.Tasks()})
		return
	}

	switch f := store.ViewFilter(view); f {
	case store.ViewToday, store.ViewUpcoming, store.ViewCompleted:
		c.JSON(http.StatusOK, gin.H{"tasks": h.store.View(f, time.Now())})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown view"})
	}
}

// Status reports the engine's operating mode and stream health.
func (h *TasksHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"mode":     h.engine.Mode().String(),
		"stream":   h.engine.StreamState().String(),
		"degraded": h.engine.Degraded(),
	})
}
