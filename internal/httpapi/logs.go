package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taylordash/taylordash/internal/db"
	apperrors "github.com/taylordash/taylordash/internal/errors"
)

// LogHandler exposes the ApplicationLog store's inspection API: a filtered,
// paginated page of records and an hourly aggregate, both admin-only.
type LogHandler struct {
	store *db.Database
}

func NewLogHandler(store *db.Database) *LogHandler {
	return &LogHandler{store: store}
}

// RegisterRoutes attaches GET /logs and GET /logs/stats.
func (h *LogHandler) RegisterRoutes(adminOnly *gin.RouterGroup) {
	adminOnly.GET("/logs", h.List)
	adminOnly.GET("/logs/stats", h.Stats)
}

func (h *LogHandler) List(c *gin.Context) {
	level := c.Query("level")
	service := c.Query("service")
	category := c.Query("category")
	search := c.Query("search")
	limit := clampPage(queryInt(c, "limit", 50))
	offset := queryInt(c, "offset", 0)

	start := parseQueryTime(c, "start")
	end := parseQueryTime(c, "end")

	logs, total, err := h.store.ListApplicationLogs(c.Request.Context(), level, service, category, search, start, end, limit, offset)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "total": total})
}

func (h *LogHandler) Stats(c *gin.Context) {
	hours := queryInt(c, "hours", 24)
	if hours <= 0 {
		hours = 24
	}
	stats, err := h.store.ApplicationLogStats(c.Request.Context(), hours)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseQueryTime(c *gin.Context, key string) *time.Time {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// clampPage bounds a page size to the inspection-API default/max (50/1000)
// for the logs inspection routes; the events package applies the same
// bounds with its own copy.
func clampPage(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
