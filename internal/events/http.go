package events

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/taylordash/taylordash/internal/errors"
)

// Handler exposes the Pipeline's publish and inspection operations over HTTP.
type Handler struct {
	pipeline *Pipeline
}

func NewHandler(p *Pipeline) *Handler {
	return &Handler{pipeline: p}
}

// RegisterRoutes attaches the events/dlq routes. The inspection routes go on
// adminOnly; Publish goes on authenticated, so any authenticated caller may
// use it.
func (h *Handler) RegisterRoutes(authenticated *gin.RouterGroup, adminOnly *gin.RouterGroup) {
	authenticated.POST("/events/publish", h.Publish)
	adminOnly.GET("/events", h.ListEvents)
	adminOnly.GET("/dlq", h.ListDLQ)
}

func (h *Handler) Publish(c *gin.Context) {
	topic := c.Query("topic")
	kind := c.Query("kind")
	if topic == "" {
		apperrors.AbortWithError(c, apperrors.Validation("topic is required", map[string]string{"topic": "required"}))
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("could not read request body", nil))
		return
	}
	if err := h.pipeline.Publish(topic, kind, body); err != nil {
		apperrors.AbortWithError(c, apperrors.UpstreamFailure(err))
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) ListEvents(c *gin.Context) {
	topic := c.Query("topic")
	kind := c.Query("kind")
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	rows, err := h.pipeline.ListMirror(c.Request.Context(), topic, kind, limit, offset)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": rows})
}

func (h *Handler) ListDLQ(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	rows, err := h.pipeline.ListDLQ(c.Request.Context(), limit, offset)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dlq": rows})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
