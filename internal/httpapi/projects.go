// Package httpapi wires the Projects/Components/Tasks/ComponentDependency
// CRUD surface onto the Storage Adapter, following the auth package's
// Handler-wraps-a-store convention.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/taylordash/taylordash/internal/auth"
	"github.com/taylordash/taylordash/internal/cache"
	"github.com/taylordash/taylordash/internal/db"
	apperrors "github.com/taylordash/taylordash/internal/errors"
	"github.com/taylordash/taylordash/internal/models"
)

// projectCacheTTL bounds how stale a cached project read can be; mutations
// evict the key directly so this only covers the window between a write
// elsewhere and this handler's own Update/Delete calls.
const projectCacheTTL = 5 * time.Minute

// ProjectHandler exposes Project CRUD over HTTP.
type ProjectHandler struct {
	store *db.Database
	cache *cache.Cache
}

func NewProjectHandler(store *db.Database, c *cache.Cache) *ProjectHandler {
	return &ProjectHandler{store: store, cache: c}
}

// RegisterRoutes attaches /projects/*. protected requires any authenticated
// role; adminOnly additionally requires the admin role for mutations
// (viewer+ to read, admin+ to write).
func (h *ProjectHandler) RegisterRoutes(protected *gin.RouterGroup, adminOnly *gin.RouterGroup) {
	protected.GET("/projects", h.List)
	protected.GET("/projects/:id", h.Get)
	adminOnly.POST("/projects", h.Create)
	adminOnly.PUT("/projects/:id", h.Update)
	adminOnly.DELETE("/projects/:id", h.Delete)
}

func (h *ProjectHandler) List(c *gin.Context) {
	status := c.Query("status")
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	projects, total, err := h.store.ListProjects(c.Request.Context(), status, limit, offset)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects, "total": total})
}

func (h *ProjectHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var cached models.Project
	if err := h.cache.Get(ctx, cache.ProjectKey(id), &cached); err == nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	p, err := h.store.GetProject(ctx, id)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if p == nil {
		apperrors.AbortWithError(c, apperrors.NotFound("project"))
		return
	}
	_ = h.cache.Set(ctx, cache.ProjectKey(id), p, projectCacheTTL)
	c.JSON(http.StatusOK, p)
}

type createProjectRequest struct {
	Name        string         `json:"name" binding:"required,max=255"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	OwnerID     *string        `json:"owner_id"`
	Metadata    models.JSONMap `json:"metadata"`
}

func (h *ProjectHandler) Create(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("invalid request body", nil))
		return
	}
	status := models.ProjectStatus(req.Status)
	if status == "" {
		status = models.ProjectActive
	}
	// A project created without an explicit owner belongs to whoever
	// created it; only a body that names an owner overrides that. An
	// explicit null owner_id is treated the same as an absent one.
	if req.OwnerID == nil {
		if actor := auth.CurrentUser(c); actor != nil {
			req.OwnerID = &actor.ID
		}
	}

	now := time.Now().UTC()
	p := &models.Project{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Status:      status,
		OwnerID:     req.OwnerID,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.CreateProject(c.Request.Context(), p); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

type updateProjectRequest struct {
	Name        string         `json:"name" binding:"required,max=255"`
	Description string         `json:"description"`
	Status      string         `json:"status" binding:"required"`
	OwnerID     *string        `json:"owner_id"`
	Metadata    models.JSONMap `json:"metadata"`
}

func (h *ProjectHandler) Update(c *gin.Context) {
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("invalid request body", nil))
		return
	}

	ctx := c.Request.Context()
	existing, err := h.store.GetProject(ctx, c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if existing == nil {
		apperrors.AbortWithError(c, apperrors.NotFound("project"))
		return
	}

	existing.Name = req.Name
	existing.Description = req.Description
	existing.Status = models.ProjectStatus(req.Status)
	existing.OwnerID = req.OwnerID
	existing.Metadata = req.Metadata
	existing.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateProject(ctx, existing); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	_ = h.cache.Delete(ctx, cache.ProjectKey(existing.ID))
	c.JSON(http.StatusOK, existing)
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	deleted, err := h.store.DeleteProject(ctx, id)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if !deleted {
		apperrors.AbortWithError(c, apperrors.NotFound("project"))
		return
	}
	_ = h.cache.Delete(ctx, cache.ProjectKey(id))
	c.Status(http.StatusNoContent)
}
