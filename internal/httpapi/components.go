package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/taylordash/taylordash/internal/db"
	apperrors "github.com/taylordash/taylordash/internal/errors"
	"github.com/taylordash/taylordash/internal/models"
)

// ComponentHandler exposes Component, Task, and ComponentDependency CRUD
// over HTTP, all scoped under a parent project or component.
type ComponentHandler struct {
	store *db.Database
}

func NewComponentHandler(store *db.Database) *ComponentHandler {
	return &ComponentHandler{store: store}
}

// RegisterRoutes attaches /projects/:id/components and the nested
// task/dependency routes. Read access follows the same viewer+/admin+
// split as Projects.
func (h *ComponentHandler) RegisterRoutes(protected *gin.RouterGroup, adminOnly *gin.RouterGroup) {
	protected.GET("/projects/:id/components", h.ListByProject)
	protected.GET("/components/:id", h.Get)
	adminOnly.POST("/projects/:id/components", h.Create)
	adminOnly.PUT("/components/:id", h.Update)
	adminOnly.DELETE("/components/:id", h.Delete)

	protected.GET("/components/:id/tasks", h.ListTasks)
	adminOnly.POST("/components/:id/tasks", h.CreateTask)
	adminOnly.PUT("/tasks/:taskId", h.UpdateTask)
	adminOnly.DELETE("/tasks/:taskId", h.DeleteTask)

	protected.GET("/components/:id/dependencies", h.ListDependencies)
	adminOnly.POST("/components/:id/dependencies", h.AddDependency)
	adminOnly.DELETE("/components/:id/dependencies/:dependsOnId", h.RemoveDependency)
}

func (h *ComponentHandler) ListByProject(c *gin.Context) {
	components, err := h.store.ListComponentsByProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"components": components})
}

func (h *ComponentHandler) Get(c *gin.Context) {
	comp, err := h.store.GetComponent(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if comp == nil {
		apperrors.AbortWithError(c, apperrors.NotFound("component"))
		return
	}
	c.JSON(http.StatusOK, comp)
}

type componentRequest struct {
	Name     string         `json:"name" binding:"required"`
	Type     string         `json:"type"`
	Status   string         `json:"status"`
	Progress int            `json:"progress"`
	Position models.JSONMap `json:"position"`
	Metadata models.JSONMap `json:"metadata"`
}

func (h *ComponentHandler) Create(c *gin.Context) {
	var req componentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("invalid request body", nil))
		return
	}
	if req.Progress < 0 || req.Progress > 100 {
		apperrors.AbortWithError(c, apperrors.Validation("progress must be within [0,100]", map[string]string{"progress": "out of range"}))
		return
	}

	now := time.Now().UTC()
	comp := &models.Component{
		ID:        uuid.New().String(),
		ProjectID: c.Param("id"),
		Name:      req.Name,
		Type:      req.Type,
		Status:    req.Status,
		Progress:  req.Progress,
		Position:  req.Position,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateComponent(c.Request.Context(), comp); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comp)
}

func (h *ComponentHandler) Update(c *gin.Context) {
	var req componentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("invalid request body", nil))
		return
	}
	if req.Progress < 0 || req.Progress > 100 {
		apperrors.AbortWithError(c, apperrors.Validation("progress must be within [0,100]", map[string]string{"progress": "out of range"}))
		return
	}

	ctx := c.Request.Context()
	comp, err := h.store.GetComponent(ctx, c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if comp == nil {
		apperrors.AbortWithError(c, apperrors.NotFound("component"))
		return
	}
	comp.Name = req.Name
	comp.Type = req.Type
	comp.Status = req.Status
	comp.Progress = req.Progress
	comp.Position = req.Position
	comp.Metadata = req.Metadata
	comp.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateComponent(ctx, comp); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, comp)
}

func (h *ComponentHandler) Delete(c *gin.Context) {
	deleted, err := h.store.DeleteComponent(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if !deleted {
		apperrors.AbortWithError(c, apperrors.NotFound("component"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ComponentHandler) ListTasks(c *gin.Context) {
	tasks, err := h.store.ListTasksByComponent(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

type taskRequest struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	AssigneeID  *string    `json:"assignee_id"`
	DueAt       *time.Time `json:"due_at"`
}

func (h *ComponentHandler) CreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("invalid request body", nil))
		return
	}
	now := time.Now().UTC()
	t := &models.Task{
		ID:          uuid.New().String(),
		ComponentID: c.Param("id"),
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		AssigneeID:  req.AssigneeID,
		DueAt:       req.DueAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.CreateTask(c.Request.Context(), t); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *ComponentHandler) UpdateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("invalid request body", nil))
		return
	}
	ctx := c.Request.Context()
	t, err := h.store.GetTask(ctx, c.Param("taskId"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if t == nil {
		apperrors.AbortWithError(c, apperrors.NotFound("task"))
		return
	}
	t.Name = req.Name
	t.Description = req.Description
	t.Status = req.Status
	t.AssigneeID = req.AssigneeID
	t.DueAt = req.DueAt
	if req.Status == "completed" && t.CompletedAt == nil {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	t.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateTask(ctx, t); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *ComponentHandler) DeleteTask(c *gin.Context) {
	deleted, err := h.store.DeleteTask(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if !deleted {
		apperrors.AbortWithError(c, apperrors.NotFound("task"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ComponentHandler) ListDependencies(c *gin.Context) {
	deps, err := h.store.ListDependencies(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"depends_on": deps})
}

type addDependencyRequest struct {
	DependsOnID string `json:"depends_on_id" binding:"required"`
}

// AddDependency enforces acyclicity at the handler layer; the storage layer
// itself does not. It loads the project's full edge set and rejects the
// candidate edge with a conflict if it would introduce a cycle.
func (h *ComponentHandler) AddDependency(c *gin.Context) {
	var req addDependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("invalid request body", nil))
		return
	}
	componentID := c.Param("id")
	if componentID == req.DependsOnID {
		apperrors.AbortWithError(c, apperrors.Validation("a component cannot depend on itself", nil))
		return
	}

	ctx := c.Request.Context()
	comp, err := h.store.GetComponent(ctx, componentID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if comp == nil {
		apperrors.AbortWithError(c, apperrors.NotFound("component"))
		return
	}

	edges, err := h.store.ListAllDependencyEdges(ctx, comp.ProjectID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	if introducesCycle(edges, componentID, req.DependsOnID) {
		apperrors.AbortWithError(c, apperrors.Conflict("adding this dependency would introduce a cycle"))
		return
	}

	if err := h.store.AddComponentDependency(ctx, componentID, req.DependsOnID); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (h *ComponentHandler) RemoveDependency(c *gin.Context) {
	if err := h.store.RemoveComponentDependency(c.Request.Context(), c.Param("id"), c.Param("dependsOnId")); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// introducesCycle reports whether adding from->to to edges would create a
// cycle reachable back to from.
func introducesCycle(edges []models.ComponentDependency, from, to string) bool {
	adj := make(map[string][]string, len(edges))
	for _, e := range edges {
		adj[e.ComponentID] = append(adj[e.ComponentID], e.DependsOnID)
	}

	visited := make(map[string]bool)
	var dfs func(node string) bool
	dfs = func(node string) bool {
		if node == from {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for _, next := range adj[node] {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	for _, next := range adj[to] {
		if dfs(next) {
			return true
		}
	}
	return false
}
