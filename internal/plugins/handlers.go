package plugins

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/taylordash/taylordash/internal/errors"
	"github.com/taylordash/taylordash/internal/models"
)

// Handler exposes the Service over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler wraps a Service for route registration.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes attaches every /plugins/* route. protected requires a
// valid session; adminOnly additionally requires the admin role.
func (h *Handler) RegisterRoutes(protected *gin.RouterGroup, adminOnly *gin.RouterGroup) {
	protected.GET("/plugins", h.List)
	protected.GET("/plugins/:id", h.Get)
	protected.Any("/plugins/:id/proxy/*path", h.Proxy)
	adminOnly.POST("/plugins", h.Install)
	adminOnly.PATCH("/plugins/:id/config", h.UpdateConfig)
	adminOnly.POST("/plugins/:id/disable", h.Disable)
	adminOnly.POST("/plugins/:id/enable", h.Enable)
	adminOnly.DELETE("/plugins/:id", h.Uninstall)
}

func (h *Handler) List(c *gin.Context) {
	plugins, err := h.svc.ListPlugins(c.Request.Context())
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plugins": plugins})
}

func (h *Handler) Get(c *gin.Context) {
	p, err := h.svc.GetPlugin(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type installRequest struct {
	RepositoryURL string   `json:"repository_url" binding:"required"`
	Permissions   []string `json:"permissions"`
}

type installResponse struct {
	InstallationID string `json:"installation_id"`
}

func (h *Handler) Install(c *gin.Context) {
	var req installRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("invalid request body", nil))
		return
	}
	installationID, err := h.svc.Install(c.Request.Context(), req.RepositoryURL, req.Permissions)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, installResponse{InstallationID: installationID})
}

type updateConfigRequest struct {
	Config models.JSONMap `json:"config" binding:"required"`
	Reason string         `json:"change_reason"`
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("invalid request body", nil))
		return
	}
	actor := currentUserID(c)
	p, err := h.svc.UpdateConfig(c.Request.Context(), c.Param("id"), req.Config, actor, req.Reason)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) Disable(c *gin.Context) {
	if err := h.svc.Disable(c.Request.Context(), c.Param("id")); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Enable(c *gin.Context) {
	if err := h.svc.Enable(c.Request.Context(), c.Param("id")); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Proxy relays a call to an installed plugin's runtime. The permission the
// call needs is derived from the target path and method; the service layer
// records every call and turns an ungranted permission into a 403 plus a
// recorded violation.
func (h *Handler) Proxy(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("could not read request body", nil))
		return
	}

	path := c.Param("path")
	result, err := h.svc.Proxy(c.Request.Context(), ProxyRequest{
		PluginID:           c.Param("id"),
		RequiredPermission: requiredProxyPermission(c.Request.Method, path),
		Method:             c.Request.Method,
		Path:               path,
		Body:               body,
		UserAgent:          c.Request.UserAgent(),
		IPAddress:          c.ClientIP(),
	})
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.Data(result.StatusCode, result.Headers.Get("Content-Type"), result.Body)
}

// requiredProxyPermission names the capability a proxied call consumes: the
// first path segment is the resource, the method picks read or write. Calls
// to a plugin's root path need no specific grant.
func requiredProxyPermission(method, path string) string {
	seg := strings.TrimPrefix(path, "/")
	if i := strings.Index(seg, "/"); i >= 0 {
		seg = seg[:i]
	}
	if seg == "" {
		return ""
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read:" + seg
	default:
		return "write:" + seg
	}
}

func (h *Handler) Uninstall(c *gin.Context) {
	if err := h.svc.Uninstall(c.Request.Context(), c.Param("id")); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// currentUserID reads the auth.user context value set by auth.RequireAuth,
// without importing internal/auth (it would cycle back through this
// package's HTTP registration in cmd/main.go).
func currentUserID(c *gin.Context) string {
	v, exists := c.Get("auth.user")
	if !exists {
		return ""
	}
	if u, ok := v.(*models.User); ok && u != nil {
		return u.ID
	}
	return ""
}
