package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/taylordash/taylordash/internal/errors"
	"github.com/taylordash/taylordash/internal/models"
	"github.com/taylordash/taylordash/internal/validator"
)

// Handler exposes the Auth Service over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler wraps a Service for route registration.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes attaches every /auth/* route. All three groups are rooted
// at /auth: group is unauthenticated (login only), protected requires a
// valid session, adminOnly additionally requires the admin role.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup, protected *gin.RouterGroup, adminOnly *gin.RouterGroup) {
	group.POST("/login", h.Login)
	protected.POST("/logout", h.Logout)
	protected.GET("/me", h.Me)
	adminOnly.GET("/users", h.ListUsers)
	adminOnly.POST("/users", h.CreateUser)
	adminOnly.PATCH("/users/:id", h.UpdateUser)
	adminOnly.DELETE("/users/:id", h.DeleteUser)
}

type loginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

type loginResponse struct {
	SessionToken string            `json:"session_token"`
	ExpiresAt    string            `json:"expires_at"`
	User         models.PublicUser `json:"user"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("invalid request body", nil))
		return
	}

	result, err := h.svc.Login(c.Request.Context(), req.Username, req.Password, req.RememberMe, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		appErr, _ := apperrors.As(err)
		apperrors.AbortWithError(c, appErr)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		SessionToken: result.PlainToken,
		ExpiresAt:    result.Session.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		User:         result.User.Public(),
	})
}

func (h *Handler) Logout(c *gin.Context) {
	token := extractToken(c)
	if token != "" {
		if err := h.svc.Logout(c.Request.Context(), token); err != nil {
			appErr, _ := apperrors.As(err)
			apperrors.AbortWithError(c, appErr)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Me(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		apperrors.AbortWithError(c, apperrors.Unauthenticated())
		return
	}
	c.JSON(http.StatusOK, user.Public())
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.svc.store.ListUsers(c.Request.Context())
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	out := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

type createUserRequest struct {
	Username string      `json:"username" binding:"required" validate:"required,username"`
	Password string      `json:"password" binding:"required" validate:"required,password"`
	Role     models.Role `json:"role" binding:"required"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("invalid request body", nil))
		return
	}
	if fields := validator.ValidateRequest(req); fields != nil {
		apperrors.AbortWithError(c, apperrors.Validation("request failed validation", fields))
		return
	}
	actor := CurrentUser(c)
	u, err := h.svc.CreateUser(c.Request.Context(), actor.ID, req.Username, req.Password, req.Role)
	if err != nil {
		appErr, _ := apperrors.As(err)
		apperrors.AbortWithError(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, u.Public())
}

type updateUserRequest struct {
	Username *string      `json:"username"`
	Role     *models.Role `json:"role"`
	IsActive *bool        `json:"is_active"`
	Password *string      `json:"password"`
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.AbortWithError(c, apperrors.Validation("invalid request body", nil))
		return
	}
	actor := CurrentUser(c)
	u, err := h.svc.UpdateUser(c.Request.Context(), actor.ID, c.Param("id"), req.Username, req.Role, req.IsActive, req.Password)
	if err != nil {
		appErr, _ := apperrors.As(err)
		apperrors.AbortWithError(c, appErr)
		return
	}
	c.JSON(http.StatusOK, u.Public())
}

func (h *Handler) DeleteUser(c *gin.Context) {
	actor := CurrentUser(c)
	if err := h.svc.DeleteUser(c.Request.Context(), actor.ID, c.Param("id")); err != nil {
		appErr, _ := apperrors.As(err)
		apperrors.AbortWithError(c, appErr)
		return
	}
	c.Status(http.StatusNoContent)
}

// extractToken reads a bearer token from Authorization, falling back to the
// X-Session-Token header. Either form is sufficient.
func extractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return c.GetHeader("X-Session-Token")
}
