package auth

import (
	"github.com/gin-gonic/gin"
	apperrors "github.com/taylordash/taylordash/internal/errors"
	"github.com/taylordash/taylordash/internal/models"
)

const (
	contextUser    = "auth.user"
	contextSession = "auth.session"
)

// RequireAuth resolves the request's bearer/session token via Service.Validate
// and aborts with 401 if it does not resolve to an active session.
func RequireAuth(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			apperrors.AbortWithError(c, apperrors.Unauthenticated())
			return
		}

		user, session, err := svc.Validate(c.Request.Context(), token)
		if err != nil {
			appErr, _ := apperrors.As(err)
			apperrors.AbortWithError(c, appErr)
			return
		}

		c.Set(contextUser, user)
		c.Set(contextSession, session)
		// Plain-string copy for middleware that must not depend on this
		// package's types (per-user rate limiting, observability).
		c.Set("username", user.Username)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated user's role meets or
// exceeds min on the ordered set viewer < admin. Must run after RequireAuth.
func RequireRole(min models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			apperrors.AbortWithError(c, apperrors.Unauthenticated())
			return
		}
		if min == models.RoleAdmin && user.Role != models.RoleAdmin {
			apperrors.AbortWithError(c, apperrors.Forbidden())
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user set by RequireAuth, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(contextUser)
	if !ok {
		return nil
	}
	u, ok := v.(*models.User)
	if !ok {
		return nil
	}
	return u
}

// CurrentSession returns the validated session set by RequireAuth, or nil.
func CurrentSession(c *gin.Context) *models.Session {
	v, ok := c.Get(contextSession)
	if !ok {
		return nil
	}
	s, ok := v.(*models.Session)
	if !ok {
		return nil
	}
	return s
}
