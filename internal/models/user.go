// Package models defines the core data structures for the TaylorDash API:
// `json` tags for wire encoding, `db` tags for snake_case column binding.
package models

import "time"

// Role is the two-tier authorization role. The source documentation also
// mentions a "maintainer" tier, but only viewer and admin exist here:
// neither the schema nor the auth middleware recognizes a maintainer value.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

// User is a TaylorDash account: a password-hashed identity with a role and
// optional dashboard display preferences.
type User struct {
	ID              string     `json:"id" db:"id"`
	Username        string     `json:"username" db:"username"`
	PasswordHash    string     `json:"-" db:"password_hash"`
	Role            Role       `json:"role" db:"role"`
	DefaultView     *string    `json:"default_view,omitempty" db:"default_view"`
	SingleViewMode  bool       `json:"single_view_mode" db:"single_view_mode"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	CreatedBy       *string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	Metadata        JSONMap    `json:"metadata,omitempty" db:"metadata"`
}

// PublicUser is the subset of User safe to echo back in API responses.
type PublicUser struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	Role           Role    `json:"role"`
	DefaultView    *string `json:"default_view,omitempty"`
	SingleViewMode bool    `json:"single_view_mode"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:             u.ID,
		Username:       u.Username,
		Role:           u.Role,
		DefaultView:    u.DefaultView,
		SingleViewMode: u.SingleViewMode,
	}
}

// Session is an opaque-token-addressed authenticated context. The database
// row is the sole source of truth for validity; nothing caches this
// in-process.
type Session struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	TokenHash      string    `json:"-" db:"token_hash"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time `json:"expires_at" db:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	IPAddress      string    `json:"ip_address" db:"ip_address"`
	UserAgent      string    `json:"user_agent" db:"user_agent"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	RememberMe     bool      `json:"remember_me" db:"remember_me"`
}

// AuthEventType enumerates the append-only audit events the auth service
// records.
type AuthEventType string

const (
	AuthEventLoginSuccess   AuthEventType = "login_success"
	AuthEventLoginFailed    AuthEventType = "login_failed"
	AuthEventLogout         AuthEventType = "logout"
	AuthEventSessionExpired AuthEventType = "session_expired"
	AuthEventPasswordChange AuthEventType = "password_changed"
	AuthEventUserCreated    AuthEventType = "user_created"
	AuthEventUserDeleted    AuthEventType = "user_deleted"
	AuthEventUserUpdated    AuthEventType = "user_updated"
)

// AuthAuditEvent is an append-only record of an authentication or
// user-management action. UserID is nulled, never deleted, when the owning
// user is removed.
type AuthAuditEvent struct {
	ID        string        `json:"id" db:"id"`
	UserID    *string       `json:"user_id" db:"user_id"`
	EventType AuthEventType `json:"event_type" db:"event_type"`
	Timestamp time.Time     `json:"timestamp" db:"timestamp"`
	IPAddress string        `json:"ip_address" db:"ip_address"`
	UserAgent string        `json:"user_agent" db:"user_agent"`
	Details   JSONMap       `json:"details,omitempty" db:"details"`
}
