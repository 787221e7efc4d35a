// Package auth implements TaylorDash's opaque-session authentication:
// login/validate/logout, role-gated authorization, and admin user CRUD,
// backed by Postgres. Sessions are deliberately uncached: every validation
// hits the database so logout and user deactivation revoke immediately.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/taylordash/taylordash/internal/config"
	"github.com/taylordash/taylordash/internal/db"
	apperrors "github.com/taylordash/taylordash/internal/errors"
	"github.com/taylordash/taylordash/internal/logger"
	"github.com/taylordash/taylordash/internal/metrics"
	"github.com/taylordash/taylordash/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// Service implements the Login/Validate/Logout/User-CRUD flows of the Auth
// Service component.
type Service struct {
	store  *db.Database
	hasher *TokenHasher
}

// NewService wires a Service over the storage adapter.
func NewService(store *db.Database) *Service {
	return &Service{store: store, hasher: NewTokenHasher()}
}

// LoginResult is what Login returns to the HTTP layer.
type LoginResult struct {
	PlainToken string
	Session    *models.Session
	User       *models.User
}

// Login verifies credentials and issues a new session. Failure reasons are
// never distinguished in the returned error to avoid user enumeration.
func (s *Service) Login(ctx context.Context, username, password string, rememberMe bool, ip, userAgent string) (*LoginResult, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if user == nil || !user.IsActive {
		s.recordAudit(ctx, nil, models.AuthEventLoginFailed, ip, userAgent, models.JSONMap{"username": username})
		metrics.AuthAttemptsTotal.WithLabelValues("failure", "password").Inc()
		return nil, apperrors.Unauthenticated()
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.recordAudit(ctx, &user.ID, models.AuthEventLoginFailed, ip, userAgent, nil)
		metrics.AuthAttemptsTotal.WithLabelValues("failure", "password").Inc()
		return nil, apperrors.Unauthenticated()
	}

	plainToken, tokenHash, err := s.hasher.GenerateSessionToken()
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		TokenHash:      tokenHash,
		CreatedAt:      now,
		ExpiresAt:      now.Add(config.IdleWindow(rememberMe)),
		LastActivityAt: now,
		IPAddress:      ip,
		UserAgent:      userAgent,
		IsActive:       true,
		RememberMe:     rememberMe,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, apperrors.Internal(err)
	}
	if err := s.store.UpdateLastLogin(ctx, user.ID); err != nil {
		authLog := logger.Auth()
		authLog.Warn().Err(err).Str("user_id", user.ID).Msg("failed to stamp last_login_at")
	}

	s.recordAudit(ctx, &user.ID, models.AuthEventLoginSuccess, ip, userAgent, nil)
	metrics.AuthAttemptsTotal.WithLabelValues("success", "password").Inc()
	s.refreshActiveSessionsGauge(ctx)

	return &LoginResult{PlainToken: plainToken, Session: session, User: user}, nil
}

// Validate resolves a bearer/session token to its user and session,
// extending the sliding-expiry window on every successful call.
func (s *Service) Validate(ctx context.Context, plainToken string) (*models.User, *models.Session, error) {
	tokenHash := s.hasher.HashTokenSHA256(plainToken)

	session, err := s.store.GetSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}
	if session == nil || !session.IsActive || !session.ExpiresAt.After(time.Now().UTC()) {
		return nil, nil, apperrors.Unauthenticated()
	}

	user, err := s.store.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}
	if user == nil || !user.IsActive {
		_ = s.store.DeactivateSession(ctx, session.ID)
		return nil, nil, apperrors.Unauthenticated()
	}

	now := time.Now().UTC()
	newExpiry := now.Add(config.IdleWindow(session.RememberMe))
	hardCap := session.CreatedAt.Add(config.SessionHardCap)
	if newExpiry.After(hardCap) {
		newExpiry = hardCap
	}
	session.LastActivityAt = now
	session.ExpiresAt = newExpiry
	if err := s.store.TouchSession(ctx, session.ID, now, newExpiry); err != nil {
		authLog := logger.Auth()
		authLog.Warn().Err(err).Str("session_id", session.ID).Msg("failed to touch session")
	}

	return user, session, nil
}

// Logout deactivates a session by its plain token.
func (s *Service) Logout(ctx context.Context, plainToken string) error {
	tokenHash := s.hasher.HashTokenSHA256(plainToken)
	session, err := s.store.GetSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		return apperrors.Internal(err)
	}
	if session == nil {
		return nil
	}
	if err := s.store.DeactivateSession(ctx, session.ID); err != nil {
		return apperrors.Internal(err)
	}
	s.recordAudit(ctx, &session.UserID, models.AuthEventLogout, session.IPAddress, session.UserAgent, nil)
	s.refreshActiveSessionsGauge(ctx)
	return nil
}

// ExpireStaleSessions is invoked hourly to mark lapsed sessions inactive.
func (s *Service) ExpireStaleSessions(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireStaleSessions(ctx)
	if err != nil {
		return 0, err
	}
	s.refreshActiveSessionsGauge(ctx)
	return n, nil
}

// CreateUser hashes the password and inserts a new user. Admin-only; caller
// checks authorization before invoking this.
func (s *Service) CreateUser(ctx context.Context, actorID, username, password string, role models.Role) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	u := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
		CreatedBy:    &actorID,
		CreatedAt:    time.Now().UTC(),
		Metadata:     models.JSONMap{},
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, apperrors.Conflict("username already exists")
	}
	s.recordAudit(ctx, &actorID, models.AuthEventUserCreated, "", "", models.JSONMap{"created_user_id": u.ID})
	return u, nil
}

// UpdateUser applies partial field changes and optionally rehashes the
// password with a fresh salt.
func (s *Service) UpdateUser(ctx context.Context, actorID, id string, username *string, role *models.Role, isActive *bool, newPassword *string) (*models.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if u == nil {
		return nil, apperrors.NotFound("user")
	}
	if username != nil {
		u.Username = *username
	}
	if role != nil {
		u.Role = *role
	}
	if isActive != nil {
		u.IsActive = *isActive
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, apperrors.Internal(err)
	}
	if newPassword != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*newPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if err := s.store.UpdatePasswordHash(ctx, id, string(hash)); err != nil {
			return nil, apperrors.Internal(err)
		}
		s.recordAudit(ctx, &actorID, models.AuthEventPasswordChange, "", "", models.JSONMap{"target_user_id": id})
	}
	s.recordAudit(ctx, &actorID, models.AuthEventUserUpdated, "", "", models.JSONMap{"target_user_id": id})
	return u, nil
}

// DeleteUser removes a user; sessions cascade, audit rows are retained with
// user_id nulled by the FK.
func (s *Service) DeleteUser(ctx context.Context, actorID, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return apperrors.Internal(err)
	}
	s.recordAudit(ctx, &actorID, models.AuthEventUserDeleted, "", "", models.JSONMap{"target_user_id": id})
	s.refreshActiveSessionsGauge(ctx)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, userID *string, eventType models.AuthEventType, ip, userAgent string, details models.JSONMap) {
	if err := s.store.RecordAuthAuditEvent(ctx, userID, eventType, ip, userAgent, details); err != nil {
		authLog := logger.Auth()
		authLog.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to record audit event")
	}
}

func (s *Service) refreshActiveSessionsGauge(ctx context.Context) {
	n, err := s.store.CountActiveSessions(ctx)
	if err != nil {
		return
	}
	metrics.ActiveSessions.Set(float64(n))
}
