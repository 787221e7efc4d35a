package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taylordash/taylordash/internal/models"
)

// CreateSession persists a new login session row.
func (d *Database) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := timedExec(ctx, d.db, "insert", "sessions", `
		INSERT INTO sessions (id, user_id, token_hash, created_at, expires_at, last_activity_at, ip_address, user_agent, is_active, remember_me)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		s.ID, s.UserID, s.TokenHash, s.CreatedAt, s.ExpiresAt, s.LastActivityAt, s.IPAddress, s.UserAgent, s.IsActive, s.RememberMe)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSessionByTokenHash looks up a session by its fast-lookup token hash.
func (d *Database) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, last_activity_at, ip_address, user_agent, is_active, remember_me
		FROM sessions WHERE token_hash = $1`, tokenHash)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt, &s.LastActivityAt, &s.IPAddress, &s.UserAgent, &s.IsActive, &s.RememberMe)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

// TouchSession extends the sliding-expiry window and bumps last_activity_at.
func (d *Database) TouchSession(ctx context.Context, id string, lastActivity, expiresAt time.Time) error {
	_, err := timedExec(ctx, d.db, "update", "sessions", `
		UPDATE sessions SET last_activity_at=$2, expires_at=$3 WHERE id=$1`, id, lastActivity, expiresAt)
	return err
}

// DeactivateSession marks a session inactive (logout).
func (d *Database) DeactivateSession(ctx context.Context, id string) error {
	_, err := timedExec(ctx, d.db, "update", "sessions", `UPDATE sessions SET is_active=false WHERE id=$1`, id)
	return err
}

// DeactivateUserSessions marks every session for a user inactive (used on
// deactivation or deletion cascades).
func (d *Database) DeactivateUserSessions(ctx context.Context, userID string) error {
	_, err := timedExec(ctx, d.db, "update", "sessions", `UPDATE sessions SET is_active=false WHERE user_id=$1`, userID)
	return err
}

// ExpireStaleSessions marks every session past its expires_at inactive.
// Used by the hourly cleanup task. Returns the number of rows affected.
func (d *Database) ExpireStaleSessions(ctx context.Context) (int64, error) {
	res, err := timedExec(ctx, d.db, "update", "sessions", `
		UPDATE sessions SET is_active=false WHERE is_active=true AND expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountActiveSessions returns the current active_sessions gauge value.
func (d *Database) CountActiveSessions(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.QueryRowContext(ctx, `SELECT count(*) FROM sessions WHERE is_active=true AND expires_at > now()`).Scan(&n)
	return n, err
}

func timedExec(ctx context.Context, db *sql.DB, operation, table, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	res, err := db.ExecContext(ctx, query, args...)
	recordQueryDuration(operation, table, start)
	return res, err
}
