package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taylordash/taylordash/internal/models"
)

// CreateUser inserts a new user row. PasswordHash must already be hashed.
func (d *Database) CreateUser(ctx context.Context, u *models.User) error {
	_, err := timedExec(ctx, d.db, "insert", "users", `
		INSERT INTO users (id, username, password_hash, role, default_view, single_view_mode, is_active, created_by, created_at, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		u.ID, u.Username, u.PasswordHash, u.Role, nullStringPtr(u.DefaultView), u.SingleViewMode, u.IsActive, nullStringPtr(u.CreatedBy), u.CreatedAt, u.Metadata)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func scanUser(scan func(...interface{}) error) (*models.User, error) {
	var u models.User
	var defaultView, createdBy sql.NullString
	var lastLogin sql.NullTime
	err := scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &defaultView, &u.SingleViewMode, &u.IsActive, &createdBy, &u.CreatedAt, &lastLogin, &u.Metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if defaultView.Valid {
		u.DefaultView = &defaultView.String
	}
	if createdBy.Valid {
		u.CreatedBy = &createdBy.String
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}

const userColumns = `id, username, password_hash, role, default_view, single_view_mode, is_active, created_by, created_at, last_login_at, metadata`

// GetUser fetches a user by id.
func (d *Database) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row.Scan)
}

// GetUserByUsername fetches a user by username, used by login.
func (d *Database) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	return scanUser(row.Scan)
}

// ListUsers returns every user ordered by creation time.
func (d *Database) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateUser applies a partial update. Zero-value fields in the request are
// left untouched by the caller before this is invoked.
func (d *Database) UpdateUser(ctx context.Context, u *models.User) error {
	_, err := timedExec(ctx, d.db, "update", "users", `
		UPDATE users SET username=$2, role=$3, default_view=$4, single_view_mode=$5, is_active=$6, metadata=$7
		WHERE id=$1`,
		u.ID, u.Username, u.Role, nullStringPtr(u.DefaultView), u.SingleViewMode, u.IsActive, u.Metadata)
	return err
}

// UpdatePasswordHash rehashes with a fresh salt; caller supplies the hash.
func (d *Database) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	_, err := timedExec(ctx, d.db, "update", "users", `UPDATE users SET password_hash=$2 WHERE id=$1`, id, hash)
	return err
}

// UpdateLastLogin stamps last_login_at=now.
func (d *Database) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := timedExec(ctx, d.db, "update", "users", `UPDATE users SET last_login_at=$2 WHERE id=$1`, id, time.Now().UTC())
	return err
}

// DeleteUser removes a user. Sessions cascade via FK; audit events are
// null-set via FK ON DELETE SET NULL.
func (d *Database) DeleteUser(ctx context.Context, id string) error {
	_, err := timedExec(ctx, d.db, "delete", "users", `DELETE FROM users WHERE id=$1`, id)
	return err
}
