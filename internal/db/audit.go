package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/taylordash/taylordash/internal/models"
)

// RecordAuthAuditEvent appends one audit row. Append-only: never updated or
// deleted except by the user_id SET NULL cascade on user deletion.
func (d *Database) RecordAuthAuditEvent(ctx context.Context, userID *string, eventType models.AuthEventType, ip, userAgent string, details models.JSONMap) error {
	if details == nil {
		details = models.JSONMap{}
	}
	_, err := timedExec(ctx, d.db, "insert", "auth_audit_events", `
		INSERT INTO auth_audit_events (id, user_id, event_type, timestamp, ip_address, user_agent, details)
		VALUES ($1,$2,$3,now(),$4,$5,$6)`,
		uuid.New().String(), nullStringPtr(userID), eventType, ip, userAgent, details)
	return err
}

// ListAuthAuditEvents returns the most recent audit rows for a user, newest first.
func (d *Database) ListAuthAuditEvents(ctx context.Context, userID string, limit int) ([]models.AuthAuditEvent, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user_id, event_type, timestamp, ip_address, user_agent, details
		FROM auth_audit_events WHERE user_id=$1 ORDER BY timestamp DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuthAuditEvent
	for rows.Next() {
		var e models.AuthAuditEvent
		var uid sql.NullString
		if err := rows.Scan(&e.ID, &uid, &e.EventType, &e.Timestamp, &e.IPAddress, &e.UserAgent, &e.Details); err != nil {
			return nil, err
		}
		if uid.Valid {
			e.UserID = &uid.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
