package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taylordash/taylordash/internal/models"
)

// InsertEventMirror inserts a mirrored bus message inside the caller's
// transaction, relying on the events_mirror.sequence BIGSERIAL for
// monotonic, gap-tolerant ordering. If the payload carried a message_id,
// the unique partial index on (topic, message_id) silently absorbs every
// later duplicate via ON CONFLICT DO NOTHING; the index has no time window.
func (d *Database) InsertEventMirror(ctx context.Context, tx *sql.Tx, m models.EventMirror) (inserted bool, err error) {
	start := time.Now()
	var seq int64
	row := tx.QueryRowContext(ctx, `
		INSERT INTO events_mirror (topic, kind, payload, received_at, trace_id, message_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (topic, message_id) WHERE message_id IS NOT NULL DO NOTHING
		RETURNING sequence`,
		m.Topic, m.Kind, m.Payload, m.ReceivedAt, m.TraceID, m.MessageID)
	scanErr := row.Scan(&seq)
	recordQueryDuration("insert", "events_mirror", start)
	if scanErr == sql.ErrNoRows {
		return false, nil
	}
	if scanErr != nil {
		return false, fmt.Errorf("insert event mirror: %w", scanErr)
	}
	return true, nil
}

// InsertDLQEvent records a message the pipeline could not mirror. No
// deduplication: repeated failures accumulate rows for operators to drain.
func (d *Database) InsertDLQEvent(ctx context.Context, originalTopic, failureReason, payload string) error {
	_, err := timedExec(ctx, d.db, "insert", "dlq_events", `
		INSERT INTO dlq_events (id, original_topic, failure_reason, payload, received_at)
		VALUES ($1,$2,$3,$4,now())`,
		uuid.New().String(), originalTopic, failureReason, payload)
	return err
}

// ListEventMirror returns a page of mirrored events, sequence descending,
// optionally filtered by topic/kind.
func (d *Database) ListEventMirror(ctx context.Context, topic, kind string, limit, offset int) ([]models.EventMirror, error) {
	where := ""
	args := []interface{}{}
	if topic != "" {
		args = append(args, topic)
		where += fmt.Sprintf(" AND topic=$%d", len(args))
	}
	if kind != "" {
		args = append(args, kind)
		where += fmt.Sprintf(" AND kind=$%d", len(args))
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT sequence, topic, kind, payload, received_at, trace_id, message_id
		FROM events_mirror WHERE 1=1 %s ORDER BY sequence DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list event mirror: %w", err)
	}
	defer rows.Close()

	out := []models.EventMirror{}
	for rows.Next() {
		var m models.EventMirror
		var msgID sql.NullString
		if err := rows.Scan(&m.Sequence, &m.Topic, &m.Kind, &m.Payload, &m.ReceivedAt, &m.TraceID, &msgID); err != nil {
			return nil, err
		}
		if msgID.Valid {
			m.MessageID = &msgID.String
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListDLQEvents returns a page of DLQ rows, newest first.
func (d *Database) ListDLQEvents(ctx context.Context, limit, offset int) ([]models.DLQEvent, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, original_topic, failure_reason, payload, received_at
		FROM dlq_events ORDER BY received_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list dlq events: %w", err)
	}
	defer rows.Close()

	out := []models.DLQEvent{}
	for rows.Next() {
		var e models.DLQEvent
		if err := rows.Scan(&e.ID, &e.OriginalTopic, &e.FailureReason, &e.Payload, &e.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
