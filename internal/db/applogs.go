package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taylordash/taylordash/internal/models"
)

// InsertApplicationLog persists one structured log record. Implements
// logger.Store so internal/logger.Sink can write through the storage
// adapter without importing internal/db directly.
func (d *Database) InsertApplicationLog(ctx context.Context, rec models.ApplicationLog) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Context == nil {
		rec.Context = models.JSONMap{}
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.LogDate.IsZero() {
		rec.LogDate = rec.Timestamp.Truncate(24 * time.Hour)
	}
	if rec.RetentionDeadline.IsZero() {
		days := d.retentionDays(ctx, rec.Service, rec.Level)
		rec.RetentionDeadline = rec.Timestamp.Add(time.Duration(days) * 24 * time.Hour)
	}
	_, err := timedExec(ctx, d.db, "insert", "application_logs", `
		INSERT INTO application_logs (id, timestamp, level, service, category, severity, message, details,
			trace_id, request_id, user_id, endpoint, method, status_code, duration_ms, error_code, stack_trace,
			context, environment, host, log_date, retention_deadline)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		rec.ID, rec.Timestamp, rec.Level, rec.Service, rec.Category, rec.Severity, rec.Message, rec.Details,
		rec.TraceID, rec.RequestID, rec.UserID, rec.Endpoint, rec.Method, rec.StatusCode, rec.DurationMs, rec.ErrorCode, rec.StackTrace,
		rec.Context, rec.Environment, rec.Host, rec.LogDate, rec.RetentionDeadline)
	return err
}

// SweepExpiredLogs deletes application_logs rows whose retention_deadline
// has passed. That deadline is resolved from the per-service/level
// RetentionPolicy table (falling back to the ALL/ALL default) when the row
// is inserted; a later policy change does not re-date rows already stored.
func (d *Database) SweepExpiredLogs(ctx context.Context) (int64, error) {
	res, err := timedExec(ctx, d.db, "delete", "application_logs", `
		DELETE FROM application_logs WHERE retention_deadline < now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListApplicationLogs returns a filtered, paginated page of logs, newest first.
func (d *Database) ListApplicationLogs(ctx context.Context, level, service, category, search string, start, end *time.Time, limit, offset int) ([]models.ApplicationLog, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	addEq := func(column, val string) {
		args = append(args, val)
		where += fmt.Sprintf(" AND %s = $%d", column, len(args))
	}
	if level != "" {
		addEq("level", level)
	}
	if service != "" {
		addEq("service", service)
	}
	if category != "" {
		addEq("category", category)
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		where += fmt.Sprintf(" AND message ILIKE $%d", len(args))
	}
	if start != nil {
		args = append(args, *start)
		where += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		where += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}

	var total int
	if err := d.db.QueryRowContext(ctx, "SELECT count(*) FROM application_logs "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT id, timestamp, level, service, category, severity, message, details, trace_id,
		request_id, user_id, endpoint, method, status_code, duration_ms, error_code, stack_trace, context,
		environment, host, log_date, retention_deadline
		FROM application_logs %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []models.ApplicationLog{}
	for rows.Next() {
		var l models.ApplicationLog
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Service, &l.Category, &l.Severity, &l.Message, &l.Details,
			&l.TraceID, &l.RequestID, &l.UserID, &l.Endpoint, &l.Method, &l.StatusCode, &l.DurationMs, &l.ErrorCode, &l.StackTrace,
			&l.Context, &l.Environment, &l.Host, &l.LogDate, &l.RetentionDeadline); err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// LogStats is the aggregate result for GET /api/v1/logs/stats: counts by
// level and by severity over the requested lookback window.
type LogStats struct {
	Since       time.Time      `json:"since"`
	Total       int            `json:"total"`
	ByLevel     map[string]int `json:"by_level"`
	BySeverity  map[string]int `json:"by_severity"`
	SlowOpCount int            `json:"slow_operation_count"`
}

// ApplicationLogStats aggregates the last `hours` of application_logs by
// level and severity, plus a count of slow operations (duration_ms > 1000).
func (d *Database) ApplicationLogStats(ctx context.Context, hours int) (LogStats, error) {
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	stats := LogStats{Since: since, ByLevel: map[string]int{}, BySeverity: map[string]int{}}

	rows, err := d.db.QueryContext(ctx, `
		SELECT level, count(*) FROM application_logs WHERE timestamp >= $1 GROUP BY level`, since)
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.ByLevel[level] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, err
	}
	rows.Close()

	sevRows, err := d.db.QueryContext(ctx, `
		SELECT severity, count(*) FROM application_logs WHERE timestamp >= $1 GROUP BY severity`, since)
	if err != nil {
		return stats, err
	}
	defer sevRows.Close()
	for sevRows.Next() {
		var severity string
		var n int
		if err := sevRows.Scan(&severity, &n); err != nil {
			return stats, err
		}
		stats.BySeverity[severity] = n
	}
	if err := sevRows.Err(); err != nil {
		return stats, err
	}

	err = d.db.QueryRowContext(ctx, `
		SELECT count(*) FROM application_logs WHERE timestamp >= $1 AND duration_ms > 1000`, since).
		Scan(&stats.SlowOpCount)
	return stats, err
}

// retentionDays resolves the retention window for one log record, preferring
// an exact service/level match, then a service-wide ALL/level match, then the
// ALL/ALL default seeded at startup. Falls back to 30 days if no policy row
// exists at all (should not happen outside of tests against an empty schema).
func (d *Database) retentionDays(ctx context.Context, service, level string) int {
	var days int
	err := d.db.QueryRowContext(ctx, `
		SELECT retention_days FROM retention_policies
		WHERE (service = $1 AND level = $2)
		   OR (service = 'ALL' AND level = $2)
		   OR (service = 'ALL' AND level = 'ALL')
		ORDER BY (service = $1 AND level = $2) DESC,
		         (service = 'ALL' AND level = $2) DESC
		LIMIT 1`, service, level).Scan(&days)
	if err != nil || days <= 0 {
		return 30
	}
	return days
}
