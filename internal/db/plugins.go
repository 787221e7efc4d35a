package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/taylordash/taylordash/internal/models"
)

const pluginColumns = `id, name, version, description, author, type, repository_url, install_path, manifest,
	permissions, config, status, installed_at, last_updated_at, installation_id, security_violations,
	last_violation_at, security_score, created_at, updated_at`

func scanPlugin(scan func(...interface{}) error) (*models.Plugin, error) {
	var p models.Plugin
	var installedAt, lastUpdated, lastViolation sql.NullTime
	var installationID sql.NullString
	var permsRaw []byte

	err := scan(&p.ID, &p.Name, &p.Version, &p.Description, &p.Author, &p.Type, &p.RepositoryURL, &p.InstallPath,
		&p.Manifest, &permsRaw, &p.Config, &p.Status, &installedAt, &lastUpdated, &installationID,
		&p.SecurityViolations, &lastViolation, &p.SecurityScore, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(permsRaw) > 0 {
		_ = json.Unmarshal(permsRaw, &p.Permissions)
	}
	if installedAt.Valid {
		p.InstalledAt = &installedAt.Time
	}
	if lastUpdated.Valid {
		p.LastUpdatedAt = &lastUpdated.Time
	}
	if lastViolation.Valid {
		p.LastViolationAt = &lastViolation.Time
	}
	if installationID.Valid {
		p.InstallationID = &installationID.String
	}
	return &p, nil
}

// UpsertPlugin inserts a new plugin row or, for an existing id, overwrites
// it — callers serialize this per plugin id by locking the row with
// GetPluginForUpdate inside the same transaction.
func (d *Database) UpsertPlugin(ctx context.Context, tx *sql.Tx, p *models.Plugin) error {
	perms, _ := json.Marshal(p.Permissions)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO plugins (id, name, version, description, author, type, repository_url, install_path, manifest,
			permissions, config, status, installed_at, last_updated_at, installation_id, security_violations,
			last_violation_at, security_score, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id) DO UPDATE SET
			name=$2, version=$3, description=$4, author=$5, type=$6, repository_url=$7, install_path=$8,
			manifest=$9, permissions=$10, config=$11, status=$12, installed_at=$13, last_updated_at=$14,
			installation_id=$15, security_violations=$16, last_violation_at=$17, security_score=$18, updated_at=$20`,
		p.ID, p.Name, p.Version, p.Description, p.Author, p.Type, p.RepositoryURL, p.InstallPath, p.Manifest,
		perms, p.Config, p.Status, p.InstalledAt, p.LastUpdatedAt, nullStringPtr(p.InstallationID), p.SecurityViolations,
		p.LastViolationAt, p.SecurityScore, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert plugin: %w", err)
	}
	return nil
}

// GetPluginForUpdate locks the plugin row FOR UPDATE within tx, serializing
// concurrent status transitions per plugin id.
func (d *Database) GetPluginForUpdate(ctx context.Context, tx *sql.Tx, id string) (*models.Plugin, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+pluginColumns+` FROM plugins WHERE id=$1 FOR UPDATE`, id)
	return scanPlugin(row.Scan)
}

// GetPlugin fetches a plugin without locking.
func (d *Database) GetPlugin(ctx context.Context, id string) (*models.Plugin, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+pluginColumns+` FROM plugins WHERE id=$1`, id)
	return scanPlugin(row.Scan)
}

// ListPlugins returns every installed/tracked plugin.
func (d *Database) ListPlugins(ctx context.Context) ([]*models.Plugin, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+pluginColumns+` FROM plugins ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Plugin{}
	for rows.Next() {
		p, err := scanPlugin(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePlugin removes a plugin row; violations/access/history/health cascade.
func (d *Database) DeletePlugin(ctx context.Context, id string) error {
	_, err := timedExec(ctx, d.db, "delete", "plugins", `DELETE FROM plugins WHERE id=$1`, id)
	return err
}

// CreatePluginInstallation allocates a new install-attempt record.
func (d *Database) CreatePluginInstallation(ctx context.Context, in *models.PluginInstallation) error {
	_, err := timedExec(ctx, d.db, "insert", "plugin_installations", `
		INSERT INTO plugin_installations (id, plugin_id, status, message, started_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		in.ID, in.PluginID, in.Status, in.Message, in.StartedAt, in.UpdatedAt)
	return err
}

// UpdatePluginInstallation updates the attempt's status/message/completion.
func (d *Database) UpdatePluginInstallation(ctx context.Context, in *models.PluginInstallation) error {
	_, err := timedExec(ctx, d.db, "update", "plugin_installations", `
		UPDATE plugin_installations SET status=$2, message=$3, updated_at=$4, completed_at=$5, error_details=$6
		WHERE id=$1`,
		in.ID, in.Status, in.Message, in.UpdatedAt, in.CompletedAt, in.ErrorDetails)
	return err
}

// InsertSecurityViolation records one static-analysis or runtime finding.
func (d *Database) InsertSecurityViolation(ctx context.Context, tx *sql.Tx, v *models.PluginSecurityViolation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO plugin_security_violations (id, plugin_id, violation_type, description, severity, context, timestamp, resolved)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		v.ID, v.PluginID, v.ViolationType, v.Description, v.Severity, v.Context, v.Timestamp, v.Resolved)
	return err
}

// ListUnresolvedViolations returns unresolved findings for a plugin, used by
// the security_score recomputation.
func (d *Database) ListUnresolvedViolations(ctx context.Context, tx *sql.Tx, pluginID string) ([]models.PluginSecurityViolation, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, plugin_id, violation_type, description, severity, context, timestamp, resolved, resolution_notes
		FROM plugin_security_violations WHERE plugin_id=$1 AND resolved=false`, pluginID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PluginSecurityViolation
	for rows.Next() {
		var v models.PluginSecurityViolation
		var notes sql.NullString
		if err := rows.Scan(&v.ID, &v.PluginID, &v.ViolationType, &v.Description, &v.Severity, &v.Context, &v.Timestamp, &v.Resolved, &notes); err != nil {
			return nil, err
		}
		if notes.Valid {
			v.ResolutionNotes = &notes.String
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListViolations returns every finding (resolved or not) for a plugin.
func (d *Database) ListViolations(ctx context.Context, pluginID string) ([]models.PluginSecurityViolation, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, plugin_id, violation_type, description, severity, context, timestamp, resolved, resolution_notes
		FROM plugin_security_violations WHERE plugin_id=$1 ORDER BY timestamp DESC`, pluginID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PluginSecurityViolation
	for rows.Next() {
		var v models.PluginSecurityViolation
		var notes sql.NullString
		if err := rows.Scan(&v.ID, &v.PluginID, &v.ViolationType, &v.Description, &v.Severity, &v.Context, &v.Timestamp, &v.Resolved, &notes); err != nil {
			return nil, err
		}
		if notes.Valid {
			v.ResolutionNotes = &notes.String
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// InsertPluginAPIAccess records one proxied plugin HTTP call.
func (d *Database) InsertPluginAPIAccess(ctx context.Context, a *models.PluginAPIAccess) error {
	_, err := timedExec(ctx, d.db, "insert", "plugin_api_access", `
		INSERT INTO plugin_api_access (id, plugin_id, endpoint, method, status_code, permission_required,
			access_granted, timestamp, response_time_ms, request_data, user_agent, ip_address)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.PluginID, a.Endpoint, a.Method, a.StatusCode, a.PermissionRequired, a.AccessGranted, a.Timestamp,
		a.ResponseTimeMs, a.RequestData, a.UserAgent, a.IPAddress)
	return err
}

// InsertPluginConfigHistory records a config mutation.
func (d *Database) InsertPluginConfigHistory(ctx context.Context, h *models.PluginConfigHistory) error {
	_, err := timedExec(ctx, d.db, "insert", "plugin_config_history", `
		INSERT INTO plugin_config_history (id, plugin_id, old_config, new_config, changed_by, change_reason, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.ID, h.PluginID, h.OldConfig, h.NewConfig, h.ChangedBy, h.ChangeReason, h.Timestamp)
	return err
}

// InsertPluginHealthCheck records one health-endpoint poll result.
func (d *Database) InsertPluginHealthCheck(ctx context.Context, hc *models.PluginHealthCheck) error {
	_, err := timedExec(ctx, d.db, "insert", "plugin_health_checks", `
		INSERT INTO plugin_health_checks (id, plugin_id, healthy, response_time_ms, error, checked_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		hc.ID, hc.PluginID, hc.Healthy, hc.ResponseTime, hc.Error, hc.CheckedAt)
	return err
}

// RecentHealthChecks returns the most recent N checks for a plugin, newest first.
func (d *Database) RecentHealthChecks(ctx context.Context, pluginID string, limit int) ([]models.PluginHealthCheck, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, plugin_id, healthy, response_time_ms, error, checked_at
		FROM plugin_health_checks WHERE plugin_id=$1 ORDER BY checked_at DESC LIMIT $2`, pluginID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PluginHealthCheck
	for rows.Next() {
		var hc models.PluginHealthCheck
		if err := rows.Scan(&hc.ID, &hc.PluginID, &hc.Healthy, &hc.ResponseTime, &hc.Error, &hc.CheckedAt); err != nil {
			return nil, err
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}
