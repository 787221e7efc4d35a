package db

import (
	"context"

	"github.com/taylordash/taylordash/internal/models"
)

// ListEnabledRepositories returns the allow-listed plugin sources. The
// plugin install flow derives its host allow-list from these rows.
func (d *Database) ListEnabledRepositories(ctx context.Context) ([]models.Repository, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, url, enabled, created_at
		FROM repositories WHERE enabled=true ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Repository{}
	for rows.Next() {
		var r models.Repository
		if err := rows.Scan(&r.ID, &r.Name, &r.URL, &r.Enabled, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
