package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taylordash/taylordash/internal/models"
)

// CreateProject inserts a new project row.
func (d *Database) CreateProject(ctx context.Context, p *models.Project) error {
	_, err := timedExec(ctx, d.db, "insert", "projects", `
		INSERT INTO projects (id, name, description, status, owner_id, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.Name, p.Description, p.Status, nullStringPtr(p.OwnerID), p.Metadata, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func scanProject(scan func(...interface{}) error) (*models.Project, error) {
	var p models.Project
	var owner sql.NullString
	err := scan(&p.ID, &p.Name, &p.Description, &p.Status, &owner, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if owner.Valid {
		p.OwnerID = &owner.String
	}
	return &p, nil
}

const projectColumns = `id, name, description, status, owner_id, metadata, created_at, updated_at`

// GetProject fetches a project by id.
func (d *Database) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, id)
	return scanProject(row.Scan)
}

// ListProjects returns a page of projects, optionally filtered by status.
func (d *Database) ListProjects(ctx context.Context, status string, limit, offset int) ([]*models.Project, int, error) {
	args := []interface{}{}
	where := ""
	if status != "" {
		where = "WHERE status=$1"
		args = append(args, status)
	}

	var total int
	countQuery := `SELECT count(*) FROM projects ` + where
	if err := d.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM projects %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		projectColumns, where, len(args)-1, len(args))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := []*models.Project{}
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// UpdateProject applies a full update and bumps updated_at.
func (d *Database) UpdateProject(ctx context.Context, p *models.Project) error {
	_, err := timedExec(ctx, d.db, "update", "projects", `
		UPDATE projects SET name=$2, description=$3, status=$4, owner_id=$5, metadata=$6, updated_at=$7
		WHERE id=$1`,
		p.ID, p.Name, p.Description, p.Status, nullStringPtr(p.OwnerID), p.Metadata, p.UpdatedAt)
	return err
}

// DeleteProject removes a project; components/tasks/dependencies cascade.
func (d *Database) DeleteProject(ctx context.Context, id string) (bool, error) {
	res, err := timedExec(ctx, d.db, "delete", "projects", `DELETE FROM projects WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
