package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taylordash/taylordash/internal/models"
)

const componentColumns = `id, project_id, name, type, status, progress, position, metadata, created_at, updated_at`

func scanComponent(scan func(...interface{}) error) (*models.Component, error) {
	var c models.Component
	err := scan(&c.ID, &c.ProjectID, &c.Name, &c.Type, &c.Status, &c.Progress, &c.Position, &c.Metadata, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateComponent inserts a new component under a project.
func (d *Database) CreateComponent(ctx context.Context, c *models.Component) error {
	_, err := timedExec(ctx, d.db, "insert", "components", `
		INSERT INTO components (id, project_id, name, type, status, progress, position, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.ProjectID, c.Name, c.Type, c.Status, c.Progress, c.Position, c.Metadata, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create component: %w", err)
	}
	return nil
}

// GetComponent fetches a component by id.
func (d *Database) GetComponent(ctx context.Context, id string) (*models.Component, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+componentColumns+` FROM components WHERE id=$1`, id)
	return scanComponent(row.Scan)
}

// ListComponentsByProject returns every component belonging to a project.
func (d *Database) ListComponentsByProject(ctx context.Context, projectID string) ([]*models.Component, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+componentColumns+` FROM components WHERE project_id=$1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Component{}
	for rows.Next() {
		c, err := scanComponent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateComponent applies a full update and bumps updated_at.
func (d *Database) UpdateComponent(ctx context.Context, c *models.Component) error {
	_, err := timedExec(ctx, d.db, "update", "components", `
		UPDATE components SET name=$2, type=$3, status=$4, progress=$5, position=$6, metadata=$7, updated_at=$8
		WHERE id=$1`,
		c.ID, c.Name, c.Type, c.Status, c.Progress, c.Position, c.Metadata, c.UpdatedAt)
	return err
}

// DeleteComponent removes a component; tasks and dependency edges cascade.
func (d *Database) DeleteComponent(ctx context.Context, id string) (bool, error) {
	res, err := timedExec(ctx, d.db, "delete", "components", `DELETE FROM components WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AddComponentDependency records a component's dependency edge.
func (d *Database) AddComponentDependency(ctx context.Context, componentID, dependsOnID string) error {
	_, err := timedExec(ctx, d.db, "insert", "component_dependencies", `
		INSERT INTO component_dependencies (component_id, depends_on_id) VALUES ($1,$2)
		ON CONFLICT DO NOTHING`, componentID, dependsOnID)
	return err
}

// RemoveComponentDependency deletes a dependency edge.
func (d *Database) RemoveComponentDependency(ctx context.Context, componentID, dependsOnID string) error {
	_, err := timedExec(ctx, d.db, "delete", "component_dependencies", `
		DELETE FROM component_dependencies WHERE component_id=$1 AND depends_on_id=$2`, componentID, dependsOnID)
	return err
}

// ListDependencies returns the ids a component directly depends on.
func (d *Database) ListDependencies(ctx context.Context, componentID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT depends_on_id FROM component_dependencies WHERE component_id=$1`, componentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListAllDependencyEdges returns every edge in a project's component graph,
// used by cycle detection before a new edge is accepted.
func (d *Database) ListAllDependencyEdges(ctx context.Context, projectID string) ([]models.ComponentDependency, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT cd.component_id, cd.depends_on_id
		FROM component_dependencies cd
		JOIN components c ON c.id = cd.component_id
		WHERE c.project_id = $1`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ComponentDependency
	for rows.Next() {
		var e models.ComponentDependency
		if err := rows.Scan(&e.ComponentID, &e.DependsOnID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const taskColumns = `id, component_id, name, description, status, assignee_id, due_at, completed_at, created_at, updated_at`

func scanTask(scan func(...interface{}) error) (*models.Task, error) {
	var t models.Task
	var assignee sql.NullString
	err := scan(&t.ID, &t.ComponentID, &t.Name, &t.Description, &t.Status, &assignee, &t.DueAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.String
	}
	return &t, nil
}

// CreateTask inserts a new task under a component.
func (d *Database) CreateTask(ctx context.Context, t *models.Task) error {
	_, err := timedExec(ctx, d.db, "insert", "tasks", `
		INSERT INTO tasks (id, component_id, name, description, status, assignee_id, due_at, completed_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.ComponentID, t.Name, t.Description, t.Status, nullStringPtr(t.AssigneeID), t.DueAt, t.CompletedAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask fetches a task by id.
func (d *Database) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, id)
	return scanTask(row.Scan)
}

// ListTasksByComponent returns every task belonging to a component.
func (d *Database) ListTasksByComponent(ctx context.Context, componentID string) ([]*models.Task, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE component_id=$1 ORDER BY created_at`, componentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Task{}
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTask applies a full update and bumps updated_at.
func (d *Database) UpdateTask(ctx context.Context, t *models.Task) error {
	_, err := timedExec(ctx, d.db, "update", "tasks", `
		UPDATE tasks SET name=$2, description=$3, status=$4, assignee_id=$5, due_at=$6, completed_at=$7, updated_at=$8
		WHERE id=$1`,
		t.ID, t.Name, t.Description, t.Status, nullStringPtr(t.AssigneeID), t.DueAt, t.CompletedAt, t.UpdatedAt)
	return err
}

// DeleteTask removes a task.
func (d *Database) DeleteTask(ctx context.Context, id string) (bool, error) {
	res, err := timedExec(ctx, d.db, "delete", "tasks", `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
