package models

import "time"

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	ProjectNew       ProjectStatus = "new"
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

// Project is the top-level unit of work. OwnerID may be null; orphan
// projects are permitted.
type Project struct {
	ID          string        `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Description string        `json:"description" db:"description"`
	Status      ProjectStatus `json:"status" db:"status"`
	OwnerID     *string       `json:"owner_id" db:"owner_id"`
	Metadata    JSONMap       `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// Component belongs to exactly one Project; deleting the project cascades.
type Component struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"project_id" db:"project_id"`
	Name      string    `json:"name" db:"name"`
	Type      string    `json:"type" db:"type"`
	Status    string    `json:"status" db:"status"`
	Progress  int       `json:"progress" db:"progress"`
	Position  JSONMap   `json:"position,omitempty" db:"position"`
	Metadata  JSONMap   `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Task belongs to exactly one Component; deleting the component cascades.
type Task struct {
	ID          string     `json:"id" db:"id"`
	ComponentID string     `json:"component_id" db:"component_id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	Status      string     `json:"status" db:"status"`
	AssigneeID  *string    `json:"assignee_id" db:"assignee_id"`
	DueAt       *time.Time `json:"due_at,omitempty" db:"due_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// ComponentDependency is a composite-key edge in the component DAG.
// Acyclicity is not enforced at the storage layer; callers check it.
type ComponentDependency struct {
	ComponentID string `json:"component_id" db:"component_id"`
	DependsOnID string `json:"depends_on_id" db:"depends_on_id"`
}
