package models

import "time"

// Repository is an allow-listed source plugins may be fetched from. The
// install flow rejects any repository URL whose host is not covered by an
// enabled row; when no enabled row can be read, the built-in github.com and
// gitlab.com hosts are allowed instead.
type Repository struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	URL       string    `json:"url" db:"url"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
