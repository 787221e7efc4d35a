package db

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/taylordash/taylordash/internal/logger"
	"golang.org/x/crypto/bcrypt"
)

// Migrate creates every table TaylorDash needs, then seeds a first admin
// account if none exists. Statements are idempotent (CREATE TABLE IF NOT
// EXISTS) so Migrate is safe to run on every startup.
func (d *Database) Migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			username VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(32) NOT NULL DEFAULT 'viewer',
			default_view VARCHAR(255),
			single_view_mode BOOLEAN NOT NULL DEFAULT false,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_by VARCHAR(64) REFERENCES users(id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_login_at TIMESTAMPTZ,
			metadata JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash VARCHAR(128) UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ NOT NULL,
			last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			ip_address VARCHAR(64) NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT true,
			remember_me BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
		`CREATE TABLE IF NOT EXISTS auth_audit_events (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) REFERENCES users(id) ON DELETE SET NULL,
			event_type VARCHAR(64) NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			ip_address VARCHAR(64) NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			details JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status VARCHAR(32) NOT NULL DEFAULT 'active',
			owner_id VARCHAR(64) REFERENCES users(id) ON DELETE SET NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS components (
			id VARCHAR(64) PRIMARY KEY,
			project_id VARCHAR(64) NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			type VARCHAR(64) NOT NULL DEFAULT '',
			status VARCHAR(64) NOT NULL DEFAULT '',
			progress INT NOT NULL DEFAULT 0,
			position JSONB NOT NULL DEFAULT '{}',
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_components_project ON components(project_id)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id VARCHAR(64) PRIMARY KEY,
			component_id VARCHAR(64) NOT NULL REFERENCES components(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status VARCHAR(64) NOT NULL DEFAULT '',
			assignee_id VARCHAR(64) REFERENCES users(id) ON DELETE SET NULL,
			due_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_component ON tasks(component_id)`,
		`CREATE TABLE IF NOT EXISTS component_dependencies (
			component_id VARCHAR(64) NOT NULL REFERENCES components(id) ON DELETE CASCADE,
			depends_on_id VARCHAR(64) NOT NULL REFERENCES components(id) ON DELETE CASCADE,
			PRIMARY KEY (component_id, depends_on_id)
		)`,
		`CREATE TABLE IF NOT EXISTS events_mirror (
			sequence BIGSERIAL PRIMARY KEY,
			topic VARCHAR(255) NOT NULL,
			kind VARCHAR(255) NOT NULL DEFAULT '',
			payload JSONB NOT NULL,
			received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			trace_id VARCHAR(64) NOT NULL,
			message_id VARCHAR(255)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_mirror_dedup ON events_mirror(topic, message_id) WHERE message_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_events_mirror_kind ON events_mirror(kind)`,
		`CREATE TABLE IF NOT EXISTS dlq_events (
			id VARCHAR(64) PRIMARY KEY,
			original_topic VARCHAR(255) NOT NULL,
			failure_reason TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			received_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS repositories (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			url TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS plugins (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			version VARCHAR(64) NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			author VARCHAR(255) NOT NULL DEFAULT '',
			type VARCHAR(32) NOT NULL DEFAULT 'data',
			repository_url TEXT NOT NULL,
			install_path TEXT NOT NULL DEFAULT '',
			manifest JSONB NOT NULL DEFAULT '{}',
			permissions JSONB NOT NULL DEFAULT '[]',
			config JSONB NOT NULL DEFAULT '{}',
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			installed_at TIMESTAMPTZ,
			last_updated_at TIMESTAMPTZ,
			installation_id VARCHAR(64),
			security_violations INT NOT NULL DEFAULT 0,
			last_violation_at TIMESTAMPTZ,
			security_score INT NOT NULL DEFAULT 100,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS plugin_installations (
			id VARCHAR(64) PRIMARY KEY,
			plugin_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ,
			error_details TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS plugin_security_violations (
			id VARCHAR(64) PRIMARY KEY,
			plugin_id VARCHAR(255) NOT NULL REFERENCES plugins(id) ON DELETE CASCADE,
			violation_type VARCHAR(64) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			severity VARCHAR(16) NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			resolved BOOLEAN NOT NULL DEFAULT false,
			resolution_notes TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_plugin ON plugin_security_violations(plugin_id)`,
		`CREATE TABLE IF NOT EXISTS plugin_api_access (
			id VARCHAR(64) PRIMARY KEY,
			plugin_id VARCHAR(255) NOT NULL,
			endpoint TEXT NOT NULL,
			method VARCHAR(16) NOT NULL,
			status_code INT NOT NULL,
			permission_required VARCHAR(128),
			access_granted BOOLEAN NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			response_time_ms INT NOT NULL DEFAULT 0,
			request_data TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			ip_address VARCHAR(64) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS plugin_config_history (
			id VARCHAR(64) PRIMARY KEY,
			plugin_id VARCHAR(255) NOT NULL REFERENCES plugins(id) ON DELETE CASCADE,
			old_config JSONB NOT NULL DEFAULT '{}',
			new_config JSONB NOT NULL DEFAULT '{}',
			changed_by VARCHAR(64) NOT NULL DEFAULT '',
			change_reason TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS plugin_health_checks (
			id VARCHAR(64) PRIMARY KEY,
			plugin_id VARCHAR(255) NOT NULL REFERENCES plugins(id) ON DELETE CASCADE,
			healthy BOOLEAN NOT NULL,
			response_time_ms INT NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			checked_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS application_logs (
			id VARCHAR(64) PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			level VARCHAR(16) NOT NULL,
			service VARCHAR(128) NOT NULL DEFAULT 'taylordash',
			category VARCHAR(128) NOT NULL DEFAULT '',
			severity VARCHAR(16) NOT NULL DEFAULT 'info',
			message TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			trace_id VARCHAR(64),
			request_id VARCHAR(64),
			user_id VARCHAR(64),
			endpoint TEXT,
			method VARCHAR(16),
			status_code INT,
			duration_ms INT,
			error_code VARCHAR(64),
			stack_trace TEXT,
			context JSONB NOT NULL DEFAULT '{}',
			environment VARCHAR(32) NOT NULL DEFAULT 'development',
			host VARCHAR(255) NOT NULL DEFAULT '',
			log_date DATE NOT NULL DEFAULT CURRENT_DATE,
			retention_deadline TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_app_logs_deadline ON application_logs(retention_deadline)`,
		`CREATE INDEX IF NOT EXISTS idx_app_logs_service_level ON application_logs(service, level)`,
		`CREATE TABLE IF NOT EXISTS retention_policies (
			service VARCHAR(128) NOT NULL,
			level VARCHAR(16) NOT NULL,
			retention_days INT NOT NULL,
			PRIMARY KEY (service, level)
		)`,
	}

	for _, stmt := range statements {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	if err := d.seedRetentionPolicies(30); err != nil {
		return err
	}
	if err := d.seedRepositories(); err != nil {
		return err
	}
	return d.seedAdmin()
}

// seedRepositories inserts the default plugin-source allow-list rows. An
// operator extends or disables them directly; the install flow reads the
// enabled set on every attempt.
func (d *Database) seedRepositories() error {
	_, err := d.db.Exec(`INSERT INTO repositories (id, name, url, enabled)
		VALUES ('github', 'GitHub', 'https://github.com/', true),
		       ('gitlab', 'GitLab', 'https://gitlab.com/', true)
		ON CONFLICT (id) DO NOTHING`)
	return err
}

func (d *Database) seedRetentionPolicies(defaultDays int) error {
	_, err := d.db.Exec(`INSERT INTO retention_policies (service, level, retention_days)
		VALUES ('ALL','ALL',$1), ('ALL','error',90), ('ALL','warn',60), ('ALL','info',30), ('ALL','debug',7)
		ON CONFLICT (service, level) DO NOTHING`, defaultDays)
	return err
}

// seedAdmin creates the first admin account if no users exist. users.created_by
// is self-referential and nullable; the seed row is inserted with created_by
// NULL (a two-phase insert is only needed when a seed row must reference
// itself, which this single bootstrap row does not).
func (d *Database) seedAdmin() error {
	var count int
	if err := d.db.QueryRow(`SELECT count(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("failed to check existing users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash seed admin password: %w", err)
	}

	id := uuid.New().String()
	_, err = d.db.Exec(`INSERT INTO users (id, username, password_hash, role, is_active, created_by)
		VALUES ($1, 'admin', $2, 'admin', true, NULL)`, id, string(hash))
	if err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	storageLog := logger.Storage()
	storageLog.Warn().Msg("seeded default admin account (username=admin, password=admin123) — change it immediately")
	return nil
}
