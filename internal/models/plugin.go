// This file models the plugin lifecycle: catalog entries, install attempts,
// security findings, runtime API access, config history, and health checks.
package models

import "time"

// PluginType categorizes what a plugin extends.
type PluginType string

const (
	PluginTypeUI          PluginType = "ui"
	PluginTypeData        PluginType = "data"
	PluginTypeIntegration PluginType = "integration"
	PluginTypeSystem      PluginType = "system"
)

// PluginStatus is the install/lifecycle state. Valid transitions are
// enforced by internal/plugins.Service, not by the model itself.
type PluginStatus string

const (
	PluginPending      PluginStatus = "pending"
	PluginInstalling   PluginStatus = "installing"
	PluginInstalled    PluginStatus = "installed"
	PluginFailed       PluginStatus = "failed"
	PluginUpdating     PluginStatus = "updating"
	PluginUninstalling PluginStatus = "uninstalling"
	PluginDisabled     PluginStatus = "disabled"
)

// Plugin is a catalog entry for an installed (or attempted) third-party
// extension. SecurityScore starts at 100 and decays with unresolved
// violations.
type Plugin struct {
	ID                 string       `json:"id" db:"id"`
	Name               string       `json:"name" db:"name"`
	Version            string       `json:"version" db:"version"`
	Description        string       `json:"description" db:"description"`
	Author             string       `json:"author" db:"author"`
	Type               PluginType   `json:"type" db:"type"`
	RepositoryURL      string       `json:"repository_url" db:"repository_url"`
	InstallPath        string       `json:"install_path" db:"install_path"`
	Manifest           JSONMap      `json:"manifest" db:"manifest"`
	Permissions        []string     `json:"permissions" db:"permissions"`
	Config             JSONMap      `json:"config,omitempty" db:"config"`
	Status             PluginStatus `json:"status" db:"status"`
	InstalledAt        *time.Time   `json:"installed_at,omitempty" db:"installed_at"`
	LastUpdatedAt      *time.Time   `json:"last_updated_at,omitempty" db:"last_updated_at"`
	InstallationID     *string      `json:"installation_id,omitempty" db:"installation_id"`
	SecurityViolations int          `json:"security_violations" db:"security_violations"`
	LastViolationAt    *time.Time   `json:"last_violation_at,omitempty" db:"last_violation_at"`
	SecurityScore      int          `json:"security_score" db:"security_score"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at" db:"updated_at"`
}

// PluginInstallation tracks a single install (or update) attempt.
type PluginInstallation struct {
	ID           string       `json:"id" db:"id"`
	PluginID     string       `json:"plugin_id" db:"plugin_id"`
	Status       PluginStatus `json:"status" db:"status"`
	Message      string       `json:"message" db:"message"`
	StartedAt    time.Time    `json:"started_at" db:"started_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
	ErrorDetails *string      `json:"error_details,omitempty" db:"error_details"`
}

// ViolationSeverity drives the security_score weighting.
type ViolationSeverity string

const (
	SeverityLow      ViolationSeverity = "low"
	SeverityMedium   ViolationSeverity = "medium"
	SeverityHigh     ViolationSeverity = "high"
	SeverityCritical ViolationSeverity = "critical"
)

// SeverityWeight returns the weight used by the security_score formula.
func SeverityWeight(s ViolationSeverity) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 5
	case SeverityHigh:
		return 15
	case SeverityCritical:
		return 40
	default:
		return 0
	}
}

// PluginSecurityViolation is a single finding, from either static analysis
// or runtime permission enforcement.
type PluginSecurityViolation struct {
	ID              string            `json:"id" db:"id"`
	PluginID        string            `json:"plugin_id" db:"plugin_id"`
	ViolationType   string            `json:"violation_type" db:"violation_type"`
	Description     string            `json:"description" db:"description"`
	Severity        ViolationSeverity `json:"severity" db:"severity"`
	Context         string            `json:"context" db:"context"`
	Timestamp       time.Time         `json:"timestamp" db:"timestamp"`
	Resolved        bool              `json:"resolved" db:"resolved"`
	ResolutionNotes *string           `json:"resolution_notes,omitempty" db:"resolution_notes"`
}

// PluginAPIAccess is one row per proxied plugin HTTP call.
type PluginAPIAccess struct {
	ID                 string    `json:"id" db:"id"`
	PluginID           string    `json:"plugin_id" db:"plugin_id"`
	Endpoint           string    `json:"endpoint" db:"endpoint"`
	Method             string    `json:"method" db:"method"`
	StatusCode         int       `json:"status_code" db:"status_code"`
	PermissionRequired *string   `json:"permission_required,omitempty" db:"permission_required"`
	AccessGranted      bool      `json:"access_granted" db:"access_granted"`
	Timestamp          time.Time `json:"timestamp" db:"timestamp"`
	ResponseTimeMs     int       `json:"response_time_ms" db:"response_time_ms"`
	RequestData        string    `json:"request_data,omitempty" db:"request_data"`
	UserAgent          string    `json:"user_agent" db:"user_agent"`
	IPAddress          string    `json:"ip_address" db:"ip_address"`
}

// PluginConfigHistory records every config mutation for audit purposes.
// Config updates never change Plugin.Status.
type PluginConfigHistory struct {
	ID           string    `json:"id" db:"id"`
	PluginID     string    `json:"plugin_id" db:"plugin_id"`
	OldConfig    JSONMap   `json:"old_config" db:"old_config"`
	NewConfig    JSONMap   `json:"new_config" db:"new_config"`
	ChangedBy    string    `json:"changed_by" db:"changed_by"`
	ChangeReason string    `json:"change_reason" db:"change_reason"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// PluginHealthCheck is one poll of a plugin's declared health endpoint.
type PluginHealthCheck struct {
	ID           string    `json:"id" db:"id"`
	PluginID     string    `json:"plugin_id" db:"plugin_id"`
	Healthy      bool      `json:"healthy" db:"healthy"`
	ResponseTime int       `json:"response_time_ms" db:"response_time_ms"`
	Error        string    `json:"error,omitempty" db:"error"`
	CheckedAt    time.Time `json:"checked_at" db:"checked_at"`
}

// SecurityFinding is the in-memory output of a static analysis scan, before
// it is persisted as PluginSecurityViolation rows.
type SecurityFinding struct {
	ViolationType string
	Severity      ViolationSeverity
	Description   string
	File          string
	Line          int
	Context       string
}
