package models

import "time"

// ApplicationLog is a structured record mirrored from the logging sink.
type ApplicationLog struct {
	ID                string     `json:"id" db:"id"`
	Timestamp         time.Time  `json:"timestamp" db:"timestamp"`
	Level             string     `json:"level" db:"level"`
	Service           string     `json:"service" db:"service"`
	Category          string     `json:"category" db:"category"`
	Severity          string     `json:"severity" db:"severity"`
	Message           string     `json:"message" db:"message"`
	Details           string     `json:"details,omitempty" db:"details"`
	TraceID           *string    `json:"trace_id,omitempty" db:"trace_id"`
	RequestID         *string    `json:"request_id,omitempty" db:"request_id"`
	UserID            *string    `json:"user_id,omitempty" db:"user_id"`
	Endpoint          *string    `json:"endpoint,omitempty" db:"endpoint"`
	Method            *string    `json:"method,omitempty" db:"method"`
	StatusCode        *int       `json:"status_code,omitempty" db:"status_code"`
	DurationMs        *int       `json:"duration_ms,omitempty" db:"duration_ms"`
	ErrorCode         *string    `json:"error_code,omitempty" db:"error_code"`
	StackTrace        *string    `json:"stack_trace,omitempty" db:"stack_trace"`
	Context           JSONMap    `json:"context,omitempty" db:"context"`
	Environment       string     `json:"environment" db:"environment"`
	Host              string     `json:"host" db:"host"`
	LogDate           time.Time  `json:"log_date" db:"log_date"`
	RetentionDeadline time.Time  `json:"retention_deadline" db:"retention_deadline"`
}

// RetentionPolicy governs how long logs of a given service/level survive.
// Level "ALL" matches every level for that service.
type RetentionPolicy struct {
	Service       string `json:"service" db:"service"`
	Level         string `json:"level" db:"level"`
	RetentionDays int    `json:"retention_days" db:"retention_days"`
}

// DefaultRetentionPolicies mirrors the example overrides named in the
// logging sink's design: errors kept longest, debug shortest.
func DefaultRetentionPolicies(defaultDays int) []RetentionPolicy {
	return []RetentionPolicy{
		{Service: "ALL", Level: "ALL", RetentionDays: defaultDays},
		{Service: "ALL", Level: "error", RetentionDays: 90},
		{Service: "ALL", Level: "warn", RetentionDays: 60},
		{Service: "ALL", Level: "info", RetentionDays: 30},
		{Service: "ALL", Level: "debug", RetentionDays: 7},
	}
}
