package models

import "time"

// AuditEvent is a single append-only entry in the security audit trail.
// UserID holds the email address when no account resolved (failed logins).
type AuditEvent struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Action    Action                 `json:"action"`
	Details   map[string]interface{} `json:"details,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Signature string                 `json:"signature"`
	CreatedAt time.Time              `json:"created_at"`
}

// AuditFilter narrows audit retrieval. Zero values mean "no constraint".
// Page is 1-based; Limit <= 0 means no pagination (used by export).
type AuditFilter struct {
	UserID    string
	Action    Action
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

// AuditPage is one page of audit events, newest first.
type AuditPage struct {
	Events     []*AuditEvent `json:"events"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
}

// ExportFormat selects the audit export encoding.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)
