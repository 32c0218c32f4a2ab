package models

import (
	"time"
)

// Migration statuses recorded in the ledger.
const (
	MigrationStatusCompleted  = "completed"
	MigrationStatusFailed     = "failed"
	MigrationStatusRolledBack = "rolled_back"
)

// MigrationRecord is one ledger entry per migration execution attempt,
// keyed by the migration id. A failed attempt keeps its failed row for
// auditability; a later successful retry replaces the row wholesale rather
// than merging fields into it. Rollback updates the same row in place.
type MigrationRecord struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"not null" json:"name"`
	Description  string     `json:"description,omitempty"`
	Version      string     `json:"version,omitempty"`
	Status       string     `gorm:"not null;index" json:"status"`
	AppliedAt    time.Time  `json:"applied_at"`
	RolledBackAt *time.Time `json:"rolled_back_at,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	Result       string     `gorm:"type:text" json:"result,omitempty"`
	Error        string     `gorm:"type:text" json:"error,omitempty"`
}

// TableName ensures consistent table naming
func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// IsApplied reports whether this ledger entry marks the migration as
// currently applied.
func (m *MigrationRecord) IsApplied() bool {
	return m.Status == MigrationStatusCompleted
}
