package models

import "time"

// Audit actions.
const (
	AuditActionCreate = "Create"
	AuditActionUpdate = "Update"
	AuditActionDelete = "Delete"
	AuditActionLogin  = "Login"
	AuditActionLogout = "Logout"
)

// Audited entity types.
const (
	EntityAdmin      = "Admin"
	EntityTeacher    = "Teacher"
	EntitySubject    = "Subject"
	EntityStudent    = "Student"
	EntityCurriculum = "Curriculum"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         int64     `db:"id" json:"id"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   int64     `db:"entity_id" json:"entity_id"`
	Username   string    `db:"username" json:"username"`
	Details    *string   `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
