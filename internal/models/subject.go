package models

import "time"

// Subject represents a course offering.
type Subject struct {
	ID          int64      `db:"id" json:"id"`
	Code        string     `db:"code" json:"code"`
	Name        string     `db:"name" json:"name"`
	Description *string    `db:"description" json:"description,omitempty"`
	Active      bool       `db:"active" json:"active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// SubjectFilter captures filtering options for listing subjects.
type SubjectFilter struct {
	Search string
	Active *bool
}
