package models

import (
	"strings"
	"time"
)

// Teacher represents an instructor account.
type Teacher struct {
	ID                int64      `db:"id" json:"id"`
	Username          string     `db:"username" json:"username"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	ProfilePicture    *string    `db:"profile_picture" json:"-"`
	ProfilePictureURL string     `db:"-" json:"profile_picture_url,omitempty"`
	LastName          string     `db:"last_name" json:"last_name"`
	FirstName         string     `db:"first_name" json:"first_name"`
	MiddleName        *string    `db:"middle_name" json:"middle_name,omitempty"`
	DateOfBirth       time.Time  `db:"date_of_birth" json:"date_of_birth"`
	Age               int        `db:"age" json:"age"`
	Address           string     `db:"address" json:"address"`
	Active            bool       `db:"active" json:"active"`
	LastLoginAt       *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
	SubjectIDs        []int64    `db:"-" json:"subject_ids"`
}

// FullName joins first, middle and last name.
func (t Teacher) FullName() string {
	return joinName(t.FirstName, t.MiddleName, t.LastName)
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}

func joinName(first string, middle *string, last string) string {
	parts := []string{strings.TrimSpace(first)}
	if middle != nil && strings.TrimSpace(*middle) != "" {
		parts = append(parts, strings.TrimSpace(*middle))
	}
	parts = append(parts, strings.TrimSpace(last))
	return strings.Join(parts, " ")
}
