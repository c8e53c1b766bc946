package models

import "time"

// Student represents an enrolled learner.
type Student struct {
	ID                int64      `db:"id" json:"id"`
	ProfilePicture    *string    `db:"profile_picture" json:"-"`
	ProfilePictureURL string     `db:"-" json:"profile_picture_url,omitempty"`
	LastName          string     `db:"last_name" json:"last_name"`
	FirstName         string     `db:"first_name" json:"first_name"`
	MiddleName        *string    `db:"middle_name" json:"middle_name,omitempty"`
	DateOfBirth       time.Time  `db:"date_of_birth" json:"date_of_birth"`
	Age               int        `db:"age" json:"age"`
	GradeLevel        int        `db:"grade_level" json:"grade_level"`
	Address           string     `db:"address" json:"address"`
	Active            bool       `db:"active" json:"active"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// FullName joins first, middle and last name.
func (s Student) FullName() string {
	return joinName(s.FirstName, s.MiddleName, s.LastName)
}

// StudentFilter captures filtering options for listing students.
type StudentFilter struct {
	Search     string
	Active     *bool
	GradeLevel *int
	Page       int
	PageSize   int
}
