package models

import "time"

// Curriculum bundles subjects, their teachers and enrolled students for one
// academic year and semester.
type Curriculum struct {
	ID           int64                     `db:"id" json:"id"`
	Name         string                    `db:"name" json:"name"`
	Code         string                    `db:"code" json:"code"`
	Description  *string                   `db:"description" json:"description,omitempty"`
	AcademicYear string                    `db:"academic_year" json:"academic_year"`
	Semester     string                    `db:"semester" json:"semester"`
	GradeLevel   int                       `db:"grade_level" json:"grade_level"`
	Active       bool                      `db:"active" json:"active"`
	CreatedAt    time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time                `db:"updated_at" json:"updated_at,omitempty"`
	Subjects     []CurriculumSubjectDetail `db:"-" json:"subjects"`
	Students     []CurriculumStudentDetail `db:"-" json:"students"`
}

// SubjectTeacherPair assigns a teacher to a subject within one curriculum.
type SubjectTeacherPair struct {
	SubjectID int64 `json:"subject_id"`
	TeacherID int64 `json:"teacher_id"`
}

// CurriculumSubject is a curriculum_subjects row.
type CurriculumSubject struct {
	CurriculumID int64     `db:"curriculum_id"`
	SubjectID    int64     `db:"subject_id"`
	TeacherID    int64     `db:"teacher_id"`
	AssignedAt   time.Time `db:"assigned_at"`
}

// CurriculumStudent is a curriculum_students row.
type CurriculumStudent struct {
	CurriculumID int64     `db:"curriculum_id"`
	StudentID    int64     `db:"student_id"`
	EnrolledAt   time.Time `db:"enrolled_at"`
}

// CurriculumSubjectDetail is a subject assignment joined with its subject and teacher.
type CurriculumSubjectDetail struct {
	CurriculumID int64     `db:"curriculum_id" json:"-"`
	SubjectID    int64     `db:"subject_id" json:"subject_id"`
	SubjectCode  string    `db:"subject_code" json:"subject_code"`
	SubjectName  string    `db:"subject_name" json:"subject_name"`
	TeacherID    int64     `db:"teacher_id" json:"teacher_id"`
	TeacherName  string    `db:"teacher_name" json:"teacher_name"`
	AssignedAt   time.Time `db:"assigned_at" json:"assigned_at"`
}

// CurriculumStudentDetail is an enrollment joined with its student.
type CurriculumStudentDetail struct {
	CurriculumID int64     `db:"curriculum_id" json:"-"`
	StudentID    int64     `db:"student_id" json:"student_id"`
	StudentName  string    `db:"student_name" json:"student_name"`
	GradeLevel   int       `db:"grade_level" json:"grade_level"`
	EnrolledAt   time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// Pairs returns the subject/teacher assignments as plain pairs.
func (c Curriculum) Pairs() []SubjectTeacherPair {
	pairs := make([]SubjectTeacherPair, 0, len(c.Subjects))
	for _, s := range c.Subjects {
		pairs = append(pairs, SubjectTeacherPair{SubjectID: s.SubjectID, TeacherID: s.TeacherID})
	}
	return pairs
}

// StudentIDs returns the ids of enrolled students.
func (c Curriculum) StudentIDs() []int64 {
	ids := make([]int64, 0, len(c.Students))
	for _, s := range c.Students {
		ids = append(ids, s.StudentID)
	}
	return ids
}
