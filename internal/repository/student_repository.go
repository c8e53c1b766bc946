package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-tracker-api/internal/models"
)

const studentColumns = `id, profile_picture, last_name, first_name, middle_name, date_of_birth, age, grade_level, address, active, created_at, updated_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.GradeLevel != nil {
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)+1))
		args = append(args, *filter.GradeLevel)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(last_name) LIKE $%d OR LOWER(first_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY last_name ASC, first_name ASC LIMIT %d OFFSET %d", studentColumns, base, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by id.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ActiveIDs returns which of ids belong to active students.
func (r *StudentRepository) ActiveIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return activeIDs(ctx, r.db, "students", ids)
}

// CountEnrollments returns how many curricula the student is enrolled in.
func (r *StudentRepository) CountEnrollments(ctx context.Context, studentID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM curriculum_students WHERE student_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID); err != nil {
		return 0, fmt.Errorf("count curriculum students by student: %w", err)
	}
	return count, nil
}

// Create inserts a student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO students (profile_picture, last_name, first_name, middle_name, date_of_birth, age, grade_level, address, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		student.ProfilePicture, student.LastName, student.FirstName, student.MiddleName, student.DateOfBirth,
		student.Age, student.GradeLevel, student.Address, student.Active, student.CreatedAt,
	).Scan(&student.ID)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies a student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	student.UpdatedAt = &now
	const query = `UPDATE students SET last_name = :last_name, first_name = :first_name, middle_name = :middle_name, date_of_birth = :date_of_birth,
		age = :age, grade_level = :grade_level, address = :address, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// UpdateProfilePicture stores the relative path of the student's picture.
func (r *StudentRepository) UpdateProfilePicture(ctx context.Context, id int64, path *string) error {
	const query = `UPDATE students SET profile_picture = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path, time.Now().UTC()); err != nil {
		return fmt.Errorf("update student picture: %w", err)
	}
	return nil
}

// Delete removes a student.
func (r *StudentRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete student rows affected: %w", err)
	}
	return affected > 0, nil
}
