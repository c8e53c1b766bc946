package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/pkg/database"
)

const curriculumColumns = `id, name, code, description, academic_year, semester, grade_level, active, created_at, updated_at`

// CurriculumWriter exposes the writes that must share one transaction.
type CurriculumWriter interface {
	Insert(ctx context.Context, curriculum *models.Curriculum) error
	Update(ctx context.Context, curriculum *models.Curriculum) error
	Delete(ctx context.Context, id int64) (bool, error)
	DeleteSubjects(ctx context.Context, curriculumID int64) error
	InsertSubject(ctx context.Context, row models.CurriculumSubject) error
	DeleteStudents(ctx context.Context, curriculumID int64) error
	InsertStudent(ctx context.Context, row models.CurriculumStudent) error
}

// CurriculumRepository manages persistence for curricula and their junction rows.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository constructs a CurriculumRepository.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

// List returns every curriculum ordered by name.
func (r *CurriculumRepository) List(ctx context.Context) ([]models.Curriculum, error) {
	query := fmt.Sprintf(`SELECT %s FROM curricula ORDER BY name ASC, id ASC`, curriculumColumns)
	var curricula []models.Curriculum
	if err := r.db.SelectContext(ctx, &curricula, query); err != nil {
		return nil, fmt.Errorf("list curricula: %w", err)
	}
	return curricula, nil
}

// ListByTeacher returns curricula in which the teacher is assigned to at least one subject.
func (r *CurriculumRepository) ListByTeacher(ctx context.Context, teacherID int64) ([]models.Curriculum, error) {
	query := fmt.Sprintf(`SELECT %s FROM curricula c
WHERE EXISTS (SELECT 1 FROM curriculum_subjects cs WHERE cs.curriculum_id = c.id AND cs.teacher_id = $1)
ORDER BY name ASC, id ASC`, curriculumColumns)
	var curricula []models.Curriculum
	if err := r.db.SelectContext(ctx, &curricula, query, teacherID); err != nil {
		return nil, fmt.Errorf("list curricula by teacher: %w", err)
	}
	return curricula, nil
}

// FindByID fetches a curriculum by id.
func (r *CurriculumRepository) FindByID(ctx context.Context, id int64) (*models.Curriculum, error) {
	query := fmt.Sprintf(`SELECT %s FROM curricula WHERE id = $1`, curriculumColumns)
	var curriculum models.Curriculum
	if err := r.db.GetContext(ctx, &curriculum, query, id); err != nil {
		return nil, err
	}
	return &curriculum, nil
}

// ExistsByCode checks whether another curriculum already uses code. A zero
// excludeID checks every row.
func (r *CurriculumRepository) ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	query := "SELECT 1 FROM curricula WHERE code = $1"
	args := []interface{}{code}
	if excludeID > 0 {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check curriculum code: %w", err)
	}
	return true, nil
}

// IsTeacherAssigned reports whether the teacher teaches any subject in the curriculum.
func (r *CurriculumRepository) IsTeacherAssigned(ctx context.Context, curriculumID, teacherID int64) (bool, error) {
	const query = `SELECT 1 FROM curriculum_subjects WHERE curriculum_id = $1 AND teacher_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, curriculumID, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check curriculum teacher: %w", err)
	}
	return true, nil
}

// ListSubjects returns subject assignments, joined with subject and teacher, for the given curricula.
func (r *CurriculumRepository) ListSubjects(ctx context.Context, curriculumIDs []int64) ([]models.CurriculumSubjectDetail, error) {
	if len(curriculumIDs) == 0 {
		return []models.CurriculumSubjectDetail{}, nil
	}
	const query = `
SELECT cs.curriculum_id, cs.subject_id, s.code AS subject_code, s.name AS subject_name,
       cs.teacher_id, CONCAT_WS(' ', t.first_name, t.middle_name, t.last_name) AS teacher_name,
       cs.assigned_at
FROM curriculum_subjects cs
JOIN subjects s ON s.id = cs.subject_id
JOIN teachers t ON t.id = cs.teacher_id
WHERE cs.curriculum_id = ANY($1)
ORDER BY cs.curriculum_id ASC, s.code ASC`
	var rows []models.CurriculumSubjectDetail
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(curriculumIDs)); err != nil {
		return nil, fmt.Errorf("list curriculum subjects: %w", err)
	}
	return rows, nil
}

// ListStudents returns enrollments, joined with the student, for the given curricula.
func (r *CurriculumRepository) ListStudents(ctx context.Context, curriculumIDs []int64) ([]models.CurriculumStudentDetail, error) {
	if len(curriculumIDs) == 0 {
		return []models.CurriculumStudentDetail{}, nil
	}
	const query = `
SELECT ce.curriculum_id, ce.student_id,
       CONCAT_WS(' ', st.first_name, st.middle_name, st.last_name) AS student_name,
       st.grade_level, ce.enrolled_at
FROM curriculum_students ce
JOIN students st ON st.id = ce.student_id
WHERE ce.curriculum_id = ANY($1)
ORDER BY ce.curriculum_id ASC, st.last_name ASC, st.first_name ASC`
	var rows []models.CurriculumStudentDetail
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(curriculumIDs)); err != nil {
		return nil, fmt.Errorf("list curriculum students: %w", err)
	}
	return rows, nil
}

// WithinTx runs fn with a writer bound to a single transaction.
func (r *CurriculumRepository) WithinTx(ctx context.Context, fn func(CurriculumWriter) error) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&curriculumTxWriter{tx: tx})
	})
}

type curriculumTxWriter struct {
	tx *sqlx.Tx
}

func (w *curriculumTxWriter) Insert(ctx context.Context, curriculum *models.Curriculum) error {
	if curriculum.CreatedAt.IsZero() {
		curriculum.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO curricula (name, code, description, academic_year, semester, grade_level, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	err := w.tx.QueryRowxContext(ctx, query,
		curriculum.Name, curriculum.Code, curriculum.Description, curriculum.AcademicYear,
		curriculum.Semester, curriculum.GradeLevel, curriculum.Active, curriculum.CreatedAt,
	).Scan(&curriculum.ID)
	if err != nil {
		return fmt.Errorf("insert curriculum: %w", err)
	}
	return nil
}

func (w *curriculumTxWriter) Update(ctx context.Context, curriculum *models.Curriculum) error {
	const query = `UPDATE curricula SET name = :name, code = :code, description = :description, academic_year = :academic_year,
		semester = :semester, grade_level = :grade_level, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := w.tx.NamedExecContext(ctx, query, curriculum); err != nil {
		return fmt.Errorf("update curriculum: %w", err)
	}
	return nil
}

func (w *curriculumTxWriter) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := w.tx.ExecContext(ctx, `DELETE FROM curricula WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete curriculum: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete curriculum rows affected: %w", err)
	}
	return affected > 0, nil
}

func (w *curriculumTxWriter) DeleteSubjects(ctx context.Context, curriculumID int64) error {
	if _, err := w.tx.ExecContext(ctx, `DELETE FROM curriculum_subjects WHERE curriculum_id = $1`, curriculumID); err != nil {
		return fmt.Errorf("clear curriculum subjects: %w", err)
	}
	return nil
}

func (w *curriculumTxWriter) InsertSubject(ctx context.Context, row models.CurriculumSubject) error {
	const query = `INSERT INTO curriculum_subjects (curriculum_id, subject_id, teacher_id, assigned_at)
		VALUES (:curriculum_id, :subject_id, :teacher_id, :assigned_at)`
	if _, err := w.tx.NamedExecContext(ctx, query, &row); err != nil {
		return fmt.Errorf("insert curriculum subject: %w", err)
	}
	return nil
}

func (w *curriculumTxWriter) DeleteStudents(ctx context.Context, curriculumID int64) error {
	if _, err := w.tx.ExecContext(ctx, `DELETE FROM curriculum_students WHERE curriculum_id = $1`, curriculumID); err != nil {
		return fmt.Errorf("clear curriculum students: %w", err)
	}
	return nil
}

func (w *curriculumTxWriter) InsertStudent(ctx context.Context, row models.CurriculumStudent) error {
	const query = `INSERT INTO curriculum_students (curriculum_id, student_id, enrolled_at)
		VALUES (:curriculum_id, :student_id, :enrolled_at)`
	if _, err := w.tx.NamedExecContext(ctx, query, &row); err != nil {
		return fmt.Errorf("insert curriculum student: %w", err)
	}
	return nil
}
