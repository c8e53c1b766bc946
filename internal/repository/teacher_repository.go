package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/pkg/database"
)

const teacherColumns = `id, username, password_hash, profile_picture, last_name, first_name, middle_name, date_of_birth, age, address, active, last_login_at, created_at, updated_at`

// TeacherRepository manages persistence for teachers and their subject links.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns teachers matching filters along with total count.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(last_name) LIKE $%d OR LOWER(first_name) LIKE $%d OR LOWER(username) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY last_name ASC, first_name ASC LIMIT %d OFFSET %d", teacherColumns, base, size, offset)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}

	return teachers, total, nil
}

// FindByID fetches a teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id int64) (*models.Teacher, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers WHERE id = $1`, teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// FindActiveByUsername fetches an active teacher for login.
func (r *TeacherRepository) FindActiveByUsername(ctx context.Context, username string) (*models.Teacher, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers WHERE LOWER(username) = LOWER($1) AND active = TRUE LIMIT 1`, teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find teacher by username: %w", err)
	}
	return &teacher, nil
}

// ExistsByUsername checks if another teacher, active or not, uses the username.
func (r *TeacherRepository) ExistsByUsername(ctx context.Context, username string, excludeID int64) (bool, error) {
	query := "SELECT 1 FROM teachers WHERE LOWER(username) = LOWER($1)"
	args := []interface{}{username}
	if excludeID > 0 {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check teacher username: %w", err)
	}
	return true, nil
}

// ListSubjectIDs returns the subjects a teacher is qualified for.
func (r *TeacherRepository) ListSubjectIDs(ctx context.Context, teacherID int64) ([]int64, error) {
	const query = `SELECT subject_id FROM teacher_subjects WHERE teacher_id = $1 ORDER BY subject_id ASC`
	ids := []int64{}
	if err := r.db.SelectContext(ctx, &ids, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher subjects: %w", err)
	}
	return ids, nil
}

// ActiveIDs returns which of ids belong to active teachers.
func (r *TeacherRepository) ActiveIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return activeIDs(ctx, r.db, "teachers", ids)
}

// CountCurriculumAssignments returns how many curriculum subjects the teacher is assigned to.
func (r *TeacherRepository) CountCurriculumAssignments(ctx context.Context, teacherID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM curriculum_subjects WHERE teacher_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, teacherID); err != nil {
		return 0, fmt.Errorf("count curriculum subjects by teacher: %w", err)
	}
	return count, nil
}

// Create inserts a teacher and its subject links in one transaction.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = time.Now().UTC()
	}
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO teachers (username, password_hash, profile_picture, last_name, first_name, middle_name, date_of_birth, age, address, active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
		err := tx.QueryRowxContext(ctx, query,
			teacher.Username, teacher.PasswordHash, teacher.ProfilePicture, teacher.LastName, teacher.FirstName,
			teacher.MiddleName, teacher.DateOfBirth, teacher.Age, teacher.Address, teacher.Active, teacher.CreatedAt,
		).Scan(&teacher.ID)
		if err != nil {
			return fmt.Errorf("create teacher: %w", err)
		}
		return insertTeacherSubjects(ctx, tx, teacher.ID, teacher.SubjectIDs, teacher.CreatedAt)
	})
}

// Update modifies a teacher and replaces its subject links in one transaction.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	now := time.Now().UTC()
	teacher.UpdatedAt = &now
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const query = `UPDATE teachers SET username = :username, password_hash = :password_hash, last_name = :last_name, first_name = :first_name,
			middle_name = :middle_name, date_of_birth = :date_of_birth, age = :age, address = :address, active = :active, updated_at = :updated_at WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, query, teacher); err != nil {
			return fmt.Errorf("update teacher: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM teacher_subjects WHERE teacher_id = $1`, teacher.ID); err != nil {
			return fmt.Errorf("clear teacher subjects: %w", err)
		}
		return insertTeacherSubjects(ctx, tx, teacher.ID, teacher.SubjectIDs, now)
	})
}

// UpdateProfilePicture stores the relative path of the teacher's picture.
func (r *TeacherRepository) UpdateProfilePicture(ctx context.Context, id int64, path *string) error {
	const query = `UPDATE teachers SET profile_picture = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path, time.Now().UTC()); err != nil {
		return fmt.Errorf("update teacher picture: %w", err)
	}
	return nil
}

// UpdateLastLogin records a successful login.
func (r *TeacherRepository) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	const query = `UPDATE teachers SET last_login_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update teacher last login: %w", err)
	}
	return nil
}

// Delete removes the teacher's subject links and then the teacher.
func (r *TeacherRepository) Delete(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM teacher_subjects WHERE teacher_id = $1`, id); err != nil {
			return fmt.Errorf("clear teacher subjects: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM teachers WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete teacher: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete teacher rows affected: %w", err)
		}
		found = affected > 0
		return nil
	})
	return found, err
}

func insertTeacherSubjects(ctx context.Context, tx *sqlx.Tx, teacherID int64, subjectIDs []int64, at time.Time) error {
	for _, subjectID := range subjectIDs {
		const query = `INSERT INTO teacher_subjects (teacher_id, subject_id, assigned_at) VALUES ($1, $2, $3)`
		if _, err := tx.ExecContext(ctx, query, teacherID, subjectID, at); err != nil {
			return fmt.Errorf("insert teacher subject: %w", err)
		}
	}
	return nil
}

// activeIDs returns the subset of ids that exist and are active in table.
func activeIDs(ctx context.Context, db *sqlx.DB, table string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	query := fmt.Sprintf(`SELECT id FROM %s WHERE active = TRUE AND id = ANY($1)`, table)
	found := []int64{}
	if err := db.SelectContext(ctx, &found, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("check active %s: %w", table, err)
	}
	return found, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
