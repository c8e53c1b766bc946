package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/student-tracker-api/internal/models"
	"github.com/noah-isme/student-tracker-api/pkg/database"
)

const subjectColumns = `id, code, name, description, active, created_at, updated_at`

// SubjectRepository manages persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a SubjectRepository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns subjects ordered by code.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, error) {
	query := fmt.Sprintf("SELECT %s FROM subjects WHERE 1=1", subjectColumns)
	var args []interface{}
	if filter.Active != nil {
		query += fmt.Sprintf(" AND active = $%d", len(args)+1)
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		query += fmt.Sprintf(" AND (LOWER(code) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	query += " ORDER BY code ASC"

	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// FindByID fetches a subject by id.
func (r *SubjectRepository) FindByID(ctx context.Context, id int64) (*models.Subject, error) {
	query := fmt.Sprintf(`SELECT %s FROM subjects WHERE id = $1`, subjectColumns)
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// ExistsByCode checks whether another subject uses code.
func (r *SubjectRepository) ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	query := "SELECT 1 FROM subjects WHERE code = $1"
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
		return false, fmt.Errorf("check subject code: %w", err)
	}
	return true, nil
}

// ActiveIDs returns which of ids belong to active subjects.
func (r *SubjectRepository) ActiveIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return activeIDs(ctx, r.db, "subjects", ids)
}

// CountCurriculumAssignments returns how many curricula include the subject.
func (r *SubjectRepository) CountCurriculumAssignments(ctx context.Context, subjectID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM curriculum_subjects WHERE subject_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, subjectID); err != nil {
		return 0, fmt.Errorf("count curriculum subjects by subject: %w", err)
	}
	return count, nil
}

// Create inserts a subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO subjects (code, name, description, active, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query, subject.Code, subject.Name, subject.Description, subject.Active, subject.CreatedAt).Scan(&subject.ID)
	if err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update modifies a subject.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	now := time.Now().UTC()
	subject.UpdatedAt = &now
	const query = `UPDATE subjects SET code = :code, name = :name, description = :description, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// Delete removes the subject's teacher links and then the subject.
func (r *SubjectRepository) Delete(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM teacher_subjects WHERE subject_id = $1`, id); err != nil {
			return fmt.Errorf("clear subject teachers: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete subject: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete subject rows affected: %w", err)
		}
		found = affected > 0
		return nil
	})
	return found, err
}
