package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-tracker-api/internal/models"
)

func newSubjectRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSubjectRepositoryListOrdersByCode(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	active := true
	mock.ExpectQuery(regexp.QuoteMeta("FROM subjects WHERE 1=1 AND active = $1 ORDER BY code ASC")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "description", "active", "created_at", "updated_at"}).
			AddRow(1, "ENG7", "English", nil, true, time.Now(), nil).
			AddRow(2, "MATH7", "Mathematics", nil, true, time.Now(), nil))

	list, err := repo.List(context.Background(), models.SubjectFilter{Active: &active})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectQuery("INSERT INTO subjects").
		WithArgs("MATH7", "Mathematics", nil, true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	subject := &models.Subject{Code: "MATH7", Name: "Mathematics", Active: true}
	require.NoError(t, repo.Create(context.Background(), subject))
	assert.Equal(t, int64(1), subject.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryCountCurriculumAssignments(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM curriculum_subjects WHERE subject_id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountCurriculumAssignments(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newSubjectRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM teacher_subjects").WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM subjects WHERE id = $1")).WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	found, err := repo.Delete(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}
