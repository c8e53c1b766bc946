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

func newStudentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStudentRepositoryListFiltersByGrade(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	grade := 7
	dob := time.Date(2012, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE 1=1 AND grade_level = $1 ORDER BY last_name ASC, first_name ASC LIMIT 20 OFFSET 0")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "profile_picture", "last_name", "first_name", "middle_name", "date_of_birth", "age", "grade_level", "address", "active", "created_at", "updated_at"}).
			AddRow(10, nil, "Cruz", "Ana", nil, dob, 12, 7, "Quezon City", true, time.Now(), nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE 1=1 AND grade_level = $1")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.StudentFilter{GradeLevel: &grade})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ana Cruz", list[0].FullName())
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("INSERT INTO students").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))

	student := &models.Student{LastName: "Cruz", FirstName: "Ana", GradeLevel: 7, Address: "Quezon City", Active: true}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.Equal(t, int64(10), student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCountEnrollmentsAndDelete(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM curriculum_students WHERE student_id = $1")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE id = $1")).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := repo.CountEnrollments(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, count)

	found, err := repo.Delete(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}
