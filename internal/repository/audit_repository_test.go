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

func newAuditRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAuditRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	details := "Created curriculum G7-A"
	entry := &models.AuditLog{Action: models.AuditActionCreate, EntityType: models.EntityCurriculum, EntityID: 1, Username: "admin", Details: &details}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryListByEntity(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at DESC LIMIT $3")).
		WithArgs(models.EntityCurriculum, int64(1), 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "entity_type", "entity_id", "username", "details", "created_at"}).
			AddRow(3, "Update", "Curriculum", 1, "admin", nil, time.Now()))

	logs, err := repo.ListByEntity(context.Background(), models.EntityCurriculum, 1, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
