package database

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTxMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestWithTxCommits(t *testing.T) {
	db, mock, cleanup := newTxMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM curriculum_students").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
		_, err := tx.Exec("DELETE FROM curriculum_students WHERE curriculum_id = $1", 1)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newTxMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("reconcile failed")
	err := WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db, mock, cleanup := newTxMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
			panic("unexpected")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
