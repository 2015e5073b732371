package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lockQuery   = `SELECT pg_advisory_lock\(\$1\)`
	unlockQuery = `SELECT pg_advisory_unlock\(\$1\)`
)

func expectMigrationPrologue(mock sqlmock.Sqlmock, recorded ...string) {
	mock.ExpectExec(lockQuery).WithArgs(migrationLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"version"})
	for _, v := range recorded {
		rows.AddRow(v)
	}
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).WillReturnRows(rows)
}

func TestMigrate_NothingPending(t *testing.T) {
	pool, mock := newMockPool(t)
	expectMigrationPrologue(mock, "001_init.sql")
	mock.ExpectExec(unlockQuery).WithArgs(migrationLockKey).WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := pool.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_AppliesPendingUnderLock(t *testing.T) {
	pool, mock := newMockPool(t)
	expectMigrationPrologue(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS vector`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations \(version\) VALUES \(\$1\)`).
		WithArgs("001_init.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(unlockQuery).WithArgs(migrationLockKey).WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := pool.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_FailedFileRollsBackAndUnlocks(t *testing.T) {
	pool, mock := newMockPool(t)
	expectMigrationPrologue(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE EXTENSION`).WillReturnError(errors.New("extension \"vector\" is not available"))
	mock.ExpectRollback()
	mock.ExpectExec(unlockQuery).WithArgs(migrationLockKey).WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := pool.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 001_init.sql")
	assert.Nil(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_LockNotAcquired(t *testing.T) {
	pool, mock := newMockPool(t)
	mock.ExpectExec(lockQuery).WithArgs(migrationLockKey).WillReturnError(errors.New("canceling statement due to statement timeout"))

	_, err := pool.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire migration lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_UnlockFailureIsReported(t *testing.T) {
	pool, mock := newMockPool(t)
	expectMigrationPrologue(mock, "001_init.sql")
	mock.ExpectExec(unlockQuery).WithArgs(migrationLockKey).WillReturnError(errors.New("connection reset"))

	applied, err := pool.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release migration lock")
	assert.Nil(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
