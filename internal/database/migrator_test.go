package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"0002_players.up.sql":    {Data: []byte("CREATE TABLE players (id BIGINT)")},
		"0001_accounts.up.sql":   {Data: []byte("CREATE TABLE accounts (id BIGINT)")},
		"0001_accounts.down.sql": {Data: []byte("DROP TABLE accounts")},
		"README.md":              {Data: []byte("notes")},
	}
}

func TestListMigrations_SortsUpFiles(t *testing.T) {
	names, err := ListMigrations(testFS(), ".")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_accounts.up.sql", "0002_players.up.sql"}, names)
}

func TestMigrator_SkipsAppliedVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001_accounts"))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE players`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("0002_players").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := NewMigrator(db, testLogger()).Apply(context.Background(), testFS())
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_players.up.sql"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_RollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE accounts`).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	applied, err := NewMigrator(db, testLogger()).Apply(context.Background(), testFS())
	require.Error(t, err)
	assert.Empty(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
