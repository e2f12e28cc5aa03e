package database

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-scheduler-api/migrations"
)

func newMigrateMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "sqlmock"), mock
}

func TestMigrateAppliesPendingFilesInOrder(t *testing.T) {
	db, mock := newMigrateMock(t)
	fsys := fstest.MapFS{
		"0002_b.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE b (id TEXT);\n-- +migrate Down\nDROP TABLE b;")},
		"0001_a.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
		"README.md":  {Data: []byte("ignored")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).WithArgs("0001_a.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).WithArgs("0002_b.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id TEXT);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (name) VALUES ($1)")).
		WithArgs("0002_b.sql").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db, fsys, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackFailedFile(t *testing.T) {
	db, mock := newMigrateMock(t)
	fsys := fstest.MapFS{"0001_a.sql": {Data: []byte("CREATE TABLE a (id TEXT);")}}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).WithArgs("0001_a.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a")).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := Migrate(context.Background(), db, fsys, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec migration 0001_a.sql")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedSchemaDeclaresCascadingTables(t *testing.T) {
	content, err := migrations.FS.ReadFile("0001_init.sql")
	require.NoError(t, err)
	up := upSection(string(content))

	assert.NotContains(t, up, "DROP TABLE")
	assert.Contains(t, up, "REFERENCES rooms (id) ON DELETE CASCADE")
	assert.Contains(t, up, "'scheduled', 'in_progress', 'completed', 'cancelled'")
}
