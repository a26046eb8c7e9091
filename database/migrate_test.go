package database

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	defer goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

const (
	ensureTable  = `CREATE TABLE IF NOT EXISTS schema_migrations`
	checkApplied = `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`
	recordApply  = `INSERT INTO schema_migrations (version) VALUES ($1)`
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/002_second.sql": {Data: []byte("CREATE TABLE second (id INT);")},
		"migrations/001_first.sql":  {Data: []byte("CREATE TABLE first (id INT);")},
		"migrations/README.md":      {Data: []byte("not a migration")},
	}
}

func TestMigrate_AppliesPendingInOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(ensureTable)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	mock.ExpectQuery(regexp.QuoteMeta(checkApplied)).WithArgs("001_first").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery(regexp.QuoteMeta(checkApplied)).WithArgs("002_second").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE second (id INT);")).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta(recordApply)).WithArgs("002_second").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = Migrate(context.Background(), mock, testFS(), zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RollsBackFailedFile(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fsys := fstest.MapFS{"migrations/001_first.sql": {Data: []byte("CREATE TABLE broken (")}}

	mock.ExpectExec(regexp.QuoteMeta(ensureTable)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta(checkApplied)).WithArgs("001_first").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE broken (")).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err = Migrate(context.Background(), mock, fsys, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_first.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_EmbeddedFilesPresent(t *testing.T) {
	entries, err := Migrations.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "001_users_profiles_roles.sql", entries[0].Name())
	assert.Equal(t, "002_requests_donations.sql", entries[1].Name())
	assert.Equal(t, "003_token_revocation.sql", entries[2].Name())
}

func TestMigrate_EmailUniqueIgnoresCase(t *testing.T) {
	raw, err := Migrations.ReadFile("migrations/003_token_revocation.sql")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_key ON users (LOWER(email))")
}
