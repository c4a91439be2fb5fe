package db

import (
	"path/filepath"
	"testing"

	"github.com/goran-ethernal/ChainDispatch/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/require"
)

const testMigration = `-- +migrate Down
DROP TABLE IF EXISTS /*dbprefix*/items;

-- +migrate Up
CREATE TABLE /*dbprefix*/items (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	value TEXT NOT NULL
);
`

func tableExists(t *testing.T, path, table string) bool {
	t.Helper()

	sqlDB, err := NewSQLiteDB(path)
	require.NoError(t, err)
	defer sqlDB.Close()

	var count int
	require.NoError(t, sqlDB.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&count))
	return count == 1
}

func TestRunMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrations.db")
	migrations := []Migration{{ID: "001_items.sql", SQL: testMigration, Prefix: "test_"}}

	require.NoError(t, RunMigrations(path, migrations))
	require.True(t, tableExists(t, path, "test_items"))

	// applying twice is a no-op
	require.NoError(t, RunMigrations(path, migrations))

	sqlDB, err := NewSQLiteDB(path)
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, RunMigrationsDBExtended(logger.NewNopLogger(), sqlDB, migrations, migrate.Down, NoLimitMigrations))
	require.False(t, tableExists(t, path, "test_items"))
}

func TestRunMigrations_MissingSeparator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.db")

	err := RunMigrations(path, []Migration{{ID: "001_broken.sql", SQL: "CREATE TABLE x (id INTEGER);"}})
	require.ErrorContains(t, err, "missing")
}
