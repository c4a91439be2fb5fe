package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/goran-ethernal/ChainDispatch/internal/db"
	"github.com/goran-ethernal/ChainDispatch/internal/logger"
)

//go:embed 001_dead_letters.sql
var mig001 string

// All lists the migrations of the dispatcher database in order.
func All() []db.Migration {
	return []db.Migration{
		{
			ID:  "001_dead_letters.sql",
			SQL: mig001,
		},
	}
}

// RunMigrations brings the database at dbPath up to date.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, All())
}

// RunMigrationsDB brings an open database up to date.
func RunMigrationsDB(log *logger.Logger, sqlDB *sql.DB) error {
	return db.RunMigrationsDB(log, sqlDB, All())
}
