package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"docshelf/internal/config"
)

type migrationStep struct {
	Name string
	SQL  string
}

var postgresSteps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id            BIGSERIAL   PRIMARY KEY,
  title         TEXT        NOT NULL CHECK (title <> ''),
  storage_key   TEXT        NOT NULL UNIQUE,
  original_name TEXT        NOT NULL,
  size          BIGINT      NOT NULL CHECK (size >= 0),
  content_type  TEXT        NOT NULL,
  uploaded_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_documents_uploaded_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents (uploaded_at DESC, id DESC);`,
	},
}

// AUTOINCREMENT keeps SQLite from reusing ids of deleted rows.
var sqliteSteps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id            INTEGER  PRIMARY KEY AUTOINCREMENT,
  title         TEXT     NOT NULL CHECK (title <> ''),
  storage_key   TEXT     NOT NULL UNIQUE,
  original_name TEXT     NOT NULL,
  size          INTEGER  NOT NULL CHECK (size >= 0),
  content_type  TEXT     NOT NULL,
  uploaded_at   DATETIME NOT NULL
);`,
	},
	{
		Name: "create_index_documents_uploaded_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents (uploaded_at DESC, id DESC);`,
	},
}

var sentinelQueries = map[string]string{
	config.DriverPostgres: "SELECT to_regclass('public.documents') IS NOT NULL",
	config.DriverSQLite:   "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'documents')",
}

func stepsFor(driver string) ([]migrationStep, string, error) {
	q, ok := sentinelQueries[driver]
	if !ok {
		return nil, "", fmt.Errorf("no migrations for driver %q", driver)
	}
	if driver == config.DriverSQLite {
		return sqliteSteps, q, nil
	}
	return postgresSteps, q, nil
}

// EnsureMigrated checks if the 'documents' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, driver string, logger *slog.Logger) error {
	steps, sentinel, err := stepsFor(driver)
	if err != nil {
		return err
	}

	start := time.Now()
	log := logger.With("component", "database", "driver", driver)
	log.Info("db_migration_check", "status", "starting")

	var exists bool
	if err := db.QueryRowContext(ctx, sentinel).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			"status", "error",
			"error_message", fmt.Sprintf("failed to check sentinel table: %v", err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			"status", "success",
			"detail", "schema already exists, skipping migration",
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	log.Info("db_migration_start", "status", "in_progress")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				"status", "error",
				"migration_step", step.Name,
				"error_message", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
				"step_duration_ms", time.Since(stepStart).Milliseconds(),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			"status", "success",
			"migration_step", step.Name,
			"step_duration_ms", time.Since(stepStart).Milliseconds(),
		)
	}

	log.Info("db_migration_success",
		"status", "success",
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}
