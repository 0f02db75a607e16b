package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/brandforge/brandforge/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migrate applies every migration not yet recorded in schema_migrations, in
// filename order. Each runs in its own transaction together with the row that
// records it. A nil logger silences progress logging.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	files, err := listMigrations()
	if err != nil {
		return err
	}

	applied := 0
	for _, filename := range files {
		version := strings.SplitN(filename, "_", 2)[0]

		done, err := alreadyApplied(db, filename, version)
		if err != nil {
			return err
		}
		if done {
			continue
		}

		if logger != nil {
			logger.Infow("Applying migration", "migration", filename)
		}
		if err := applyMigration(db, filename, version); err != nil {
			return err
		}
		applied++
	}

	if logger != nil {
		logger.Infow("Schema up to date", "applied", applied, "total", len(files))
	}
	return nil
}

func listMigrations() ([]string, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func alreadyApplied(db *sql.DB, filename, version string) (bool, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
	if err != nil {
		// Only migration 000 may run before schema_migrations exists
		if version != "000" {
			return false, errors.Newf("schema_migrations table missing before %s", filename)
		}
		return false, nil
	}
	return exists, nil
}

func applyMigration(db *sql.DB, filename, version string) error {
	sqlBytes, err := migrations.ReadFile(path.Join(migrationsDir, filename))
	if err != nil {
		return errors.Wrapf(err, "read %s", filename)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", filename)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(sqlBytes)); err != nil {
		return errors.Wrapf(err, "execute %s", filename)
	}
	// 000 creates schema_migrations, then records itself like any other
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return errors.Wrapf(err, "record %s", filename)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", filename)
}
