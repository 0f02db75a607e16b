// Package db manages the SQLite connection and schema migrations for the job
// store.
package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/brandforge/brandforge/errors"
)

// Pragmas applied on open. WAL lets progress reads proceed while item workers
// write counters; the busy timeout absorbs the write contention those workers
// produce on the single jobs table.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

// Open opens the SQLite database at path and applies the engine's pragmas.
// A nil logger is allowed and silences connection logging.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "apply %q", pragma)
		}
	}

	if logger != nil {
		logger.Infow("Job database opened", "path", path)
	}
	return db, nil
}
