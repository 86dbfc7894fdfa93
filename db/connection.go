// Package db manages the SQLite store backing strata. It owns connection
// setup (WAL, foreign keys, busy timeout) and the embedded migrations that
// define the truth-layer tables.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// TimeFormat is the encoding for persisted timestamp columns. The fractional
// second is fixed width so that lexicographic ORDER BY on the TEXT column
// matches chronological order; RFC3339Nano drops trailing zeros, which makes
// a whole-second value sort after a fractional one within the same second.
// time.RFC3339Nano still parses values written in this format.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Open opens a SQLite database at the specified path with the settings the
// truth layer depends on: WAL for concurrent readers during writes, foreign
// keys enforced, and a busy timeout so the background scheduler and request
// path can share the file. If logger is nil the function operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode lets snapshot reads proceed while the scheduler writes
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if logger != nil {
		logger.Infow("Database opened",
			"path", path,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return db, nil
}
