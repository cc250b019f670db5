// Package state implements the persistence contract for device identity
// and Lamport clock state: three independent keys (device_id,
// lamport_clock, last_sync_clock) in a WAL-mode SQLite database.
package state

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/tabsync/errors"
)

const (
	// journalMode enables concurrent reads during writes.
	journalMode = "WAL"

	// busyTimeoutMS controls how long a write waits for a lock before
	// returning SQLITE_BUSY.
	busyTimeoutMS = 5000
)

// Open opens a SQLite database at path with the settings the store
// requires (WAL journal mode, foreign keys, busy timeout), creating the
// parent directory if needed. log may be nil for silent operation.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	if log != nil {
		log.Debugw("opening state database", "path", path)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory: %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}

	if _, err := db.Exec("PRAGMA journal_mode = " + journalMode); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to enable %s journal mode for %s", journalMode, path)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to enable foreign keys for %s", path)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to set busy timeout to %dms for %s", busyTimeoutMS, path)
	}

	if log != nil {
		log.Infow("state database opened", "path", path, "wal_mode", true)
	}

	return db, nil
}

// OpenWithMigrations opens the database and brings its schema up to
// date in one call.
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, log)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, log); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to run migrations for %s", path)
	}

	return db, nil
}
