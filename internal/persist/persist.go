// Package persist opens the daemon's SQLite-backed write-behind store.
// A component that persists opens its own file through Open with its own
// embedded schema; the image store is the only caller, and the container
// manager keeps its records in memory only.
package persist

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB opened in WAL mode with a schema already applied.
type DB struct {
	*sql.DB
}

// Open opens (creating if absent) the sqlite file at path, enables WAL mode,
// and executes schema against it. schema is expected to be idempotent
// ("CREATE TABLE IF NOT EXISTS ...").
func Open(path string, schema string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &DB{sqlDB}, nil
}

func (d *DB) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
