// Package store implements the dual-backend document store: a document
// collection emulator over an embedded SQLite database, a thin adapter over
// the managed document database, the relations manager for the
// activity-document association, and the facade that selects between them.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"arstudio/internal/core"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Base tables created eagerly at bootstrap. Every other logical collection
// gets its table lazily on first access.
var baseCollections = []string{"activities", "documents", "assets"}

// OpenConnection opens and configures a SQLite database connection with the
// PRAGMAs the store depends on. path can be a file path or ":memory:" for
// an in-memory database. Parent directories are created as needed.
func OpenConnection(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; keep the pool at one so
	// every statement sees the same database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Write-ahead logging for durability under concurrent readers.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward
	// compatibility). The join table's cascade deletes depend on this.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// EnsureSchema creates the base opaque-document tables, the
// activity_documents join table, and their indexes if absent, then runs
// best-effort column migration for older databases.
//
// Structural failures here are logged, not fatal: the store continues in a
// degraded mode and individual operations that depend on a missing
// structure fail at call time with a clear error.
func EnsureSchema(db *sql.DB, logger core.Logger) {
	for _, name := range baseCollections {
		if err := ensureCollectionTable(db, name); err != nil {
			logger.Error("table creation failed", "table", name, "error", err)
		}
	}

	statements := []struct {
		desc string
		sql  string
	}{
		{"join table", `
			CREATE TABLE IF NOT EXISTS activity_documents (
				activity_id TEXT NOT NULL,
				document_id TEXT NOT NULL,
				created_at INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (activity_id, document_id),
				FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE,
				FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
			)`},
		{"join activity index", `
			CREATE INDEX IF NOT EXISTS idx_activity_documents_activity
			ON activity_documents(activity_id)`},
		{"join document index", `
			CREATE INDEX IF NOT EXISTS idx_activity_documents_document
			ON activity_documents(document_id)`},
		{"join created index", `
			CREATE INDEX IF NOT EXISTS idx_activity_documents_created
			ON activity_documents(created_at)`},
	}
	for _, st := range statements {
		if _, err := db.Exec(st.sql); err != nil {
			logger.Error("schema creation failed", "object", st.desc, "error", err)
		}
	}

	migrateJoinTimestamps(db, logger)
}

// ensureCollectionTable creates the opaque-document table for one logical
// collection if it does not exist.
func ensureCollectionTable(db *sql.DB, name string) error {
	if err := validateIdentifier(name); err != nil {
		return err
	}
	_, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`, name))
	return err
}

// migrateJoinTimestamps adds the created_at column to older join tables
// that predate link ordering, backfilling existing rows with the current
// time. Failures are logged and the store continues; link ordering simply
// degrades on such databases.
func migrateJoinTimestamps(db *sql.DB, logger core.Logger) {
	var probe int
	err := db.QueryRow("SELECT created_at FROM activity_documents LIMIT 1").Scan(&probe)
	if err == nil || err == sql.ErrNoRows {
		return // column present
	}

	logger.Info("migrating join table", "column", "created_at")

	if _, err := db.Exec("ALTER TABLE activity_documents ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0"); err != nil {
		logger.Error("join table migration failed", "error", err)
		return
	}
	if _, err := db.Exec("UPDATE activity_documents SET created_at = strftime('%s','now') * 1000"); err != nil {
		logger.Error("join table backfill failed", "error", err)
	}
}
