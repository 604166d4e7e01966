package testutil

import (
	"database/sql"
	"testing"

	"arstudio/internal/core"
	"arstudio/internal/store"
)

// NewTestDB creates a new in-memory SQLite database with the base schema
// applied. The database is automatically closed when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := store.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	store.EnsureSchema(db, core.NewNopLogger())

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
