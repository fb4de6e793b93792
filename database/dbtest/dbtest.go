// Package dbtest provides an in-memory SQLite store with the production schema.
package dbtest

import (
	"database/sql"
	"testing"

	"pricepulse/database"
)

// New opens a fresh in-memory database, creates the tables and closes it when the test ends.
func New(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.CreateTables(db, "sqlite3"); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return db
}
