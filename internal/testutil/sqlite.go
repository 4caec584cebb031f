// Package testutil provides helpers shared by package tests.
package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"seshlock/internal/db"
	"seshlock/internal/db/migrate"
)

// OpenSQLite returns a private in-memory SQLite database with all migrations applied.
// The database is closed when the test finishes.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := migrate.Up(conn, db.SQLite); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// InsertUser inserts a users row with a placeholder password hash and returns its ID.
func InsertUser(t testing.TB, conn *sql.DB, email string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := conn.Exec(`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		id, email, "x", db.SQLite.EncodeTime(time.Now()))
	if err != nil {
		t.Fatalf("insert user %s: %v", email, err)
	}
	return id
}
