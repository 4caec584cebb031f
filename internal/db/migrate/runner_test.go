package migrate

import (
	"path/filepath"
	"testing"

	"seshlock/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	err := Run("", db.Postgres, "up")
	if err == nil {
		t.Fatal("Run with empty DSN should return error")
	}
	if err.Error() == "" {
		t.Error("error message should not be empty")
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	testCases := []struct {
		name      string
		direction string
	}{
		{"empty", ""},
		{"invalid", "invalid"},
		{"upcase", "UP"},
		{"mixed", "Up"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Run("postgres://localhost/test", db.Postgres, tc.direction)
			if err == nil {
				t.Fatalf("Run with direction %q should return error", tc.direction)
			}
		})
	}
}

func TestRun_SQLiteUpAndDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seshlock.db")

	if err := Run(path, db.SQLite, "up"); err != nil {
		t.Fatalf("Run up: %v", err)
	}
	// Second run is a no-op.
	if err := Run(path, db.SQLite, "up"); err != nil {
		t.Fatalf("Run up again: %v", err)
	}

	conn, err := db.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	for _, table := range []string{"users", "refresh_tokens", "access_tokens"} {
		var n int
		if err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n); err != nil {
			t.Fatalf("query %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s missing after up", table)
		}
	}
	conn.Close()

	if err := Run(path, db.SQLite, "down"); err != nil {
		t.Fatalf("Run down: %v", err)
	}
}

func TestUp_SQLiteInstance(t *testing.T) {
	conn, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer conn.Close()

	if err := Up(conn, db.SQLite); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO users (id, email, password_hash, created_at) VALUES ('u1', 'a@example.com', 'x', '2026-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert after Up: %v", err)
	}
	if err := Up(conn, db.SQLite); err != nil {
		t.Fatalf("second Up should be a no-op: %v", err)
	}
}
