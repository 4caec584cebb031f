package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) DBTX {
	t.Helper()
	conn, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = conn.Exec(`
CREATE TABLE parent (id TEXT PRIMARY KEY, name TEXT NOT NULL UNIQUE);
CREATE TABLE child (id TEXT PRIMARY KEY, parent_id TEXT NOT NULL REFERENCES parent (id) ON DELETE CASCADE);`)
	require.NoError(t, err)
	return conn
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	require.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:?"+sqlitePragmas, sqliteDSN(":memory:"))
	assert.Equal(t, "file:x.db?mode=rwc&"+sqlitePragmas, sqliteDSN("file:x.db?mode=rwc"))
}

func TestOpenSQLite_PragmasOnEveryConnection(t *testing.T) {
	conn, err := OpenSQLite(filepath.Join(t.TempDir(), "pragmas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	conn.SetMaxOpenConns(2)

	ctx := context.Background()
	first, err := conn.Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := conn.Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	for i, c := range []interface {
		QueryRowContext(context.Context, string, ...any) *sql.Row
	}{first, second} {
		var fk, timeout int
		require.NoError(t, c.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
		require.NoError(t, c.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout))
		assert.Equal(t, 1, fk, "connection %d foreign_keys", i)
		assert.Equal(t, 5000, timeout, "connection %d busy_timeout", i)
	}
}

func TestSQLite_IsUniqueViolation(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()

	_, err := conn.ExecContext(ctx, `INSERT INTO parent (id, name) VALUES (?, ?)`, "p1", "alpha")
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, `INSERT INTO parent (id, name) VALUES (?, ?)`, "p2", "alpha")
	require.Error(t, err)
	assert.True(t, SQLite.IsUniqueViolation(err), "duplicate unique column: %v", err)

	_, err = conn.ExecContext(ctx, `INSERT INTO parent (id, name) VALUES (?, ?)`, "p1", "beta")
	require.Error(t, err)
	assert.True(t, SQLite.IsUniqueViolation(err), "duplicate primary key: %v", err)

	_, err = conn.ExecContext(ctx, `INSERT INTO child (id, parent_id) VALUES (?, ?)`, "c1", "missing")
	require.Error(t, err, "foreign keys must be enforced")
	assert.False(t, SQLite.IsUniqueViolation(err), "foreign key failure is not a unique violation")

	assert.False(t, SQLite.IsUniqueViolation(errors.New("UNIQUE constraint failed")))
}

func TestSQLite_ForeignKeyCascade(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()

	_, err := conn.ExecContext(ctx, `INSERT INTO parent (id, name) VALUES ('p1', 'alpha')`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO child (id, parent_id) VALUES ('c1', 'p1')`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `DELETE FROM parent WHERE id = 'p1'`)
	require.NoError(t, err)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM child`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestNullTime_RoundTrip(t *testing.T) {
	conn := openMemory(t)
	ctx := context.Background()
	_, err := conn.ExecContext(ctx, `CREATE TABLE stamps (id INTEGER PRIMARY KEY, at TEXT)`)
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 30, 15, 123456000, time.FixedZone("X", 3600))
	_, err = conn.ExecContext(ctx, `INSERT INTO stamps (id, at) VALUES (1, ?), (2, ?)`,
		NullableTime(SQLite, &at), NullableTime(SQLite, nil))
	require.NoError(t, err)

	var got NullTime
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT at FROM stamps WHERE id = 1`).Scan(&got))
	require.True(t, got.Valid)
	assert.True(t, got.Time.Equal(at), "got %v want %v", got.Time, at)
	assert.Equal(t, time.UTC, got.Time.Location())

	var null NullTime
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT at FROM stamps WHERE id = 2`).Scan(&null))
	assert.False(t, null.Valid)
	assert.Nil(t, null.Ptr())
}

func TestNullTime_ScanTypes(t *testing.T) {
	now := time.Now()
	var n NullTime
	require.NoError(t, n.Scan(now))
	assert.True(t, n.Valid)
	assert.True(t, n.Time.Equal(now))

	require.NoError(t, n.Scan([]byte("2026-01-02T03:04:05Z")))
	assert.Equal(t, 2026, n.Time.Year())

	assert.Error(t, n.Scan("yesterday"))
	assert.Error(t, n.Scan(42))
}

func TestWithTx_CommitAndRollback(t *testing.T) {
	conn, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()
	_, err = conn.Exec(`CREATE TABLE items (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)

	err = WithTx(ctx, conn, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO items (id) VALUES ('a')`)
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = WithTx(ctx, conn, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (id) VALUES ('b')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_ = WithTx(ctx, conn, func(ctx context.Context, tx DBTX) error {
			_, _ = tx.ExecContext(ctx, `INSERT INTO items (id) VALUES ('c')`)
			panic("kaboom")
		})
	})

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	assert.Equal(t, 1, n, "only the committed insert survives")
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	d, err = DialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	_, err = DialectFor("mysql")
	assert.Error(t, err)
}

func TestMigrations_PerDialect(t *testing.T) {
	for _, d := range []Dialect{Postgres, SQLite} {
		entries, err := MigrationFS.ReadDir(MigrationsDir(d))
		require.NoError(t, err)
		assert.Len(t, entries, 4, "dialect %s", d.Name())
	}
}
