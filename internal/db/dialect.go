package db

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Dialect isolates the SQL differences between the supported stores.
type Dialect interface {
	// Name is the golang-migrate driver name and the DB_DRIVER config value.
	Name() string
	// Rebind converts a query written with ? placeholders to the dialect's form.
	Rebind(query string) string
	// IsUniqueViolation reports whether err is a unique-constraint violation.
	IsUniqueViolation(err error) bool
	// EncodeTime converts t into the value written to timestamp columns.
	EncodeTime(t time.Time) any
}

var (
	Postgres Dialect = postgres{}
	SQLite   Dialect = sqliteDialect{}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case Postgres.Name():
		return Postgres, nil
	case SQLite.Name():
		return SQLite, nil
	}
	return nil, fmt.Errorf("unsupported db driver %q", name)
}

// NullTime scans a nullable timestamp column written by any Dialect.
// Postgres returns time.Time; SQLite stores RFC 3339 text.
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (n *NullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	}
	return fmt.Errorf("db: cannot scan %T into NullTime", src)
}

func (n *NullTime) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("db: parse timestamp %q: %w", s, err)
	}
	n.Time, n.Valid = t.UTC(), true
	return nil
}

// Ptr returns nil for NULL, otherwise a pointer to the scanned time.
func (n NullTime) Ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

// NullableTime encodes t for dialect d, mapping nil to SQL NULL.
func NullableTime(d Dialect, t *time.Time) driver.Value {
	if t == nil {
		return nil
	}
	return d.EncodeTime(*t)
}
