package db

import (
	"embed"
	"io/fs"
)

// MigrationFS embeds the SQL migrations for every dialect under
// migrations/<dialect>/. Used by the migrate runner and cmd/install.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS

// MigrationsDir returns the directory within MigrationFS holding d's migrations.
func MigrationsDir(d Dialect) string {
	return "migrations/" + d.Name()
}

// Migrations returns d's migrations as a filesystem rooted at its directory.
func Migrations(d Dialect) (fs.FS, error) {
	return fs.Sub(MigrationFS, MigrationsDir(d))
}
