package migration

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "migrations"

// Files exposes the embedded migration sources so repository tests can run
// against the shipped DDL.
func Files() fs.FS {
	return embeddedMigrations
}
