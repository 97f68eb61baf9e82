package schema

import (
	"embed"

	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/donnyhardyanto/dxclusto/base"
)

//go:embed migrations
var migrationFiles embed.FS

// Migrations returns the migration source creating the clusto tables for dbType.
func Migrations(dbType base.DXDatabaseType) (migrate.MigrationSource, error) {
	if !dbType.IsValid() {
		return nil, errors.Errorf("NO_MIGRATIONS_FOR_DATABASE_TYPE:%s", dbType)
	}
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       "migrations/" + dbType.String(),
	}, nil
}
