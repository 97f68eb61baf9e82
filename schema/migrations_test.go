package schema

import (
	"context"
	"path/filepath"
	"testing"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donnyhardyanto/dxclusto/base"
	"github.com/donnyhardyanto/dxclusto/database"
	"github.com/donnyhardyanto/dxclusto/databases/db"
)

func TestMigrations_EveryDatabaseType(t *testing.T) {
	for _, dbt := range []base.DXDatabaseType{
		base.DXDatabaseTypePostgreSQL,
		base.DXDatabaseTypeMariaDB,
		base.DXDatabaseTypeOracle,
		base.DXDatabaseTypeSQLServer,
		base.DXDatabaseTypeSQLite,
	} {
		t.Run(dbt.String(), func(t *testing.T) {
			src, err := Migrations(dbt)
			require.NoError(t, err)
			ms, err := src.FindMigrations()
			require.NoError(t, err)
			require.Len(t, ms, 1)
			assert.NotEmpty(t, ms[0].Up)
			assert.NotEmpty(t, ms[0].Down)
		})
	}

	_, err := Migrations(base.UnknownDatabaseType)
	assert.Error(t, err)
}

func TestMigrations_UpAndDownOnSQLite(t *testing.T) {
	ctx := context.Background()
	d, err := database.NewDXDatabase("schema", "sqlite:///"+filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	require.NoError(t, d.Connect(ctx))
	defer func() { _ = d.Disconnect() }()

	src, err := Migrations(d.DatabaseType)
	require.NoError(t, err)
	n, err := d.Migrate(ctx, MigrationTableName, src, migrate.Up)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, table := range []string{TableEntities, TableEntityAttrs, TableVersioning} {
		c, err := db.NamedCount(ctx, d.Connection, `FROM "`+table+`"`, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), c)
	}

	n, err = d.Migrate(ctx, MigrationTableName, src, migrate.Down)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = db.NamedCount(ctx, d.Connection, `FROM "`+TableEntities+`"`, nil)
	assert.Error(t, err)
}
