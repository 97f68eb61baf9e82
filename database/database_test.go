package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donnyhardyanto/dxclusto/base"
	"github.com/donnyhardyanto/dxclusto/databases/db"
	"github.com/donnyhardyanto/dxclusto/databases/db/query/builder"
	"github.com/donnyhardyanto/dxclusto/utils"
)

var testMigrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id:   "1",
			Up:   []string{`CREATE TABLE "items" ("item_id" INTEGER PRIMARY KEY AUTOINCREMENT, "name" TEXT NOT NULL UNIQUE)`},
			Down: []string{`DROP TABLE "items"`},
		},
	},
}

func newTestDatabase(t *testing.T) *DXDatabase {
	t.Helper()
	d, err := NewDXDatabase("test", "sqlite:///"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, d.Connect(context.Background()))
	t.Cleanup(func() { _ = d.Disconnect() })
	_, err = d.Migrate(context.Background(), "test_migrations", testMigrations, migrate.Up)
	require.NoError(t, err)
	return d
}

func countItems(t *testing.T, d *DXDatabase) int64 {
	t.Helper()
	n, err := db.NamedCount(context.Background(), d.Connection, `FROM "items"`, nil)
	require.NoError(t, err)
	return n
}

func TestDXDatabase_ConnectAndDisconnect(t *testing.T) {
	d := newTestDatabase(t)
	assert.True(t, d.Connected)
	assert.Equal(t, base.DXDatabaseTypeSQLite, d.DatabaseType)
	require.NoError(t, d.CheckConnection(context.Background()))

	require.NoError(t, d.Disconnect())
	assert.False(t, d.Connected)
	assert.Nil(t, d.Connection)
}

func TestDXDatabase_MigrateIsIdempotent(t *testing.T) {
	d := newTestDatabase(t)
	n, err := d.Migrate(context.Background(), "test_migrations", testMigrations, migrate.Up)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDXDatabase_Execute(t *testing.T) {
	d := newTestDatabase(t)
	r, err := d.Execute(context.Background(), `INSERT INTO "items" ("name") VALUES (:name)`, utils.JSON{"name": "a"})
	require.NoError(t, err)
	n, err := r.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), countItems(t, d))
}

func TestDXDatabase_TransactionBegin(t *testing.T) {
	d := newTestDatabase(t)
	ctx := context.Background()

	dtx, err := d.TransactionBegin(ctx, LevelDefault)
	require.NoError(t, err)
	_, err = db.NamedExec(ctx, dtx, `INSERT INTO "items" ("name") VALUES (:name)`, utils.JSON{"name": "kept"})
	require.NoError(t, err)
	require.NoError(t, dtx.Commit())
	assert.ErrorIs(t, dtx.Rollback(), sql.ErrTxDone)

	dtx, err = d.TransactionBegin(ctx, LevelDefault)
	require.NoError(t, err)
	_, err = db.NamedExec(ctx, dtx, `INSERT INTO "items" ("name") VALUES (:name)`, utils.JSON{"name": "dropped"})
	require.NoError(t, err)
	require.NoError(t, dtx.Rollback())
	assert.ErrorIs(t, dtx.Commit(), sql.ErrTxDone)

	assert.Equal(t, int64(1), countItems(t, d))
}

func TestInsertReturningId_SQLite(t *testing.T) {
	d := newTestDatabase(t)
	ctx := context.Background()
	var ids []int64
	for _, name := range []string{"a", "b"} {
		qb := builder.NewInsertQueryBuilderWithSource(d.DatabaseType, "items").Set("name", name).ReturningId("item_id")
		id, err := db.InsertReturningId(ctx, d.Connection, qb)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []int64{1, 2}, ids)

	var names []string
	require.NoError(t, db.NamedSelect(ctx, d.Connection, &names, `SELECT "name" FROM "items" ORDER BY "item_id"`, nil))
	assert.Equal(t, []string{"a", "b"}, names)
}
