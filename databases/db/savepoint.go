package db

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/base"
)

type SavepointOp int

const (
	SavepointSet SavepointOp = iota
	SavepointRollback
	SavepointRelease
)

// SavepointStatement returns the statement for op on a savepoint named name.
// Oracle and SQL Server free savepoints with the transaction, so release is empty there.
func SavepointStatement(dbt base.DXDatabaseType, op SavepointOp, name string) (string, error) {
	if !base.IsValidIdentifier(name) {
		return "", errors.Errorf("INVALID_SAVEPOINT_NAME:%s", name)
	}
	switch dbt {
	case base.DXDatabaseTypeSQLServer:
		switch op {
		case SavepointSet:
			return "SAVE TRANSACTION " + name, nil
		case SavepointRollback:
			return "ROLLBACK TRANSACTION " + name, nil
		}
		return "", nil
	case base.DXDatabaseTypeOracle:
		switch op {
		case SavepointSet:
			return "SAVEPOINT " + name, nil
		case SavepointRollback:
			return "ROLLBACK TO SAVEPOINT " + name, nil
		}
		return "", nil
	case base.DXDatabaseTypePostgreSQL, base.DXDatabaseTypeMariaDB, base.DXDatabaseTypeSQLite:
		switch op {
		case SavepointSet:
			return "SAVEPOINT " + name, nil
		case SavepointRollback:
			return "ROLLBACK TO SAVEPOINT " + name, nil
		case SavepointRelease:
			return "RELEASE SAVEPOINT " + name, nil
		}
	}
	return "", errors.Errorf("SAVEPOINT_NOT_SUPPORTED:%s", dbt)
}

func savepoint(ctx context.Context, e sqlx.ExtContext, op SavepointOp, name string) error {
	s, err := SavepointStatement(DatabaseTypeOf(e), op, name)
	if err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if _, err = e.ExecContext(ctx, s); err != nil {
		return errors.Wrapf(err, "DB_SAVEPOINT_ERROR:sql=%s", s)
	}
	return nil
}

// Savepoint marks a point inside the transaction e runs on.
func Savepoint(ctx context.Context, e sqlx.ExtContext, name string) error {
	return savepoint(ctx, e, SavepointSet, name)
}

// RollbackToSavepoint undoes the statements run on e since Savepoint; the transaction stays open.
func RollbackToSavepoint(ctx context.Context, e sqlx.ExtContext, name string) error {
	return savepoint(ctx, e, SavepointRollback, name)
}

func ReleaseSavepoint(ctx context.Context, e sqlx.ExtContext, name string) error {
	return savepoint(ctx, e, SavepointRelease, name)
}
