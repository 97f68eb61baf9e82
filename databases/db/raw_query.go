package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/base"
	"github.com/donnyhardyanto/dxclusto/databases/db/query/builder"
	"github.com/donnyhardyanto/dxclusto/utils"
)

// DatabaseTypeOf resolves the database type from the driver name of a handle or transaction.
func DatabaseTypeOf(e sqlx.ExtContext) base.DXDatabaseType {
	return base.StringToDXDatabaseType(e.DriverName())
}

// BindTypeOf maps a database type to its sqlx placeholder style.
func BindTypeOf(dbt base.DXDatabaseType) int {
	switch dbt {
	case base.DXDatabaseTypePostgreSQL:
		return sqlx.DOLLAR
	case base.DXDatabaseTypeSQLServer:
		return sqlx.AT
	case base.DXDatabaseTypeOracle:
		return sqlx.NAMED
	default:
		return sqlx.QUESTION
	}
}

// Bind converts a statement with :name parameters into the placeholder style of dbt.
func Bind(dbt base.DXDatabaseType, sqlStatement string, sqlArguments utils.JSON) (string, []any, error) {
	if sqlArguments == nil {
		sqlArguments = utils.JSON{}
	}

	// go-ora binds by name, the statement is kept as is
	if dbt == base.DXDatabaseTypeOracle {
		args := make([]any, 0, len(sqlArguments))
		for name, value := range sqlArguments {
			args = append(args, sql.Named(name, value))
		}
		return sqlStatement, args, nil
	}

	modifiedSQL, args, err := sqlx.Named(sqlStatement, sqlArguments)
	if err != nil {
		return "", nil, errors.Wrapf(err, "NAMED_PARAMETER_CONVERSION_ERROR:sql=%s", sqlStatement)
	}
	return sqlx.Rebind(BindTypeOf(dbt), modifiedSQL), args, nil
}

// NamedSelect runs a query and scans every row into dest, a pointer to a slice.
func NamedSelect(ctx context.Context, e sqlx.ExtContext, dest any, sqlStatement string, sqlArguments utils.JSON) error {
	q, args, err := Bind(DatabaseTypeOf(e), sqlStatement, sqlArguments)
	if err != nil {
		return err
	}
	err = sqlx.SelectContext(ctx, e, dest, q, args...)
	if err != nil {
		return errors.Wrapf(err, "DB_QUERY_ERROR:sql=%s", q)
	}
	return nil
}

// NamedGet runs a query expected to return one row. sql.ErrNoRows is returned unwrapped.
func NamedGet(ctx context.Context, e sqlx.ExtContext, dest any, sqlStatement string, sqlArguments utils.JSON) error {
	q, args, err := Bind(DatabaseTypeOf(e), sqlStatement, sqlArguments)
	if err != nil {
		return err
	}
	err = sqlx.GetContext(ctx, e, dest, q, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return errors.Wrapf(err, "DB_QUERY_ERROR:sql=%s", q)
	}
	return nil
}

func NamedExec(ctx context.Context, e sqlx.ExtContext, sqlStatement string, sqlArguments utils.JSON) (sql.Result, error) {
	q, args, err := Bind(DatabaseTypeOf(e), sqlStatement, sqlArguments)
	if err != nil {
		return nil, err
	}
	r, err := e.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "DB_EXEC_ERROR:sql=%s", q)
	}
	return r, nil
}

// NamedCount runs SELECT COUNT(*) over a FROM/WHERE fragment.
func NamedCount(ctx context.Context, e sqlx.ExtContext, fromWhereJoinPartSqlStatement string, sqlArguments utils.JSON) (count int64, err error) {
	s := fmt.Sprintf("SELECT COUNT(*) %s", fromWhereJoinPartSqlStatement)
	err = NamedGet(ctx, e, &count, s, sqlArguments)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// InsertReturningId executes an insert built with ReturningId and reports the generated key.
func InsertReturningId(ctx context.Context, e sqlx.ExtContext, qb *builder.InsertQueryBuilder) (id int64, err error) {
	dbt := DatabaseTypeOf(e)
	if qb.DbType != dbt {
		return 0, errors.Errorf("INSERT_BUILDER_DATABASE_TYPE_MISMATCH:%s!=%s", qb.DbType, dbt)
	}
	s, a, err := qb.Build()
	if err != nil {
		return 0, err
	}
	q, args, err := Bind(dbt, s, a)
	if err != nil {
		return 0, err
	}

	switch dbt {
	case base.DXDatabaseTypePostgreSQL, base.DXDatabaseTypeSQLServer:
		err = e.QueryRowxContext(ctx, q, args...).Scan(&id)
		if err != nil {
			return 0, errors.Wrapf(err, "DB_INSERT_ERROR:sql=%s", q)
		}
	case base.DXDatabaseTypeOracle:
		args = append(args, sql.Named(builder.OracleOutIdParam, sql.Out{Dest: &id}))
		_, err = e.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, errors.Wrapf(err, "DB_INSERT_ERROR:sql=%s", q)
		}
	default:
		r, err := e.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, errors.Wrapf(err, "DB_INSERT_ERROR:sql=%s", q)
		}
		id, err = r.LastInsertId()
		if err != nil {
			return 0, errors.Wrap(err, "DB_LAST_INSERT_ID_ERROR")
		}
	}
	return id, nil
}
