package clusto

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/donnyhardyanto/dxclusto/log"
)

// echoExt logs every statement and lets a hook veto executions.
type echoExt struct {
	sqlx.ExtContext
	log  *log.DXLog
	echo bool
	hook func(query string) error
}

func (e *echoExt) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if e.echo {
		e.log.LogSQL(query, args)
	}
	return e.ExtContext.QueryContext(ctx, query, args...)
}

func (e *echoExt) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	if e.echo {
		e.log.LogSQL(query, args)
	}
	return e.ExtContext.QueryxContext(ctx, query, args...)
}

func (e *echoExt) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	if e.echo {
		e.log.LogSQL(query, args)
	}
	return e.ExtContext.QueryRowxContext(ctx, query, args...)
}

func (e *echoExt) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.echo {
		e.log.LogSQL(query, args)
	}
	if e.hook != nil {
		if err := e.hook(query); err != nil {
			return nil, err
		}
	}
	return e.ExtContext.ExecContext(ctx, query, args...)
}
