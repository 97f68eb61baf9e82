package database

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/log"
)

type DXDatabaseTxIsolationLevel = sql.IsolationLevel

// LevelDefault leaves the isolation level to the server.
const LevelDefault DXDatabaseTxIsolationLevel = sql.LevelDefault

// DXDatabaseTx is the transaction a clusto session flushes into.
type DXDatabaseTx struct {
	*sqlx.Tx
	Log *log.DXLog
}

func (dtx *DXDatabaseTx) Commit() error {
	return dtx.end("COMMIT", dtx.Tx.Commit())
}

func (dtx *DXDatabaseTx) Rollback() error {
	return dtx.end("ROLLBACK", dtx.Tx.Rollback())
}

func (dtx *DXDatabaseTx) end(op string, err error) error {
	if err == nil {
		return nil
	}
	dtx.Log.Errorf("TX_%s_ERROR:%v", op, err)
	return errors.WithStack(err)
}
