package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	namedParameterQuery "github.com/knetic/go-namedparameterquery"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/sijms/go-ora/v2"
	_ "modernc.org/sqlite"

	"github.com/donnyhardyanto/dxclusto/base"
	"github.com/donnyhardyanto/dxclusto/database/dberror"
	"github.com/donnyhardyanto/dxclusto/databases/db"
	"github.com/donnyhardyanto/dxclusto/log"
	"github.com/donnyhardyanto/dxclusto/utils"
)

type DXDatabaseEventFunc func(d *DXDatabase, err error)

type DXDatabase struct {
	NameId                       string
	DatabaseType                 base.DXDatabaseType
	DSN                          *DSN
	Echo                         bool
	MustConnected                bool
	MaxOpenConnections           int
	MaxIdleConnections           int
	ConnMaxLifetime              time.Duration
	Connected                    bool
	Connection                   *sqlx.DB
	ConnectionString             string
	NonSensitiveConnectionString string
	OnCannotConnect              DXDatabaseEventFunc
	Log                          log.DXLog
}

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	sqlx.BindDriver("oracle", sqlx.NAMED)
}

// NewDXDatabase parses dsn and prepares the driver connection string, it does not connect.
func NewDXDatabase(nameId string, dsn string) (*DXDatabase, error) {
	d, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cs, err := d.ConnectionString()
	if err != nil {
		return nil, err
	}
	return &DXDatabase{
		NameId:                       nameId,
		DatabaseType:                 d.DatabaseType,
		DSN:                          d,
		ConnectionString:             cs,
		NonSensitiveConnectionString: d.NonSensitiveString(),
		Log:                          log.NewLog(&log.Log, nil, "database/"+nameId),
	}, nil
}

func (d *DXDatabase) Connect(ctx context.Context) (err error) {
	if d.Connected {
		return nil
	}
	d.Log.Infof("Connecting to database %s/%s... start", d.NameId, d.NonSensitiveConnectionString)
	connection, err := sqlx.Open(d.DatabaseType.Driver(), d.ConnectionString)
	if err != nil {
		if d.MustConnected {
			d.Log.Fatalf("Invalid parameters to open database %s/%s (%s)", d.NameId, d.NonSensitiveConnectionString, err.Error())
		}
		d.Log.Errorf("Invalid parameters to open database %s/%s (%s)", d.NameId, d.NonSensitiveConnectionString, err.Error())
		return errors.Wrapf(err, "DB_OPEN_ERROR:%s", d.NonSensitiveConnectionString)
	}

	// a single connection serializes SQLite writers instead of failing with SQLITE_BUSY
	if d.DatabaseType == base.DXDatabaseTypeSQLite {
		connection.SetMaxOpenConns(1)
	} else if d.MaxOpenConnections > 0 {
		connection.SetMaxOpenConns(d.MaxOpenConnections)
	}
	if d.MaxIdleConnections > 0 {
		connection.SetMaxIdleConns(d.MaxIdleConnections)
	}
	if d.ConnMaxLifetime > 0 {
		connection.SetConnMaxLifetime(d.ConnMaxLifetime)
	}

	err = connection.PingContext(ctx)
	if err != nil {
		_ = connection.Close()
		if d.OnCannotConnect != nil {
			d.OnCannotConnect(d, err)
		}
		if d.MustConnected {
			d.Log.Fatalf("Cannot connect and ping to database %s/%s (%s)", d.NameId, d.NonSensitiveConnectionString, err.Error())
		}
		d.Log.Errorf("Cannot connect and ping to database %s/%s (%s)", d.NameId, d.NonSensitiveConnectionString, err.Error())
		return dberror.CheckDatabaseError(err)
	}
	d.Connection = connection
	d.Connected = true
	d.Log.Infof("Connecting to database %s/%s... done CONNECTED", d.NameId, d.NonSensitiveConnectionString)
	return nil
}

func (d *DXDatabase) Disconnect() (err error) {
	if !d.Connected {
		return nil
	}
	d.Log.Infof("Disconnecting to database %s/%s... start", d.NameId, d.NonSensitiveConnectionString)
	err = d.Connection.Close()
	if err != nil {
		d.Log.Errorf("Disconnecting to database %s/%s error (%s)", d.NameId, d.NonSensitiveConnectionString, err.Error())
		return errors.WithStack(err)
	}
	d.Connection = nil
	d.Connected = false
	d.Log.Infof("Disconnecting to database %s/%s... done DISCONNECTED", d.NameId, d.NonSensitiveConnectionString)
	return nil
}

func (d *DXDatabase) CheckConnection(ctx context.Context) (err error) {
	if d.Connection == nil {
		d.Connected = false
		return dberror.ErrDBNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	err = d.Connection.PingContext(ctx)
	if err != nil {
		d.Connected = false
		d.Log.Warnf("Database %v ping failed: %v", d.NameId, err.Error())
		return dberror.CheckDatabaseError(err)
	}
	d.Connected = true
	return nil
}

func (d *DXDatabase) CheckConnectionAndReconnect(ctx context.Context) (err error) {
	if d.Connected {
		err = d.CheckConnection(ctx)
		if err == nil {
			return nil
		}
		if d.Connection != nil {
			_ = d.Connection.Close()
			d.Connection = nil
		}
	}
	return d.Connect(ctx)
}

func (d *DXDatabase) TransactionBegin(ctx context.Context, isolationLevel DXDatabaseTxIsolationLevel) (dtx *DXDatabaseTx, err error) {
	err = d.CheckConnectionAndReconnect(ctx)
	if err != nil {
		return nil, err
	}
	opts := &sql.TxOptions{Isolation: isolationLevel}
	// go-ora and modernc sqlite reject explicit isolation levels
	if d.DatabaseType == base.DXDatabaseTypeOracle || d.DatabaseType == base.DXDatabaseTypeSQLite {
		opts = &sql.TxOptions{}
	}
	tx, err := d.Connection.BeginTxx(ctx, opts)
	if err != nil {
		return nil, dberror.CheckDatabaseError(err)
	}
	return &DXDatabaseTx{
		Tx:  tx,
		Log: &d.Log,
	}, nil
}

// Execute runs a raw statement with :name parameters outside any transaction.
func (d *DXDatabase) Execute(ctx context.Context, statement string, parameters utils.JSON) (r sql.Result, err error) {
	err = d.CheckConnectionAndReconnect(ctx)
	if err != nil {
		return nil, err
	}
	return ExecuteNamed(ctx, d.Connection, d.Log, d.Echo, statement, parameters)
}

// ExecuteNamed runs a raw statement with :name parameters on a handle or a transaction.
func ExecuteNamed(ctx context.Context, e sqlx.ExtContext, l log.DXLog, echo bool, statement string, parameters utils.JSON) (sql.Result, error) {
	query := namedParameterQuery.NewNamedParameterQuery(statement)
	query.SetValuesFromMap(parameters)
	s := sqlx.Rebind(db.BindTypeOf(db.DatabaseTypeOf(e)), query.GetParsedQuery())
	p := query.GetParsedParameters()
	if echo {
		l.LogSQL(s, p)
	}
	r, err := e.ExecContext(ctx, s, p...)
	if err != nil {
		return nil, errors.Wrapf(err, "DB_EXECUTE_ERROR:sql=%s", s)
	}
	return r, nil
}

// Migrate applies the migrations of source in direction, tracking them in tableName.
func (d *DXDatabase) Migrate(ctx context.Context, tableName string, source migrate.MigrationSource, direction migrate.MigrationDirection) (n int, err error) {
	err = d.CheckConnectionAndReconnect(ctx)
	if err != nil {
		return 0, err
	}
	d.Log.Infof("Migrating database %s/%s... start", d.NameId, d.NonSensitiveConnectionString)
	ms := migrate.MigrationSet{TableName: tableName}
	n, err = ms.ExecContext(ctx, d.Connection.DB, d.DatabaseType.MigrationDialect(), source, direction)
	if err != nil {
		d.Log.Errorf("Migrating database %s/%s error (%s)", d.NameId, d.NonSensitiveConnectionString, err.Error())
		return n, errors.Wrapf(err, "DB_MIGRATION_ERROR:%s", d.NameId)
	}
	d.Log.Infof("Migrating database %s/%s... done, %d applied", d.NameId, d.NonSensitiveConnectionString, n)
	return n, nil
}
