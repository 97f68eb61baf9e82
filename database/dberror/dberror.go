// Package dberror classifies driver errors of the supported databases into
// a few sentinel errors the data-access layer can act on.
package dberror

import (
	"database/sql"
	"io"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrDBDuplicateKey = errors.New("ERROR_DB_DUPLICATE_KEY")
	ErrDBNotConnected = errors.New("ERROR_DB_NOT_CONNECTED")
	ErrDBForeignKey   = errors.New("ERROR_DB_FOREIGN_KEY_VIOLATION")
)

// CheckDatabaseError maps err to one of the sentinel errors when it can be
// identified. The original message is kept, errors.Is works on the result.
func CheckDatabaseError(err error) error {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) {
		return errors.WithMessage(ErrDBNotConnected, err.Error())
	}
	if IsDuplicateKeyError(err) {
		return errors.WithMessage(ErrDBDuplicateKey, err.Error())
	}
	if IsForeignKeyError(err) {
		return errors.WithMessage(ErrDBForeignKey, err.Error())
	}
	return errors.WithStack(err)
}

// IsDuplicateKeyError detects unique violations across different database systems
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDBDuplicateKey) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var mssqlErr mssql.Error
	if errors.As(err, &mssqlErr) {
		return mssqlErr.Number == 2627 || mssqlErr.Number == 2601
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	errMsg := err.Error()
	// Oracle has no typed error we can import without the network package internals
	if strings.Contains(errMsg, "ORA-00001") {
		return true
	}
	if strings.Contains(errMsg, "UNIQUE constraint failed") ||
		strings.Contains(errMsg, "violates unique constraint") ||
		strings.Contains(errMsg, "Duplicate entry") {
		return true
	}
	return false
}

// IsForeignKeyError detects referential integrity violations
func IsForeignKeyError(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1451 || mysqlErr.Number == 1452
	}
	var mssqlErr mssql.Error
	if errors.As(err, &mssqlErr) {
		return mssqlErr.Number == 547
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "ORA-02291") || strings.Contains(errMsg, "ORA-02292") ||
		strings.Contains(errMsg, "FOREIGN KEY constraint failed")
}

// IsConnectionError detects database connection issues across different database systems
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDBNotConnected) {
		return true
	}

	causeErr := errors.Cause(err)
	if causeErr == io.EOF ||
		causeErr == sql.ErrConnDone ||
		causeErr == net.ErrClosed ||
		causeErr == io.ErrUnexpectedEOF {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 - Connection Exception
		return strings.HasPrefix(string(pqErr.Code), "08")
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		connectionErrors := map[uint16]bool{
			1040: true, 1042: true, 1043: true, 1047: true, 1053: true,
			1077: true, 1129: true, 1130: true, 2002: true, 2003: true,
			2005: true, 2006: true, 2013: true,
		}
		return connectionErrors[mysqlErr.Number]
	}

	var mssqlErr mssql.Error
	if errors.As(err, &mssqlErr) {
		connectionErrors := map[int32]bool{
			53: true, 10053: true, 10054: true, 10060: true,
			10061: true, 233: true, -2: true,
		}
		return connectionErrors[mssqlErr.Number]
	}

	errMsg := strings.ToLower(err.Error())
	connectionPhrases := []string{
		"connection refused", "connection reset", "connection timed out",
		"broken pipe", "server has gone away", "lost connection",
		"sql: database is closed", "ora-03113", "ora-03114", "ora-12541",
	}
	for _, phrase := range connectionPhrases {
		if strings.Contains(errMsg, phrase) {
			return true
		}
	}
	return false
}
