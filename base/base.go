package base

import (
	"fmt"
	"strings"
)

type DXDatabaseType int64

const (
	UnknownDatabaseType DXDatabaseType = iota
	DXDatabaseTypePostgreSQL
	DXDatabaseTypeMariaDB
	DXDatabaseTypeOracle
	DXDatabaseTypeSQLServer
	DXDatabaseTypeSQLite
)

func (t DXDatabaseType) String() string {
	switch t {
	case DXDatabaseTypePostgreSQL:
		return "postgres"
	case DXDatabaseTypeOracle:
		return "oracle"
	case DXDatabaseTypeSQLServer:
		return "sqlserver"
	case DXDatabaseTypeMariaDB:
		return "mariadb"
	case DXDatabaseTypeSQLite:
		return "sqlite"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

func (t DXDatabaseType) IsValid() bool {
	return t > UnknownDatabaseType && t <= DXDatabaseTypeSQLite
}

// Driver returns the database/sql driver name registered by the driver package.
func (t DXDatabaseType) Driver() string {
	switch t {
	case DXDatabaseTypePostgreSQL:
		return "postgres"
	case DXDatabaseTypeOracle:
		return "oracle"
	case DXDatabaseTypeSQLServer:
		return "sqlserver"
	case DXDatabaseTypeMariaDB:
		return "mysql"
	case DXDatabaseTypeSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// MigrationDialect returns the dialect name understood by sql-migrate.
func (t DXDatabaseType) MigrationDialect() string {
	switch t {
	case DXDatabaseTypePostgreSQL:
		return "postgres"
	case DXDatabaseTypeOracle:
		return "godror"
	case DXDatabaseTypeSQLServer:
		return "mssql"
	case DXDatabaseTypeMariaDB:
		return "mysql"
	case DXDatabaseTypeSQLite:
		return "sqlite3"
	default:
		return "unknown"
	}
}

// StringToDXDatabaseType accepts both configuration names and DSN schemes.
func StringToDXDatabaseType(v string) DXDatabaseType {
	switch strings.ToLower(v) {
	case "postgres", "postgresql":
		return DXDatabaseTypePostgreSQL
	case "mysql", "mariadb":
		return DXDatabaseTypeMariaDB
	case "oracle":
		return DXDatabaseTypeOracle
	case "sqlserver", "mssql":
		return DXDatabaseTypeSQLServer
	case "sqlite", "sqlite3":
		return DXDatabaseTypeSQLite
	default:
		return UnknownDatabaseType
	}
}

// IsValidIdentifier checks if a string is a valid SQL identifier (alphanumeric + underscore, optionally with dot for table.field)
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if i == 0 {
			if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_') {
				return false
			}
		} else {
			if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '.') {
				return false
			}
		}
	}
	return true
}

// QuoteIdentifier quotes a SQL identifier for the given database type
func QuoteIdentifier(dbType DXDatabaseType, identifier string) string {
	switch dbType {
	case DXDatabaseTypeSQLServer:
		return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
	case DXDatabaseTypeMariaDB:
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	case DXDatabaseTypeOracle:
		// unquoted Oracle DDL folds to upper case
		return "\"" + strings.ReplaceAll(strings.ToUpper(identifier), "\"", "\"\"") + "\""
	default:
		return "\"" + strings.ReplaceAll(identifier, "\"", "\"\"") + "\""
	}
}

// QuoteFieldWithPrefix quotes a field that may have table prefix (e.g., "t.field_name" -> "t"."field_name")
func QuoteFieldWithPrefix(dbType DXDatabaseType, field string) string {
	parts := strings.SplitN(field, ".", 2)
	if len(parts) == 2 {
		return QuoteIdentifier(dbType, parts[0]) + "." + QuoteIdentifier(dbType, parts[1])
	}
	return QuoteIdentifier(dbType, field)
}
