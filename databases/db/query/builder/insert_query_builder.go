package builder

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/base"
	"github.com/donnyhardyanto/dxclusto/utils"
)

// OracleOutIdParam is the bind name of the generated id in an Oracle RETURNING ... INTO clause.
const OracleOutIdParam = "out_id"

// InsertQueryBuilder builds INSERT SQL statements with fluent API
type InsertQueryBuilder struct {
	SourceName string              // Table name for INSERT INTO
	DbType     base.DXDatabaseType // Database type for syntax differences
	Error      error               // Accumulated error
	SetFields  utils.JSON          // Fields to insert (column -> value)
	IdField    string              // generated key reported back by RETURNING/OUTPUT
}

// NewInsertQueryBuilder creates a new InsertQueryBuilder
func NewInsertQueryBuilder(dbType base.DXDatabaseType) *InsertQueryBuilder {
	return &InsertQueryBuilder{
		DbType:    dbType,
		SetFields: utils.JSON{},
	}
}

// NewInsertQueryBuilderWithSource creates a new InsertQueryBuilder with table name
func NewInsertQueryBuilderWithSource(dbType base.DXDatabaseType, tableName string) *InsertQueryBuilder {
	return NewInsertQueryBuilder(dbType).Into(tableName)
}

// Into sets the table name for INSERT
func (qb *InsertQueryBuilder) Into(tableName string) *InsertQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	if !base.IsValidIdentifier(tableName) {
		qb.Error = errors.Errorf("INVALID_INSERT_TABLE_NAME:%s", tableName)
		return qb
	}
	qb.SourceName = tableName
	return qb
}

// Set adds a field-value pair to insert
func (qb *InsertQueryBuilder) Set(fieldName string, value any) *InsertQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	if !base.IsValidIdentifier(fieldName) {
		qb.Error = errors.Errorf("INVALID_INSERT_FIELD_NAME:%s", fieldName)
		return qb
	}
	qb.SetFields[fieldName] = value
	return qb
}

// SetAll adds multiple field-value pairs to insert
func (qb *InsertQueryBuilder) SetAll(fields utils.JSON) *InsertQueryBuilder {
	for k, v := range fields {
		qb.Set(k, v)
		if qb.Error != nil {
			return qb
		}
	}
	return qb
}

// ReturningId asks the statement to report the generated value of fieldName.
// MariaDB and SQLite have no such clause, the caller reads LastInsertId instead.
func (qb *InsertQueryBuilder) ReturningId(fieldName string) *InsertQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	if !base.IsValidIdentifier(fieldName) {
		qb.Error = errors.Errorf("INVALID_RETURNING_FIELD_NAME:%s", fieldName)
		return qb
	}
	qb.IdField = fieldName
	return qb
}

// QuoteIdentifier quotes a SQL identifier based on database type
func (qb *InsertQueryBuilder) QuoteIdentifier(identifier string) string {
	return base.QuoteIdentifier(qb.DbType, identifier)
}

// Build returns the INSERT statement with named parameters (:field) and its Args.
// Columns are emitted in name order.
func (qb *InsertQueryBuilder) Build() (string, utils.JSON, error) {
	if qb.Error != nil {
		return "", nil, qb.Error
	}
	if qb.SourceName == "" {
		return "", nil, errors.New("INSERT_TABLE_NAME_IS_EMPTY")
	}
	if len(qb.SetFields) == 0 {
		return "", nil, errors.Errorf("INSERT_HAS_NO_FIELDS:%s", qb.SourceName)
	}

	names := make([]string, 0, len(qb.SetFields))
	for k := range qb.SetFields {
		names = append(names, k)
	}
	sort.Strings(names)

	columns := make([]string, 0, len(names))
	params := make([]string, 0, len(names))
	args := utils.JSON{}
	for _, n := range names {
		columns = append(columns, qb.QuoteIdentifier(n))
		params = append(params, ":"+n)
		args[n] = qb.SetFields[n]
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO " + qb.QuoteIdentifier(qb.SourceName))
	sb.WriteString(" (" + strings.Join(columns, ", ") + ")")
	if qb.IdField != "" && qb.DbType == base.DXDatabaseTypeSQLServer {
		sb.WriteString(" OUTPUT INSERTED." + qb.QuoteIdentifier(qb.IdField))
	}
	sb.WriteString(" VALUES (" + strings.Join(params, ", ") + ")")
	if qb.IdField != "" {
		switch qb.DbType {
		case base.DXDatabaseTypePostgreSQL:
			sb.WriteString(" RETURNING " + qb.QuoteIdentifier(qb.IdField))
		case base.DXDatabaseTypeOracle:
			sb.WriteString(" RETURNING " + qb.QuoteIdentifier(qb.IdField) + " INTO :" + OracleOutIdParam)
		}
	}
	return sb.String(), args, nil
}
