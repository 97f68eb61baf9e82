package builder

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/base"
	"github.com/donnyhardyanto/dxclusto/utils"
)

// DeleteQueryBuilder builds DELETE SQL statements with fluent API
type DeleteQueryBuilder struct {
	SourceName string              // Table name for DELETE FROM
	DbType     base.DXDatabaseType // Database type for syntax differences
	Error      error               // Accumulated error
	Conditions []string            // WHERE conditions
	Args       utils.JSON          // WHERE clause arguments
}

// NewDeleteQueryBuilder creates a new DeleteQueryBuilder
func NewDeleteQueryBuilder(dbType base.DXDatabaseType) *DeleteQueryBuilder {
	return &DeleteQueryBuilder{
		DbType:     dbType,
		Conditions: []string{},
		Args:       utils.JSON{},
	}
}

// NewDeleteQueryBuilderWithSource creates a new DeleteQueryBuilder with table name
func NewDeleteQueryBuilderWithSource(dbType base.DXDatabaseType, tableName string) *DeleteQueryBuilder {
	return NewDeleteQueryBuilder(dbType).From(tableName)
}

// From sets the table name for DELETE
func (qb *DeleteQueryBuilder) From(tableName string) *DeleteQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	if !base.IsValidIdentifier(tableName) {
		qb.Error = errors.Errorf("INVALID_DELETE_TABLE_NAME:%s", tableName)
		return qb
	}
	qb.SourceName = tableName
	return qb
}

// Where adds a field = value WHERE condition
func (qb *DeleteQueryBuilder) Where(fieldName string, value any) *DeleteQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	if !base.IsValidIdentifier(fieldName) {
		qb.Error = errors.Errorf("INVALID_WHERE_FIELD_NAME:%s", fieldName)
		return qb
	}
	paramName := "w_" + fieldName
	qb.Conditions = append(qb.Conditions, qb.QuoteIdentifier(fieldName)+" = :"+paramName)
	qb.Args[paramName] = value
	return qb
}

// WhereAnyEq adds (f1 = :v OR f2 = :v ...) binding the same value to every field.
func (qb *DeleteQueryBuilder) WhereAnyEq(value any, fieldNames ...string) *DeleteQueryBuilder {
	if qb.Error != nil || len(fieldNames) == 0 {
		return qb
	}
	paramName := "w_any_" + fieldNames[0]
	var parts []string
	for _, f := range fieldNames {
		if !base.IsValidIdentifier(f) {
			qb.Error = errors.Errorf("INVALID_WHERE_FIELD_NAME:%s", f)
			return qb
		}
		parts = append(parts, qb.QuoteIdentifier(f)+" = :"+paramName)
	}
	qb.Conditions = append(qb.Conditions, "("+strings.Join(parts, " OR ")+")")
	qb.Args[paramName] = value
	return qb
}

// Group adds every condition of a ConditionGroup with AND
func (qb *DeleteQueryBuilder) Group(cg *ConditionGroup) *DeleteQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	if cg.Error != nil {
		qb.Error = cg.Error
		return qb
	}
	qb.Conditions = append(qb.Conditions, cg.Conditions...)
	for k, v := range cg.Args {
		qb.Args[k] = v
	}
	return qb
}

// QuoteIdentifier quotes a SQL identifier based on database type
func (qb *DeleteQueryBuilder) QuoteIdentifier(identifier string) string {
	return base.QuoteIdentifier(qb.DbType, identifier)
}

// BuildWhereClause returns the WHERE clause string and Args
func (qb *DeleteQueryBuilder) BuildWhereClause() (string, utils.JSON, error) {
	if qb.Error != nil {
		return "", nil, qb.Error
	}
	if len(qb.Conditions) == 0 {
		return "", qb.Args, nil
	}
	return strings.Join(qb.Conditions, " AND "), qb.Args, nil
}

// Build returns the DELETE statement. A DELETE without conditions is refused.
func (qb *DeleteQueryBuilder) Build() (string, utils.JSON, error) {
	if qb.Error != nil {
		return "", nil, qb.Error
	}
	if qb.SourceName == "" {
		return "", nil, errors.New("DELETE_TABLE_NAME_IS_EMPTY")
	}
	where, args, err := qb.BuildWhereClause()
	if err != nil {
		return "", nil, err
	}
	if where == "" {
		return "", nil, errors.Errorf("DELETE_WITHOUT_WHERE_CLAUSE:%s", qb.SourceName)
	}
	return "DELETE FROM " + qb.QuoteIdentifier(qb.SourceName) + " WHERE " + where, args, nil
}
