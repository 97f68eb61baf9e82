package builder

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/base"
	"github.com/donnyhardyanto/dxclusto/utils"
)

// UpdateQueryBuilder builds UPDATE SQL statements with fluent API.
// SET values bind as :s_<field>, WHERE values as :w_<field>.
type UpdateQueryBuilder struct {
	SourceName string
	DbType     base.DXDatabaseType
	Error      error
	SetFields  utils.JSON
	Conditions []string
	Args       utils.JSON
}

// NewUpdateQueryBuilder creates a new UpdateQueryBuilder
func NewUpdateQueryBuilder(dbType base.DXDatabaseType) *UpdateQueryBuilder {
	return &UpdateQueryBuilder{
		DbType:     dbType,
		SetFields:  utils.JSON{},
		Conditions: []string{},
		Args:       utils.JSON{},
	}
}

// NewUpdateQueryBuilderWithSource creates a new UpdateQueryBuilder with table name
func NewUpdateQueryBuilderWithSource(dbType base.DXDatabaseType, tableName string) *UpdateQueryBuilder {
	return NewUpdateQueryBuilder(dbType).Table(tableName)
}

// Table sets the table name for UPDATE
func (qb *UpdateQueryBuilder) Table(tableName string) *UpdateQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	if !base.IsValidIdentifier(tableName) {
		qb.Error = errors.Errorf("INVALID_UPDATE_TABLE_NAME:%s", tableName)
		return qb
	}
	qb.SourceName = tableName
	return qb
}

// Set adds a field-value pair to update
func (qb *UpdateQueryBuilder) Set(fieldName string, value any) *UpdateQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	if !base.IsValidIdentifier(fieldName) {
		qb.Error = errors.Errorf("INVALID_UPDATE_FIELD_NAME:%s", fieldName)
		return qb
	}
	qb.SetFields[fieldName] = value
	return qb
}

// Where adds a field = value WHERE condition
func (qb *UpdateQueryBuilder) Where(fieldName string, value any) *UpdateQueryBuilder {
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

// QuoteIdentifier quotes a SQL identifier based on database type
func (qb *UpdateQueryBuilder) QuoteIdentifier(identifier string) string {
	return base.QuoteIdentifier(qb.DbType, identifier)
}

// BuildWhereClause returns the WHERE clause string and Args
func (qb *UpdateQueryBuilder) BuildWhereClause() (string, utils.JSON, error) {
	if qb.Error != nil {
		return "", nil, qb.Error
	}
	if len(qb.Conditions) == 0 {
		return "", qb.Args, nil
	}
	return strings.Join(qb.Conditions, " AND "), qb.Args, nil
}

// Build returns the UPDATE statement and the merged SET and WHERE Args.
// An UPDATE without conditions is refused.
func (qb *UpdateQueryBuilder) Build() (string, utils.JSON, error) {
	if qb.Error != nil {
		return "", nil, qb.Error
	}
	if qb.SourceName == "" {
		return "", nil, errors.New("UPDATE_TABLE_NAME_IS_EMPTY")
	}
	if len(qb.SetFields) == 0 {
		return "", nil, errors.Errorf("UPDATE_HAS_NO_FIELDS:%s", qb.SourceName)
	}
	where, whereArgs, err := qb.BuildWhereClause()
	if err != nil {
		return "", nil, err
	}
	if where == "" {
		return "", nil, errors.Errorf("UPDATE_WITHOUT_WHERE_CLAUSE:%s", qb.SourceName)
	}

	names := make([]string, 0, len(qb.SetFields))
	for k := range qb.SetFields {
		names = append(names, k)
	}
	sort.Strings(names)

	args := utils.JSON{}
	sets := make([]string, 0, len(names))
	for _, n := range names {
		sets = append(sets, qb.QuoteIdentifier(n)+" = :s_"+n)
		args["s_"+n] = qb.SetFields[n]
	}
	for k, v := range whereArgs {
		args[k] = v
	}
	return "UPDATE " + qb.QuoteIdentifier(qb.SourceName) + " SET " + strings.Join(sets, ", ") + " WHERE " + where, args, nil
}
