package builder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/base"
	"github.com/donnyhardyanto/dxclusto/utils"
)

// SelectQueryBuilder - Fluent API for building SELECT statements.
// Field names may carry a table alias prefix ("e.name"); every identifier is
// validated and quoted for the target database type.

// JoinType defines the type of SQL JOIN
type JoinType string

const JoinTypeInner JoinType = "INNER"

// JoinDef defines a safe JOIN clause
type JoinDef struct {
	Type    JoinType
	Table   string
	Alias   string
	OnLeft  string
	OnRight string
}

// OrderByDef defines a safe ORDER BY clause
type OrderByDef struct {
	FieldName string
	Direction string
}

// SelectQueryBuilder builds SQL clauses with fluent API
type SelectQueryBuilder struct {
	SourceName  string
	SourceAlias string

	Conditions []string
	Args       utils.JSON
	DbType     base.DXDatabaseType
	Error      error

	DistinctRows bool
	Joins        []JoinDef
	OrderByDefs  []OrderByDef
	OutFields    []string
	LimitValue   int64

	groupCount int
}

// NewSelectQueryBuilder creates a new SelectQueryBuilder
func NewSelectQueryBuilder(dbType base.DXDatabaseType) *SelectQueryBuilder {
	return &SelectQueryBuilder{
		Conditions: []string{},
		Args:       utils.JSON{},
		DbType:     dbType,
	}
}

// NewSelectQueryBuilderWithSource creates a new SelectQueryBuilder with source name and optional alias
func NewSelectQueryBuilderWithSource(dbType base.DXDatabaseType, sourceName string, alias string) *SelectQueryBuilder {
	qb := NewSelectQueryBuilder(dbType)
	return qb.From(sourceName, alias)
}

// From sets the FROM source
func (qb *SelectQueryBuilder) From(sourceName string, alias string) *SelectQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	if !base.IsValidIdentifier(sourceName) {
		qb.Error = errors.Errorf("INVALID_SOURCE_NAME:%s", sourceName)
		return qb
	}
	if alias != "" && !base.IsValidIdentifier(alias) {
		qb.Error = errors.Errorf("INVALID_SOURCE_ALIAS:%s", alias)
		return qb
	}
	qb.SourceName = sourceName
	qb.SourceAlias = alias
	return qb
}

// QuoteIdentifier quotes a SQL identifier based on database type to prevent SQL injection
func (qb *SelectQueryBuilder) QuoteIdentifier(identifier string) string {
	return base.QuoteIdentifier(qb.DbType, identifier)
}

// QuoteFieldWithPrefix quotes a field that may have table prefix (e.g., "t.field_name" -> "t"."field_name")
func (qb *SelectQueryBuilder) QuoteFieldWithPrefix(field string) string {
	return base.QuoteFieldWithPrefix(qb.DbType, field)
}

// Distinct makes the statement SELECT DISTINCT
func (qb *SelectQueryBuilder) Distinct() *SelectQueryBuilder {
	qb.DistinctRows = true
	return qb
}

// Select specifies the output fields, no fields means *
func (qb *SelectQueryBuilder) Select(fields ...string) *SelectQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	for _, f := range fields {
		if !base.IsValidIdentifier(f) {
			qb.Error = errors.Errorf("INVALID_SELECT_FIELD:%s", f)
			return qb
		}
	}
	qb.OutFields = append(qb.OutFields, fields...)
	return qb
}

// Join adds an INNER JOIN clause
func (qb *SelectQueryBuilder) Join(table, alias, onLeft, onRight string) *SelectQueryBuilder {
	return qb.addJoin(JoinTypeInner, table, alias, onLeft, onRight)
}

func (qb *SelectQueryBuilder) addJoin(joinType JoinType, table, alias, onLeft, onRight string) *SelectQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	if !base.IsValidIdentifier(table) {
		qb.Error = errors.Errorf("INVALID_JOIN_TABLE_NAME:%s", table)
		return qb
	}
	if alias != "" && !base.IsValidIdentifier(alias) {
		qb.Error = errors.Errorf("INVALID_JOIN_ALIAS:%s", alias)
		return qb
	}
	if !base.IsValidIdentifier(onLeft) {
		qb.Error = errors.Errorf("INVALID_JOIN_ON_LEFT_FIELD:%s", onLeft)
		return qb
	}
	if !base.IsValidIdentifier(onRight) {
		qb.Error = errors.Errorf("INVALID_JOIN_ON_RIGHT_FIELD:%s", onRight)
		return qb
	}
	qb.Joins = append(qb.Joins, JoinDef{
		Type:    joinType,
		Table:   table,
		Alias:   alias,
		OnLeft:  onLeft,
		OnRight: onRight,
	})
	return qb
}

// NewGroup returns a ConditionGroup whose parameter names cannot collide with
// other groups of this builder.
func (qb *SelectQueryBuilder) NewGroup() *ConditionGroup {
	cg := NewConditionGroup(qb.DbType, "g"+strconv.Itoa(qb.groupCount))
	qb.groupCount++
	return cg
}

// Where adds every condition of the group with AND
func (qb *SelectQueryBuilder) Where(cg *ConditionGroup) *SelectQueryBuilder {
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

// OrGroups adds ((g1) OR (g2) ...) as one AND-ed condition. A group without
// conditions matches every row.
func (qb *SelectQueryBuilder) OrGroups(groups ...*ConditionGroup) *SelectQueryBuilder {
	if qb.Error != nil || len(groups) == 0 {
		return qb
	}
	var parts []string
	for _, cg := range groups {
		if cg.Error != nil {
			qb.Error = cg.Error
			return qb
		}
		w := cg.Build()
		if w == "" {
			w = "1=1"
		}
		parts = append(parts, "("+w+")")
		for k, v := range cg.Args {
			qb.Args[k] = v
		}
	}
	qb.Conditions = append(qb.Conditions, "("+strings.Join(parts, " OR ")+")")
	return qb
}

// Limit sets the LIMIT clause value
func (qb *SelectQueryBuilder) Limit(limit int64) *SelectQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	qb.LimitValue = limit
	return qb
}

// AddOrderBy adds an ORDER BY clause with field name and direction ("asc" or "desc")
func (qb *SelectQueryBuilder) AddOrderBy(fieldName string, direction string) *SelectQueryBuilder {
	if qb.Error != nil {
		return qb
	}
	if !base.IsValidIdentifier(fieldName) {
		qb.Error = errors.Errorf("INVALID_ORDER_BY_FIELD:%s", fieldName)
		return qb
	}
	dir := strings.ToLower(direction)
	if dir != "asc" && dir != "desc" {
		qb.Error = errors.Errorf("INVALID_ORDER_BY_DIRECTION:%s", direction)
		return qb
	}
	qb.OrderByDefs = append(qb.OrderByDefs, OrderByDef{
		FieldName: fieldName,
		Direction: dir,
	})
	return qb
}

func (qb *SelectQueryBuilder) sourceClause(table, alias string) string {
	// no AS keyword, Oracle rejects it for table aliases
	s := qb.QuoteIdentifier(table)
	if alias != "" {
		s += " " + qb.QuoteIdentifier(alias)
	}
	return s
}

func (qb *SelectQueryBuilder) outField(field string) string {
	quoted := qb.QuoteFieldWithPrefix(field)
	if qb.DbType != base.DXDatabaseTypeOracle {
		return quoted
	}
	// Oracle reports upper case column names, keep the lower case name for row scanning
	name := field
	if i := strings.LastIndex(field, "."); i >= 0 {
		name = field[i+1:]
	}
	return quoted + " AS \"" + name + "\""
}

// BuildJoinClause returns the JOIN clause string
func (qb *SelectQueryBuilder) BuildJoinClause() (string, error) {
	if qb.Error != nil {
		return "", qb.Error
	}
	if len(qb.Joins) == 0 {
		return "", nil
	}
	var parts []string
	for _, j := range qb.Joins {
		parts = append(parts, fmt.Sprintf("%s JOIN %s ON %s = %s", j.Type, qb.sourceClause(j.Table, j.Alias),
			qb.QuoteFieldWithPrefix(j.OnLeft), qb.QuoteFieldWithPrefix(j.OnRight)))
	}
	return strings.Join(parts, " "), nil
}

// BuildOrderByClause returns the ORDER BY clause string without the keyword
func (qb *SelectQueryBuilder) BuildOrderByClause() (string, error) {
	if qb.Error != nil {
		return "", qb.Error
	}
	var parts []string
	for _, o := range qb.OrderByDefs {
		parts = append(parts, qb.QuoteFieldWithPrefix(o.FieldName)+" "+strings.ToUpper(o.Direction))
	}
	return strings.Join(parts, ", "), nil
}

// BuildWhereClause returns the WHERE clause string without the keyword, and Args
func (qb *SelectQueryBuilder) BuildWhereClause() (string, utils.JSON, error) {
	if qb.Error != nil {
		return "", nil, qb.Error
	}
	if len(qb.Conditions) == 0 {
		return "", qb.Args, nil
	}
	return strings.Join(qb.Conditions, " AND "), qb.Args, nil
}

// Build returns the complete SELECT statement with named parameters, and Args
func (qb *SelectQueryBuilder) Build() (string, utils.JSON, error) {
	if qb.Error != nil {
		return "", nil, qb.Error
	}
	if qb.SourceName == "" {
		return "", nil, errors.New("SELECT_SOURCE_NAME_IS_EMPTY")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if qb.DistinctRows {
		sb.WriteString("DISTINCT ")
	}
	if qb.LimitValue > 0 && qb.DbType == base.DXDatabaseTypeSQLServer {
		sb.WriteString("TOP " + strconv.FormatInt(qb.LimitValue, 10) + " ")
	}
	if len(qb.OutFields) == 0 {
		sb.WriteString("*")
	} else {
		fields := make([]string, 0, len(qb.OutFields))
		for _, f := range qb.OutFields {
			fields = append(fields, qb.outField(f))
		}
		sb.WriteString(strings.Join(fields, ", "))
	}
	sb.WriteString(" FROM " + qb.sourceClause(qb.SourceName, qb.SourceAlias))

	j, err := qb.BuildJoinClause()
	if err != nil {
		return "", nil, err
	}
	if j != "" {
		sb.WriteString(" " + j)
	}

	w, args, err := qb.BuildWhereClause()
	if err != nil {
		return "", nil, err
	}
	if w != "" {
		sb.WriteString(" WHERE " + w)
	}

	o, err := qb.BuildOrderByClause()
	if err != nil {
		return "", nil, err
	}
	if o != "" {
		sb.WriteString(" ORDER BY " + o)
	}

	if qb.LimitValue > 0 {
		switch qb.DbType {
		case base.DXDatabaseTypeSQLServer:
		case base.DXDatabaseTypeOracle:
			sb.WriteString(" FETCH FIRST " + strconv.FormatInt(qb.LimitValue, 10) + " ROWS ONLY")
		default:
			sb.WriteString(" LIMIT " + strconv.FormatInt(qb.LimitValue, 10))
		}
	}
	return sb.String(), args, nil
}
