package builder

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/base"
	"github.com/donnyhardyanto/dxclusto/utils"
)

// ConditionGroup builds a set of AND-joined conditions with unique named parameters.
// Multiple ConditionGroups can be OR'd together via SelectQueryBuilder.OrGroups.
type ConditionGroup struct {
	Conditions []string
	Args       utils.JSON
	DbType     base.DXDatabaseType
	Error      error
	prefix     string
	counter    int
}

func NewConditionGroup(dbType base.DXDatabaseType, prefix string) *ConditionGroup {
	return &ConditionGroup{
		Conditions: []string{},
		Args:       utils.JSON{},
		DbType:     dbType,
		prefix:     prefix,
	}
}

func (cg *ConditionGroup) nextParam(hint string) string {
	hint = strings.ReplaceAll(hint, ".", "_")
	name := fmt.Sprintf("%s_%s_%d", cg.prefix, hint, cg.counter)
	cg.counter++
	return name
}

func (cg *ConditionGroup) field(field string) (string, bool) {
	if cg.Error != nil {
		return "", false
	}
	if !base.IsValidIdentifier(field) {
		cg.Error = errors.Errorf("INVALID_CONDITION_FIELD_NAME:%s", field)
		return "", false
	}
	return base.QuoteFieldWithPrefix(cg.DbType, field), true
}

// InInt64 adds field IN (1, 2, 3) with literal integers, no named params needed.
func (cg *ConditionGroup) InInt64(field string, values []int64) *ConditionGroup {
	if len(values) == 0 {
		return cg
	}
	f, ok := cg.field(field)
	if !ok {
		return cg
	}
	var parts []string
	for _, v := range values {
		parts = append(parts, fmt.Sprintf("%d", v))
	}
	cg.Conditions = append(cg.Conditions, fmt.Sprintf("%s IN (%s)", f, strings.Join(parts, ", ")))
	return cg
}

// InStrings adds field IN (:param0, :param1, ...) with named parameters.
func (cg *ConditionGroup) InStrings(field string, values []string) *ConditionGroup {
	if len(values) == 0 {
		return cg
	}
	f, ok := cg.field(field)
	if !ok {
		return cg
	}
	var paramRefs []string
	for _, v := range values {
		param := cg.nextParam(field)
		paramRefs = append(paramRefs, ":"+param)
		cg.Args[param] = v
	}
	cg.Conditions = append(cg.Conditions, fmt.Sprintf("%s IN (%s)", f, strings.Join(paramRefs, ", ")))
	return cg
}

// Eq adds field = :param with a named parameter.
func (cg *ConditionGroup) Eq(field string, value any) *ConditionGroup {
	f, ok := cg.field(field)
	if !ok {
		return cg
	}
	param := cg.nextParam(field)
	cg.Conditions = append(cg.Conditions, fmt.Sprintf("%s = :%s", f, param))
	cg.Args[param] = value
	return cg
}

// IsNull adds field IS NULL.
func (cg *ConditionGroup) IsNull(field string) *ConditionGroup {
	f, ok := cg.field(field)
	if !ok {
		return cg
	}
	cg.Conditions = append(cg.Conditions, f+" IS NULL")
	return cg
}

// Build returns the AND-joined conditions string.
func (cg *ConditionGroup) Build() string {
	if len(cg.Conditions) == 0 {
		return ""
	}
	return strings.Join(cg.Conditions, " AND ")
}
