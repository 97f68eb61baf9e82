package clusto

import (
	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/databases/db/query/builder"
	"github.com/donnyhardyanto/dxclusto/drivers"
	"github.com/donnyhardyanto/dxclusto/schema"
)

// Attr describes an attribute to add, or a predicate over attributes when
// querying or deleting. In a predicate only the set fields are compared:
// a non-empty Key, a non-nil Subkey, Number or Value.
//
// Value may be a string, an integer, a bool, a decimal.Decimal, a float64, a
// time.Time, or an entity (drivers.Driver or *schema.Entity) for a relation.
type Attr struct {
	Key    string
	Subkey *string
	Number *int64
	Value  any
}

func Ptr[T any](v T) *T {
	return &v
}

var ErrRelationTargetNotPersisted = errors.New("RELATION_TARGET_NOT_PERSISTED")

func isEntityValue(v any) bool {
	switch v.(type) {
	case drivers.Driver, *schema.Entity:
		return true
	}
	return false
}

// storedValue encodes v, entities become relations to their id.
func storedValue(v any) (schema.StoredValue, error) {
	switch t := v.(type) {
	case drivers.Driver:
		return storedValue(t.Entity())
	case *schema.Entity:
		if t.EntityId == 0 {
			return schema.StoredValue{}, errors.Wrapf(ErrRelationTargetNotPersisted, "entity=%s", t.Name)
		}
		return schema.EncodeValue(schema.Relation(t.EntityId))
	}
	return schema.EncodeValue(v)
}

// attrConditions adds the predicate a to cg, alias prefixes the entity_attrs columns.
func attrConditions(cg *builder.ConditionGroup, alias string, a Attr) error {
	f := func(column string) string {
		if alias == "" {
			return column
		}
		return alias + "." + column
	}
	if a.Key != "" {
		cg.Eq(f("key"), a.Key)
	}
	if a.Subkey != nil {
		cg.Eq(f("subkey"), *a.Subkey)
	}
	if a.Number != nil {
		cg.Eq(f("number"), *a.Number)
	}
	if a.Value != nil {
		sv, err := storedValue(a.Value)
		if err != nil {
			return err
		}
		cg.Eq(f("datatype"), sv.Datatype)
		cg.Eq(f(sv.Column()), sv.Arg())
	}
	return cg.Error
}
