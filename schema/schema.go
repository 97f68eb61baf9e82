// Package schema holds the row models of the clusto tables, the attribute
// value encoding and the embedded per-dialect migrations that create them.
package schema

import (
	"database/sql"
	"time"
)

// SchemaVersion is the version written to the clustometa entity by InitClusto.
const SchemaVersion = "3"

const (
	TableEntities    = "entities"
	TableEntityAttrs = "entity_attrs"
	TableVersioning  = "clustoversioning"

	// MigrationTableName tracks applied migrations.
	MigrationTableName = "clusto_migrations"
)

// Entity is a row of entities. Name is unique across all entities.
type Entity struct {
	EntityId int64  `db:"entity_id"`
	Name     string `db:"name"`
	Type     string `db:"type"`
	Driver   string `db:"driver"`
}

// EntityColumns in select order.
var EntityColumns = []string{"entity_id", "name", "type", "driver"}

// Attribute is a row of entity_attrs. Exactly one value column is set, selected by Datatype.
type Attribute struct {
	AttrId        int64          `db:"attr_id"`
	EntityId      int64          `db:"entity_id"`
	Key           string         `db:"key"`
	Subkey        sql.NullString `db:"subkey"`
	Number        sql.NullInt64  `db:"number"`
	Datatype      string         `db:"datatype"`
	IntValue      sql.NullInt64  `db:"int_value"`
	StringValue   sql.NullString `db:"string_value"`
	DatetimeValue sql.NullTime   `db:"datetime_value"`
	RelationId    sql.NullInt64  `db:"relation_id"`
}

var AttributeColumns = []string{"attr_id", "entity_id", "key", "subkey", "number", "datatype",
	"int_value", "string_value", "datetime_value", "relation_id"}

// Versioning is a row of clustoversioning.
type Versioning struct {
	Version     int64          `db:"version"`
	Timestamp   time.Time      `db:"timestamp"`
	UserName    sql.NullString `db:"user_name"`
	Description sql.NullString `db:"description"`
}

// SetValue encodes v into the attribute value columns.
func (a *Attribute) SetValue(v any) error {
	sv, err := EncodeValue(v)
	if err != nil {
		return err
	}
	a.Datatype = sv.Datatype
	a.IntValue = sv.IntValue
	a.StringValue = sv.StringValue
	a.DatetimeValue = sv.DatetimeValue
	a.RelationId = sv.RelationId
	return nil
}

// Value decodes the attribute value columns.
func (a *Attribute) Value() (any, error) {
	return StoredValue{
		Datatype:      a.Datatype,
		IntValue:      a.IntValue,
		StringValue:   a.StringValue,
		DatetimeValue: a.DatetimeValue,
		RelationId:    a.RelationId,
	}.Decode()
}

// Fields returns the column values for an insert, attr_id excluded.
func (a *Attribute) Fields() map[string]any {
	return map[string]any{
		"entity_id":      a.EntityId,
		"key":            a.Key,
		"subkey":         a.Subkey,
		"number":         a.Number,
		"datatype":       a.Datatype,
		"int_value":      a.IntValue,
		"string_value":   a.StringValue,
		"datetime_value": a.DatetimeValue,
		"relation_id":    a.RelationId,
	}
}
