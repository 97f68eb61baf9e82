package schema

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	DatatypeString   = "string"
	DatatypeInt      = "int"
	DatatypeBool     = "bool"
	DatatypeDecimal  = "decimal"
	DatatypeDatetime = "datetime"
	DatatypeRelation = "relation"
)

// Relation is an attribute value pointing at another entity by id.
type Relation int64

var ErrUnsupportedValue = errors.New("UNSUPPORTED_ATTRIBUTE_VALUE_TYPE")

// StoredValue is an attribute value split into its database columns.
type StoredValue struct {
	Datatype      string
	IntValue      sql.NullInt64
	StringValue   sql.NullString
	DatetimeValue sql.NullTime
	RelationId    sql.NullInt64
}

// EncodeValue maps a Go value to its datatype and column.
func EncodeValue(v any) (sv StoredValue, err error) {
	switch t := v.(type) {
	case string:
		sv.Datatype = DatatypeString
		sv.StringValue = sql.NullString{String: t, Valid: true}
	case int:
		sv.Datatype = DatatypeInt
		sv.IntValue = sql.NullInt64{Int64: int64(t), Valid: true}
	case int32:
		sv.Datatype = DatatypeInt
		sv.IntValue = sql.NullInt64{Int64: int64(t), Valid: true}
	case int64:
		sv.Datatype = DatatypeInt
		sv.IntValue = sql.NullInt64{Int64: t, Valid: true}
	case bool:
		sv.Datatype = DatatypeBool
		var i int64
		if t {
			i = 1
		}
		sv.IntValue = sql.NullInt64{Int64: i, Valid: true}
	case decimal.Decimal:
		sv.Datatype = DatatypeDecimal
		sv.StringValue = sql.NullString{String: t.String(), Valid: true}
	case float64:
		sv.Datatype = DatatypeDecimal
		sv.StringValue = sql.NullString{String: decimal.NewFromFloat(t).String(), Valid: true}
	case time.Time:
		sv.Datatype = DatatypeDatetime
		sv.DatetimeValue = sql.NullTime{Time: t.UTC(), Valid: true}
	case Relation:
		sv.Datatype = DatatypeRelation
		sv.RelationId = sql.NullInt64{Int64: int64(t), Valid: true}
	default:
		return sv, errors.Wrapf(ErrUnsupportedValue, "%T", v)
	}
	return sv, nil
}

// Column is the entity_attrs column holding the value.
func (sv StoredValue) Column() string {
	switch sv.Datatype {
	case DatatypeInt, DatatypeBool:
		return "int_value"
	case DatatypeDatetime:
		return "datetime_value"
	case DatatypeRelation:
		return "relation_id"
	default:
		return "string_value"
	}
}

// Arg is the value bound for Column.
func (sv StoredValue) Arg() any {
	switch sv.Datatype {
	case DatatypeInt, DatatypeBool:
		return sv.IntValue.Int64
	case DatatypeDatetime:
		return sv.DatetimeValue.Time
	case DatatypeRelation:
		return sv.RelationId.Int64
	default:
		return sv.StringValue.String
	}
}

// Decode returns the Go value, nil when the value column is NULL.
func (sv StoredValue) Decode() (any, error) {
	switch sv.Datatype {
	case DatatypeString:
		if !sv.StringValue.Valid {
			return nil, nil
		}
		return sv.StringValue.String, nil
	case DatatypeInt:
		if !sv.IntValue.Valid {
			return nil, nil
		}
		return sv.IntValue.Int64, nil
	case DatatypeBool:
		if !sv.IntValue.Valid {
			return nil, nil
		}
		return sv.IntValue.Int64 != 0, nil
	case DatatypeDecimal:
		if !sv.StringValue.Valid {
			return nil, nil
		}
		d, err := decimal.NewFromString(sv.StringValue.String)
		if err != nil {
			return nil, errors.Wrapf(err, "INVALID_DECIMAL_ATTRIBUTE_VALUE:%s", sv.StringValue.String)
		}
		return d, nil
	case DatatypeDatetime:
		if !sv.DatetimeValue.Valid {
			return nil, nil
		}
		return sv.DatetimeValue.Time, nil
	case DatatypeRelation:
		if !sv.RelationId.Valid {
			return nil, nil
		}
		return Relation(sv.RelationId.Int64), nil
	default:
		return nil, errors.Errorf("UNKNOWN_ATTRIBUTE_DATATYPE:%s", sv.Datatype)
	}
}
