// Package drivers wraps entities in behavior classes selected by the entity's
// driver column, and keeps the registry of known driver and type names.
package drivers

import (
	"fmt"

	"github.com/donnyhardyanto/dxclusto/schema"
)

const (
	DriverEntity = "entity"
	TypeGeneric  = "generic"

	DriverClustoMeta = "clustometa"
	TypeClustoMeta   = "clustometa"
	// ClustoMetaName is the entity carrying the schema version attribute.
	ClustoMetaName = "clustometa"

	AttrSchemaVersion = "schemaversion"
)

// Driver attaches behavior to an entity.
type Driver interface {
	Entity() *schema.Entity
	Name() string
	DriverName() string
	TypeName() string
}

// Constructor wraps an entity row in its driver.
type Constructor func(e *schema.Entity) Driver

// DriverInfo describes a registered driver: its name, the type of the entities
// it creates, and how to wrap an entity.
type DriverInfo struct {
	Name        string
	Type        string
	Constructor Constructor
}

// New returns a driver around a not yet persisted entity named name.
func (di DriverInfo) New(name string) Driver {
	c := di.Constructor
	if c == nil {
		c = NewBaseDriver
	}
	return c(&schema.Entity{Name: name, Type: di.Type, Driver: di.Name})
}

type BaseDriver struct {
	entity *schema.Entity
}

func NewBaseDriver(e *schema.Entity) Driver {
	return &BaseDriver{entity: e}
}

func (d *BaseDriver) Entity() *schema.Entity {
	return d.entity
}

func (d *BaseDriver) Name() string {
	return d.entity.Name
}

func (d *BaseDriver) DriverName() string {
	return d.entity.Driver
}

func (d *BaseDriver) TypeName() string {
	return d.entity.Type
}

func (d *BaseDriver) String() string {
	return fmt.Sprintf("%s(%s)", d.entity.Driver, d.entity.Name)
}

// ClustoMeta is the driver of the metadata entity written by InitClusto.
type ClustoMeta struct {
	BaseDriver
}

func NewClustoMeta(e *schema.Entity) Driver {
	return &ClustoMeta{BaseDriver{entity: e}}
}

var (
	EntityDriverInfo = DriverInfo{
		Name:        DriverEntity,
		Type:        TypeGeneric,
		Constructor: NewBaseDriver,
	}
	ClustoMetaDriverInfo = DriverInfo{
		Name:        DriverClustoMeta,
		Type:        TypeClustoMeta,
		Constructor: NewClustoMeta,
	}
)
