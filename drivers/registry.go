package drivers

import (
	"regexp"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/schema"
)

var (
	ErrUnknownDriver     = errors.New("UNKNOWN_DRIVER_NAME")
	ErrUnknownType       = errors.New("UNKNOWN_TYPE_NAME")
	ErrInvalidName       = errors.New("INVALID_REGISTRY_NAME")
	ErrAlreadyRegistered = errors.New("DRIVER_ALREADY_REGISTERED")
)

var validName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Registry maps driver names to DriverInfo and keeps the known type names.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]DriverInfo
	types   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		drivers: map[string]DriverInfo{},
		types:   map[string]struct{}{},
	}
}

// DefaultRegistry contains the entity and clustometa drivers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, di := range []DriverInfo{EntityDriverInfo, ClustoMetaDriverInfo} {
		if err := r.Register(di); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a driver and its type. Names are validated here so lookups never see a bad name.
func (r *Registry) Register(di DriverInfo) error {
	if !validName.MatchString(di.Name) {
		return errors.Wrapf(ErrInvalidName, "driver=%q", di.Name)
	}
	if !validName.MatchString(di.Type) {
		return errors.Wrapf(ErrInvalidName, "type=%q", di.Type)
	}
	if di.Constructor == nil {
		di.Constructor = NewBaseDriver
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drivers[di.Name]; ok {
		return errors.Wrapf(ErrAlreadyRegistered, "driver=%s", di.Name)
	}
	r.drivers[di.Name] = di
	r.types[di.Type] = struct{}{}
	return nil
}

// RegisterType adds a type name that no registered driver creates.
func (r *Registry) RegisterType(name string) error {
	if !validName.MatchString(name) {
		return errors.Wrapf(ErrInvalidName, "type=%q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = struct{}{}
	return nil
}

func (r *Registry) Lookup(name string) (DriverInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	di, ok := r.drivers[name]
	return di, ok
}

func (r *Registry) HasType(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}

func (r *Registry) DriverNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for k := range r.drivers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for k := range r.types {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// GetDriverName accepts a driver name, a DriverInfo, a Driver or an entity row.
// Only strings are checked against the registry.
func (r *Registry) GetDriverName(v any) (string, error) {
	switch t := v.(type) {
	case string:
		if _, ok := r.Lookup(t); !ok {
			return "", errors.Wrapf(ErrUnknownDriver, "driver name %s doesn't exist", t)
		}
		return t, nil
	case DriverInfo:
		return t.Name, nil
	case *DriverInfo:
		return t.Name, nil
	case Driver:
		return t.DriverName(), nil
	case *schema.Entity:
		return t.Driver, nil
	default:
		return "", errors.Wrapf(ErrUnknownDriver, "unsupported driver reference %T", v)
	}
}

// GetTypeName accepts a type name, a DriverInfo, a Driver or an entity row.
func (r *Registry) GetTypeName(v any) (string, error) {
	switch t := v.(type) {
	case string:
		if !r.HasType(t) {
			return "", errors.Wrapf(ErrUnknownType, "type name %s doesn't exist", t)
		}
		return t, nil
	case DriverInfo:
		return t.Type, nil
	case *DriverInfo:
		return t.Type, nil
	case Driver:
		return t.TypeName(), nil
	case *schema.Entity:
		return t.Type, nil
	default:
		return "", errors.Wrapf(ErrUnknownType, "unsupported type reference %T", v)
	}
}

// GetDriver returns the constructor registered for the entity's driver column,
// BaseDriver when the column is unknown or ignored.
func (r *Registry) GetDriver(e *schema.Entity, ignoreDriverColumn bool) Constructor {
	if !ignoreDriverColumn {
		if di, ok := r.Lookup(e.Driver); ok {
			return di.Constructor
		}
	}
	return NewBaseDriver
}

// Wrap wraps e in its registered driver.
func (r *Registry) Wrap(e *schema.Entity) Driver {
	return r.GetDriver(e, false)(e)
}
