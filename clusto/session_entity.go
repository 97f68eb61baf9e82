package clusto

import (
	"context"

	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/databases/db"
	"github.com/donnyhardyanto/dxclusto/databases/db/query/builder"
	"github.com/donnyhardyanto/dxclusto/drivers"
	"github.com/donnyhardyanto/dxclusto/schema"
	"github.com/donnyhardyanto/dxclusto/utils"
)

// EntityFilter selects entities for GetEntities. Every non-empty field
// restricts the result, Attrs match when any of the predicates matches.
// Types and Drivers accept names, DriverInfo values or drivers.
type EntityFilter struct {
	Names   []string
	Types   []any
	Drivers []any
	Attrs   []Attr
}

// NewEntity queues a new entity named name, created by the registered driver di.Name.
func (s *Session) NewEntity(name string, di drivers.DriverInfo) (d drivers.Driver, err error) {
	if err = s.checkOpen(); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			s.clusto.Metrics.EntityCreateFail.Inc(1)
		} else {
			s.clusto.Metrics.EntityCreate.Inc(1)
		}
	}()
	if name == "" {
		return nil, errors.New("ENTITY_NAME_IS_EMPTY")
	}
	registered, ok := s.clusto.Registry.Lookup(di.Name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDriver, "driver name %s doesn't exist", di.Name)
	}
	if !s.clusto.Registry.HasType(registered.Type) {
		return nil, errors.Wrapf(ErrUnknownType, "type name %s doesn't exist", registered.Type)
	}
	d = registered.New(name)
	s.pendingNew = append(s.pendingNew, d.Entity())
	return d, nil
}

// AddAttr queues an attribute for v, a driver or an entity of this session.
func (s *Session) AddAttr(v any, a Attr) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	e, err := entityOf(v)
	if err != nil {
		return err
	}
	if !s.owns(e) {
		return errors.Wrapf(ErrDetachedEntity, "entity=%s", e.Name)
	}
	if a.Key == "" {
		return errors.New("ATTRIBUTE_KEY_IS_EMPTY")
	}
	if a.Value == nil {
		return errors.Wrapf(schema.ErrUnsupportedValue, "attribute %s has no value", a.Key)
	}
	// entity values are resolved to their id at flush
	if !isEntityValue(a.Value) {
		if _, err := schema.EncodeValue(a.Value); err != nil {
			return err
		}
	}
	s.attrOps = append(s.attrOps, attrOp{owner: e, attr: a})
	return nil
}

// DelAttrs queues the deletion of the attributes of v matching q. An empty q matches all of them.
func (s *Session) DelAttrs(v any, q Attr) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	e, err := entityOf(v)
	if err != nil {
		return err
	}
	if !s.owns(e) {
		return errors.Wrapf(ErrDetachedEntity, "entity=%s", e.Name)
	}
	if q.Value != nil && !isEntityValue(q.Value) {
		if _, err := schema.EncodeValue(q.Value); err != nil {
			return err
		}
	}
	s.attrOps = append(s.attrOps, attrOp{owner: e, attr: q, delete: true})
	return nil
}

func (s *Session) entitySelect() *builder.SelectQueryBuilder {
	return builder.NewSelectQueryBuilderWithSource(s.clusto.Database.DatabaseType, schema.TableEntities, "e").
		Select("e.entity_id", "e.name", "e.type", "e.driver")
}

func (s *Session) queryEntities(ctx context.Context, qb *builder.SelectQueryBuilder) ([]drivers.Driver, error) {
	q, args, err := qb.Build()
	if err != nil {
		return nil, err
	}
	var rows []schema.Entity
	if err = db.NamedSelect(ctx, s.ext(), &rows, q, args); err != nil {
		return nil, err
	}
	result := make([]drivers.Driver, 0, len(rows))
	for _, row := range rows {
		result = append(result, s.clusto.Registry.Wrap(s.track(row)))
	}
	return result, nil
}

// GetEntities returns the entities matching f ordered by name, wrapped in their registered drivers.
// Unknown type or driver names fail before any statement runs.
func (s *Session) GetEntities(ctx context.Context, f EntityFilter) (result []drivers.Driver, err error) {
	if err = s.checkOpen(); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "GetEntities")
	defer func() {
		endSpan(span, err)
		if err != nil {
			s.clusto.Metrics.EntityQueryFail.Inc(1)
		} else {
			s.clusto.Metrics.EntityQuery.Inc(1)
		}
	}()

	var typeNames, driverNames []string
	for _, t := range f.Types {
		n, err := s.clusto.Registry.GetTypeName(t)
		if err != nil {
			return nil, err
		}
		typeNames = append(typeNames, n)
	}
	for _, d := range f.Drivers {
		n, err := s.clusto.Registry.GetDriverName(d)
		if err != nil {
			return nil, err
		}
		driverNames = append(driverNames, n)
	}

	if err = s.Flush(ctx); err != nil {
		return nil, err
	}

	qb := s.entitySelect().Distinct()
	var attrGroups []*builder.ConditionGroup
	if len(f.Attrs) > 0 {
		qb.Join(schema.TableEntityAttrs, "a", "a.entity_id", "e.entity_id")
		for _, a := range f.Attrs {
			cg := qb.NewGroup()
			if err = attrConditions(cg, "a", a); err != nil {
				return nil, err
			}
			attrGroups = append(attrGroups, cg)
		}
	}
	qb.Where(qb.NewGroup().
		InStrings("e.name", utils.UniqueStrings(f.Names)).
		InStrings("e.type", utils.UniqueStrings(typeNames)).
		InStrings("e.driver", utils.UniqueStrings(driverNames)))
	qb.OrGroups(attrGroups...)
	qb.AddOrderBy("e.name", "asc")
	return s.queryEntities(ctx, qb)
}

// GetByAttr returns the entities having an attribute matching a.
func (s *Session) GetByAttr(ctx context.Context, a Attr) ([]drivers.Driver, error) {
	return s.GetEntities(ctx, EntityFilter{Attrs: []Attr{a}})
}

// GetByName returns the entity named name, ErrNotFound unless exactly one exists.
func (s *Session) GetByName(ctx context.Context, name string) (d drivers.Driver, err error) {
	if err = s.checkOpen(); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "GetByName")
	defer func() {
		endSpan(span, err)
		switch {
		case errors.Is(err, ErrNotFound):
			s.clusto.Metrics.EntityNotFound.Inc(1)
		case err != nil:
			s.clusto.Metrics.EntityGetFail.Inc(1)
		default:
			s.clusto.Metrics.EntityGet.Inc(1)
		}
	}()

	if err = s.Flush(ctx); err != nil {
		return nil, err
	}
	qb := s.entitySelect()
	qb.Where(qb.NewGroup().Eq("e.name", name))
	result, err := s.queryEntities(ctx, qb)
	if err != nil {
		return nil, err
	}
	if len(result) != 1 {
		return nil, errors.Wrapf(ErrNotFound, "%s does not exist", name)
	}
	return result[0], nil
}

// GetOrCreate returns the entity named name, queueing a new one created by di when there is none.
func (s *Session) GetOrCreate(ctx context.Context, name string, di drivers.DriverInfo) (drivers.Driver, error) {
	d, err := s.GetByName(ctx, name)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	d, err = s.NewEntity(name, di)
	if err != nil {
		return nil, err
	}
	s.Log.Infof("Created %s", name)
	return d, nil
}

// Rename changes the name of the entity named oldName. The change is written at the next flush.
func (s *Session) Rename(ctx context.Context, oldName string, newName string) (err error) {
	defer func() {
		if err != nil {
			s.clusto.Metrics.EntityRenameFail.Inc(1)
		} else {
			s.clusto.Metrics.EntityRename.Inc(1)
		}
	}()
	if newName == "" {
		return errors.New("ENTITY_NAME_IS_EMPTY")
	}
	d, err := s.GetByName(ctx, oldName)
	if err != nil {
		return err
	}
	d.Entity().Name = newName
	return nil
}

// DeleteEntity removes an entity with its attributes and every attribute
// referring to it, atomically. When the removal fails nothing is left deleted.
func (s *Session) DeleteEntity(ctx context.Context, v any) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteEntity")
	defer func() {
		endSpan(span, err)
		if err != nil {
			s.clusto.Metrics.EntityDeleteFail.Inc(1)
		} else {
			s.clusto.Metrics.EntityDelete.Inc(1)
		}
	}()
	e, err := entityOf(v)
	if err != nil {
		return err
	}
	return s.Tx(ctx, func(s *Session) error {
		return s.markDeleted(e)
	})
}

func (s *Session) markDeleted(e *schema.Entity) error {
	for i, p := range s.pendingNew {
		if p != e {
			continue
		}
		s.pendingNew = append(s.pendingNew[:i], s.pendingNew[i+1:]...)
		ops := s.attrOps[:0]
		for _, op := range s.attrOps {
			if op.owner != e {
				ops = append(ops, op)
			}
		}
		s.attrOps = ops
		return nil
	}
	if e.EntityId == 0 {
		return errors.Wrapf(ErrDetachedEntity, "entity=%s", e.Name)
	}
	for _, p := range s.pendingDeletes {
		if p == e || p.EntityId == e.EntityId {
			return nil
		}
	}
	s.pendingDeletes = append(s.pendingDeletes, e)
	return nil
}

// Attrs returns the attributes of v matching q ordered by attr_id.
func (s *Session) Attrs(ctx context.Context, v any, q Attr) (result []schema.Attribute, err error) {
	if err = s.checkOpen(); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "Attrs")
	defer func() { endSpan(span, err) }()

	e, err := entityOf(v)
	if err != nil {
		return nil, err
	}
	if err = s.Flush(ctx); err != nil {
		return nil, err
	}
	if e.EntityId == 0 {
		return nil, errors.Wrapf(ErrDetachedEntity, "entity=%s", e.Name)
	}

	qb := builder.NewSelectQueryBuilderWithSource(s.clusto.Database.DatabaseType, schema.TableEntityAttrs, "")
	qb.Select(schema.AttributeColumns...)
	cg := qb.NewGroup().Eq("entity_id", e.EntityId)
	if err = attrConditions(cg, "", q); err != nil {
		return nil, err
	}
	qb.Where(cg).AddOrderBy("attr_id", "asc")
	sqlStatement, args, err := qb.Build()
	if err != nil {
		return nil, err
	}
	result = []schema.Attribute{}
	if err = db.NamedSelect(ctx, s.ext(), &result, sqlStatement, args); err != nil {
		return nil, err
	}
	return result, nil
}
