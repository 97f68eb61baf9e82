package clusto

import (
	"context"
	"database/sql"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/donnyhardyanto/dxclusto/database/dberror"
	"github.com/donnyhardyanto/dxclusto/databases/db"
	"github.com/donnyhardyanto/dxclusto/databases/db/query/builder"
	"github.com/donnyhardyanto/dxclusto/schema"
)

// flushResult is what a successful flushInto changed, applied to the session
// once the statements are known to persist.
type flushResult struct {
	inserted []*schema.Entity
	updated  []*schema.Entity
	deleted  []*schema.Entity
}

// Flush writes pending changes. Outside a transaction it uses a transaction
// of its own, so on failure the database and the pending changes are left untouched.
func (s *Session) Flush(ctx context.Context) (err error) {
	if err = s.checkOpen(); err != nil {
		return err
	}
	if !s.hasPending() {
		return nil
	}
	ctx, span := s.startSpan(ctx, "Flush")
	defer func() {
		endSpan(span, err)
		if err != nil {
			s.clusto.Metrics.FlushFail.Inc(1)
		} else {
			s.clusto.Metrics.Flush.Inc(1)
		}
	}()

	if s.tx != nil {
		res, err := s.flushInTx(ctx)
		if err != nil {
			return err
		}
		s.applyFlush(res)
		return nil
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	res, err := s.flushInto(ctx, s.wrap(tx))
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.Log.Errorf("ROLLBACK_ERROR:%v", rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		res.revert()
		return err
	}
	s.applyFlush(res)
	return nil
}

const flushSavepoint = "clusto_flush"

// flushInTx flushes into the open transaction under a savepoint. A failed
// flush is rolled back to it, so the transaction holds none of its statements.
func (s *Session) flushInTx(ctx context.Context) (*flushResult, error) {
	if !s.hasPending() {
		return &flushResult{}, nil
	}
	e := s.wrap(s.tx)
	if err := db.Savepoint(ctx, e, flushSavepoint); err != nil {
		return nil, err
	}
	res, err := s.flushInto(ctx, e)
	if err != nil {
		if spErr := db.RollbackToSavepoint(ctx, e, flushSavepoint); spErr != nil {
			s.Log.Errorf("SAVEPOINT_ROLLBACK_ERROR:%v", spErr)
		}
		return nil, err
	}
	if err = db.ReleaseSavepoint(ctx, e, flushSavepoint); err != nil {
		res.revert()
		return nil, err
	}
	return res, nil
}

func (r *flushResult) revert() {
	for _, e := range r.inserted {
		e.EntityId = 0
	}
}

// applyFlush records flushed changes as the stored state.
func (s *Session) applyFlush(r *flushResult) {
	for _, e := range r.inserted {
		s.entities[e.EntityId] = e
		s.persisted[e] = *e
	}
	for _, e := range r.updated {
		s.persisted[e] = *e
	}
	for _, e := range r.deleted {
		if s.entities[e.EntityId] == e {
			delete(s.entities, e.EntityId)
		}
		delete(s.persisted, e)
	}
	s.pendingNew = nil
	s.attrOps = nil
	s.pendingDeletes = nil
}

// flushInto runs the pending changes on e: inserts, updates, attribute
// changes in call order, then deletes. On failure ids assigned by the
// inserts are reset and the pending changes are kept.
func (s *Session) flushInto(ctx context.Context, e sqlx.ExtContext) (r *flushResult, err error) {
	r = &flushResult{}
	defer func() {
		if err != nil {
			r.revert()
			r = nil
		}
	}()

	deleting := map[*schema.Entity]bool{}
	for _, d := range s.pendingDeletes {
		deleting[d] = true
	}

	for _, n := range s.pendingNew {
		if err = s.insertEntity(ctx, e, n); err != nil {
			return r, err
		}
		r.inserted = append(r.inserted, n)
	}

	var dirty []*schema.Entity
	for ent, stored := range s.persisted {
		if *ent != stored && !deleting[ent] {
			dirty = append(dirty, ent)
		}
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].EntityId < dirty[j].EntityId })
	for _, d := range dirty {
		if err = s.updateEntity(ctx, e, d, s.persisted[d]); err != nil {
			return r, err
		}
		r.updated = append(r.updated, d)
	}

	for _, op := range s.attrOps {
		if deleting[op.owner] {
			continue
		}
		if op.delete {
			err = s.deleteAttrs(ctx, e, op.owner, op.attr)
		} else {
			err = s.insertAttr(ctx, e, op.owner, op.attr)
		}
		if err != nil {
			return r, err
		}
	}

	for _, d := range s.pendingDeletes {
		if err = s.deleteEntity(ctx, e, d); err != nil {
			return r, err
		}
		r.deleted = append(r.deleted, d)
	}
	return r, nil
}

func duplicateNameError(err error, name string) error {
	if dberror.IsDuplicateKeyError(err) {
		return errors.Wrapf(ErrDuplicateName, "name=%s (%v)", name, err)
	}
	return err
}

func (s *Session) insertEntity(ctx context.Context, e sqlx.ExtContext, n *schema.Entity) error {
	qb := builder.NewInsertQueryBuilderWithSource(db.DatabaseTypeOf(e), schema.TableEntities).
		Set("name", n.Name).
		Set("type", n.Type).
		Set("driver", n.Driver).
		ReturningId("entity_id")
	id, err := db.InsertReturningId(ctx, e, qb)
	if err != nil {
		return duplicateNameError(err, n.Name)
	}
	n.EntityId = id
	return nil
}

func (s *Session) updateEntity(ctx context.Context, e sqlx.ExtContext, d *schema.Entity, stored schema.Entity) error {
	if d.EntityId != stored.EntityId {
		return s.Log.ErrorAndCreateErrorf("ENTITY_ID_IS_IMMUTABLE:%d!=%d", d.EntityId, stored.EntityId)
	}
	qb := builder.NewUpdateQueryBuilderWithSource(db.DatabaseTypeOf(e), schema.TableEntities)
	if d.Name != stored.Name {
		qb.Set("name", d.Name)
	}
	if d.Type != stored.Type {
		qb.Set("type", d.Type)
	}
	if d.Driver != stored.Driver {
		qb.Set("driver", d.Driver)
	}
	q, args, err := qb.Where("entity_id", d.EntityId).Build()
	if err != nil {
		return err
	}
	_, err = db.NamedExec(ctx, e, q, args)
	if err != nil {
		return duplicateNameError(err, d.Name)
	}
	return nil
}

func (s *Session) insertAttr(ctx context.Context, e sqlx.ExtContext, owner *schema.Entity, a Attr) error {
	sv, err := storedValue(a.Value)
	if err != nil {
		return err
	}
	row := schema.Attribute{
		EntityId:      owner.EntityId,
		Key:           a.Key,
		Datatype:      sv.Datatype,
		IntValue:      sv.IntValue,
		StringValue:   sv.StringValue,
		DatetimeValue: sv.DatetimeValue,
		RelationId:    sv.RelationId,
	}
	if a.Subkey != nil {
		row.Subkey = sql.NullString{String: *a.Subkey, Valid: true}
	}
	if a.Number != nil {
		row.Number = sql.NullInt64{Int64: *a.Number, Valid: true}
	}
	qb := builder.NewInsertQueryBuilderWithSource(db.DatabaseTypeOf(e), schema.TableEntityAttrs).
		SetAll(row.Fields())
	q, args, err := qb.Build()
	if err != nil {
		return err
	}
	_, err = db.NamedExec(ctx, e, q, args)
	if err != nil && dberror.IsForeignKeyError(err) {
		return errors.Wrapf(err, "attribute %s of %s refers to a missing entity", a.Key, owner.Name)
	}
	return err
}

func (s *Session) deleteAttrs(ctx context.Context, e sqlx.ExtContext, owner *schema.Entity, a Attr) error {
	dbt := db.DatabaseTypeOf(e)
	cg := builder.NewConditionGroup(dbt, "d")
	if err := attrConditions(cg, "", a); err != nil {
		return err
	}
	q, args, err := builder.NewDeleteQueryBuilderWithSource(dbt, schema.TableEntityAttrs).
		Where("entity_id", owner.EntityId).
		Group(cg).
		Build()
	if err != nil {
		return err
	}
	_, err = db.NamedExec(ctx, e, q, args)
	return err
}

// deleteEntity removes the entity row, its attributes and the attributes of other entities referring to it.
func (s *Session) deleteEntity(ctx context.Context, e sqlx.ExtContext, d *schema.Entity) error {
	dbt := db.DatabaseTypeOf(e)
	q, args, err := builder.NewDeleteQueryBuilderWithSource(dbt, schema.TableEntityAttrs).
		WhereAnyEq(d.EntityId, "entity_id", "relation_id").
		Build()
	if err != nil {
		return err
	}
	if _, err = db.NamedExec(ctx, e, q, args); err != nil {
		return err
	}
	q, args, err = builder.NewDeleteQueryBuilderWithSource(dbt, schema.TableEntities).
		Where("entity_id", d.EntityId).
		Build()
	if err != nil {
		return err
	}
	_, err = db.NamedExec(ctx, e, q, args)
	return err
}
