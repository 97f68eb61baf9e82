package clusto

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/donnyhardyanto/dxclusto/database"
	"github.com/donnyhardyanto/dxclusto/database/dberror"
	"github.com/donnyhardyanto/dxclusto/drivers"
	"github.com/donnyhardyanto/dxclusto/log"
	"github.com/donnyhardyanto/dxclusto/schema"
	"github.com/donnyhardyanto/dxclusto/utils"
)

// Transaction is an open database transaction as used by a Session.
type Transaction interface {
	sqlx.ExtContext
	Commit() error
	Rollback() error
}

// Session is a unit of work over a DXClusto. It keeps one in-memory object
// per persisted entity, queues changes until the next flush, and nests
// transactions with a depth counter: only the outermost Commit commits.
//
// A Session is not safe for concurrent use.
type Session struct {
	clusto *DXClusto
	Log    log.DXLog

	beginTx  func(ctx context.Context) (Transaction, error)
	execHook func(query string) error

	tx        Transaction
	depth     int
	abandoned int
	closed    bool

	entities map[int64]*schema.Entity
	// persisted holds the stored column values of every tracked entity
	persisted      map[*schema.Entity]schema.Entity
	pendingNew     []*schema.Entity
	attrOps        []attrOp
	pendingDeletes []*schema.Entity
}

type attrOp struct {
	owner  *schema.Entity
	attr   Attr
	delete bool
}

func (c *DXClusto) NewSession() *Session {
	s := &Session{
		clusto:    c,
		Log:       log.NewLog(&c.Log, nil, "session"),
		entities:  map[int64]*schema.Entity{},
		persisted: map[*schema.Entity]schema.Entity{},
	}
	s.beginTx = func(ctx context.Context) (Transaction, error) {
		dtx, err := c.Database.TransactionBegin(ctx, database.LevelDefault)
		if err != nil {
			return nil, err
		}
		return dtx, nil
	}
	return s
}

// Close rolls back an open transaction and forgets every tracked entity.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	var err error
	if s.tx != nil {
		err = s.tx.Rollback()
		s.tx = nil
		s.depth = 0
	}
	s.Clear()
	s.closed = true
	return err
}

// Clear drops the identity map and every unflushed change.
func (s *Session) Clear() {
	s.entities = map[int64]*schema.Entity{}
	s.persisted = map[*schema.Entity]schema.Entity{}
	s.pendingNew = nil
	s.attrOps = nil
	s.pendingDeletes = nil
}

// TransactionDepth is the number of BeginTransaction calls not yet committed or rolled back.
func (s *Session) TransactionDepth() int {
	return s.depth
}

func (s *Session) checkOpen() error {
	if s.closed {
		return errors.WithStack(ErrSessionClosed)
	}
	if !s.clusto.Database.Connected {
		return errors.WithStack(dberror.ErrDBNotConnected)
	}
	return nil
}

func (s *Session) conn() sqlx.ExtContext {
	if s.tx != nil {
		return s.tx
	}
	return s.clusto.Database.Connection
}

func (s *Session) wrap(e sqlx.ExtContext) sqlx.ExtContext {
	if !s.clusto.Database.Echo && s.execHook == nil {
		return e
	}
	return &echoExt{ExtContext: e, log: &s.Log, echo: s.clusto.Database.Echo, hook: s.execHook}
}

// ext is the handle statements of this session run on: the open transaction or the pool.
func (s *Session) ext() sqlx.ExtContext {
	return s.wrap(s.conn())
}

func (s *Session) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.clusto.tracer.Start(ctx, "Session."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func entityOf(v any) (*schema.Entity, error) {
	switch t := v.(type) {
	case drivers.Driver:
		if t.Entity() == nil {
			return nil, errors.New("DRIVER_WITHOUT_ENTITY")
		}
		return t.Entity(), nil
	case *schema.Entity:
		if t == nil {
			return nil, errors.New("ENTITY_IS_NIL")
		}
		return t, nil
	default:
		return nil, errors.Errorf("NOT_AN_ENTITY:%T", v)
	}
}

func (s *Session) isPendingNew(e *schema.Entity) bool {
	for _, p := range s.pendingNew {
		if p == e {
			return true
		}
	}
	return false
}

// owns reports whether e is tracked or queued for insertion by this session.
func (s *Session) owns(e *schema.Entity) bool {
	if _, ok := s.persisted[e]; ok {
		return true
	}
	return s.isPendingNew(e)
}

// track returns the object tracked for row, registering a new one on the first load.
func (s *Session) track(row schema.Entity) *schema.Entity {
	if e, ok := s.entities[row.EntityId]; ok {
		return e
	}
	e := &row
	s.entities[row.EntityId] = e
	s.persisted[e] = row
	return e
}

func (s *Session) hasPending() bool {
	if len(s.pendingNew) > 0 || len(s.attrOps) > 0 || len(s.pendingDeletes) > 0 {
		return true
	}
	for e, stored := range s.persisted {
		if *e != stored {
			return true
		}
	}
	return false
}

// discardPending forgets unflushed changes and restores tracked entities to their stored values.
func (s *Session) discardPending() {
	s.pendingNew = nil
	s.attrOps = nil
	s.pendingDeletes = nil
	for e, stored := range s.persisted {
		*e = stored
	}
}

// BeginTransaction opens a transaction, or only deepens the current one.
// The returned Transaction is nil when one was already open.
func (s *Session) BeginTransaction(ctx context.Context) (tx Transaction, err error) {
	if err = s.checkOpen(); err != nil {
		return nil, err
	}
	if s.tx != nil {
		s.depth++
		return nil, nil
	}
	ctx, span := s.startSpan(ctx, "BeginTransaction")
	defer func() { endSpan(span, err) }()

	tx, err = s.beginTx(ctx)
	if err != nil {
		s.clusto.Metrics.TxBeginFail.Inc(1)
		return nil, err
	}
	s.tx = tx
	s.depth = 1
	s.abandoned = 0
	s.clusto.Metrics.TxBegin.Inc(1)
	return tx, nil
}

// Commit flushes pending changes. In the outermost frame it then commits the
// transaction, in a nested frame it only decrements the depth. Without an open
// transaction it flushes on its own, unless a nested rollback already
// discarded the transaction this frame belonged to.
func (s *Session) Commit(ctx context.Context) (err error) {
	if err = s.checkOpen(); err != nil {
		return err
	}
	if s.tx == nil {
		if s.abandoned > 0 {
			s.abandoned--
			s.discardPending()
			return errors.WithStack(ErrTransactionRolledBack)
		}
		return s.Flush(ctx)
	}

	ctx, span := s.startSpan(ctx, "Commit")
	defer func() { endSpan(span, err) }()

	res, err := s.flushInTx(ctx)
	if err != nil {
		s.clusto.Metrics.TxCommitFail.Inc(1)
		return err
	}
	s.applyFlush(res)
	if s.depth > 1 {
		s.depth--
		return nil
	}

	tx := s.tx
	s.tx = nil
	s.depth = 0
	if err = tx.Commit(); err != nil {
		s.Clear()
		s.clusto.Metrics.TxCommitFail.Inc(1)
		return err
	}
	s.clusto.Metrics.TxCommit.Inc(1)
	return nil
}

// RollbackTransaction rolls back the whole transaction whatever the depth.
// The enclosing frames still open then fail their Commit with ErrTransactionRolledBack.
// Without an open transaction it only discards unflushed changes.
func (s *Session) RollbackTransaction(ctx context.Context) (err error) {
	if s.closed {
		return errors.WithStack(ErrSessionClosed)
	}
	if s.tx == nil {
		if s.abandoned > 0 {
			s.abandoned--
		}
		s.discardPending()
		return nil
	}

	_, span := s.startSpan(ctx, "RollbackTransaction")
	defer func() { endSpan(span, err) }()

	tx := s.tx
	if s.depth > 1 {
		s.abandoned = s.depth - 1
	}
	s.tx = nil
	s.depth = 0
	s.Clear()
	if err = tx.Rollback(); err != nil {
		s.clusto.Metrics.TxRollbackFail.Inc(1)
		return err
	}
	s.clusto.Metrics.TxRollback.Inc(1)
	return nil
}

// Tx runs fn between BeginTransaction and Commit, rolling back when fn or the commit fails.
func (s *Session) Tx(ctx context.Context, fn func(s *Session) error) error {
	if _, err := s.BeginTransaction(ctx); err != nil {
		return err
	}
	if err := fn(s); err != nil {
		if rbErr := s.RollbackTransaction(ctx); rbErr != nil {
			s.Log.Errorf("ROLLBACK_ERROR:%v", rbErr)
		}
		return err
	}
	if err := s.Commit(ctx); err != nil {
		if s.tx != nil {
			if rbErr := s.RollbackTransaction(ctx); rbErr != nil {
				s.Log.Errorf("ROLLBACK_ERROR:%v", rbErr)
			}
		}
		return err
	}
	return nil
}

// Execute runs a raw statement with :name parameters inside the session's transaction, if any.
func (s *Session) Execute(ctx context.Context, statement string, parameters utils.JSON) (r sql.Result, err error) {
	if err = s.checkOpen(); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "Execute")
	defer func() { endSpan(span, err) }()

	if err = s.Flush(ctx); err != nil {
		return nil, err
	}
	// the wrapper already echoes
	return database.ExecuteNamed(ctx, s.ext(), s.Log, false, statement, parameters)
}
