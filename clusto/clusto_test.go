package clusto

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally/v4"

	"github.com/donnyhardyanto/dxclusto/databases/db"
	"github.com/donnyhardyanto/dxclusto/drivers"
	"github.com/donnyhardyanto/dxclusto/schema"
	"github.com/donnyhardyanto/dxclusto/utils"
)

var serverDriverInfo = drivers.DriverInfo{Name: "basicserver", Type: "server"}

func newTestClusto(t *testing.T, opts ...Option) *DXClusto {
	t.Helper()
	r := drivers.DefaultRegistry()
	require.NoError(t, r.Register(serverDriverInfo))
	opts = append([]Option{WithRegistry(r)}, opts...)

	c, err := Connect(context.Background(), "sqlite:///"+filepath.Join(t.TempDir(), "clusto.db"), false, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Disconnect() })
	require.NoError(t, c.InitClusto(context.Background()))
	return c
}

type commitSpy struct {
	Transaction
	commits *int
}

func (t *commitSpy) Commit() error {
	*t.commits++
	return t.Transaction.Commit()
}

type SessionTestSuite struct {
	suite.Suite
	ctx    context.Context
	clusto *DXClusto
	s      *Session
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func (ts *SessionTestSuite) SetupTest() {
	ts.ctx = context.Background()
	ts.clusto = newTestClusto(ts.T())
	ts.s = ts.clusto.NewSession()
}

func (ts *SessionTestSuite) TearDownTest() {
	ts.NoError(ts.s.Close())
}

func (ts *SessionTestSuite) newServers(names ...string) []drivers.Driver {
	var result []drivers.Driver
	for _, name := range names {
		d, err := ts.s.NewEntity(name, serverDriverInfo)
		ts.Require().NoError(err)
		result = append(result, d)
	}
	ts.Require().NoError(ts.s.Commit(ts.ctx))
	return result
}

func (ts *SessionTestSuite) count(table string) int64 {
	n, err := db.NamedCount(ts.ctx, ts.clusto.Database.Connection, `FROM "`+table+`"`, nil)
	ts.Require().NoError(err)
	return n
}

func names(ds []drivers.Driver) []string {
	var result []string
	for _, d := range ds {
		result = append(result, d.Name())
	}
	return result
}

func (ts *SessionTestSuite) TestGetByName_NotFound() {
	ts.newServers("s1")
	for _, name := range []string{"s2", "", "S1", "s1 "} {
		_, err := ts.s.GetByName(ts.ctx, name)
		ts.True(errors.Is(err, ErrNotFound), "name %q", name)
	}
}

func (ts *SessionTestSuite) TestGetByName_Idempotent() {
	ts.newServers("s1")
	d1, err := ts.s.GetByName(ts.ctx, "s1")
	ts.Require().NoError(err)
	d2, err := ts.s.GetByName(ts.ctx, "s1")
	ts.Require().NoError(err)
	ts.Same(d1.Entity(), d2.Entity())
	ts.Equal(*d1.Entity(), *d2.Entity())
	ts.Equal("basicserver", d1.DriverName())
	ts.Equal("server", d1.TypeName())

	other := ts.clusto.NewSession()
	defer other.Close()
	d3, err := other.GetByName(ts.ctx, "s1")
	ts.Require().NoError(err)
	ts.Equal(*d1.Entity(), *d3.Entity())
}

func (ts *SessionTestSuite) TestGetByName_WrapsInRegisteredDriver() {
	meta, err := ts.s.GetByName(ts.ctx, drivers.ClustoMetaName)
	ts.Require().NoError(err)
	_, ok := meta.(*drivers.ClustoMeta)
	ts.True(ok)
}

func (ts *SessionTestSuite) TestGetEntities() {
	ts.newServers("s3", "s1", "s2")

	all, err := ts.s.GetEntities(ts.ctx, EntityFilter{})
	ts.Require().NoError(err)
	ts.Equal([]string{drivers.ClustoMetaName, "s1", "s2", "s3"}, names(all))

	byName, err := ts.s.GetEntities(ts.ctx, EntityFilter{Names: []string{"s3", "s1", "missing"}})
	ts.Require().NoError(err)
	ts.Equal([]string{"s1", "s3"}, names(byName))

	byType, err := ts.s.GetEntities(ts.ctx, EntityFilter{Types: []any{"server"}})
	ts.Require().NoError(err)
	ts.Equal([]string{"s1", "s2", "s3"}, names(byType))

	byDriver, err := ts.s.GetEntities(ts.ctx, EntityFilter{Drivers: []any{drivers.ClustoMetaDriverInfo}})
	ts.Require().NoError(err)
	ts.Equal([]string{drivers.ClustoMetaName}, names(byDriver))

	none, err := ts.s.GetEntities(ts.ctx, EntityFilter{Names: []string{"s1"}, Types: []any{drivers.TypeClustoMeta}})
	ts.Require().NoError(err)
	ts.Empty(none)
}

func (ts *SessionTestSuite) TestGetEntities_UnknownNamesFailBeforeFlush() {
	_, err := ts.s.NewEntity("pending", serverDriverInfo)
	ts.Require().NoError(err)

	_, err = ts.s.GetEntities(ts.ctx, EntityFilter{Types: []any{"nosuchtype"}})
	ts.True(errors.Is(err, ErrUnknownType))
	_, err = ts.s.GetEntities(ts.ctx, EntityFilter{Drivers: []any{"nosuchdriver"}})
	ts.True(errors.Is(err, ErrUnknownDriver))

	ts.Equal(int64(1), ts.count(schema.TableEntities))
}

func (ts *SessionTestSuite) TestGetEntities_ByAttrs() {
	servers := ts.newServers("s1", "s2", "s3")
	ts.Require().NoError(ts.s.AddAttr(servers[0], Attr{Key: "rack", Value: "r1"}))
	ts.Require().NoError(ts.s.AddAttr(servers[1], Attr{Key: "rack", Value: "r2"}))
	ts.Require().NoError(ts.s.AddAttr(servers[1], Attr{Key: "port", Number: Ptr[int64](1), Value: 8080}))
	ts.Require().NoError(ts.s.AddAttr(servers[2], Attr{Key: "uplink", Value: servers[0]}))

	r1, err := ts.s.GetByAttr(ts.ctx, Attr{Key: "rack", Value: "r1"})
	ts.Require().NoError(err)
	ts.Equal([]string{"s1"}, names(r1))

	anyRack, err := ts.s.GetEntities(ts.ctx, EntityFilter{Attrs: []Attr{{Key: "rack"}}})
	ts.Require().NoError(err)
	ts.Equal([]string{"s1", "s2"}, names(anyRack))

	either, err := ts.s.GetEntities(ts.ctx, EntityFilter{
		Names: []string{"s1", "s3"},
		Attrs: []Attr{{Key: "rack", Value: "r2"}, {Key: "uplink", Value: servers[0]}},
	})
	ts.Require().NoError(err)
	ts.Equal([]string{"s3"}, names(either))

	byNumber, err := ts.s.GetByAttr(ts.ctx, Attr{Key: "port", Number: Ptr[int64](1)})
	ts.Require().NoError(err)
	ts.Equal([]string{"s2"}, names(byNumber))
}

func (ts *SessionTestSuite) TestAttrs_Values() {
	servers := ts.newServers("s1", "s2")
	when := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	add := []Attr{
		{Key: "name", Value: "first"},
		{Key: "count", Value: 42},
		{Key: "up", Value: true},
		{Key: "price", Value: decimal.RequireFromString("12.50")},
		{Key: "installed", Value: when},
		{Key: "peer", Subkey: Ptr("left"), Value: servers[1]},
	}
	for _, a := range add {
		ts.Require().NoError(ts.s.AddAttr(servers[0], a))
	}

	attrs, err := ts.s.Attrs(ts.ctx, servers[0], Attr{})
	ts.Require().NoError(err)
	ts.Require().Len(attrs, len(add))

	values := map[string]any{}
	for _, a := range attrs {
		v, err := a.Value()
		ts.Require().NoError(err)
		values[a.Key] = v
	}
	ts.Equal("first", values["name"])
	ts.Equal(int64(42), values["count"])
	ts.Equal(true, values["up"])
	ts.True(decimal.RequireFromString("12.5").Equal(values["price"].(decimal.Decimal)))
	ts.True(when.Equal(values["installed"].(time.Time)))
	ts.Equal(schema.Relation(servers[1].Entity().EntityId), values["peer"])
	ts.Equal("left", attrs[5].Subkey.String)

	peers, err := ts.s.Attrs(ts.ctx, servers[0], Attr{Key: "peer", Subkey: Ptr("left")})
	ts.Require().NoError(err)
	ts.Len(peers, 1)
}

func (ts *SessionTestSuite) TestAddAttr_Validation() {
	servers := ts.newServers("s1")
	ts.Error(ts.s.AddAttr(servers[0], Attr{Value: "x"}))
	ts.Error(ts.s.AddAttr(servers[0], Attr{Key: "k"}))
	ts.True(errors.Is(ts.s.AddAttr(servers[0], Attr{Key: "k", Value: []int{1}}), schema.ErrUnsupportedValue))

	stranger := &schema.Entity{EntityId: 999, Name: "stranger"}
	ts.True(errors.Is(ts.s.AddAttr(stranger, Attr{Key: "k", Value: "v"}), ErrDetachedEntity))
}

func (ts *SessionTestSuite) TestDelAttrs() {
	servers := ts.newServers("s1")
	ts.Require().NoError(ts.s.AddAttr(servers[0], Attr{Key: "rack", Value: "r1"}))
	ts.Require().NoError(ts.s.AddAttr(servers[0], Attr{Key: "rack", Value: "r2"}))
	ts.Require().NoError(ts.s.AddAttr(servers[0], Attr{Key: "owner", Value: "ops"}))
	ts.Require().NoError(ts.s.Commit(ts.ctx))

	ts.Require().NoError(ts.s.DelAttrs(servers[0], Attr{Key: "rack", Value: "r1"}))
	attrs, err := ts.s.Attrs(ts.ctx, servers[0], Attr{Key: "rack"})
	ts.Require().NoError(err)
	ts.Require().Len(attrs, 1)
	ts.Equal("r2", attrs[0].StringValue.String)

	ts.Require().NoError(ts.s.DelAttrs(servers[0], Attr{}))
	attrs, err = ts.s.Attrs(ts.ctx, servers[0], Attr{})
	ts.Require().NoError(err)
	ts.Empty(attrs)
}

func (ts *SessionTestSuite) TestNewEntity_UnknownDriver() {
	_, err := ts.s.NewEntity("x", drivers.DriverInfo{Name: "nosuchdriver", Type: "server"})
	ts.True(errors.Is(err, ErrUnknownDriver))
	_, err = ts.s.NewEntity("", serverDriverInfo)
	ts.Error(err)
}

func (ts *SessionTestSuite) TestGetOrCreate() {
	d1, err := ts.s.GetOrCreate(ts.ctx, "s1", serverDriverInfo)
	ts.Require().NoError(err)
	ts.Zero(d1.Entity().EntityId)

	d2, err := ts.s.GetOrCreate(ts.ctx, "s1", serverDriverInfo)
	ts.Require().NoError(err)
	ts.Same(d1.Entity(), d2.Entity())
	ts.NotZero(d2.Entity().EntityId)
	ts.Equal(int64(2), ts.count(schema.TableEntities))
}

func (ts *SessionTestSuite) TestRename() {
	ts.newServers("old")
	ts.Require().NoError(ts.s.Rename(ts.ctx, "old", "new"))

	d, err := ts.s.GetByName(ts.ctx, "new")
	ts.Require().NoError(err)
	ts.Equal("new", d.Name())
	_, err = ts.s.GetByName(ts.ctx, "old")
	ts.True(errors.Is(err, ErrNotFound))

	ts.True(errors.Is(ts.s.Rename(ts.ctx, "old", "newer"), ErrNotFound))
}

func (ts *SessionTestSuite) TestRename_DuplicateName() {
	ts.newServers("s1", "s2")
	ts.Require().NoError(ts.s.Rename(ts.ctx, "s1", "s2"))
	err := ts.s.Flush(ts.ctx)
	ts.True(errors.Is(err, ErrDuplicateName), "%v", err)

	ts.Require().NoError(ts.s.RollbackTransaction(ts.ctx))
	d, err := ts.s.GetByName(ts.ctx, "s1")
	ts.Require().NoError(err)
	ts.Equal("s1", d.Name())
}

func (ts *SessionTestSuite) TestFlushFailureKeepsPendingInsert() {
	ts.newServers("s1")
	d, err := ts.s.NewEntity("s1", serverDriverInfo)
	ts.Require().NoError(err)
	ts.True(errors.Is(ts.s.Flush(ts.ctx), ErrDuplicateName))
	ts.Zero(d.Entity().EntityId)

	d.Entity().Name = "s2"
	ts.Require().NoError(ts.s.Flush(ts.ctx))
	ts.NotZero(d.Entity().EntityId)
	ts.Equal(int64(3), ts.count(schema.TableEntities))
}

func (ts *SessionTestSuite) TestFlushFailureInTransactionLeavesNoRows() {
	ts.newServers("taken")
	_, err := ts.s.BeginTransaction(ts.ctx)
	ts.Require().NoError(err)
	_, err = ts.s.NewEntity("a", serverDriverInfo)
	ts.Require().NoError(err)
	dup, err := ts.s.NewEntity("taken", serverDriverInfo)
	ts.Require().NoError(err)

	err = ts.s.Flush(ts.ctx)
	ts.True(errors.Is(err, ErrDuplicateName), "%v", err)
	ts.Equal(1, ts.s.TransactionDepth())

	dup.Entity().Name = "b"
	ts.Require().NoError(ts.s.Commit(ts.ctx))
	ts.Equal(0, ts.s.TransactionDepth())

	// clustometa, taken, a, b
	ts.Equal(int64(4), ts.count(schema.TableEntities))
	for _, name := range []string{"a", "b"} {
		_, err = ts.s.GetByName(ts.ctx, name)
		ts.NoError(err, name)
	}
}

func (ts *SessionTestSuite) TestCommitFailureInTransactionCanBeRetried() {
	ts.newServers("taken")
	_, err := ts.s.BeginTransaction(ts.ctx)
	ts.Require().NoError(err)
	_, err = ts.s.NewEntity("a", serverDriverInfo)
	ts.Require().NoError(err)
	dup, err := ts.s.NewEntity("taken", serverDriverInfo)
	ts.Require().NoError(err)

	err = ts.s.Commit(ts.ctx)
	ts.True(errors.Is(err, ErrDuplicateName), "%v", err)
	ts.Equal(1, ts.s.TransactionDepth())

	dup.Entity().Name = "b"
	ts.Require().NoError(ts.s.Commit(ts.ctx))
	ts.Equal(int64(4), ts.count(schema.TableEntities))
}

func (ts *SessionTestSuite) TestNestedCommitOnlyCommitsOutermost() {
	commits := 0
	begin := ts.s.beginTx
	ts.s.beginTx = func(ctx context.Context) (Transaction, error) {
		tx, err := begin(ctx)
		if err != nil {
			return nil, err
		}
		return &commitSpy{Transaction: tx, commits: &commits}, nil
	}

	tx, err := ts.s.BeginTransaction(ts.ctx)
	ts.Require().NoError(err)
	ts.NotNil(tx)
	for i := 0; i < 2; i++ {
		tx, err = ts.s.BeginTransaction(ts.ctx)
		ts.Require().NoError(err)
		ts.Nil(tx)
	}
	ts.Equal(3, ts.s.TransactionDepth())

	_, err = ts.s.NewEntity("s1", serverDriverInfo)
	ts.Require().NoError(err)

	ts.Require().NoError(ts.s.Commit(ts.ctx))
	ts.Equal(0, commits)
	ts.Equal(2, ts.s.TransactionDepth())
	ts.Require().NoError(ts.s.Commit(ts.ctx))
	ts.Equal(0, commits)
	ts.Equal(1, ts.s.TransactionDepth())
	ts.Require().NoError(ts.s.Commit(ts.ctx))
	ts.Equal(1, commits)
	ts.Equal(0, ts.s.TransactionDepth())

	ts.Equal(int64(2), ts.count(schema.TableEntities))

	// without a transaction a commit flushes in a transaction of its own
	_, err = ts.s.NewEntity("s2", serverDriverInfo)
	ts.Require().NoError(err)
	ts.Require().NoError(ts.s.Commit(ts.ctx))
	ts.Equal(2, commits)
	ts.Equal(int64(3), ts.count(schema.TableEntities))
}

func (ts *SessionTestSuite) TestNestedRollbackAbandonsOuterFrames() {
	_, err := ts.s.BeginTransaction(ts.ctx)
	ts.Require().NoError(err)
	_, err = ts.s.BeginTransaction(ts.ctx)
	ts.Require().NoError(err)
	_, err = ts.s.NewEntity("s1", serverDriverInfo)
	ts.Require().NoError(err)
	ts.Require().NoError(ts.s.Flush(ts.ctx))

	ts.Require().NoError(ts.s.RollbackTransaction(ts.ctx))
	ts.Equal(0, ts.s.TransactionDepth())
	ts.True(errors.Is(ts.s.Commit(ts.ctx), ErrTransactionRolledBack))

	// the next commit is a plain flush again
	ts.NoError(ts.s.Commit(ts.ctx))
	ts.Equal(int64(1), ts.count(schema.TableEntities))
}

func (ts *SessionTestSuite) TestTx() {
	err := ts.s.Tx(ts.ctx, func(s *Session) error {
		_, err := s.NewEntity("s1", serverDriverInfo)
		return err
	})
	ts.Require().NoError(err)

	failure := errors.New("callback failed")
	err = ts.s.Tx(ts.ctx, func(s *Session) error {
		if _, err := s.NewEntity("s2", serverDriverInfo); err != nil {
			return err
		}
		if err := s.Flush(ts.ctx); err != nil {
			return err
		}
		return failure
	})
	ts.Equal(failure, err)
	ts.Equal(int64(2), ts.count(schema.TableEntities))
}

func (ts *SessionTestSuite) TestDeleteEntity() {
	servers := ts.newServers("s1", "s2")
	ts.Require().NoError(ts.s.AddAttr(servers[0], Attr{Key: "rack", Value: "r1"}))
	ts.Require().NoError(ts.s.AddAttr(servers[0], Attr{Key: "port", Value: 22}))
	ts.Require().NoError(ts.s.AddAttr(servers[1], Attr{Key: "uplink", Value: servers[0]}))
	ts.Require().NoError(ts.s.AddAttr(servers[1], Attr{Key: "rack", Value: "r2"}))
	ts.Require().NoError(ts.s.Commit(ts.ctx))
	// the schemaversion attribute of clustometa is the fifth
	ts.Equal(int64(5), ts.count(schema.TableEntityAttrs))

	ts.Require().NoError(ts.s.DeleteEntity(ts.ctx, servers[0]))

	_, err := ts.s.GetByName(ts.ctx, "s1")
	ts.True(errors.Is(err, ErrNotFound))
	ts.Equal(int64(2), ts.count(schema.TableEntityAttrs))
	attrs, err := ts.s.Attrs(ts.ctx, servers[1], Attr{})
	ts.Require().NoError(err)
	ts.Require().Len(attrs, 1)
	ts.Equal("rack", attrs[0].Key)
}

func (ts *SessionTestSuite) TestDeleteEntity_FailureLeavesStoreUnchanged() {
	servers := ts.newServers("s1")
	ts.Require().NoError(ts.s.AddAttr(servers[0], Attr{Key: "rack", Value: "r1"}))
	ts.Require().NoError(ts.s.Commit(ts.ctx))

	failure := errors.New("forced failure")
	ts.s.execHook = func(query string) error {
		if strings.HasPrefix(query, `DELETE FROM "entities"`) {
			return failure
		}
		return nil
	}
	err := ts.s.DeleteEntity(ts.ctx, servers[0])
	ts.True(errors.Is(err, failure), "%v", err)
	ts.Equal(0, ts.s.TransactionDepth())
	ts.s.execHook = nil

	ts.Equal(int64(2), ts.count(schema.TableEntities))
	ts.Equal(int64(2), ts.count(schema.TableEntityAttrs))
	d, err := ts.s.GetByName(ts.ctx, "s1")
	ts.Require().NoError(err)
	attrs, err := ts.s.Attrs(ts.ctx, d, Attr{})
	ts.Require().NoError(err)
	ts.Len(attrs, 1)
}

func (ts *SessionTestSuite) TestDeleteEntity_Pending() {
	d, err := ts.s.NewEntity("s1", serverDriverInfo)
	ts.Require().NoError(err)
	ts.Require().NoError(ts.s.AddAttr(d, Attr{Key: "rack", Value: "r1"}))
	ts.Require().NoError(ts.s.DeleteEntity(ts.ctx, d))
	ts.Equal(int64(1), ts.count(schema.TableEntities))
	ts.Equal(int64(1), ts.count(schema.TableEntityAttrs))
}

func (ts *SessionTestSuite) TestExecute() {
	ts.newServers("s1")
	r, err := ts.s.Execute(ts.ctx, `UPDATE "entities" SET "type" = :type WHERE "name" = :name`,
		utils.JSON{"type": "generic", "name": "s1"})
	ts.Require().NoError(err)
	n, err := r.RowsAffected()
	ts.Require().NoError(err)
	ts.Equal(int64(1), n)
}

func (ts *SessionTestSuite) TestClosedSession() {
	s := ts.clusto.NewSession()
	ts.Require().NoError(s.Close())
	_, err := s.GetByName(ts.ctx, "s1")
	ts.True(errors.Is(err, ErrSessionClosed))
	_, err = s.BeginTransaction(ts.ctx)
	ts.True(errors.Is(err, ErrSessionClosed))
}

func TestInitClusto(t *testing.T) {
	ctx := context.Background()
	c := newTestClusto(t)
	require.NoError(t, c.InitClusto(ctx))

	version, err := c.SchemaVersionInDB(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.SchemaVersion, version)
	assert.True(t, c.CheckDBCompatibility(version))
	assert.False(t, c.CheckDBCompatibility("2"))

	n, err := db.NamedCount(ctx, c.Database.Connection, `FROM "clustoversioning"`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestConnect_MalformedDSN(t *testing.T) {
	_, err := Connect(context.Background(), "not a dsn", false)
	assert.Error(t, err)
}

func TestSessionFromContext(t *testing.T) {
	c := newTestClusto(t)
	s := c.NewSession()
	defer s.Close()

	assert.Nil(t, SessionFromContext(context.Background()))
	assert.Same(t, s, SessionFromContext(WithSession(context.Background(), s)))
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	scope := tally.NewTestScope("", nil)
	c := newTestClusto(t, WithMetricsScope(scope))
	s := c.NewSession()
	defer s.Close()

	_, err := s.GetByName(ctx, "missing")
	require.Error(t, err)
	_, err = s.GetByName(ctx, drivers.ClustoMetaName)
	require.NoError(t, err)

	counters := scope.Snapshot().Counters()
	tests := []struct {
		key  string
		want int64
	}{
		// InitClusto looked clustometa up before creating it
		{"entity.get+type=not_found", 2},
		{"entity.get+type=success", 1},
		{"entity.create+type=success", 1},
		{"tx.commit+type=success", 1},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.Contains(t, counters, tt.key)
			assert.Equal(t, tt.want, counters[tt.key].Value())
		})
	}
}
