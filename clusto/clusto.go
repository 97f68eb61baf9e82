// Package clusto is the data-access façade of the clusto inventory: a
// repository bound to one database and the sessions that read and write
// entities and their attributes through it.
package clusto

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/uber-go/tally/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/donnyhardyanto/dxclusto/configuration"
	"github.com/donnyhardyanto/dxclusto/database"
	"github.com/donnyhardyanto/dxclusto/databases/db"
	"github.com/donnyhardyanto/dxclusto/databases/db/query/builder"
	"github.com/donnyhardyanto/dxclusto/drivers"
	"github.com/donnyhardyanto/dxclusto/log"
	"github.com/donnyhardyanto/dxclusto/schema"
)

const tracerName = "dxclusto"

type DXClusto struct {
	Database *database.DXDatabase
	Registry *drivers.Registry
	Metrics  *Metrics
	Log      log.DXLog

	scope  tally.Scope
	tracer trace.Tracer
}

type Option func(c *DXClusto)

// WithRegistry replaces the default entity/clustometa registry.
func WithRegistry(r *drivers.Registry) Option {
	return func(c *DXClusto) {
		c.Registry = r
	}
}

// WithMetricsScope roots the counters at scope instead of tally.NoopScope.
func WithMetricsScope(scope tally.Scope) Option {
	return func(c *DXClusto) {
		c.scope = scope
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *DXClusto) {
		c.tracer = t
	}
}

// New binds a repository to a not yet connected database.
func New(d *database.DXDatabase, opts ...Option) *DXClusto {
	c := &DXClusto{
		Database: d,
		Registry: drivers.DefaultRegistry(),
		Log:      log.NewLog(&log.Log, nil, "clusto"),
		scope:    tally.NoopScope,
		tracer:   otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(c)
	}
	c.Metrics = NewMetrics(c.scope)
	return c
}

// Connect parses dsn, opens the database and pings it. With echo every statement is logged.
func Connect(ctx context.Context, dsn string, echo bool, opts ...Option) (*DXClusto, error) {
	d, err := database.NewDXDatabase("clusto", dsn)
	if err != nil {
		return nil, err
	}
	d.Echo = echo
	c := New(d, opts...)
	if err := d.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ConnectFromConfiguration resolves vault placeholders of the storage DSN and connects.
func ConnectFromConfiguration(ctx context.Context, cfg *configuration.Configuration, opts ...Option) (*DXClusto, error) {
	if err := cfg.ResolveSecrets(ctx); err != nil {
		return nil, err
	}
	d, err := database.NewDXDatabase(cfg.Storage.NameId, cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	d.Echo = cfg.Storage.Echo
	d.MustConnected = cfg.Storage.MustConnected
	d.MaxOpenConnections = cfg.Storage.MaxOpenConnections
	d.MaxIdleConnections = cfg.Storage.MaxIdleConnections
	d.ConnMaxLifetime = cfg.Storage.ConnMaxLifetime
	c := New(d, opts...)
	if err := d.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *DXClusto) Disconnect() error {
	return c.Database.Disconnect()
}

// CheckDBCompatibility reports whether dbver is the schema version this package writes.
func (c *DXClusto) CheckDBCompatibility(dbver string) bool {
	return dbver == schema.SchemaVersion
}

// InitClusto creates the tables, then writes one versioning row and the clustometa entity.
// Calling it on an initialized database only applies missing migrations.
func (c *DXClusto) InitClusto(ctx context.Context) (err error) {
	ctx, span := c.tracer.Start(ctx, "InitClusto")
	defer span.End()

	src, err := schema.Migrations(c.Database.DatabaseType)
	if err != nil {
		return err
	}
	_, err = c.Database.Migrate(ctx, schema.MigrationTableName, src, migrate.Up)
	if err != nil {
		return err
	}

	s := c.NewSession()
	defer s.Close()

	_, err = s.GetByName(ctx, drivers.ClustoMetaName)
	if err == nil {
		c.Log.Infof("Clusto database %s already initialized", c.Database.NonSensitiveConnectionString)
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	return s.Tx(ctx, func(s *Session) error {
		qb := builder.NewInsertQueryBuilderWithSource(c.Database.DatabaseType, schema.TableVersioning).
			Set("timestamp", time.Now().UTC()).
			Set("description", sql.NullString{String: "init_clusto", Valid: true})
		q, args, err := qb.Build()
		if err != nil {
			return err
		}
		_, err = db.NamedExec(ctx, s.ext(), q, args)
		if err != nil {
			return err
		}
		meta, err := s.NewEntity(drivers.ClustoMetaName, drivers.ClustoMetaDriverInfo)
		if err != nil {
			return err
		}
		return s.AddAttr(meta, Attr{Key: drivers.AttrSchemaVersion, Value: schema.SchemaVersion})
	})
}

// SchemaVersionInDB reads the schemaversion attribute of the clustometa entity.
func (c *DXClusto) SchemaVersionInDB(ctx context.Context) (string, error) {
	s := c.NewSession()
	defer s.Close()

	meta, err := s.GetByName(ctx, drivers.ClustoMetaName)
	if err != nil {
		return "", err
	}
	attrs, err := s.Attrs(ctx, meta, Attr{Key: drivers.AttrSchemaVersion})
	if err != nil {
		return "", err
	}
	if len(attrs) == 0 {
		return "", errors.Wrapf(ErrNotFound, "attribute %s of %s", drivers.AttrSchemaVersion, drivers.ClustoMetaName)
	}
	v, err := attrs[0].Value()
	if err != nil {
		return "", err
	}
	version, ok := v.(string)
	if !ok {
		return "", c.Log.WarnAndCreateErrorf("SCHEMA_VERSION_IS_NOT_A_STRING:%T", v)
	}
	return version, nil
}
