package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	goOra "github.com/sijms/go-ora/v2"

	"github.com/donnyhardyanto/dxclusto/base"
)

// DSN is a parsed scheme://[user:pass@]host[:port]/database[?opts] connection string.
type DSN struct {
	DatabaseType base.DXDatabaseType
	UserName     string
	UserPassword string
	Host         string
	Port         int
	DatabaseName string
	Options      url.Values
}

var defaultPorts = map[base.DXDatabaseType]int{
	base.DXDatabaseTypePostgreSQL: 5432,
	base.DXDatabaseTypeMariaDB:    3306,
	base.DXDatabaseTypeSQLServer:  1433,
	base.DXDatabaseTypeOracle:     1521,
}

// ParseDSN parses a connection string. SQLite follows the sqlite:///relative and
// sqlite:////absolute convention, an empty path or :memory: opens an in-memory database.
func ParseDSN(s string) (*DSN, error) {
	i := strings.Index(s, "://")
	if i <= 0 {
		return nil, errors.Errorf("DSN_MALFORMED:MISSING_SCHEME")
	}
	scheme := s[:i]
	// "mysql+pymysql" style driver suffixes are accepted and ignored
	if j := strings.Index(scheme, "+"); j > 0 {
		scheme = scheme[:j]
	}
	dbt := base.StringToDXDatabaseType(scheme)
	if dbt == base.UnknownDatabaseType {
		return nil, errors.Errorf("DSN_UNKNOWN_SCHEME:%s", scheme)
	}

	if dbt == base.DXDatabaseTypeSQLite {
		return parseSQLiteDSN(s[i+3:])
	}

	u, err := url.Parse(dbt.String() + s[i:])
	if err != nil {
		return nil, errors.Wrap(err, "DSN_MALFORMED")
	}
	if u.Hostname() == "" {
		return nil, errors.Errorf("DSN_MALFORMED:MISSING_HOST")
	}
	d := &DSN{
		DatabaseType: dbt,
		Host:         u.Hostname(),
		Port:         defaultPorts[dbt],
		DatabaseName: strings.TrimPrefix(u.Path, "/"),
		Options:      u.Query(),
	}
	if p := u.Port(); p != "" {
		d.Port, err = strconv.Atoi(p)
		if err != nil {
			return nil, errors.Wrapf(err, "DSN_MALFORMED:INVALID_PORT:%s", p)
		}
	}
	if u.User != nil {
		d.UserName = u.User.Username()
		d.UserPassword, _ = u.User.Password()
	}
	if d.DatabaseName == "" {
		return nil, errors.Errorf("DSN_MALFORMED:MISSING_DATABASE_NAME")
	}
	return d, nil
}

func parseSQLiteDSN(rest string) (*DSN, error) {
	d := &DSN{DatabaseType: base.DXDatabaseTypeSQLite, Options: url.Values{}}
	if j := strings.Index(rest, "?"); j >= 0 {
		o, err := url.ParseQuery(rest[j+1:])
		if err != nil {
			return nil, errors.Wrap(err, "DSN_MALFORMED:INVALID_OPTIONS")
		}
		d.Options = o
		rest = rest[:j]
	}
	if rest != "" && !strings.HasPrefix(rest, "/") {
		return nil, errors.Errorf("DSN_MALFORMED:SQLITE_HOST_NOT_SUPPORTED:%s", rest)
	}
	name, err := url.PathUnescape(strings.TrimPrefix(rest, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "DSN_MALFORMED:INVALID_PATH")
	}
	d.DatabaseName = name
	if d.DatabaseName == "" {
		d.DatabaseName = ":memory:"
	}
	return d, nil
}

// sqliteFilePath percent-encodes each segment of a file path for a SQLite URI filename.
func sqliteFilePath(name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func (d *DSN) address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// ConnectionString returns the native connection string of the database/sql driver.
func (d *DSN) ConnectionString() (s string, err error) {
	switch d.DatabaseType {
	case base.DXDatabaseTypePostgreSQL:
		u := url.URL{
			Scheme:   "postgres",
			Host:     d.address(),
			Path:     "/" + d.DatabaseName,
			RawQuery: d.Options.Encode(),
		}
		if d.UserName != "" {
			u.User = url.UserPassword(d.UserName, d.UserPassword)
		}
		s, err = pq.ParseURL(u.String())
		if err != nil {
			return "", errors.Wrap(err, "DSN_POSTGRES_CONVERSION_ERROR")
		}
	case base.DXDatabaseTypeMariaDB:
		c := mysql.NewConfig()
		c.User = d.UserName
		c.Passwd = d.UserPassword
		c.Net = "tcp"
		c.Addr = d.address()
		c.DBName = d.DatabaseName
		c.ParseTime = true
		c.Loc = time.UTC
		if len(d.Options) > 0 {
			c.Params = map[string]string{}
			for k := range d.Options {
				c.Params[k] = d.Options.Get(k)
			}
		}
		s = c.FormatDSN()
	case base.DXDatabaseTypeSQLServer:
		q := url.Values{}
		for k, v := range d.Options {
			q[k] = v
		}
		q.Set("database", d.DatabaseName)
		u := url.URL{
			Scheme:   "sqlserver",
			Host:     d.address(),
			RawQuery: q.Encode(),
		}
		if d.UserName != "" {
			u.User = url.UserPassword(d.UserName, d.UserPassword)
		}
		s = u.String()
	case base.DXDatabaseTypeOracle:
		urlOptions := map[string]string{}
		for k := range d.Options {
			urlOptions[k] = d.Options.Get(k)
		}
		s = goOra.BuildUrl(d.Host, d.Port, d.DatabaseName, d.UserName, d.UserPassword, urlOptions)
	case base.DXDatabaseTypeSQLite:
		q := url.Values{}
		for k, v := range d.Options {
			q[k] = v
		}
		q.Add("_pragma", "foreign_keys(1)")
		q.Add("_pragma", "busy_timeout(5000)")
		u := url.URL{Scheme: "file", Opaque: sqliteFilePath(d.DatabaseName), RawQuery: q.Encode()}
		s = u.String()
	default:
		err = errors.Errorf("DSN_UNSUPPORTED_DATABASE_TYPE:%s", d.DatabaseType)
	}
	return s, err
}

// NonSensitiveString is the DSN without credentials, safe for logs.
func (d *DSN) NonSensitiveString() string {
	if d.DatabaseType == base.DXDatabaseTypeSQLite {
		return fmt.Sprintf("%s:///%s", d.DatabaseType, d.DatabaseName)
	}
	return fmt.Sprintf("%s://%s/%s", d.DatabaseType, d.address(), d.DatabaseName)
}
