package ratchet

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Dialect names a supported database engine.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// Default ports used when a descriptor gives a host but no port.
const (
	DefaultPostgresPort = 5432
	DefaultMySQLPort    = 3306
)

// ParseDialect accepts the usual spellings of each engine name.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("db engine '%s' not supported. Must be one of: postgres, mysql or sqlite", s)
	}
}

// DetectDialect guesses the engine from a connection URL. Anything that is
// neither a MySQL nor a PostgreSQL URL is taken as a SQLite path.
func DetectDialect(rawURL string) Dialect {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	switch {
	case lower == "":
		return ""
	case strings.HasPrefix(lower, "mysql"):
		return DialectMySQL
	case strings.HasPrefix(lower, "postgres"), strings.Contains(lower, "host="):
		return DialectPostgres
	default:
		return DialectSQLite
	}
}

// ConnectionDescriptor says how to reach a database: either a URL, or the
// individual host fields. URL wins when both are set.
type ConnectionDescriptor struct {
	Dialect  Dialect
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// ResolvedDialect returns the explicit dialect or the one detected from URL.
func (d ConnectionDescriptor) ResolvedDialect() Dialect {
	if d.Dialect != "" {
		return d.Dialect
	}
	return DetectDialect(d.URL)
}

// DSN renders the descriptor as a data source name for the engine's
// database/sql driver.
func (d ConnectionDescriptor) DSN() (string, error) {
	switch d.ResolvedDialect() {
	case DialectPostgres:
		return d.postgresDSN(), nil
	case DialectMySQL:
		return d.mysqlDSN()
	case DialectSQLite:
		return d.sqliteDSN()
	case "":
		return "", fmt.Errorf("no database engine or url given")
	default:
		return "", fmt.Errorf("db engine '%s' not supported. Must be one of: postgres, mysql or sqlite", d.Dialect)
	}
}

func (d ConnectionDescriptor) postgresDSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(orDefault(d.Host, "127.0.0.1"), strconv.Itoa(orDefaultInt(d.Port, DefaultPostgresPort))),
		Path:   "/" + orDefault(d.Database, "postgres"),
	}
	user := orDefault(d.User, "postgres")
	if d.Password != "" {
		u.User = url.UserPassword(user, d.Password)
	} else {
		u.User = url.User(user)
	}
	return u.String()
}

// mysqlDSN accepts either a mysql:// URL or a native go-sql-driver DSN and
// always turns on multi statements and time parsing.
func (d ConnectionDescriptor) mysqlDSN() (string, error) {
	var cfg *mysql.Config
	switch {
	case d.URL != "" && strings.HasPrefix(strings.ToLower(d.URL), "mysql://"):
		u, err := url.Parse(d.URL)
		if err != nil {
			return "", fmt.Errorf("invalid mysql url: %w", err)
		}
		cfg = mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
		host := u.Hostname()
		port := u.Port()
		if port == "" {
			port = strconv.Itoa(DefaultMySQLPort)
		}
		cfg.Addr = net.JoinHostPort(orDefault(host, "127.0.0.1"), port)
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		for k, v := range u.Query() {
			if len(v) == 0 {
				continue
			}
			if cfg.Params == nil {
				cfg.Params = map[string]string{}
			}
			cfg.Params[k] = v[0]
		}
	case d.URL != "":
		var err error
		cfg, err = mysql.ParseDSN(d.URL)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
	default:
		cfg = mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.User = orDefault(d.User, "root")
		cfg.Passwd = d.Password
		cfg.Addr = net.JoinHostPort(orDefault(d.Host, "127.0.0.1"), strconv.Itoa(orDefaultInt(d.Port, DefaultMySQLPort)))
		cfg.DBName = d.Database
	}
	cfg.MultiStatements = true
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

// sqliteDSN strips a sqlite:// scheme and sets a busy timeout unless the
// caller chose one.
func (d ConnectionDescriptor) sqliteDSN() (string, error) {
	dsn := d.URL
	if dsn == "" {
		dsn = orDefault(d.Database, d.Host)
	}
	for _, prefix := range []string{"sqlite3://", "sqlite://"} {
		if strings.HasPrefix(strings.ToLower(dsn), prefix) {
			dsn = dsn[len(prefix):]
			break
		}
	}
	if dsn == "" {
		return "", fmt.Errorf("no sqlite database path given")
	}
	if !strings.Contains(dsn, "_busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_busy_timeout=5000"
	}
	return dsn, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(n, def int) int {
	if n == 0 {
		return def
	}
	return n
}
