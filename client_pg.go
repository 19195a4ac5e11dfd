package ratchet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresClient implements Driver for PostgreSQL and embeds baseClient.
type PostgresClient struct {
	baseClient
}

// NewPostgresClient creates a new PostgresClient on conn.
func NewPostgresClient(db *sql.DB, conn *sql.Conn, table string) *PostgresClient {
	c := &PostgresClient{baseClient: baseClient{db: db, conn: conn, table: table}}
	c.quotedTableFn = c.QuotedLedgerTable
	c.placeholderFn = func(n int) string { return fmt.Sprintf("$%d", n) }
	c.createLedgerSqlFn = c.createLedgerSql
	c.classifyFn = classifyPostgres
	return c
}

func (c *PostgresClient) Name() string { return string(DialectPostgres) }

func (c *PostgresClient) TransactionalDDL() bool { return true }

// QuotedLedgerTable returns the ledger table name with each part quoted.
func (c *PostgresClient) QuotedLedgerTable() string {
	parts := strings.Split(c.table, ".")
	for i, part := range parts {
		parts[i] = fmt.Sprintf(`"%s"`, part)
	}
	return strings.Join(parts, ".")
}

func (c *PostgresClient) createLedgerSql() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  sequence BIGINT PRIMARY KEY,
  name TEXT,
  checksum TEXT,
  applied_at TIMESTAMP,
  batch_id TEXT
)`, c.QuotedLedgerTable())
}

// AcquireLock takes a session level advisory lock keyed by the current
// database and name.
func (c *PostgresClient) AcquireLock(ctx context.Context, name string) (*Lock, error) {
	var dbName string
	if err := c.conn.QueryRowContext(context.WithoutCancel(ctx), `SELECT current_database()`).Scan(&dbName); err != nil {
		return nil, c.fail("acquire lock "+name, "SELECT current_database()", err)
	}
	key := advisoryKey(dbName, name)

	const stmt = `SELECT pg_try_advisory_lock($1)`
	err := pollLock(ctx, name, func(ctx context.Context) (bool, error) {
		var ok bool
		if err := c.conn.QueryRowContext(ctx, stmt, key).Scan(&ok); err != nil {
			return false, c.fail("acquire lock "+name, stmt, err)
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	return &Lock{Name: name, key: key, AcquiredAt: time.Now()}, nil
}

// ReleaseLock drops the advisory lock.
func (c *PostgresClient) ReleaseLock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	const stmt = `SELECT pg_advisory_unlock($1)`
	var released bool
	if err := c.conn.QueryRowContext(ctx, stmt, lock.key).Scan(&released); err != nil {
		return c.fail("release lock "+lock.Name, stmt, err)
	}
	if !released {
		return &DriverError{Op: "release lock " + lock.Name, Err: ErrStatementFailed,
			Cause: errors.New("lock was not held by this session")}
	}
	return nil
}

// advisoryKey hashes the database and lock name into the int64 key space of
// pg_advisory_lock.
func advisoryKey(database, name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(database))
	h.Write([]byte{0})
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// classifyPostgres maps SQLSTATE codes that need a specific error kind.
func classifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
			return ErrConnectionLost
		}
		return nil
	}
	switch {
	case pgErr.Code == "25001": // active_sql_transaction
		return ErrUnsupportedOperation
	case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
		return ErrConnectionLost
	}
	return ErrStatementFailed
}
