package ratchet

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// mysqlLockNameMax is the longest name GET_LOCK accepts.
const mysqlLockNameMax = 64

// MySQLClient implements Driver for MySQL and MariaDB. DDL statements commit
// implicitly there, so the client reports no transactional DDL.
type MySQLClient struct {
	baseClient
}

// NewMySQLClient creates a new MySQLClient on conn.
func NewMySQLClient(db *sql.DB, conn *sql.Conn, table string) *MySQLClient {
	c := &MySQLClient{baseClient: baseClient{db: db, conn: conn, table: table}}
	c.quotedTableFn = c.QuotedLedgerTable
	c.placeholderFn = func(int) string { return "?" }
	c.createLedgerSqlFn = c.createLedgerSql
	c.classifyFn = classifyMySQL
	return c
}

func (c *MySQLClient) Name() string { return string(DialectMySQL) }

func (c *MySQLClient) TransactionalDDL() bool { return false }

// QuotedLedgerTable returns the ledger table name with each part quoted.
func (c *MySQLClient) QuotedLedgerTable() string {
	parts := strings.Split(c.table, ".")
	for i, part := range parts {
		parts[i] = "`" + strings.ReplaceAll(part, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

func (c *MySQLClient) createLedgerSql() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  sequence BIGINT PRIMARY KEY,
  name TEXT,
  checksum VARCHAR(64),
  applied_at DATETIME(6),
  batch_id VARCHAR(64)
)`, c.QuotedLedgerTable())
}

// AcquireLock takes a named lock with GET_LOCK, scoped to the current
// database.
func (c *MySQLClient) AcquireLock(ctx context.Context, name string) (*Lock, error) {
	var dbName sql.NullString
	if err := c.conn.QueryRowContext(context.WithoutCancel(ctx), `SELECT DATABASE()`).Scan(&dbName); err != nil {
		return nil, c.fail("acquire lock "+name, "SELECT DATABASE()", err)
	}
	key := mysqlLockName(dbName.String, name)

	const stmt = `SELECT GET_LOCK(?, 0)`
	err := pollLock(ctx, name, func(ctx context.Context) (bool, error) {
		var got sql.NullInt64
		if err := c.conn.QueryRowContext(ctx, stmt, key).Scan(&got); err != nil {
			return false, c.fail("acquire lock "+name, stmt, err)
		}
		return got.Valid && got.Int64 == 1, nil
	})
	if err != nil {
		return nil, err
	}
	return &Lock{Name: name, key: key, AcquiredAt: time.Now()}, nil
}

// ReleaseLock releases the named lock.
func (c *MySQLClient) ReleaseLock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	const stmt = `SELECT RELEASE_LOCK(?)`
	var released sql.NullInt64
	if err := c.conn.QueryRowContext(ctx, stmt, lock.key).Scan(&released); err != nil {
		return c.fail("release lock "+lock.Name, stmt, err)
	}
	if !released.Valid || released.Int64 != 1 {
		return &DriverError{Op: "release lock " + lock.Name, Err: ErrStatementFailed,
			Cause: errors.New("lock was not held by this session")}
	}
	return nil
}

// mysqlLockName builds a GET_LOCK name, hashing it when it would exceed the
// server limit.
func mysqlLockName(database, name string) string {
	key := "ratchet:" + database + ":" + name
	if len(key) <= mysqlLockNameMax {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return "ratchet:" + hex.EncodeToString(sum[:])[:mysqlLockNameMax-len("ratchet:")]
}

// classifyMySQL maps driver level failures to connection loss.
func classifyMySQL(err error) error {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return ErrConnectionLost
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1053, 2006, 2013: // server shutdown, gone away, lost during query
			return ErrConnectionLost
		}
		return ErrStatementFailed
	}
	return nil
}
