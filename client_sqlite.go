package ratchet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Sqlite3Client implements Driver for SQLite. SQLite has no advisory locks,
// so the client keeps a one row lock table next to the ledger.
type Sqlite3Client struct {
	baseClient
	owner string
}

// NewSqlite3Client creates a new Sqlite3Client on conn.
func NewSqlite3Client(db *sql.DB, conn *sql.Conn, table string) *Sqlite3Client {
	host, _ := os.Hostname()
	sqliteClient := &Sqlite3Client{
		baseClient: baseClient{db: db, conn: conn, table: table},
		owner:      fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString()),
	}
	// Set function pointers.
	sqliteClient.quotedTableFn = sqliteClient.QuotedLedgerTable
	sqliteClient.placeholderFn = func(int) string { return "?" }
	sqliteClient.createLedgerSqlFn = sqliteClient.createLedgerSql
	sqliteClient.classifyFn = classifySqlite
	return sqliteClient
}

func (c *Sqlite3Client) Name() string { return string(DialectSQLite) }

func (c *Sqlite3Client) TransactionalDDL() bool { return true }

// QuotedLedgerTable returns the quoted ledger table name.
func (c *Sqlite3Client) QuotedLedgerTable() string {
	return quoteSqlite(c.table)
}

func (c *Sqlite3Client) quotedLockTable() string {
	return quoteSqlite(c.table + "_lock")
}

func quoteSqlite(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (c *Sqlite3Client) createLedgerSql() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  sequence INTEGER PRIMARY KEY,
  name TEXT,
  checksum TEXT,
  applied_at TIMESTAMP,
  batch_id TEXT
)`, c.QuotedLedgerTable())
}

func (c *Sqlite3Client) createLockSql() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  name TEXT NOT NULL,
  owner TEXT NOT NULL,
  acquired_at TIMESTAMP NOT NULL
)`, c.quotedLockTable())
}

// AcquireLock inserts the single lock row in autocommit. A conflicting row
// or a busy database means another run holds the lock.
func (c *Sqlite3Client) AcquireLock(ctx context.Context, name string) (*Lock, error) {
	create := c.createLockSql()
	if _, err := c.conn.ExecContext(context.WithoutCancel(ctx), create); err != nil && !isSqliteBusy(err) {
		return nil, c.fail("acquire lock "+name, create, err)
	}

	now := time.Now().UTC()
	stmt := fmt.Sprintf(`INSERT INTO %s (id, name, owner, acquired_at) VALUES (1, ?, ?, ?)`, c.quotedLockTable())
	err := pollLock(ctx, name, func(ctx context.Context) (bool, error) {
		_, err := c.conn.ExecContext(ctx, stmt, name, c.owner, now)
		switch {
		case err == nil:
			return true, nil
		case isSqliteBusy(err), isSqliteConstraint(err), isNoSuchTable(err):
			return false, nil
		default:
			return false, c.fail("acquire lock "+name, stmt, err)
		}
	})
	if err != nil {
		return nil, err
	}
	return &Lock{Name: name, key: c.owner, AcquiredAt: now}, nil
}

// ReleaseLock deletes the lock row if this client owns it.
func (c *Sqlite3Client) ReleaseLock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = 1 AND owner = ?`, c.quotedLockTable())
	res, err := c.conn.ExecContext(ctx, stmt, lock.key)
	if err != nil {
		return c.fail("release lock "+lock.Name, stmt, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &DriverError{Op: "release lock " + lock.Name, Err: ErrStatementFailed,
			Cause: errors.New("lock row was not owned by this run")}
	}
	return nil
}

// ForceUnlock removes the lock row whoever owns it. It returns the owner
// of the removed row, or "" when the lock was free.
func (c *Sqlite3Client) ForceUnlock(ctx context.Context) (string, error) {
	var owner string
	query := fmt.Sprintf(`SELECT owner FROM %s WHERE id = 1`, c.quotedLockTable())
	err := c.conn.QueryRowContext(ctx, query).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows), err != nil && isNoSuchTable(err):
		return "", nil
	case err != nil:
		return "", c.fail("unlock", query, err)
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = 1`, c.quotedLockTable())
	if _, err := c.conn.ExecContext(ctx, stmt); err != nil {
		return "", c.fail("unlock", stmt, err)
	}
	return owner, nil
}

func sqliteCode(err error) (sqlite3.ErrNo, bool) {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code, true
	}
	return 0, false
}

func isSqliteBusy(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.ErrBusy || code == sqlite3.ErrLocked)
}

func isSqliteConstraint(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlite3.ErrConstraint
}

func isNoSuchTable(err error) bool {
	return strings.Contains(err.Error(), "no such table")
}

// classifySqlite recognises statements SQLite refuses to run inside a
// transaction.
func classifySqlite(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "from within a transaction") || strings.Contains(msg, "inside a transaction") {
		return ErrUnsupportedOperation
	}
	if code, ok := sqliteCode(err); ok {
		switch code {
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return ErrConnectionLost
		}
		return ErrStatementFailed
	}
	return nil
}
