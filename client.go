package ratchet

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// lockPollInterval is how often a busy advisory lock is retried while
// waiting for it.
const lockPollInterval = 250 * time.Millisecond

// Open connects to the database described by desc and returns the Driver
// for its engine. The returned Driver owns one dedicated connection.
func Open(ctx context.Context, desc ConnectionDescriptor, ledgerTable string) (Driver, error) {
	if ledgerTable == "" {
		ledgerTable = DefaultConfig.LedgerTable
	}
	dialect := desc.ResolvedDialect()
	dsn, err := desc.DSN()
	if err != nil {
		return nil, err
	}

	var sqlDriver string
	switch dialect {
	case DialectPostgres:
		sqlDriver = "pgx"
	case DialectMySQL:
		sqlDriver = "mysql"
	case DialectSQLite:
		sqlDriver = "sqlite3"
	default:
		return nil, fmt.Errorf("db engine '%s' not supported. Must be one of: postgres, mysql or sqlite", dialect)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, &DriverError{Op: "open", Err: ErrConnectionLost, Cause: err}
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, &DriverError{Op: "connect", Err: ErrConnectionLost, Cause: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, &DriverError{Op: "connect", Err: ErrConnectionLost, Cause: err}
	}

	switch dialect {
	case DialectPostgres:
		return NewPostgresClient(db, conn, ledgerTable), nil
	case DialectMySQL:
		return NewMySQLClient(db, conn, ledgerTable), nil
	default:
		return NewSqlite3Client(db, conn, ledgerTable), nil
	}
}

// queryer is satisfied by both *sql.Conn and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// baseClient provides the engine-neutral half of a Driver. Concrete clients
// embed it and fill in the dialect hooks.
type baseClient struct {
	db    *sql.DB
	conn  *sql.Conn
	tx    *sql.Tx
	table string

	quotedTableFn     func() string
	placeholderFn     func(n int) string
	createLedgerSqlFn func() string
	classifyFn        func(err error) error
}

func (c *baseClient) q() queryer {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

// classify maps err onto one of the driver error kinds.
func (c *baseClient) classify(err error) error {
	if c.classifyFn != nil {
		if kind := c.classifyFn(err); kind != nil {
			return kind
		}
	}
	return classifyCommon(err)
}

func classifyCommon(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.As(err, &netErr):
		return ErrConnectionLost
	}
	return ErrStatementFailed
}

func (c *baseClient) fail(op, statement string, err error) error {
	return &DriverError{Op: op, Statement: statement, Err: c.classify(err), Cause: err}
}

// Begin opens a transaction on the run's connection.
func (c *baseClient) Begin(ctx context.Context) error {
	if c.tx != nil {
		return &DriverError{Op: "begin", Err: ErrStatementFailed, Cause: errors.New("transaction already open")}
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return c.fail("begin", "", err)
	}
	c.tx = tx
	return nil
}

// Commit commits the open transaction.
func (c *baseClient) Commit() error {
	if c.tx == nil {
		return &DriverError{Op: "commit", Err: ErrStatementFailed, Cause: errors.New("no open transaction")}
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return c.fail("commit", "", err)
	}
	return nil
}

// Rollback aborts the open transaction. It is a no-op without one.
func (c *baseClient) Rollback() error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return c.fail("rollback", "", err)
	}
	return nil
}

// Exec executes a SQL script.
func (c *baseClient) Exec(ctx context.Context, statement string) (int64, error) {
	res, err := c.q().ExecContext(ctx, statement)
	if err != nil {
		return 0, c.fail("exec", statement, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some engines cannot count rows for multi-statement scripts.
		return 0, nil
	}
	return n, nil
}

// EnsureLedger creates the ledger table if necessary.
func (c *baseClient) EnsureLedger(ctx context.Context) error {
	stmt := c.createLedgerSqlFn()
	if _, err := c.q().ExecContext(ctx, stmt); err != nil {
		return c.fail("ensure ledger", stmt, err)
	}
	return nil
}

// ReadLedger returns every applied record, oldest sequence first.
func (c *baseClient) ReadLedger(ctx context.Context) ([]AppliedRecord, error) {
	query := fmt.Sprintf(`SELECT sequence, name, checksum, applied_at, batch_id FROM %s ORDER BY sequence ASC`,
		c.quotedTableFn())
	rows, err := c.q().QueryContext(ctx, query)
	if err != nil {
		return nil, c.fail("read ledger", query, err)
	}
	defer rows.Close()

	var records []AppliedRecord
	for rows.Next() {
		var (
			rec       AppliedRecord
			name      sql.NullString
			sum       sql.NullString
			batch     sql.NullString
			appliedAt sql.NullTime
		)
		if err := rows.Scan(&rec.Sequence, &name, &sum, &appliedAt, &batch); err != nil {
			return nil, c.fail("read ledger", query, err)
		}
		rec.Name = name.String
		rec.Checksum = sum.String
		rec.BatchID = batch.String
		rec.AppliedAt = appliedAt.Time
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, c.fail("read ledger", query, err)
	}
	return records, nil
}

// WriteLedgerEntry inserts rec into the ledger.
func (c *baseClient) WriteLedgerEntry(ctx context.Context, rec AppliedRecord) error {
	p := c.placeholderFn
	stmt := fmt.Sprintf(`INSERT INTO %s (sequence, name, checksum, applied_at, batch_id) VALUES (%s, %s, %s, %s, %s)`,
		c.quotedTableFn(), p(1), p(2), p(3), p(4), p(5))
	appliedAt := rec.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now()
	}
	_, err := c.q().ExecContext(ctx, stmt, rec.Sequence, rec.Name, rec.Checksum, appliedAt.UTC(), rec.BatchID)
	if err != nil {
		return c.fail("write ledger", stmt, err)
	}
	return nil
}

// DeleteLedgerEntry removes the record for sequence.
func (c *baseClient) DeleteLedgerEntry(ctx context.Context, sequence int64) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE sequence = %s`, c.quotedTableFn(), c.placeholderFn(1))
	if _, err := c.q().ExecContext(ctx, stmt, sequence); err != nil {
		return c.fail("delete ledger", stmt, err)
	}
	return nil
}

// Close rolls back any open transaction and closes the connection.
func (c *baseClient) Close() error {
	_ = c.Rollback()
	var errs []error
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}

// pollLock calls try until it reports the lock as taken or ctx is done. The
// first attempt always runs, so an already expired ctx means "try once".
func pollLock(ctx context.Context, name string, try func(context.Context) (bool, error)) error {
	tryCtx := context.WithoutCancel(ctx)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		ok, err := try(tryCtx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return &DriverError{Op: "acquire lock " + name, Err: ErrLockUnavailable, Cause: ctx.Err()}
		case <-ticker.C:
		}
	}
}
