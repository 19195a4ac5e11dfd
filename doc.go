// SPDX-License-Identifier: MIT

// Package ratchet reconciles a directory of ordered SQL migrations with the
// record of what a database has already applied, and moves the database
// forward or backward atomically.  PostgreSQL, MySQL and SQLite are
// supported through one Driver contract.
//
// # Install
//
//	go get github.com/bcomnes/ratchet@latest
//
// # Quick start
//
//	drv, err := ratchet.Open(ctx, ratchet.ConnectionDescriptor{
//	    URL: os.Getenv("DATABASE_URL"),
//	}, "")
//	if err != nil {
//	    return err
//	}
//	m := ratchet.New(ratchet.Config{MigrationsDir: "migrations"}, drv)
//	defer m.Close()
//
//	report, err := m.Up(ctx)
//
// # Migration files
//
// Every unit has a numeric sequence (normally the UTC creation time,
// YYYYMMDDHHMMSS) and a name.  Three layouts are accepted and may be mixed:
//
//	20240102150405_create_users/up.sql         // folder
//	20240102150405_create_users/down.sql
//
//	20240102150405_create_users.up.sql         // split files
//	20240102150405_create_users.down.sql
//
//	20240102150405_create_users.sql            // single file
//	    -- ==== UP ====
//	    CREATE TABLE users (id INTEGER);
//	    -- ==== DOWN ====
//	    DROP TABLE users;
//
// An empty down script makes a unit irreversible.  Each unit's checksum is
// the SHA-256 of its up and down scripts; an applied unit whose checksum no
// longer matches is drift, which blocks every run except status.
//
// # Targets
//
// Apply takes a Target: UpAll, Up(n), UpTo(seq), Down(n), DownBatches(n),
// DownTo(seq), DownAll, Select(apply, revert) or Redo(seqs...).  Reverts
// always run newest first and applies oldest first.
//
// # Atomicity
//
// PostgreSQL and SQLite run a whole batch, ledger writes included, in one
// transaction.  MySQL commits DDL implicitly, so each unit is committed
// together with its ledger entry and a failure leaves the completed prefix
// recorded.
//
// # Locking
//
// Runs against the same database are serialised by an advisory lock
// (pg_try_advisory_lock, GET_LOCK, or a lock table on SQLite).  Waiting is
// bounded by Config.LockTimeout and ends with ErrLockUnavailable.
//
// # Errors
//
// Failures are classified by sentinel errors (ErrDefinition,
// ErrDriftDetected, ErrLockUnavailable, ErrDriver, ErrIrreversibleMigration,
// ErrCancelled) and carry details in *DefinitionError, *DriftError,
// *DriverError and *IrreversibleError.
//
// The ratchet command in cmd/ratchet wraps this package with create, up,
// down, status, interactive and unlock subcommands.
package ratchet
