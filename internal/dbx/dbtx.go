// Package dbx provides tiny DB abstractions shared by repositories:
// a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx,
// a helper to run functions inside a transaction, and the TxRunner seam
// services use so they can be exercised against an in-memory store.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxFunc is the unit of work executed by WithTx / TxRunner.RunInTx.
type TxFunc func(ctx context.Context, tx DBTX) error

// TxRunner hands out a non-transactional handle and runs units of work
// atomically.
type TxRunner interface {
	Conn() DBTX
	RunInTx(ctx context.Context, opts *sql.TxOptions, fn TxFunc) error
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// ReadCommitted is the isolation used for rotation; row locks (FOR UPDATE)
// provide the serialization on the presented token.
var ReadCommitted = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// SQLRunner is the TxRunner backed by a *sql.DB.
type SQLRunner struct {
	DB *sql.DB
}

// NewSQLRunner wraps db.
func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{DB: db}
}

func (r *SQLRunner) Conn() DBTX { return r.DB }

func (r *SQLRunner) RunInTx(ctx context.Context, opts *sql.TxOptions, fn TxFunc) error {
	return WithTx(ctx, r.DB, opts, fn)
}
