// Package dbx provides the small DB abstractions shared by repositories:
// a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx, a
// helper to run functions inside a transaction, per-call wait bounds and
// classification of driver errors into the common sentinels.
package dbx

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    // use tx instead of db
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return Classify(err)
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
		err = Classify(tx.Commit())
	}()

	err = fn(ctx, tx)
	return err
}

// Options configures a repository bound to a DBTX.
type Options struct {
	// Timeout bounds every store call, including the wait for a pooled
	// connection. Zero means no bound beyond the caller's context.
	Timeout time.Duration
	// Logger receives store failures with the failing operation name.
	Logger logging.Logger
}

// Option mutates Options.
type Option func(*Options)

// WithTimeout sets Options.Timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithLogger sets Options.Logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// NewOptions applies opts over the defaults (no timeout, discard logger).
func NewOptions(opts ...Option) Options {
	o := Options{Logger: logging.Nop{}}
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = logging.Nop{}
	}
	return o
}

// Bound derives a context limited by d. A non-positive d returns ctx as is.
func Bound(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
