package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

type ctxKey struct{}

var txKey = ctxKey{}

// ErrNoTransaction is returned by helpers that require an open transaction.
var ErrNoTransaction = errors.New("no transaction in context")

const defaultTimeout = 10 * time.Second

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Execer is implemented by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Conn returns the transaction carried by ctx, or db when there is none.
func Conn(ctx context.Context, db *sql.DB) Execer {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// Runner starts transactions and publishes them through the context.
type Runner struct {
	db      *sql.DB
	timeout time.Duration
}

type RunnerOption func(*Runner)

// WithTimeout bounds transactions started without a context deadline.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

func NewRunner(db *sql.DB, opts ...RunnerOption) *Runner {
	r := &Runner{db: db, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DB exposes the underlying pool.
func (r *Runner) DB() *sql.DB {
	return r.db
}

// RunInTx runs fn inside a transaction. A transaction already present in ctx
// is joined, so nested calls commit or roll back with the outermost caller.
func (r *Runner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var savepointSeq atomic.Uint64

// Savepoint runs fn inside a savepoint of the transaction carried by ctx.
// When fn fails the savepoint is rolled back and the enclosing transaction
// stays usable, which lets callers recover from constraint violations.
func Savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	sqlTx, ok := From(ctx)
	if !ok {
		return ErrNoTransaction
	}
	name := fmt.Sprintf("sp_%d", savepointSeq.Add(1))
	if _, err := sqlTx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if err := fn(ctx); err != nil {
		if _, rbErr := sqlTx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback savepoint: %w", rbErr))
		}
		return err
	}
	if _, err := sqlTx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
