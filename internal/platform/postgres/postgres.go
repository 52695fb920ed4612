// Package postgres opens the database pool, applies the schema, and exposes
// the table-lock and error-matching helpers the stores share.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	txcontext "litgraph/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Tables lists every table in dependency order, children first.
var Tables = []string{
	"feed_outbox",
	"feed_events",
	"paper_reviews",
	"paper_subfields",
	"science_subfields",
	"paper_bibliography",
	"paper_keywords",
	"paper_author_names",
	"paper_author_references",
	"paper_aliases",
	"person_aliases",
	"paper_import_sources",
	"papers",
	"persons",
}

// Options tunes the connection pool.
type Options struct {
	Driver          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to dsn and verifies the connection. Driver defaults to pgx;
// "postgres" selects lib/pq.
func Open(ctx context.Context, dsn string, opts Options) (*sql.DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = "pgx"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// LockMode is a PostgreSQL table lock level.
type LockMode string

const (
	ShareRowExclusive LockMode = "SHARE ROW EXCLUSIVE"
	Exclusive         LockMode = "EXCLUSIVE"
)

// LockTable takes a table lock inside the transaction carried by ctx.
// The lock is held until that transaction ends.
func LockTable(ctx context.Context, table string, mode LockMode) error {
	sqlTx, ok := txcontext.From(ctx)
	if !ok {
		return fmt.Errorf("lock %s: %w", table, txcontext.ErrNoTransaction)
	}
	query := fmt.Sprintf("LOCK TABLE %s IN %s MODE", pq.QuoteIdentifier(table), mode)
	if _, err := sqlTx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("lock %s: %w", table, err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a unique-constraint violation from
// either supported driver.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
