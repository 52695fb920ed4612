// Package store persists import source state in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"litgraph/internal/importer"
	id "litgraph/pkg/domain"
	"litgraph/pkg/platform/sentinel"
	txcontext "litgraph/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Execer {
	return txcontext.Conn(ctx, s.db)
}

const sourceColumns = `id, code, name, bot_profile_id, import_cursor, lease_id, lease_expires`

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*importer.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM paper_import_sources WHERE code = $1`
	src, err := scanSource(s.execer(ctx).QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find import source: %w", err)
	}
	return src, nil
}

// Create inserts src and fills its ID. A taken code is a unique violation.
func (s *PostgresStore) Create(ctx context.Context, src *importer.Source) error {
	query := `
		INSERT INTO paper_import_sources (code, name, bot_profile_id, import_cursor)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var sourceID int64
	err := s.execer(ctx).QueryRowContext(ctx, query, src.Code, src.Name, int64(src.BotProfile), src.Cursor).Scan(&sourceID)
	if err != nil {
		return fmt.Errorf("create import source: %w", err)
	}
	src.ID = id.SourceID(sourceID)
	return nil
}

// Lock loads and row-locks a source until the transaction in ctx ends.
func (s *PostgresStore) Lock(ctx context.Context, sourceID id.SourceID) (*importer.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM paper_import_sources WHERE id = $1 FOR UPDATE`
	src, err := scanSource(s.execer(ctx).QueryRowContext(ctx, query, int64(sourceID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock import source: %w", err)
	}
	return src, nil
}

// SetLease stores the run lease. uuid.Nil clears it.
func (s *PostgresStore) SetLease(ctx context.Context, sourceID id.SourceID, lease uuid.UUID, expires time.Time) error {
	var leaseArg, expiresArg any
	if lease != uuid.Nil {
		leaseArg = lease.String()
		expiresArg = expires
	}
	return s.update(ctx, "set import lease",
		`UPDATE paper_import_sources SET lease_id = $2, lease_expires = $3 WHERE id = $1`,
		int64(sourceID), leaseArg, expiresArg)
}

func (s *PostgresStore) SetCursor(ctx context.Context, sourceID id.SourceID, cursor string) error {
	return s.update(ctx, "set import cursor",
		`UPDATE paper_import_sources SET import_cursor = $2 WHERE id = $1`,
		int64(sourceID), cursor)
}

func (s *PostgresStore) update(ctx context.Context, what, query string, args ...any) error {
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*importer.Source, error) {
	var (
		src      importer.Source
		rawID    int64
		botID    int64
		leaseID  sql.NullString
		leaseExp sql.NullTime
	)
	if err := row.Scan(&rawID, &src.Code, &src.Name, &botID, &src.Cursor, &leaseID, &leaseExp); err != nil {
		return nil, err
	}
	src.ID = id.SourceID(rawID)
	src.BotProfile = id.PersonID(botID)
	if leaseID.Valid {
		parsed, err := uuid.Parse(leaseID.String)
		if err != nil {
			return nil, fmt.Errorf("parse lease id: %w", err)
		}
		src.LeaseID = parsed
	}
	if leaseExp.Valid {
		src.LeaseExpires = leaseExp.Time
	}
	return &src, nil
}
