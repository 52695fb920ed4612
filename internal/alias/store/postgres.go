// Package store persists alias rows in PostgreSQL.
//
// One generic store serves both alias tables. Every write is race-safe under
// concurrent callers: inserts run inside a savepoint and a lost unique race is
// recovered by refetching the winner's row, so callers never see the
// constraint violation and their transaction stays usable. The only race that
// surfaces is two different targets claiming one identifier.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"litgraph/internal/alias"
	"litgraph/internal/platform/metrics"
	"litgraph/internal/platform/postgres"
	id "litgraph/pkg/domain"
	"litgraph/pkg/platform/sentinel"
	txcontext "litgraph/pkg/platform/tx"
)

// ErrCollision is returned when an identifier is already linked to a
// different target.
var ErrCollision = fmt.Errorf("alias linked to another target: %w", sentinel.ErrConflict)

// ErrPermanent is returned when unlinking an alias of a permanent scheme.
var ErrPermanent = fmt.Errorf("alias is permanent: %w", sentinel.ErrInvalidState)

// PostgresStore manages one alias table.
type PostgresStore[T id.Target] struct {
	db      *sql.DB
	tx      *txcontext.Runner
	table   alias.Table
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option[T id.Target] func(*PostgresStore[T])

func WithMetrics[T id.Target](m *metrics.Metrics) Option[T] {
	return func(s *PostgresStore[T]) {
		s.metrics = m
	}
}

func WithLogger[T id.Target](logger *slog.Logger) Option[T] {
	return func(s *PostgresStore[T]) {
		s.logger = logger
	}
}

func New[T id.Target](db *sql.DB, table alias.Table, opts ...Option[T]) *PostgresStore[T] {
	s := &PostgresStore[T]{
		db:     db,
		tx:     txcontext.NewRunner(db),
		table:  table,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewPersonStore returns the store for person aliases.
func NewPersonStore(db *sql.DB, opts ...Option[id.PersonID]) *PostgresStore[id.PersonID] {
	return New(db, alias.PersonTable, opts...)
}

// NewPaperStore returns the store for paper aliases.
func NewPaperStore(db *sql.DB, opts ...Option[id.PaperID]) *PostgresStore[id.PaperID] {
	return New(db, alias.PaperTable, opts...)
}

// Table describes the table this store manages.
func (s *PostgresStore[T]) Table() alias.Table {
	return s.table
}

func (s *PostgresStore[T]) execer(ctx context.Context) txcontext.Execer {
	return txcontext.Conn(ctx, s.db)
}

// CheckAvailable reports whether pair is free to link to excluding: either
// absent, unlinked, or already linked to excluding itself. A zero excluding
// treats every linked row as taken.
func (s *PostgresStore[T]) CheckAvailable(ctx context.Context, pair alias.Pair, excluding T) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE scheme = $1 AND identifier = $2
			  AND target_id IS NOT NULL AND target_id <> $3
		)
	`, s.table.Name)
	var taken bool
	if err := s.execer(ctx).QueryRowContext(ctx, query, string(pair.Scheme), pair.Identifier, int64(excluding)).Scan(&taken); err != nil {
		return false, fmt.Errorf("check alias available: %w", err)
	}
	return !taken, nil
}

// FindByPair loads the row for pair.
func (s *PostgresStore[T]) FindByPair(ctx context.Context, pair alias.Pair) (*alias.Alias[T], error) {
	return s.findByPair(ctx, pair, false)
}

// FindByID loads a row by primary key. With forUpdate the row stays locked
// until the surrounding transaction ends.
func (s *PostgresStore[T]) FindByID(ctx context.Context, aliasID int64, forUpdate bool) (*alias.Alias[T], error) {
	query := fmt.Sprintf(`SELECT id, scheme, identifier, target_id FROM %s WHERE id = $1`, s.table.Name)
	if forUpdate {
		query += " FOR UPDATE"
	}
	a, err := scanAlias[T](s.execer(ctx).QueryRowContext(ctx, query, aliasID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find alias by id: %w", err)
	}
	return a, nil
}

func (s *PostgresStore[T]) findByPair(ctx context.Context, pair alias.Pair, forUpdate bool) (*alias.Alias[T], error) {
	query := fmt.Sprintf(`
		SELECT id, scheme, identifier, target_id FROM %s
		WHERE scheme = $1 AND identifier = $2
	`, s.table.Name)
	if forUpdate {
		query += " FOR UPDATE"
	}
	a, err := scanAlias[T](s.execer(ctx).QueryRowContext(ctx, query, string(pair.Scheme), pair.Identifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find alias: %w", err)
	}
	return a, nil
}

// CreateAlias returns the row for pair, inserting an unlinked placeholder if
// none exists. Concurrent callers all receive the same row.
func (s *PostgresStore[T]) CreateAlias(ctx context.Context, pair alias.Pair) (*alias.Alias[T], error) {
	var result *alias.Alias[T]
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.findByPair(ctx, pair, false)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		inserted, err := s.insert(ctx, pair, 0)
		if err == nil {
			result = inserted
			return nil
		}
		if !postgres.IsUniqueViolation(err) {
			return err
		}
		s.metrics.IncAliasInsertRace(s.table.Name)

		result, err = s.findByPair(ctx, pair, false)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create alias %s: %w", pair, err)
	}
	return result, nil
}

// LinkAlias points pair at target, creating the row when missing. Linking a
// row already owned by target is a no-op. ErrCollision is returned when the
// row belongs to another target.
func (s *PostgresStore[T]) LinkAlias(ctx context.Context, pair alias.Pair, target T) (*alias.Alias[T], error) {
	if !id.Valid(target) {
		return nil, fmt.Errorf("link alias %s: target is required", pair)
	}
	var result *alias.Alias[T]
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.findByPair(ctx, pair, true)
		if errors.Is(err, sentinel.ErrNotFound) {
			inserted, insertErr := s.insert(ctx, pair, target)
			if insertErr == nil {
				result = inserted
				return nil
			}
			if !postgres.IsUniqueViolation(insertErr) {
				return insertErr
			}
			// Another linker committed the row first; fall through to
			// the existing-row path with the winner locked.
			s.metrics.IncAliasInsertRace(s.table.Name)
			existing, err = s.findByPair(ctx, pair, true)
		}
		if err != nil {
			return err
		}
		result, err = s.linkExisting(ctx, existing, target)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("link alias %s: %w", pair, err)
	}
	return result, nil
}

// linkExisting requires the row to be locked by the caller.
func (s *PostgresStore[T]) linkExisting(ctx context.Context, a *alias.Alias[T], target T) (*alias.Alias[T], error) {
	if a.Target == target {
		return a, nil
	}
	if a.Linked() {
		s.metrics.IncAliasCollision(s.table.Name)
		return nil, ErrCollision
	}
	query := fmt.Sprintf(`UPDATE %s SET target_id = $2 WHERE id = $1`, s.table.Name)
	if _, err := s.execer(ctx).ExecContext(ctx, query, a.ID, int64(target)); err != nil {
		return nil, fmt.Errorf("set alias target: %w", err)
	}
	linked := *a
	linked.Target = target
	return &linked, nil
}

// insert runs inside a savepoint so a unique violation leaves the caller's
// transaction usable.
func (s *PostgresStore[T]) insert(ctx context.Context, pair alias.Pair, target T) (*alias.Alias[T], error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (scheme, identifier, target_id)
		VALUES ($1, $2, $3)
		RETURNING id, scheme, identifier, target_id
	`, s.table.Name)
	var targetArg any
	if id.Valid(target) {
		targetArg = int64(target)
	}
	var inserted *alias.Alias[T]
	err := txcontext.Savepoint(ctx, func(ctx context.Context) error {
		var err error
		inserted, err = scanAlias[T](s.execer(ctx).QueryRowContext(ctx, query, string(pair.Scheme), pair.Identifier, targetArg))
		return err
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// Unlink detaches a from the target it had when it was read. If the row was
// relinked or unlinked in the meantime nothing changes and false is returned.
func (s *PostgresStore[T]) Unlink(ctx context.Context, a *alias.Alias[T]) (bool, error) {
	if a.Scheme.Permanent() {
		return false, ErrPermanent
	}
	if !a.Linked() {
		return false, nil
	}
	query := fmt.Sprintf(`UPDATE %s SET target_id = NULL WHERE id = $1 AND target_id = $2`, s.table.Name)
	res, err := s.execer(ctx).ExecContext(ctx, query, a.ID, int64(a.Target))
	if err != nil {
		return false, fmt.Errorf("unlink alias: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unlink alias rows affected: %w", err)
	}
	if rows == 0 {
		s.metrics.IncAliasUnlinkStale(s.table.Name)
		s.logger.DebugContext(ctx, "alias unlink skipped, target changed concurrently",
			"table", s.table.Name,
			"alias_id", a.ID,
		)
		return false, nil
	}
	return true, nil
}

// BulkCreateUnlinked returns one row per input pair, creating unlinked rows
// for pairs not yet stored. The result is aligned with pairs, duplicates
// included. The table is locked for the rest of the transaction.
func (s *PostgresStore[T]) BulkCreateUnlinked(ctx context.Context, pairs []alias.Pair) ([]*alias.Alias[T], error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	var result []*alias.Alias[T]
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.LockTable(ctx); err != nil {
			return err
		}
		known, err := s.FindByPairs(ctx, pairs)
		if err != nil {
			return err
		}

		var missing []alias.Pair
		for _, p := range pairs {
			if _, ok := known[p]; ok {
				continue
			}
			known[p] = nil
			missing = append(missing, p)
		}

		if len(missing) > 0 {
			schemes, identifiers := splitPairs(missing)
			query := fmt.Sprintf(`
				INSERT INTO %s (scheme, identifier)
				SELECT * FROM unnest($1::text[], $2::text[])
				RETURNING id, scheme, identifier, target_id
			`, s.table.Name)
			rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(schemes), pq.Array(identifiers))
			if err != nil {
				return fmt.Errorf("insert aliases: %w", err)
			}
			created, err := collectAliases[T](rows)
			if err != nil {
				return err
			}
			for _, a := range created {
				known[a.Pair()] = a
			}
		}

		result = make([]*alias.Alias[T], len(pairs))
		for i, p := range pairs {
			result[i] = known[p]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bulk create aliases: %w", err)
	}
	return result, nil
}

// FindByPairs loads every stored row among pairs in one query.
func (s *PostgresStore[T]) FindByPairs(ctx context.Context, pairs []alias.Pair) (map[alias.Pair]*alias.Alias[T], error) {
	return s.findByPairs(ctx, pairs, false)
}

// FindLinked loads the linked rows among pairs in one query.
func (s *PostgresStore[T]) FindLinked(ctx context.Context, pairs []alias.Pair) (map[alias.Pair]*alias.Alias[T], error) {
	return s.findByPairs(ctx, pairs, true)
}

func (s *PostgresStore[T]) findByPairs(ctx context.Context, pairs []alias.Pair, linkedOnly bool) (map[alias.Pair]*alias.Alias[T], error) {
	found := make(map[alias.Pair]*alias.Alias[T], len(pairs))
	if len(pairs) == 0 {
		return found, nil
	}
	schemes, identifiers := splitPairs(pairs)
	query := fmt.Sprintf(`
		SELECT a.id, a.scheme, a.identifier, a.target_id
		FROM %s a
		JOIN unnest($1::text[], $2::text[]) AS p(scheme, identifier)
		  ON a.scheme = p.scheme AND a.identifier = p.identifier
	`, s.table.Name)
	if linkedOnly {
		query += " WHERE a.target_id IS NOT NULL"
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(schemes), pq.Array(identifiers))
	if err != nil {
		return nil, fmt.Errorf("find aliases: %w", err)
	}
	aliases, err := collectAliases[T](rows)
	if err != nil {
		return nil, err
	}
	for _, a := range aliases {
		found[a.Pair()] = a
	}
	return found, nil
}

// ListByTargets returns every row linked to one of targets, ordered by id.
func (s *PostgresStore[T]) ListByTargets(ctx context.Context, targets []T) ([]*alias.Alias[T], error) {
	if len(targets) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(targets))
	for i, t := range targets {
		ids[i] = int64(t)
	}
	query := fmt.Sprintf(`
		SELECT id, scheme, identifier, target_id FROM %s
		WHERE target_id = ANY($1::bigint[])
		ORDER BY id
	`, s.table.Name)
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list aliases by target: %w", err)
	}
	return collectAliases[T](rows)
}

// ListByTarget returns the rows linked to target.
func (s *PostgresStore[T]) ListByTarget(ctx context.Context, target T) ([]*alias.Alias[T], error) {
	return s.ListByTargets(ctx, []T{target})
}

// LockTable blocks concurrent alias writers until the transaction in ctx ends.
func (s *PostgresStore[T]) LockTable(ctx context.Context) error {
	return postgres.LockTable(ctx, s.table.Name, postgres.ShareRowExclusive)
}

func splitPairs(pairs []alias.Pair) ([]string, []string) {
	schemes := make([]string, len(pairs))
	identifiers := make([]string, len(pairs))
	for i, p := range pairs {
		schemes[i] = string(p.Scheme)
		identifiers[i] = p.Identifier
	}
	return schemes, identifiers
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlias[T id.Target](row scanner) (*alias.Alias[T], error) {
	var (
		a      alias.Alias[T]
		scheme string
		target sql.NullInt64
	)
	if err := row.Scan(&a.ID, &scheme, &a.Identifier, &target); err != nil {
		return nil, err
	}
	a.Scheme = alias.Scheme(scheme)
	if target.Valid {
		a.Target = T(target.Int64)
	}
	return &a, nil
}

func collectAliases[T id.Target](rows *sql.Rows) ([]*alias.Alias[T], error) {
	defer rows.Close()
	var out []*alias.Alias[T]
	for rows.Next() {
		a, err := scanAlias[T](rows)
		if err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aliases: %w", err)
	}
	return out, nil
}
