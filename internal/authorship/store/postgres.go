// Package store persists authorship references in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"litgraph/internal/alias"
	"litgraph/internal/authorship"
	id "litgraph/pkg/domain"
	"litgraph/pkg/platform/sentinel"
	txcontext "litgraph/pkg/platform/tx"
)

// PostgresStore reads and writes paper_author_references. Callers hold the
// paper row lock for any write.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Execer {
	return txcontext.Conn(ctx, s.db)
}

const referenceSelect = `
	SELECT r.id, r.paper_id, r.author_alias_id, r.confirmed, a.scheme, a.identifier, a.target_id
	FROM paper_author_references r
	JOIN person_aliases a ON a.id = r.author_alias_id
`

// Create inserts a pending reference unless one exists for the pair.
// created is false when the existing row is returned.
func (s *PostgresStore) Create(ctx context.Context, paperID id.PaperID, aliasID int64) (*authorship.Reference, bool, error) {
	var refID int64
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO paper_author_references (paper_id, author_alias_id, confirmed)
		VALUES ($1, $2, NULL)
		ON CONFLICT (paper_id, author_alias_id) DO NOTHING
		RETURNING id
	`, int64(paperID), aliasID).Scan(&refID)
	created := true
	if errors.Is(err, sql.ErrNoRows) {
		created = false
	} else if err != nil {
		return nil, false, fmt.Errorf("create reference: %w", err)
	}
	ref, err := s.FindByPair(ctx, paperID, aliasID)
	if err != nil {
		return nil, false, err
	}
	return ref, created, nil
}

// BulkCreatePending adds pending references from paperID to each alias,
// skipping pairs that already exist.
func (s *PostgresStore) BulkCreatePending(ctx context.Context, paperID id.PaperID, aliasIDs []int64) error {
	if len(aliasIDs) == 0 {
		return nil
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO paper_author_references (paper_id, author_alias_id, confirmed)
		SELECT $1, a, NULL FROM unnest($2::bigint[]) AS a
		ON CONFLICT (paper_id, author_alias_id) DO NOTHING
	`, int64(paperID), pq.Array(aliasIDs))
	if err != nil {
		return fmt.Errorf("bulk create references: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByPair(ctx context.Context, paperID id.PaperID, aliasID int64) (*authorship.Reference, error) {
	ref, err := scanReference(s.execer(ctx).QueryRowContext(ctx,
		referenceSelect+` WHERE r.paper_id = $1 AND r.author_alias_id = $2`, int64(paperID), aliasID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find reference: %w", err)
	}
	return ref, nil
}

// FindByID loads a reference. With forUpdate the reference row is locked.
func (s *PostgresStore) FindByID(ctx context.Context, refID id.ReferenceID, forUpdate bool) (*authorship.Reference, error) {
	query := referenceSelect + ` WHERE r.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF r`
	}
	ref, err := scanReference(s.execer(ctx).QueryRowContext(ctx, query, int64(refID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find reference by id: %w", err)
	}
	return ref, nil
}

// ListByPaper returns the references of a paper in insertion order.
func (s *PostgresStore) ListByPaper(ctx context.Context, paperID id.PaperID) ([]*authorship.Reference, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, referenceSelect+` WHERE r.paper_id = $1 ORDER BY r.id`, int64(paperID))
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()
	var out []*authorship.Reference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	return out, nil
}

// HasRejected reports whether person rejected authorship of paperID through
// any of their linked aliases.
func (s *PostgresStore) HasRejected(ctx context.Context, paperID id.PaperID, person id.PersonID) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM paper_author_references r
			JOIN person_aliases a ON a.id = r.author_alias_id
			WHERE r.paper_id = $1 AND a.target_id = $2 AND r.confirmed = FALSE
		)
	`, int64(paperID), int64(person)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check rejected reference: %w", err)
	}
	return exists, nil
}

// PapersWithReferences filters paperIDs to those referencing person through
// a linked alias.
func (s *PostgresStore) PapersWithReferences(ctx context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error) {
	return s.paperQuery(ctx, `
		SELECT DISTINCT r.paper_id FROM paper_author_references r
		JOIN person_aliases a ON a.id = r.author_alias_id
		WHERE a.target_id = $1 AND r.paper_id = ANY($2::bigint[])
		ORDER BY r.paper_id
	`, int64(person), pq.Array(int64s(paperIDs)))
}

// ConfirmedPapers filters paperIDs to those with at least one confirmed
// reference of person.
func (s *PostgresStore) ConfirmedPapers(ctx context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error) {
	if len(paperIDs) == 0 {
		return nil, nil
	}
	return s.paperQuery(ctx, `
		SELECT DISTINCT r.paper_id FROM paper_author_references r
		JOIN person_aliases a ON a.id = r.author_alias_id
		WHERE a.target_id = $1 AND r.paper_id = ANY($2::bigint[]) AND r.confirmed = TRUE
		ORDER BY r.paper_id
	`, int64(person), pq.Array(int64s(paperIDs)))
}

// PapersByAlias returns the papers referencing aliasID, optionally only
// those where the reference is confirmed.
func (s *PostgresStore) PapersByAlias(ctx context.Context, aliasID int64, confirmedOnly bool) ([]id.PaperID, error) {
	query := `SELECT DISTINCT paper_id FROM paper_author_references WHERE author_alias_id = $1`
	if confirmedOnly {
		query += ` AND confirmed = TRUE`
	}
	return s.paperQuery(ctx, query+` ORDER BY paper_id`, aliasID)
}

// SetStateForPerson moves every reference of person on paperIDs into state
// and returns how many rows changed. Rows already in state are untouched.
func (s *PostgresStore) SetStateForPerson(ctx context.Context, person id.PersonID, paperIDs []id.PaperID, state authorship.Confirmation) (int64, error) {
	if len(paperIDs) == 0 {
		return 0, nil
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE paper_author_references r
		SET confirmed = $3
		FROM person_aliases a
		WHERE a.id = r.author_alias_id
		  AND a.target_id = $1
		  AND r.paper_id = ANY($2::bigint[])
		  AND r.confirmed IS DISTINCT FROM $3
	`, int64(person), pq.Array(int64s(paperIDs)), state.NullBool())
	if err != nil {
		return 0, fmt.Errorf("set reference state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("set reference state rows affected: %w", err)
	}
	return n, nil
}

// ResetAlias returns every decided reference of aliasID to pending.
func (s *PostgresStore) ResetAlias(ctx context.Context, aliasID int64) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE paper_author_references SET confirmed = NULL
		WHERE author_alias_id = $1 AND confirmed IS NOT NULL
	`, aliasID)
	if err != nil {
		return 0, fmt.Errorf("reset alias references: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset alias references rows affected: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Delete(ctx context.Context, refID id.ReferenceID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM paper_author_references WHERE id = $1`, int64(refID))
	if err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reference rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// UnrejectedAuthors returns the persons holding a pending or confirmed
// reference on paperID through a linked alias.
func (s *PostgresStore) UnrejectedAuthors(ctx context.Context, paperID id.PaperID) ([]id.PersonID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT DISTINCT a.target_id FROM paper_author_references r
		JOIN person_aliases a ON a.id = r.author_alias_id
		WHERE r.paper_id = $1 AND a.target_id IS NOT NULL AND r.confirmed IS NOT FALSE
		ORDER BY a.target_id
	`, int64(paperID))
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()
	var out []id.PersonID
	for rows.Next() {
		var personID int64
		if err := rows.Scan(&personID); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		out = append(out, id.PersonID(personID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authors: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) paperQuery(ctx context.Context, query string, args ...any) ([]id.PaperID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query papers: %w", err)
	}
	defer rows.Close()
	var out []id.PaperID
	for rows.Next() {
		var paperID int64
		if err := rows.Scan(&paperID); err != nil {
			return nil, fmt.Errorf("scan paper id: %w", err)
		}
		out = append(out, id.PaperID(paperID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paper ids: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReference(row scanner) (*authorship.Reference, error) {
	var (
		ref          authorship.Reference
		refID, paper int64
		confirmed    sql.NullBool
		scheme       string
		target       sql.NullInt64
	)
	if err := row.Scan(&refID, &paper, &ref.AliasID, &confirmed, &scheme, &ref.Alias.Identifier, &target); err != nil {
		return nil, err
	}
	ref.ID = id.ReferenceID(refID)
	ref.PaperID = id.PaperID(paper)
	ref.Confirmed = authorship.FromNullBool(confirmed)
	ref.Alias.Scheme = alias.Scheme(scheme)
	ref.Author = id.PersonID(target.Int64)
	return &ref, nil
}

func int64s[T ~int64](ids []T) []int64 {
	out := make([]int64, len(ids))
	for i, v := range ids {
		out[i] = int64(v)
	}
	return out
}
