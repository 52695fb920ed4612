package paper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"litgraph/internal/platform/postgres"
	id "litgraph/pkg/domain"
	"litgraph/pkg/platform/sentinel"
	txcontext "litgraph/pkg/platform/tx"
	"litgraph/pkg/requestcontext"
)

// PostgresStore persists persons, papers and their satellite rows.
// Pure I/O: ownership and state rules live in the services.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Execer {
	return txcontext.Conn(ctx, s.db)
}

// ActivePersonExists reports whether an active person has username.
func (s *PostgresStore) ActivePersonExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM persons WHERE username = $1 AND is_active)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check person exists: %w", err)
	}
	return exists, nil
}

// PublicPaperExists reports whether a public paper has paperID.
func (s *PostgresStore) PublicPaperExists(ctx context.Context, paperID id.PaperID) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM papers WHERE id = $1 AND public)`, int64(paperID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check paper exists: %w", err)
	}
	return exists, nil
}

// CreatePerson inserts p and fills its ID. A taken username is a unique
// violation the caller inspects with postgres.IsUniqueViolation.
func (s *PostgresStore) CreatePerson(ctx context.Context, p *Person) error {
	query := `
		INSERT INTO persons (username, display_name, email, bio, is_active, is_bot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	if p.CreatedAt.IsZero() {
		p.CreatedAt = requestcontext.Now(ctx)
	}
	var personID int64
	err := s.execer(ctx).QueryRowContext(ctx, query,
		p.Username, p.DisplayName, p.Email, p.Bio, p.IsActive, p.IsBot, p.CreatedAt,
	).Scan(&personID)
	if err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	p.ID = id.PersonID(personID)
	return nil
}

func (s *PostgresStore) FindPerson(ctx context.Context, personID id.PersonID) (*Person, error) {
	query := `
		SELECT id, username, display_name, email, bio, is_active, is_bot, created_at
		FROM persons WHERE id = $1
	`
	var p Person
	var rawID int64
	err := s.execer(ctx).QueryRowContext(ctx, query, int64(personID)).Scan(
		&rawID, &p.Username, &p.DisplayName, &p.Email, &p.Bio, &p.IsActive, &p.IsBot, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find person: %w", err)
	}
	p.ID = id.PersonID(rawID)
	return &p, nil
}

// LockPersons blocks concurrent profile creation for the rest of the transaction.
func (s *PostgresStore) LockPersons(ctx context.Context) error {
	return postgres.LockTable(ctx, "persons", postgres.ShareRowExclusive)
}

const paperColumns = `id, name, abstract, year_published, cite_as, incomplete_metadata, public,
	posted_by, changed_by, date_posted, last_changed`

func (s *PostgresStore) FindPaper(ctx context.Context, paperID id.PaperID) (*Paper, error) {
	query := `SELECT ` + paperColumns + ` FROM papers WHERE id = $1`
	p, err := scanPaper(s.execer(ctx).QueryRowContext(ctx, query, int64(paperID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find paper: %w", err)
	}
	return p, nil
}

// LockPaper loads and row-locks one paper.
func (s *PostgresStore) LockPaper(ctx context.Context, paperID id.PaperID) (*Paper, error) {
	query := `SELECT ` + paperColumns + ` FROM papers WHERE id = $1 FOR UPDATE`
	p, err := scanPaper(s.execer(ctx).QueryRowContext(ctx, query, int64(paperID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock paper: %w", err)
	}
	return p, nil
}

// LockPapers row-locks every existing paper among paperIDs in id order, so
// concurrent mass actions acquire locks in the same sequence.
func (s *PostgresStore) LockPapers(ctx context.Context, paperIDs []id.PaperID) ([]*Paper, error) {
	if len(paperIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + paperColumns + ` FROM papers WHERE id = ANY($1::bigint[]) ORDER BY id FOR UPDATE`
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(int64s(paperIDs)))
	if err != nil {
		return nil, fmt.Errorf("lock papers: %w", err)
	}
	defer rows.Close()
	var out []*Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return out, nil
}

// FindPapers loads the papers among paperIDs, keyed by id. Missing ids are
// absent from the map.
func (s *PostgresStore) FindPapers(ctx context.Context, paperIDs []id.PaperID) (map[id.PaperID]*Paper, error) {
	out := make(map[id.PaperID]*Paper, len(paperIDs))
	if len(paperIDs) == 0 {
		return out, nil
	}
	query := `SELECT ` + paperColumns + ` FROM papers WHERE id = ANY($1::bigint[])`
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(int64s(paperIDs)))
	if err != nil {
		return nil, fmt.Errorf("find papers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return out, nil
}

// CreatePaper inserts p and fills its ID.
func (s *PostgresStore) CreatePaper(ctx context.Context, p *Paper) error {
	now := requestcontext.Now(ctx)
	if p.DatePosted.IsZero() {
		p.DatePosted = now
	}
	if p.LastChanged.IsZero() {
		p.LastChanged = now
	}
	query := `
		INSERT INTO papers (name, abstract, year_published, cite_as, incomplete_metadata, public,
			posted_by, changed_by, date_posted, last_changed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	var paperID int64
	err := s.execer(ctx).QueryRowContext(ctx, query,
		p.Name, p.Abstract, nullableInt(p.YearPublished), p.CiteAs, p.IncompleteMetadata, p.Public,
		nullablePerson(p.PostedBy), nullablePerson(p.ChangedBy), p.DatePosted, p.LastChanged,
	).Scan(&paperID)
	if err != nil {
		return fmt.Errorf("create paper: %w", err)
	}
	p.ID = id.PaperID(paperID)
	return nil
}

// Touch records who last changed the paper.
func (s *PostgresStore) Touch(ctx context.Context, paperID id.PaperID, changedBy id.PersonID) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE papers SET changed_by = $2, last_changed = $3 WHERE id = $1`,
		int64(paperID), nullablePerson(changedBy), requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("touch paper: %w", err)
	}
	return nil
}

// AddAuthorNames stores free-text author names in listed order.
func (s *PostgresStore) AddAuthorNames(ctx context.Context, paperID id.PaperID, names []string) error {
	if len(names) == 0 {
		return nil
	}
	positions := make([]int64, len(names))
	for i := range names {
		positions[i] = int64(i)
	}
	query := `
		INSERT INTO paper_author_names (paper_id, position, author_name)
		SELECT $1, p, n FROM unnest($2::int[], $3::text[]) AS t(p, n)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, int64(paperID), pq.Array(positions), pq.Array(names)); err != nil {
		return fmt.Errorf("add author names: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddKeywords(ctx context.Context, paperID id.PaperID, keywords []string) error {
	if len(keywords) == 0 {
		return nil
	}
	query := `INSERT INTO paper_keywords (paper_id, keyword) SELECT $1, k FROM unnest($2::text[]) AS k`
	if _, err := s.execer(ctx).ExecContext(ctx, query, int64(paperID), pq.Array(keywords)); err != nil {
		return fmt.Errorf("add keywords: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddSubfields(ctx context.Context, paperID id.PaperID, subfields []id.SubfieldID) error {
	if len(subfields) == 0 {
		return nil
	}
	query := `
		INSERT INTO paper_subfields (paper_id, subfield_id)
		SELECT $1, sf FROM unnest($2::bigint[]) AS sf
		ON CONFLICT DO NOTHING
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, int64(paperID), pq.Array(int64s(subfields))); err != nil {
		return fmt.Errorf("add subfields: %w", err)
	}
	return nil
}

// AddBibliography links paperID to the cited paper aliases.
func (s *PostgresStore) AddBibliography(ctx context.Context, paperID id.PaperID, aliasIDs []int64) error {
	if len(aliasIDs) == 0 {
		return nil
	}
	query := `
		INSERT INTO paper_bibliography (paper_id, alias_id)
		SELECT $1, a FROM unnest($2::bigint[]) AS a
		ON CONFLICT DO NOTHING
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, int64(paperID), pq.Array(aliasIDs)); err != nil {
		return fmt.Errorf("add bibliography: %w", err)
	}
	return nil
}

// BibliographyCounts returns the citation count of each paper in paperIDs.
func (s *PostgresStore) BibliographyCounts(ctx context.Context, paperIDs []id.PaperID) (map[id.PaperID]int, error) {
	counts := make(map[id.PaperID]int, len(paperIDs))
	if len(paperIDs) == 0 {
		return counts, nil
	}
	query := `
		SELECT p.id, COUNT(b.alias_id)
		FROM papers p
		LEFT JOIN paper_bibliography b ON b.paper_id = p.id
		WHERE p.id = ANY($1::bigint[])
		GROUP BY p.id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(int64s(paperIDs)))
	if err != nil {
		return nil, fmt.Errorf("count bibliography: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var paperID int64
		var n int
		if err := rows.Scan(&paperID, &n); err != nil {
			return nil, fmt.Errorf("scan bibliography count: %w", err)
		}
		counts[id.PaperID(paperID)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bibliography counts: %w", err)
	}
	return counts, nil
}

// CreateReview inserts r. A second live review by the same person is a
// unique violation.
func (s *PostgresStore) CreateReview(ctx context.Context, r *Review) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = requestcontext.Now(ctx)
	}
	query := `
		INSERT INTO paper_reviews (paper_id, posted_by, body, deleted, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
		RETURNING id
	`
	var reviewID int64
	err := s.execer(ctx).QueryRowContext(ctx, query, int64(r.PaperID), int64(r.PostedBy), r.Body, r.CreatedAt).Scan(&reviewID)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	r.ID = id.ReviewID(reviewID)
	return nil
}

// ReviewExists reports whether person ever reviewed paperID, counting
// deleted reviews.
func (s *PostgresStore) ReviewExists(ctx context.Context, paperID id.PaperID, person id.PersonID) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM paper_reviews WHERE paper_id = $1 AND posted_by = $2)`,
		int64(paperID), int64(person)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check review exists: %w", err)
	}
	return exists, nil
}

// ReviewedPapers returns the papers among paperIDs on which person has a
// live review.
func (s *PostgresStore) ReviewedPapers(ctx context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error) {
	if len(paperIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT DISTINCT paper_id FROM paper_reviews
		WHERE posted_by = $1 AND paper_id = ANY($2::bigint[]) AND NOT deleted
		ORDER BY paper_id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, int64(person), pq.Array(int64s(paperIDs)))
	if err != nil {
		return nil, fmt.Errorf("find reviewed papers: %w", err)
	}
	return collectPaperIDs(rows)
}

// ListSubfields returns every subfield keyed by name.
func (s *PostgresStore) ListSubfields(ctx context.Context) (map[string]*Subfield, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT id, field, name FROM science_subfields`)
	if err != nil {
		return nil, fmt.Errorf("list subfields: %w", err)
	}
	defer rows.Close()
	out := make(map[string]*Subfield)
	for rows.Next() {
		var sf Subfield
		var rawID int64
		if err := rows.Scan(&rawID, &sf.Field, &sf.Name); err != nil {
			return nil, fmt.Errorf("scan subfield: %w", err)
		}
		sf.ID = id.SubfieldID(rawID)
		out[sf.Name] = &sf
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subfields: %w", err)
	}
	return out, nil
}

// CreateSubfields inserts missing subfields; existing names are left alone.
func (s *PostgresStore) CreateSubfields(ctx context.Context, subfields []Subfield) error {
	if len(subfields) == 0 {
		return nil
	}
	fields := make([]string, len(subfields))
	names := make([]string, len(subfields))
	for i, sf := range subfields {
		fields[i] = sf.Field
		names[i] = sf.Name
	}
	query := `
		INSERT INTO science_subfields (field, name)
		SELECT * FROM unnest($1::text[], $2::text[])
		ON CONFLICT (name) DO NOTHING
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, pq.Array(fields), pq.Array(names)); err != nil {
		return fmt.Errorf("create subfields: %w", err)
	}
	return nil
}

// LockSubfields blocks concurrent subfield creation for the rest of the transaction.
func (s *PostgresStore) LockSubfields(ctx context.Context) error {
	return postgres.LockTable(ctx, "science_subfields", postgres.ShareRowExclusive)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPaper(row scanner) (*Paper, error) {
	var (
		p                   Paper
		rawID               int64
		year                sql.NullInt32
		postedBy, changedBy sql.NullInt64
	)
	err := row.Scan(&rawID, &p.Name, &p.Abstract, &year, &p.CiteAs, &p.IncompleteMetadata, &p.Public,
		&postedBy, &changedBy, &p.DatePosted, &p.LastChanged)
	if err != nil {
		return nil, err
	}
	p.ID = id.PaperID(rawID)
	if year.Valid {
		y := int(year.Int32)
		p.YearPublished = &y
	}
	p.PostedBy = id.PersonID(postedBy.Int64)
	p.ChangedBy = id.PersonID(changedBy.Int64)
	return &p, nil
}

func collectPaperIDs(rows *sql.Rows) ([]id.PaperID, error) {
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

func int64s[T ~int64](ids []T) []int64 {
	out := make([]int64, len(ids))
	for i, v := range ids {
		out[i] = int64(v)
	}
	return out
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullablePerson(p id.PersonID) any {
	if !id.Valid(p) {
		return nil
	}
	return int64(p)
}
