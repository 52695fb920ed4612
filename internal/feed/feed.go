// Package feed stores the append-only activity events shown in person feeds.
//
// Every insert or delete also writes a feed_outbox row in the same
// transaction so the relay can fan the change out without dual writes.
package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"litgraph/internal/platform/metrics"
	id "litgraph/pkg/domain"
	txcontext "litgraph/pkg/platform/tx"
	"litgraph/pkg/requestcontext"
)

// EventType names a kind of feed event.
type EventType string

const (
	PaperPosted         EventType = "paper_posted"
	AuthorshipConfirmed EventType = "authorship_confirmed"
	PaperReview         EventType = "paper_review"
)

// Action records whether an outbox row announces a created or removed event.
type Action string

const (
	ActionCreated Action = "created"
	ActionDeleted Action = "deleted"
)

// Event is one feed entry.
type Event struct {
	ID       id.FeedEventID
	PersonID id.PersonID
	PaperID  id.PaperID
	Type     EventType
	Date     time.Time
}

// OutboxEntry is a pending broker message.
type OutboxEntry struct {
	ID        uuid.UUID
	Action    Action
	Type      EventType
	PersonID  id.PersonID
	PaperID   id.PaperID
	Payload   []byte
	CreatedAt time.Time
}

// Message is the JSON body published for an outbox entry.
type Message struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Type      EventType `json:"event_type"`
	PersonID  int64     `json:"person_id"`
	PaperID   int64     `json:"paper_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PostgresStore writes feed_events and feed_outbox.
type PostgresStore struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

type Option func(*PostgresStore)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PostgresStore) {
		s.metrics = m
	}
}

func NewPostgres(db *sql.DB, opts ...Option) *PostgresStore {
	s := &PostgresStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Execer {
	return txcontext.Conn(ctx, s.db)
}

// Append inserts events unconditionally.
func (s *PostgresStore) Append(ctx context.Context, events ...Event) error {
	now := requestcontext.Now(ctx)
	for _, e := range events {
		if e.Date.IsZero() {
			e.Date = now
		}
		_, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO feed_events (person_id, paper_id, event_type, event_date)
			VALUES ($1, $2, $3, $4)
		`, int64(e.PersonID), int64(e.PaperID), string(e.Type), e.Date)
		if err != nil {
			return fmt.Errorf("append feed event: %w", err)
		}
		if err := s.enqueue(ctx, ActionCreated, e.Type, e.PersonID, e.PaperID, e.Date); err != nil {
			return err
		}
		s.metrics.AddFeedEvents(string(e.Type), string(ActionCreated), 1)
	}
	return nil
}

// EnsureAuthorship creates the authorship event for each paper in paperIDs
// that lacks one for person, returning the papers that gained an event.
func (s *PostgresStore) EnsureAuthorship(ctx context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error) {
	if len(paperIDs) == 0 {
		return nil, nil
	}
	now := requestcontext.Now(ctx)
	created, err := s.paperQuery(ctx, `
		INSERT INTO feed_events (person_id, paper_id, event_type, event_date)
		SELECT $1, p, $3, $4 FROM unnest($2::bigint[]) AS p
		WHERE NOT EXISTS (
			SELECT 1 FROM feed_events f
			WHERE f.person_id = $1 AND f.paper_id = p AND f.event_type = $3
		)
		RETURNING paper_id
	`, int64(person), pq.Array(int64s(paperIDs)), string(AuthorshipConfirmed), now)
	if err != nil {
		return nil, fmt.Errorf("ensure authorship events: %w", err)
	}
	for _, paperID := range created {
		if err := s.enqueue(ctx, ActionCreated, AuthorshipConfirmed, person, paperID, now); err != nil {
			return nil, err
		}
	}
	s.metrics.AddFeedEvents(string(AuthorshipConfirmed), string(ActionCreated), len(created))
	return created, nil
}

// DeleteAuthorship removes person's authorship events on paperIDs and
// returns the papers that lost one.
func (s *PostgresStore) DeleteAuthorship(ctx context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error) {
	if len(paperIDs) == 0 {
		return nil, nil
	}
	deleted, err := s.paperQuery(ctx, `
		DELETE FROM feed_events
		WHERE person_id = $1 AND paper_id = ANY($2::bigint[]) AND event_type = $3
		RETURNING paper_id
	`, int64(person), pq.Array(int64s(paperIDs)), string(AuthorshipConfirmed))
	if err != nil {
		return nil, fmt.Errorf("delete authorship events: %w", err)
	}
	now := requestcontext.Now(ctx)
	for _, paperID := range deleted {
		if err := s.enqueue(ctx, ActionDeleted, AuthorshipConfirmed, person, paperID, now); err != nil {
			return nil, err
		}
	}
	s.metrics.AddFeedEvents(string(AuthorshipConfirmed), string(ActionDeleted), len(deleted))
	return deleted, nil
}

// Count returns how many events of type exist for (person, paper).
func (s *PostgresStore) Count(ctx context.Context, person id.PersonID, paperID id.PaperID, eventType EventType) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM feed_events
		WHERE person_id = $1 AND paper_id = $2 AND event_type = $3
	`, int64(person), int64(paperID), string(eventType)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count feed events: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) enqueue(ctx context.Context, action Action, eventType EventType, person id.PersonID, paperID id.PaperID, at time.Time) error {
	entryID := uuid.New()
	payload, err := json.Marshal(Message{
		ID:        entryID.String(),
		Action:    action,
		Type:      eventType,
		PersonID:  int64(person),
		PaperID:   int64(paperID),
		Timestamp: at,
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO feed_outbox (id, action, event_type, person_id, paper_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entryID, string(action), string(eventType), int64(person), int64(paperID), payload, at)
	if err != nil {
		return fmt.Errorf("enqueue feed outbox: %w", err)
	}
	return nil
}

// FetchPending locks up to limit unpublished outbox rows, oldest first.
// Rows locked by another relay are skipped. Must run inside a transaction.
func (s *PostgresStore) FetchPending(ctx context.Context, limit int) ([]*OutboxEntry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, action, event_type, person_id, paper_id, payload, created_at
		FROM feed_outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox: %w", err)
	}
	defer rows.Close()
	var out []*OutboxEntry
	for rows.Next() {
		var (
			e              OutboxEntry
			action, evType string
			person, paper  int64
		)
		if err := rows.Scan(&e.ID, &action, &evType, &person, &paper, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Action = Action(action)
		e.Type = EventType(evType)
		e.PersonID = id.PersonID(person)
		e.PaperID = id.PaperID(paper)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

// MarkPublished stamps the given outbox rows as delivered.
func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, v := range ids {
		raw[i] = v.String()
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE feed_outbox SET published_at = $2 WHERE id = ANY($1::uuid[])
	`, pq.Array(raw), requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func (s *PostgresStore) paperQuery(ctx context.Context, query string, args ...any) ([]id.PaperID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []id.PaperID
	for rows.Next() {
		var paperID int64
		if err := rows.Scan(&paperID); err != nil {
			return nil, err
		}
		out = append(out, id.PaperID(paperID))
	}
	return out, rows.Err()
}

func int64s[T ~int64](ids []T) []int64 {
	out := make([]int64, len(ids))
	for i, v := range ids {
		out[i] = int64(v)
	}
	return out
}
