// Package service reconciles authorship claims between persons and papers.
//
// Every mutation runs in one transaction holding the row lock of each paper
// it touches. Before commit the person's AUTHORSHIP_CONFIRMED events on those
// papers are brought in line with their confirmed references: one event per
// paper with at least one confirmed reference, none otherwise.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"litgraph/internal/alias"
	"litgraph/internal/authorship"
	"litgraph/internal/feed"
	"litgraph/internal/paper"
	"litgraph/internal/platform/metrics"
	id "litgraph/pkg/domain"
	dErrors "litgraph/pkg/domain-errors"
	"litgraph/pkg/platform/sentinel"
)

var tracer = otel.Tracer("litgraph/authorship")

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Resolver validates identifiers and links aliases.
type Resolver interface {
	ResolveAuthor(ctx context.Context, scheme, identifier string) (*alias.PersonAlias, error)
	LinkPersonAlias(ctx context.Context, person id.PersonID, scheme, identifier string) (*alias.PersonAlias, error)
	LinkPaperAlias(ctx context.Context, paperID id.PaperID, scheme, identifier string) (*alias.PaperAlias, error)
}

type AliasStore[T id.Target] interface {
	FindByID(ctx context.Context, aliasID int64, forUpdate bool) (*alias.Alias[T], error)
	Unlink(ctx context.Context, a *alias.Alias[T]) (bool, error)
}

type ReferenceStore interface {
	Create(ctx context.Context, paperID id.PaperID, aliasID int64) (*authorship.Reference, bool, error)
	FindByID(ctx context.Context, refID id.ReferenceID, forUpdate bool) (*authorship.Reference, error)
	HasRejected(ctx context.Context, paperID id.PaperID, person id.PersonID) (bool, error)
	PapersWithReferences(ctx context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error)
	ConfirmedPapers(ctx context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error)
	PapersByAlias(ctx context.Context, aliasID int64, confirmedOnly bool) ([]id.PaperID, error)
	SetStateForPerson(ctx context.Context, person id.PersonID, paperIDs []id.PaperID, state authorship.Confirmation) (int64, error)
	ResetAlias(ctx context.Context, aliasID int64) (int64, error)
	Delete(ctx context.Context, refID id.ReferenceID) error
	UnrejectedAuthors(ctx context.Context, paperID id.PaperID) ([]id.PersonID, error)
}

type PaperStore interface {
	FindPerson(ctx context.Context, personID id.PersonID) (*paper.Person, error)
	FindPaper(ctx context.Context, paperID id.PaperID) (*paper.Paper, error)
	LockPaper(ctx context.Context, paperID id.PaperID) (*paper.Paper, error)
	LockPapers(ctx context.Context, paperIDs []id.PaperID) ([]*paper.Paper, error)
	Touch(ctx context.Context, paperID id.PaperID, changedBy id.PersonID) error
	CreateReview(ctx context.Context, r *paper.Review) error
	ReviewExists(ctx context.Context, paperID id.PaperID, person id.PersonID) (bool, error)
	ReviewedPapers(ctx context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error)
}

type FeedStore interface {
	Append(ctx context.Context, events ...feed.Event) error
	EnsureAuthorship(ctx context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error)
	DeleteAuthorship(ctx context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error)
}

// Reconciler applies authorship and alias changes.
type Reconciler struct {
	tx          TxRunner
	resolver    Resolver
	personAlias AliasStore[id.PersonID]
	paperAlias  AliasStore[id.PaperID]
	refs        ReferenceStore
	papers      PaperStore
	feed        FeedStore
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// Deps groups the stores the Reconciler writes through.
type Deps struct {
	Tx          TxRunner
	Resolver    Resolver
	PersonAlias AliasStore[id.PersonID]
	PaperAlias  AliasStore[id.PaperID]
	References  ReferenceStore
	Papers      PaperStore
	Feed        FeedStore
}

func New(deps Deps, opts ...Option) *Reconciler {
	r := &Reconciler{
		tx:          deps.Tx,
		resolver:    deps.Resolver,
		personAlias: deps.PersonAlias,
		paperAlias:  deps.PaperAlias,
		refs:        deps.References,
		papers:      deps.Papers,
		feed:        deps.Feed,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsOwnedBy reports whether person may edit the paper: any person holding an
// unrejected reference through a linked alias, or the poster when the paper
// has no such author.
func (r *Reconciler) IsOwnedBy(ctx context.Context, person id.PersonID, paperID id.PaperID) (bool, error) {
	p, err := r.papers.FindPaper(ctx, paperID)
	if err != nil {
		return false, translateLoad(err, "paper")
	}
	return r.isOwnedBy(ctx, p, person)
}

func (r *Reconciler) isOwnedBy(ctx context.Context, p *paper.Paper, person id.PersonID) (bool, error) {
	authors, err := r.refs.UnrejectedAuthors(ctx, p.ID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authors")
	}
	if len(authors) > 0 {
		return slices.Contains(authors, person), nil
	}
	return id.Valid(p.PostedBy) && p.PostedBy == person, nil
}

// lockOwnedPaper loads paperID, locks it and checks that actor owns it.
func (r *Reconciler) lockOwnedPaper(ctx context.Context, actor id.PersonID, paperID id.PaperID) (*paper.Paper, error) {
	p, err := r.lockPaper(ctx, paperID)
	if err != nil {
		return nil, err
	}
	owned, err := r.isOwnedBy(ctx, p, actor)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, dErrors.New(dErrors.CodeForbidden, "only authors of this paper may edit it")
	}
	return p, nil
}

// lockPaper distinguishes a paper that never existed from one that vanished
// between lookup and lock.
func (r *Reconciler) lockPaper(ctx context.Context, paperID id.PaperID) (*paper.Paper, error) {
	if _, err := r.papers.FindPaper(ctx, paperID); err != nil {
		return nil, translateLoad(err, "paper")
	}
	p, err := r.papers.LockPaper(ctx, paperID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errLock()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock paper")
	}
	return p, nil
}

// syncAuthorshipEvents restores the feed invariant for person on paperIDs.
// The caller holds the row lock of every paper in paperIDs.
func (r *Reconciler) syncAuthorshipEvents(ctx context.Context, person id.PersonID, paperIDs []id.PaperID) error {
	if !id.Valid(person) || len(paperIDs) == 0 {
		return nil
	}
	confirmed, err := r.refs.ConfirmedPapers(ctx, person, paperIDs)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load confirmed papers")
	}
	if _, err := r.feed.EnsureAuthorship(ctx, person, confirmed); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record authorship event")
	}
	var unconfirmed []id.PaperID
	for _, p := range paperIDs {
		if !slices.Contains(confirmed, p) {
			unconfirmed = append(unconfirmed, p)
		}
	}
	if _, err := r.feed.DeleteAuthorship(ctx, person, unconfirmed); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove authorship event")
	}
	return nil
}

func (r *Reconciler) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, "authorship."+name, opts...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func translateLoad(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}

func errLock() error {
	return dErrors.New(dErrors.CodeLock, "database error, please try again later")
}
