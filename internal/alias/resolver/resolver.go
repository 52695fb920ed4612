// Package resolver validates and normalizes identifiers per scheme and links
// them to persons and papers through the alias stores.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"litgraph/internal/alias"
	"litgraph/internal/alias/store"
	id "litgraph/pkg/domain"
	dErrors "litgraph/pkg/domain-errors"
	strs "litgraph/pkg/platform/strings"
)

// AliasStore is the subset of the alias store the resolver needs.
type AliasStore[T id.Target] interface {
	Table() alias.Table
	CheckAvailable(ctx context.Context, pair alias.Pair, excluding T) (bool, error)
	CreateAlias(ctx context.Context, pair alias.Pair) (*alias.Alias[T], error)
	LinkAlias(ctx context.Context, pair alias.Pair, target T) (*alias.Alias[T], error)
}

// DefaultBlockedDomains are shadow-library hosts refused as URL identifiers.
var DefaultBlockedDomains = []string{
	"sci-hub.se", "sci-hub.st", "sci-hub.ru", "sci-hub.tw",
	"libgen.rs", "libgen.is", "libgen.li", "z-lib.org",
}

// Resolver validates identifiers and manages alias links.
type Resolver struct {
	persons AliasStore[id.PersonID]
	papers  AliasStore[id.PaperID]
	checker *checker
	logger  *slog.Logger
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithBlockedDomains replaces the URL denylist. Subdomains are blocked too.
func WithBlockedDomains(domains []string) Option {
	return func(r *Resolver) {
		r.checker.blockedDomains = strs.DedupeFunc(domains, func(d string) (string, bool) {
			d = strings.ToLower(strings.TrimSpace(d))
			return d, d != ""
		})
	}
}

// New builds a Resolver. directory may be nil, in which case internal
// identifiers are refused.
func New(directory Directory, persons AliasStore[id.PersonID], papers AliasStore[id.PaperID], opts ...Option) *Resolver {
	r := &Resolver{
		persons: persons,
		papers:  papers,
		checker: &checker{
			syntax:         validator.New(),
			directory:      directory,
			blockedDomains: DefaultBlockedDomains,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidateOptions tunes a single validation.
type ValidateOptions struct {
	// AllowInternal admits the permanent internal scheme, which only the
	// author-entry path may name.
	AllowInternal bool
}

// ValidateAndNormalize returns the canonical (scheme, identifier) pair or a
// coded error whose code is the validation kind. Only internal identifiers
// touch the database.
func (r *Resolver) ValidateAndNormalize(ctx context.Context, kind Kind, scheme, identifier string, opts ValidateOptions) (alias.Pair, error) {
	scheme = strings.TrimSpace(scheme)
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return alias.Pair{}, invalid("identifier is required")
	}

	s, ident, err := splitScheme(scheme, identifier)
	if err != nil {
		return alias.Pair{}, err
	}
	if len(s) > alias.MaxSchemeLength {
		return alias.Pair{}, dErrors.WithField(dErrors.Newf(dErrors.CodeMaxLength,
			"scheme must be at most %d characters", alias.MaxSchemeLength), "scheme")
	}
	if s == alias.SchemeInternal && !opts.AllowInternal {
		return alias.Pair{}, dErrors.WithField(dErrors.New(dErrors.CodeInvalid,
			"internal identifiers are assigned automatically"), "scheme")
	}
	if ident == "" {
		return alias.Pair{}, invalid("identifier is required")
	}

	if fn, ok := validatorsFor(kind)[s]; ok {
		ident, err = fn(ctx, r.checker, ident)
		if err != nil {
			return alias.Pair{}, err
		}
	}

	if limit := kind.table().MaxIdentifierLength; strs.RuneLen(ident) > limit {
		return alias.Pair{}, dErrors.WithField(dErrors.Newf(dErrors.CodeMaxLength,
			"identifier must be at most %d characters", limit), "identifier")
	}
	return alias.NewPair(s, ident), nil
}

// Normalize validates a harvested pair without database lookups. Internal
// identifiers are never accepted from external sources.
func (r *Resolver) Normalize(kind Kind, pair alias.Pair) (alias.Pair, error) {
	return r.ValidateAndNormalize(context.Background(), kind, string(pair.Scheme), pair.Identifier, ValidateOptions{})
}

// LinkPersonAlias validates the identifier and links it to person.
func (r *Resolver) LinkPersonAlias(ctx context.Context, person id.PersonID, scheme, identifier string) (*alias.PersonAlias, error) {
	pair, err := r.ValidateAndNormalize(ctx, KindPerson, scheme, identifier, ValidateOptions{})
	if err != nil {
		return nil, err
	}
	return link(ctx, r.persons, pair, person)
}

// LinkPaperAlias validates the identifier and links it to paper.
func (r *Resolver) LinkPaperAlias(ctx context.Context, paper id.PaperID, scheme, identifier string) (*alias.PaperAlias, error) {
	pair, err := r.ValidateAndNormalize(ctx, KindPaper, scheme, identifier, ValidateOptions{})
	if err != nil {
		return nil, err
	}
	return link(ctx, r.papers, pair, paper)
}

// LinkPaperHandle links the permanent internal identifier of a new paper.
func (r *Resolver) LinkPaperHandle(ctx context.Context, paper id.PaperID) (*alias.PaperAlias, error) {
	return link(ctx, r.papers, alias.PaperHandle(paper), paper)
}

// LinkPersonHandle links the permanent internal identifier of a person.
func (r *Resolver) LinkPersonHandle(ctx context.Context, person id.PersonID, username string) (*alias.PersonAlias, error) {
	return link(ctx, r.persons, alias.PersonHandle(username), person)
}

// ResolveAuthor validates an author identifier and returns its alias row,
// creating an unlinked placeholder when it is not yet known.
func (r *Resolver) ResolveAuthor(ctx context.Context, scheme, identifier string) (*alias.PersonAlias, error) {
	pair, err := r.ValidateAndNormalize(ctx, KindPerson, scheme, identifier, ValidateOptions{AllowInternal: true})
	if err != nil {
		return nil, err
	}
	a, err := r.persons.CreateAlias(ctx, pair)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store author identifier")
	}
	return a, nil
}

func link[T id.Target](ctx context.Context, s AliasStore[T], pair alias.Pair, target T) (*alias.Alias[T], error) {
	available, err := s.CheckAvailable(ctx, pair, target)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check identifier")
	}
	if !available {
		return nil, dErrors.WithField(dErrors.New(dErrors.CodeUnique,
			"this identifier is already linked to another profile"), "identifier")
	}
	a, err := s.LinkAlias(ctx, pair, target)
	if err != nil {
		if errors.Is(err, store.ErrCollision) {
			return nil, dErrors.WithField(dErrors.Wrap(err, dErrors.CodeCollision,
				"this identifier was just linked to another profile"), "identifier")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to link identifier")
	}
	return a, nil
}
