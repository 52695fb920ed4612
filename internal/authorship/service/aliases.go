package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"litgraph/internal/alias"
	"litgraph/internal/alias/store"
	"litgraph/internal/authorship"
	id "litgraph/pkg/domain"
	dErrors "litgraph/pkg/domain-errors"
)

// LinkPersonAlias attaches identifier to person. References the alias already
// carries become the person's references.
func (r *Reconciler) LinkPersonAlias(ctx context.Context, person id.PersonID, scheme, identifier string) (a *alias.PersonAlias, err error) {
	ctx, span := r.startSpan(ctx, "LinkPersonAlias", trace.WithAttributes(
		attribute.Int64("person.id", int64(person)),
		attribute.String("alias.scheme", scheme),
	))
	defer func() { endSpan(span, err) }()

	err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
		a, err = r.resolver.LinkPersonAlias(ctx, person, scheme, identifier)
		if err != nil {
			return err
		}
		confirmed, err := r.refs.PapersByAlias(ctx, a.ID, true)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load references")
		}
		if len(confirmed) == 0 {
			return nil
		}
		if _, err := r.papers.LockPapers(ctx, confirmed); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock papers")
		}
		return r.syncAuthorshipEvents(ctx, person, confirmed)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UnlinkPersonAlias detaches one of person's aliases. Its decided references
// fall back to pending and person keeps an authorship event only on papers
// where another confirmed reference remains. Internal handles and the
// account e-mail address cannot be removed.
func (r *Reconciler) UnlinkPersonAlias(ctx context.Context, person id.PersonID, aliasID int64) (err error) {
	ctx, span := r.startSpan(ctx, "UnlinkPersonAlias", trace.WithAttributes(
		attribute.Int64("person.id", int64(person)),
		attribute.Int64("alias.id", aliasID),
	))
	defer func() { endSpan(span, err) }()

	var reset int64
	err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
		a, err := r.personAlias.FindByID(ctx, aliasID, true)
		if err != nil {
			return translateLoad(err, "identifier")
		}
		if a.Target != person {
			return dErrors.New(dErrors.CodeNotFound, "identifier not found")
		}
		if err := r.checkPersonAliasDeletable(ctx, person, a); err != nil {
			return err
		}

		papers, err := r.refs.PapersByAlias(ctx, a.ID, false)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load references")
		}
		if _, err := r.papers.LockPapers(ctx, papers); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock papers")
		}
		if reset, err = r.refs.ResetAlias(ctx, a.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset references")
		}
		if err := unlink(ctx, r.personAlias, a); err != nil {
			return err
		}
		return r.syncAuthorshipEvents(ctx, person, papers)
	})
	if err != nil {
		return err
	}
	r.metrics.AddAuthorshipTransitions(authorship.Pending.String(), reset)
	r.logger.InfoContext(ctx, "person identifier removed",
		"person_id", person,
		"alias_id", aliasID,
		"references_reset", reset,
	)
	return nil
}

func (r *Reconciler) checkPersonAliasDeletable(ctx context.Context, person id.PersonID, a *alias.PersonAlias) error {
	if a.Scheme.Permanent() {
		return dErrors.New(dErrors.CodePermanent, "internal identifiers cannot be removed")
	}
	if a.Scheme != alias.SchemeEmail {
		return nil
	}
	p, err := r.papers.FindPerson(ctx, person)
	if err != nil {
		return translateLoad(err, "person")
	}
	if p.Email != "" && strings.EqualFold(p.Email, a.Identifier) {
		return dErrors.New(dErrors.CodePermanent, "the account e-mail address cannot be removed")
	}
	return nil
}

// LinkPaperAlias attaches identifier to paperID on behalf of an owner.
func (r *Reconciler) LinkPaperAlias(ctx context.Context, actor id.PersonID, paperID id.PaperID, scheme, identifier string) (a *alias.PaperAlias, err error) {
	ctx, span := r.startSpan(ctx, "LinkPaperAlias", trace.WithAttributes(
		attribute.Int64("paper.id", int64(paperID)),
		attribute.String("alias.scheme", scheme),
	))
	defer func() { endSpan(span, err) }()

	err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.lockOwnedPaper(ctx, actor, paperID); err != nil {
			return err
		}
		a, err = r.resolver.LinkPaperAlias(ctx, paperID, scheme, identifier)
		if err != nil {
			return err
		}
		if err := r.papers.Touch(ctx, paperID, actor); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update paper")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UnlinkPaperAlias detaches an identifier from paperID on behalf of an owner.
func (r *Reconciler) UnlinkPaperAlias(ctx context.Context, actor id.PersonID, paperID id.PaperID, aliasID int64) (err error) {
	ctx, span := r.startSpan(ctx, "UnlinkPaperAlias", trace.WithAttributes(
		attribute.Int64("paper.id", int64(paperID)),
		attribute.Int64("alias.id", aliasID),
	))
	defer func() { endSpan(span, err) }()

	return r.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.lockOwnedPaper(ctx, actor, paperID); err != nil {
			return err
		}
		a, err := r.paperAlias.FindByID(ctx, aliasID, true)
		if err != nil {
			return translateLoad(err, "identifier")
		}
		if a.Target != paperID {
			return dErrors.New(dErrors.CodeNotFound, "identifier not found")
		}
		if err := unlink(ctx, r.paperAlias, a); err != nil {
			return err
		}
		if err := r.papers.Touch(ctx, paperID, actor); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update paper")
		}
		return nil
	})
}

func unlink[T id.Target](ctx context.Context, s AliasStore[T], a *alias.Alias[T]) error {
	ok, err := s.Unlink(ctx, a)
	if err != nil {
		if errors.Is(err, store.ErrPermanent) {
			return dErrors.New(dErrors.CodePermanent, "internal identifiers cannot be removed")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove identifier")
	}
	if !ok {
		return errLock()
	}
	return nil
}
