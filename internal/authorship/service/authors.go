package service

import (
	"context"
	"errors"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"litgraph/internal/authorship"
	id "litgraph/pkg/domain"
	dErrors "litgraph/pkg/domain-errors"
	"litgraph/pkg/platform/sentinel"
)

// AddAuthor records identifier as an author of paperID. An alias that
// already has a reference on the paper is a no-op and its existing reference
// is returned. A person who rejected authorship of the paper through any of
// their aliases cannot be added back.
func (r *Reconciler) AddAuthor(ctx context.Context, actor id.PersonID, paperID id.PaperID, scheme, identifier string) (ref *authorship.Reference, err error) {
	ctx, span := r.startSpan(ctx, "AddAuthor", trace.WithAttributes(
		attribute.Int64("paper.id", int64(paperID)),
		attribute.String("alias.scheme", scheme),
	))
	defer func() { endSpan(span, err) }()

	err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.lockOwnedPaper(ctx, actor, paperID); err != nil {
			return err
		}
		a, err := r.resolver.ResolveAuthor(ctx, scheme, identifier)
		if err != nil {
			return err
		}
		if a.Linked() {
			rejected, err := r.refs.HasRejected(ctx, paperID, a.Target)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check authorship")
			}
			if rejected {
				return dErrors.WithField(dErrors.New(dErrors.CodeRejected,
					"this user has rejected authorship"), "identifier")
			}
		}
		var created bool
		ref, created, err = r.refs.Create(ctx, paperID, a.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add author")
		}
		if !created {
			return nil
		}
		if err := r.papers.Touch(ctx, paperID, actor); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update paper")
		}
		r.logger.InfoContext(ctx, "author added",
			"paper_id", paperID,
			"reference_id", ref.ID,
			"scheme", a.Scheme,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// DeleteAuthorReference removes a pending or confirmed reference. Rejected
// references are kept so the rejection keeps blocking re-entry.
func (r *Reconciler) DeleteAuthorReference(ctx context.Context, actor id.PersonID, refID id.ReferenceID) (err error) {
	ctx, span := r.startSpan(ctx, "DeleteAuthorReference", trace.WithAttributes(
		attribute.Int64("reference.id", int64(refID)),
	))
	defer func() { endSpan(span, err) }()

	return r.tx.RunInTx(ctx, func(ctx context.Context) error {
		ref, err := r.refs.FindByID(ctx, refID, false)
		if err != nil {
			return translateLoad(err, "author reference")
		}
		if _, err := r.lockOwnedPaper(ctx, actor, ref.PaperID); err != nil {
			return err
		}
		ref, err = r.refs.FindByID(ctx, refID, true)
		if err != nil {
			return translateLoad(err, "author reference")
		}
		if ref.Confirmed == authorship.Rejected {
			return dErrors.New(dErrors.CodeRejected, "a rejected authorship cannot be removed")
		}
		if err := r.refs.Delete(ctx, refID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return errLock()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete author")
		}
		if err := r.syncAuthorshipEvents(ctx, ref.Author, []id.PaperID{ref.PaperID}); err != nil {
			return err
		}
		if err := r.papers.Touch(ctx, ref.PaperID, actor); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update paper")
		}
		return nil
	})
}

// Result summarises a confirm or reject action.
type Result struct {
	// Papers the person had references on and which the action covered.
	Papers []id.PaperID
	// Changed counts references whose state actually moved.
	Changed int64
}

// SetAuthorship confirms or rejects every reference of person on the
// selected papers. Papers without a reference of person are ignored and
// references already in the target state are untouched. Confirming is
// refused as self-promotion when person has a live review of any selected
// paper.
func (r *Reconciler) SetAuthorship(ctx context.Context, person id.PersonID, paperIDs []id.PaperID, state authorship.Confirmation) (*Result, error) {
	return r.setAuthorship(ctx, person, paperIDs, state, false)
}

// SetPaperAuthorship is SetAuthorship for a single paper. A paper that is
// missing fails with not_found, and one removed while locking with lock.
func (r *Reconciler) SetPaperAuthorship(ctx context.Context, person id.PersonID, paperID id.PaperID, state authorship.Confirmation) (*Result, error) {
	if _, err := r.papers.FindPaper(ctx, paperID); err != nil {
		return nil, translateLoad(err, "paper")
	}
	return r.setAuthorship(ctx, person, []id.PaperID{paperID}, state, true)
}

func (r *Reconciler) setAuthorship(ctx context.Context, person id.PersonID, paperIDs []id.PaperID, state authorship.Confirmation, strict bool) (res *Result, err error) {
	ctx, span := r.startSpan(ctx, "SetAuthorship", trace.WithAttributes(
		attribute.String("authorship.state", state.String()),
		attribute.Int("paper.count", len(paperIDs)),
	))
	defer func() { endSpan(span, err) }()

	if state != authorship.Confirmed && state != authorship.Rejected {
		return nil, dErrors.New(dErrors.CodeNoAction, "please choose whether to accept or reject authorship")
	}
	selected := sortedUnique(paperIDs)
	res = &Result{}
	if len(selected) == 0 {
		return res, nil
	}

	err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
		locked, err := r.papers.LockPapers(ctx, selected)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock papers")
		}
		if strict && len(locked) != len(selected) {
			return errLock()
		}
		lockedIDs := make([]id.PaperID, len(locked))
		for i, p := range locked {
			lockedIDs[i] = p.ID
		}
		candidates, err := r.refs.PapersWithReferences(ctx, person, lockedIDs)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load references")
		}
		if len(candidates) == 0 {
			return nil
		}
		if state == authorship.Confirmed {
			reviewed, err := r.papers.ReviewedPapers(ctx, person, candidates)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load reviews")
			}
			if len(reviewed) > 0 {
				return dErrors.New(dErrors.CodeSelfPromo,
					"you cannot accept authorship of a paper which you have reviewed, delete the review first")
			}
		}
		changed, err := r.refs.SetStateForPerson(ctx, person, candidates, state)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update authorship")
		}
		if err := r.syncAuthorshipEvents(ctx, person, candidates); err != nil {
			return err
		}
		res.Papers = candidates
		res.Changed = changed
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.metrics.AddAuthorshipTransitions(state.String(), res.Changed)
	if res.Changed > 0 {
		r.logger.InfoContext(ctx, "authorship updated",
			"person_id", person,
			"state", state.String(),
			"papers", len(res.Papers),
			"changed", res.Changed,
		)
	}
	return res, nil
}

func sortedUnique(paperIDs []id.PaperID) []id.PaperID {
	out := make([]id.PaperID, 0, len(paperIDs))
	for _, p := range paperIDs {
		if id.Valid(p) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
