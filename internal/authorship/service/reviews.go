package service

import (
	"context"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"litgraph/internal/feed"
	"litgraph/internal/paper"
	"litgraph/internal/platform/postgres"
	id "litgraph/pkg/domain"
	dErrors "litgraph/pkg/domain-errors"
)

// PostReview stores person's review of paperID and announces it in the
// feed. Authors cannot review their own paper and nobody reviews a paper
// twice, even after deleting the first review.
func (r *Reconciler) PostReview(ctx context.Context, person id.PersonID, paperID id.PaperID, body string) (review *paper.Review, err error) {
	ctx, span := r.startSpan(ctx, "PostReview", trace.WithAttributes(
		attribute.Int64("paper.id", int64(paperID)),
	))
	defer func() { endSpan(span, err) }()

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, dErrors.WithField(dErrors.New(dErrors.CodeInvalid, "review text is required"), "body")
	}

	err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.lockPaper(ctx, paperID); err != nil {
			return err
		}
		authors, err := r.refs.UnrejectedAuthors(ctx, paperID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authors")
		}
		if slices.Contains(authors, person) {
			return dErrors.New(dErrors.CodeSelfPromo, "you cannot review your own paper")
		}
		exists, err := r.papers.ReviewExists(ctx, paperID, person)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check reviews")
		}
		if exists {
			return dErrors.New(dErrors.CodeUnique, "you cannot review a paper more than once")
		}
		review = &paper.Review{PaperID: paperID, PostedBy: person, Body: body}
		if err := r.papers.CreateReview(ctx, review); err != nil {
			if postgres.IsUniqueViolation(err) {
				return dErrors.New(dErrors.CodeUnique, "you cannot review a paper more than once")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store review")
		}
		if err := r.feed.Append(ctx, feed.Event{PersonID: person, PaperID: paperID, Type: feed.PaperReview}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record review event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}
