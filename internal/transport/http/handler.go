// Package httptransport exposes the alias and authorship operations over
// HTTP. Handlers only decode, call the reconciler and encode; every error is
// written through httputil.WriteError.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"litgraph/internal/alias"
	"litgraph/internal/alias/resolver"
	"litgraph/internal/authorship"
	"litgraph/internal/authorship/service"
	"litgraph/internal/paper"
	id "litgraph/pkg/domain"
	dErrors "litgraph/pkg/domain-errors"
	"litgraph/pkg/platform/httputil"
	"litgraph/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Reconciler,Validator

// Reconciler is the authorship service as the handlers see it.
type Reconciler interface {
	LinkPersonAlias(ctx context.Context, person id.PersonID, scheme, identifier string) (*alias.PersonAlias, error)
	UnlinkPersonAlias(ctx context.Context, person id.PersonID, aliasID int64) error
	LinkPaperAlias(ctx context.Context, actor id.PersonID, paperID id.PaperID, scheme, identifier string) (*alias.PaperAlias, error)
	UnlinkPaperAlias(ctx context.Context, actor id.PersonID, paperID id.PaperID, aliasID int64) error
	AddAuthor(ctx context.Context, actor id.PersonID, paperID id.PaperID, scheme, identifier string) (*authorship.Reference, error)
	DeleteAuthorReference(ctx context.Context, actor id.PersonID, refID id.ReferenceID) error
	SetAuthorship(ctx context.Context, person id.PersonID, paperIDs []id.PaperID, state authorship.Confirmation) (*service.Result, error)
	PostReview(ctx context.Context, person id.PersonID, paperID id.PaperID, body string) (*paper.Review, error)
}

// Validator checks identifiers without linking them.
type Validator interface {
	ValidateAndNormalize(ctx context.Context, kind resolver.Kind, scheme, identifier string, opts resolver.ValidateOptions) (alias.Pair, error)
}

type Handler struct {
	reconciler Reconciler
	validator  Validator
	logger     *slog.Logger
}

func New(reconciler Reconciler, validator Validator, logger *slog.Logger) *Handler {
	return &Handler{
		reconciler: reconciler,
		validator:  validator,
		logger:     logger,
	}
}

// Register mounts the routes on r. Authentication is applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Post("/aliases/validate", h.handleValidate)

	r.Post("/me/aliases", h.handleLinkPersonAlias)
	r.Delete("/me/aliases/{aliasID}", h.handleUnlinkPersonAlias)
	r.Post("/me/authorship", h.handleSetAuthorship)

	r.Post("/papers/{paperID}/aliases", h.handleLinkPaperAlias)
	r.Delete("/papers/{paperID}/aliases/{aliasID}", h.handleUnlinkPaperAlias)
	r.Post("/papers/{paperID}/authors", h.handleAddAuthor)
	r.Post("/papers/{paperID}/reviews", h.handlePostReview)

	r.Delete("/authors/{referenceID}", h.handleDeleteAuthor)
}

// fail logs err unless it is a plain client mistake, then writes it.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error, start time.Time) {
	code := dErrors.CodeOf(err)
	attrs := []any{
		"op", op,
		"code", string(code),
		"request_id", requestcontext.RequestID(ctx),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if httputil.StatusFor(code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed", append(attrs, "error", err)...)
	} else {
		h.logger.InfoContext(ctx, "request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}

func paperIDParam(r *http.Request) (id.PaperID, error) {
	return id.ParsePaperID(chi.URLParam(r, "paperID"))
}
