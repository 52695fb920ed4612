package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	id "litgraph/pkg/domain"
	"litgraph/pkg/platform/httputil"
	"litgraph/pkg/requestcontext"
)

func (h *Handler) handleAddAuthor(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	paperID, err := paperIDParam(r)
	if err != nil {
		h.fail(ctx, w, "add_author", err, start)
		return
	}
	req, ok := httputil.DecodeAndPrepare[IdentifierRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	ref, err := h.reconciler.AddAuthor(ctx, requestcontext.PersonID(ctx), paperID, req.Scheme, req.Identifier)
	if err != nil {
		h.fail(ctx, w, "add_author", err, start)
		return
	}
	h.logger.InfoContext(ctx, "author added",
		"paper_id", int64(paperID),
		"reference_id", int64(ref.ID),
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusCreated, referenceResponse(ref))
}

func (h *Handler) handleDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	refID, err := id.ParseReferenceID(chi.URLParam(r, "referenceID"))
	if err != nil {
		h.fail(ctx, w, "delete_author", err, start)
		return
	}

	if err := h.reconciler.DeleteAuthorReference(ctx, requestcontext.PersonID(ctx), refID); err != nil {
		h.fail(ctx, w, "delete_author", err, start)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetAuthorship(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[AuthorshipRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	res, err := h.reconciler.SetAuthorship(ctx, requestcontext.PersonID(ctx), req.PaperIDs(), req.State())
	if err != nil {
		h.fail(ctx, w, "set_authorship", err, start)
		return
	}
	out := AuthorshipResponse{Papers: make([]int64, 0, len(res.Papers)), Changed: res.Changed}
	for _, p := range res.Papers {
		out.Papers = append(out.Papers, int64(p))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handlePostReview(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	paperID, err := paperIDParam(r)
	if err != nil {
		h.fail(ctx, w, "post_review", err, start)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReviewRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	review, err := h.reconciler.PostReview(ctx, requestcontext.PersonID(ctx), paperID, req.Body)
	if err != nil {
		h.fail(ctx, w, "post_review", err, start)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ReviewResponse{
		ID:      int64(review.ID),
		PaperID: int64(review.PaperID),
		Body:    review.Body,
	})
}
