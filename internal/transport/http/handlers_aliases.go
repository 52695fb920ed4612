package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"litgraph/internal/alias/resolver"
	id "litgraph/pkg/domain"
	"litgraph/pkg/platform/httputil"
	"litgraph/pkg/requestcontext"
)

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ValidateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	pair, err := h.validator.ValidateAndNormalize(ctx, req.Kind(), req.Scheme, req.Identifier, resolver.ValidateOptions{})
	if err != nil {
		h.fail(ctx, w, "validate", err, start)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PairResponse{Scheme: pair.Scheme, Identifier: pair.Identifier})
}

func (h *Handler) handleLinkPersonAlias(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[IdentifierRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	a, err := h.reconciler.LinkPersonAlias(ctx, requestcontext.PersonID(ctx), req.Scheme, req.Identifier)
	if err != nil {
		h.fail(ctx, w, "link_person_alias", err, start)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, aliasResponse(a))
}

func (h *Handler) handleUnlinkPersonAlias(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	aliasID, err := id.ParsePersonAliasID(chi.URLParam(r, "aliasID"))
	if err != nil {
		h.fail(ctx, w, "unlink_person_alias", err, start)
		return
	}

	if err := h.reconciler.UnlinkPersonAlias(ctx, requestcontext.PersonID(ctx), int64(aliasID)); err != nil {
		h.fail(ctx, w, "unlink_person_alias", err, start)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLinkPaperAlias(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	paperID, err := paperIDParam(r)
	if err != nil {
		h.fail(ctx, w, "link_paper_alias", err, start)
		return
	}
	req, ok := httputil.DecodeAndPrepare[IdentifierRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	a, err := h.reconciler.LinkPaperAlias(ctx, requestcontext.PersonID(ctx), paperID, req.Scheme, req.Identifier)
	if err != nil {
		h.fail(ctx, w, "link_paper_alias", err, start)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, aliasResponse(a))
}

func (h *Handler) handleUnlinkPaperAlias(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	paperID, err := paperIDParam(r)
	if err != nil {
		h.fail(ctx, w, "unlink_paper_alias", err, start)
		return
	}
	aliasID, err := id.ParsePaperAliasID(chi.URLParam(r, "aliasID"))
	if err != nil {
		h.fail(ctx, w, "unlink_paper_alias", err, start)
		return
	}

	if err := h.reconciler.UnlinkPaperAlias(ctx, requestcontext.PersonID(ctx), paperID, int64(aliasID)); err != nil {
		h.fail(ctx, w, "unlink_paper_alias", err, start)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
