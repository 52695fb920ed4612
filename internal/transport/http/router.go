package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"litgraph/internal/platform/middleware"
	"litgraph/pkg/platform/httputil"
)

// RouterOption mounts extra unauthenticated routes.
type RouterOption func(chi.Router)

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) RouterOption {
	return func(r chi.Router) {
		r.Method(http.MethodGet, "/metrics", h)
	}
}

// NewRouter wires the public endpoints. Everything except /healthz and
// the optional extras requires a bearer token.
func NewRouter(h *Handler, tokens middleware.TokenValidator, logger *slog.Logger, opts ...RouterOption) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.AccessLog(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	for _, opt := range opts {
		opt(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokens, logger))
		h.Register(r)
	})
	return r
}
