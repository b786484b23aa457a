package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/portalpilot/internal/api/middleware"
	"github.com/kiranshivaraju/portalpilot/internal/api/response"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

// Dependencies are the middleware and handlers the router mounts. A nil
// handler is served as 501.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler      http.HandlerFunc
	ListRunsHandler    http.HandlerFunc
	GetRunHandler      http.HandlerFunc
	SubmissionsHandler http.HandlerFunc
	LeaderboardHandler http.HandlerFunc
	JobProgressHandler http.HandlerFunc
	CreateKeyHandler   http.HandlerFunc
	ListKeysHandler    http.HandlerFunc
	RevokeKeyHandler   http.HandlerFunc
}

// NewRouter mounts the history API under /api/v1. Everything except the
// health check needs a valid key; key management needs the admin scope.
func NewRouter(deps Dependencies) http.Handler {
	h := orNotImplemented

	r := chi.NewRouter()
	r.Use(chimw.RequestID, mw.Logger, mw.Recovery)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, response.CodeMethod, "Method not allowed", nil)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h(deps.HealthHandler))

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Authenticate, deps.RateLimit.Limit)

			r.Route("/runs", func(r chi.Router) {
				r.Get("/", h(deps.ListRunsHandler))
				r.Get("/{runID}", h(deps.GetRunHandler))
				r.Get("/{runID}/submissions", h(deps.SubmissionsHandler))
			})
			r.Get("/leaderboard", h(deps.LeaderboardHandler))
			r.Get("/jobs/{jobID}/progress", h(deps.JobProgressHandler))

			r.With(deps.Auth.RequireScope(models.ScopeAdmin)).Route("/admin/keys", func(r chi.Router) {
				r.Post("/", h(deps.CreateKeyHandler))
				r.Get("/", h(deps.ListKeysHandler))
				r.Delete("/{keyID}", h(deps.RevokeKeyHandler))
			})
		})
	})

	return r
}

func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotImplemented, response.CodeNotImplemented, "Endpoint not yet implemented", nil)
	}
}
