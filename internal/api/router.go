package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Completion.
	r.Get("/completions", h.Completions)

	// Extraction listings.
	r.Get("/tags", h.Tags)
	r.Get("/notes", h.Notes)
	r.Get("/links", h.Links)

	// Full-text search.
	r.Get("/search", h.Search)

	// Operations.
	r.Post("/refresh", h.Refresh)
	r.Post("/bench", h.Bench)
	r.Get("/stats", h.Stats)
	r.Get("/health", h.Health)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
