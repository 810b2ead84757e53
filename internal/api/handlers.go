package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/ansuz/internal/apperr"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// writeServiceError maps domain errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrCircuitOpen), errors.Is(err, apperr.ErrResourceExhausted):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("temporarily unavailable"))
	case errors.Is(err, apperr.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errorBody("timed out"))
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// Completions handles GET /api/completions?line=...&col=N.
func (h *Handler) Completions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	line := q.Get("line")
	col := len(line)
	if raw := q.Get("col"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("col must be a non-negative integer"))
			return
		}
		col = n
	}

	// The engine degrades to an empty, incomplete result on upstream
	// failure; either way the response is a valid completion payload.
	res, _ := h.svc.Completions(r.Context(), line, col)
	writeJSON(w, http.StatusOK, res)
}

// Tags handles GET /api/tags.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Tags(r.Context())
	if err != nil {
		writeServiceError(w, "list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": entries})
}

// Notes handles GET /api/notes.
func (h *Handler) Notes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.Notes(r.Context())
	if err != nil {
		writeServiceError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

// Links handles GET /api/links.
func (h *Handler) Links(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.MarkdownLinks(r.Context())
	if err != nil {
		writeServiceError(w, "list links", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": links})
}

// Search handles GET /api/search?q=...&limit=N.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(q, limit)
	if err != nil {
		writeServiceError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Refresh handles POST /api/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Refresh(r.Context()); err != nil {
		writeServiceError(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	rep := h.svc.Health()
	status := http.StatusOK
	if rep.Status == "critical" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Bench handles POST /api/bench?iterations=N.
func (h *Handler) Bench(w http.ResponseWriter, r *http.Request) {
	iterations, _ := strconv.Atoi(r.URL.Query().Get("iterations"))
	rep, err := h.svc.Bench(r.Context(), iterations)
	if err != nil {
		writeServiceError(w, "bench", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
