package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/portalpilot/internal/api/response"
	"github.com/kiranshivaraju/portalpilot/internal/store"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var validRunStatuses = map[string]bool{
	models.RunStatusRunning:   true,
	models.RunStatusCompleted: true,
	models.RunStatusStopped:   true,
	models.RunStatusFailed:    true,
}

// RunReader is the read side of the run history.
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]*models.Run, int, error)
	ListSubmissions(ctx context.Context, runID uuid.UUID) ([]*models.Submission, error)
}

// NewListRunsHandler serves GET /api/v1/runs?status=&page=&limit=.
func NewListRunsHandler(s RunReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		status := q.Get("status")
		if status != "" && !validRunStatuses[status] {
			response.BadRequest(w, "status must be one of running, completed, stopped, failed", nil)
			return
		}

		page, ok := queryInt(w, q.Get("page"), "page", 1, 1, 0)
		if !ok {
			return
		}
		limit, ok := queryInt(w, q.Get("limit"), "limit", defaultPageLimit, 1, maxPageLimit)
		if !ok {
			return
		}

		runs, total, err := s.ListRuns(r.Context(), store.RunFilter{Status: status, Page: page, Limit: limit})
		if err != nil {
			slog.ErrorContext(r.Context(), "list runs failed", "error", err)
			response.Internal(w, "Failed to list runs")
			return
		}
		if runs == nil {
			runs = []*models.Run{}
		}

		response.Collection(w, runs, response.Page(page, limit, total))
	}
}

// NewGetRunHandler serves GET /api/v1/runs/{runID}.
func NewGetRunHandler(s RunReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "runID")
		if !ok {
			return
		}

		run, err := s.GetRun(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(w, "Run not found")
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "get run failed", "run_id", id, "error", err)
			response.Internal(w, "Failed to get run")
			return
		}

		response.JSON(w, run)
	}
}

// NewListSubmissionsHandler serves GET /api/v1/runs/{runID}/submissions in
// iteration order.
func NewListSubmissionsHandler(s RunReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "runID")
		if !ok {
			return
		}

		if _, err := s.GetRun(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.NotFound(w, "Run not found")
				return
			}
			slog.ErrorContext(r.Context(), "get run failed", "run_id", id, "error", err)
			response.Internal(w, "Failed to get run")
			return
		}

		subs, err := s.ListSubmissions(r.Context(), id)
		if err != nil {
			slog.ErrorContext(r.Context(), "list submissions failed", "run_id", id, "error", err)
			response.Internal(w, "Failed to list submissions")
			return
		}
		if subs == nil {
			subs = []*models.Submission{}
		}

		response.JSON(w, subs)
	}
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.BadRequest(w, name+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter. hi of 0 means no
// upper bound.
func queryInt(w http.ResponseWriter, raw, name string, def, lo, hi int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi > 0 && n > hi) {
		msg := name + " must be an integer >= " + strconv.Itoa(lo)
		if hi > 0 {
			msg += " and <= " + strconv.Itoa(hi)
		}
		response.BadRequest(w, msg, nil)
		return 0, false
	}
	return n, true
}
