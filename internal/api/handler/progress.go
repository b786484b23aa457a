package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/portalpilot/internal/api/response"
	"github.com/kiranshivaraju/portalpilot/internal/cache"
)

// NewJobProgressHandler serves GET /api/v1/jobs/{jobID}/progress from the
// live progress cache.
func NewJobProgressHandler(c cache.ProgressCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		if jobID == "" {
			response.BadRequest(w, "jobID is required", nil)
			return
		}

		progress, found, err := c.GetJobProgress(r.Context(), jobID)
		if err != nil {
			slog.ErrorContext(r.Context(), "get job progress failed", "job_id", jobID, "error", err)
			response.Internal(w, "Failed to get job progress")
			return
		}
		if !found {
			response.NotFound(w, "No progress recorded for job")
			return
		}

		response.JSON(w, progress)
	}
}
