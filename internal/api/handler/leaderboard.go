package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/portalpilot/internal/api/response"
	"github.com/kiranshivaraju/portalpilot/internal/cache"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
)

const (
	defaultLeaderboardLimit = 10
	leaderboardTTL          = 30 * time.Second
)

// SubmissionRanker returns the submissions that triggered the most distinct tools.
type SubmissionRanker interface {
	TopSubmissions(ctx context.Context, limit int) ([]*models.Submission, error)
}

// BlobCache is the byte cache used to memoize leaderboard pages.
type BlobCache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// NewLeaderboardHandler serves GET /api/v1/leaderboard?limit=N. Results are
// cached briefly; cache errors fall through to the store.
func NewLeaderboardHandler(s SubmissionRanker, c BlobCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(w, r.URL.Query().Get("limit"), "limit", defaultLeaderboardLimit, 1, maxPageLimit)
		if !ok {
			return
		}
		key := cache.LeaderboardKey(limit)

		if raw, hit, err := c.Get(r.Context(), key); err != nil {
			slog.WarnContext(r.Context(), "leaderboard cache read failed", "error", err)
		} else if hit {
			var cached []*models.Submission
			if err := json.Unmarshal(raw, &cached); err == nil {
				response.JSON(w, cached)
				return
			}
		}

		subs, err := s.TopSubmissions(r.Context(), limit)
		if err != nil {
			slog.ErrorContext(r.Context(), "leaderboard query failed", "error", err)
			response.Internal(w, "Failed to load leaderboard")
			return
		}
		if subs == nil {
			subs = []*models.Submission{}
		}

		if raw, err := json.Marshal(subs); err == nil {
			if err := c.Set(r.Context(), key, raw, leaderboardTTL); err != nil {
				slog.WarnContext(r.Context(), "leaderboard cache write failed", "error", err)
			}
		}

		response.JSON(w, subs)
	}
}
