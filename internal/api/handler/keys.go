package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/portalpilot/internal/api/middleware"
	"github.com/kiranshivaraju/portalpilot/internal/api/response"
	"github.com/kiranshivaraju/portalpilot/internal/store"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const rawKeyPrefix = "pp_"

// KeyManager is the admin side of API key storage.
type KeyManager interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

type createKeyRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type createKeyResponse struct {
	*models.APIKey
	Key string `json:"key"`
}

// NewCreateKeyHandler serves POST /api/v1/admin/keys. The raw key appears
// only in this response.
func NewCreateKeyHandler(s KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid JSON request body", nil)
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			response.BadRequest(w, "name is required", nil)
			return
		}
		if len(req.Scopes) == 0 {
			req.Scopes = []string{models.ScopeRead}
		}
		for _, scope := range req.Scopes {
			if scope != models.ScopeRead && scope != models.ScopeAdmin {
				response.BadRequest(w, "scopes must contain only read or admin", map[string]string{"scope": scope})
				return
			}
		}
		slices.Sort(req.Scopes)
		req.Scopes = slices.Compact(req.Scopes)

		rawKey, err := generateRawKey()
		if err != nil {
			slog.ErrorContext(r.Context(), "generate api key failed", "error", err)
			response.Internal(w, "Failed to create API key")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
		if err != nil {
			slog.ErrorContext(r.Context(), "hash api key failed", "error", err)
			response.Internal(w, "Failed to create API key")
			return
		}

		now := time.Now().UTC()
		key := &models.APIKey{
			ID:        uuid.New(),
			Name:      req.Name,
			KeyHash:   string(hash),
			KeyPrefix: rawKey[:mw.KeyPrefixLen],
			Scopes:    req.Scopes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.CreateAPIKey(r.Context(), key); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, response.CodeDuplicateKey, "An API key with this name already exists", nil)
				return
			}
			slog.ErrorContext(r.Context(), "create api key failed", "error", err)
			response.Internal(w, "Failed to create API key")
			return
		}

		slog.InfoContext(r.Context(), "api key created", "key_id", key.ID, "key_prefix", key.KeyPrefix)
		response.Created(w, createKeyResponse{APIKey: key, Key: rawKey})
	}
}

// NewListKeysHandler serves GET /api/v1/admin/keys.
func NewListKeysHandler(s KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := s.ListAPIKeys(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "list api keys failed", "error", err)
			response.Internal(w, "Failed to list API keys")
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}
		response.JSON(w, keys)
	}
}

// NewRevokeKeyHandler serves DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(s KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "keyID")
		if !ok {
			return
		}

		if p, ok := mw.PrincipalFrom(r.Context()); ok && p.KeyID == id {
			response.BadRequest(w, "Cannot revoke the key used for this request", nil)
			return
		}

		if err := s.RevokeAPIKey(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.NotFound(w, "API key not found")
				return
			}
			slog.ErrorContext(r.Context(), "revoke api key failed", "key_id", id, "error", err)
			response.Internal(w, "Failed to revoke API key")
			return
		}

		slog.InfoContext(r.Context(), "api key revoked", "key_id", id)
		response.NoContent(w)
	}
}

func generateRawKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return rawKeyPrefix + hex.EncodeToString(buf), nil
}
