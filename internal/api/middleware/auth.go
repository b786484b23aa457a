package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/portalpilot/internal/api/response"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is how many leading characters of a raw key are stored in
// clear for lookup.
const KeyPrefixLen = 8

const lastUsedTimeout = 5 * time.Second

var (
	errMissingToken = errors.New("missing or invalid Authorization header")
	errShortToken   = errors.New("invalid API key format")
	errUnknownKey   = errors.New("invalid API key")
)

// KeyStore is the part of store.Store that authentication needs.
type KeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// Auth provides authentication and scope-checking middleware.
type Auth struct {
	store KeyStore
}

// NewAuth creates a new Auth middleware.
func NewAuth(s KeyStore) *Auth {
	return &Auth{store: s}
}

// Authenticate resolves the Bearer token to an API key and stores the
// resulting Principal in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := a.lookup(r.Context(), bearerToken(r))
		switch {
		case err == nil:
		case errors.Is(err, errMissingToken), errors.Is(err, errShortToken), errors.Is(err, errUnknownKey):
			response.Error(w, http.StatusUnauthorized, response.CodeInvalidToken, capitalize(err.Error()), nil)
			return
		default:
			slog.ErrorContext(r.Context(), "api key lookup failed", "error", err)
			response.Internal(w, "Failed to validate API key")
			return
		}

		go a.touch(context.WithoutCancel(r.Context()), key.ID)

		p := Principal{KeyID: key.ID, KeyPrefix: key.KeyPrefix, Scopes: key.Scopes}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireScope rejects requests whose principal lacks scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFrom(r.Context())
			if !slices.Contains(p.Scopes, scope) {
				response.Error(w, http.StatusForbidden, response.CodeForbidden, "Insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Auth) lookup(ctx context.Context, rawKey string) (*models.APIKey, error) {
	if rawKey == "" {
		return nil, errMissingToken
	}
	if len(rawKey) < KeyPrefixLen {
		return nil, errShortToken
	}

	candidates, err := a.store.GetAPIKeyByPrefix(ctx, rawKey[:KeyPrefixLen])
	if err != nil {
		return nil, err
	}
	for _, key := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) == nil {
			return key, nil
		}
	}
	return nil, errUnknownKey
}

func (a *Auth) touch(ctx context.Context, id uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, lastUsedTimeout)
	defer cancel()
	if err := a.store.UpdateAPIKeyLastUsed(ctx, id); err != nil {
		slog.WarnContext(ctx, "updating api key last_used_at failed", "key_id", id, "error", err)
	}
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
