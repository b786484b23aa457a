package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/portalpilot/internal/api/middleware"
	"github.com/kiranshivaraju/portalpilot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const rawKey = "pp_0123456789abcdef"

// --- fakes ---

type keyStore struct {
	mu       sync.Mutex
	keys     []*models.APIKey
	err      error
	prefixes []string
	touched  chan uuid.UUID
}

func (s *keyStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	s.prefixes = append(s.prefixes, prefix)
	s.mu.Unlock()
	return s.keys, s.err
}

func (s *keyStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	if s.touched != nil {
		s.touched <- id
	}
	return nil
}

type counter struct {
	n    int64
	err  error
	keys []string
}

func (c *counter) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.n++
	c.keys = append(c.keys, key)
	return c.n, c.err
}

// --- helpers ---

func apiKey(t *testing.T, raw string, scopes ...string) *models.APIKey {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.APIKey{
		ID:        uuid.New(),
		Name:      "test",
		KeyHash:   string(h),
		KeyPrefix: raw[:mw.KeyPrefixLen],
		Scopes:    scopes,
	}
}

// capture records the principal the wrapped handler saw.
func capture(got *mw.Principal, seen *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*got, *seen = mw.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}
}

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func withPrincipal(r *http.Request, scopes ...string) *http.Request {
	return r.WithContext(mw.WithPrincipal(r.Context(), mw.Principal{
		KeyID: uuid.New(), KeyPrefix: rawKey[:mw.KeyPrefixLen], Scopes: scopes,
	}))
}

// --- Authenticate ---

func TestAuthenticate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"bearer without token", "Bearer"},
		{"token shorter than prefix", "Bearer pp_1"},
		{"unknown key", "Bearer pp_ffffffffffffffff"},
	}

	store := &keyStore{keys: []*models.APIKey{apiKey(t, rawKey, models.ScopeRead)}}
	h := mw.NewAuth(store).Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("next handler must not run")
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/runs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "INVALID_TOKEN", errCode(t, w))
		})
	}
}

func TestAuthenticate_StoreError(t *testing.T) {
	store := &keyStore{err: errors.New("db down")}
	h := mw.NewAuth(store).Authenticate(http.HandlerFunc(ok))

	req := httptest.NewRequest("GET", "/api/v1/runs", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errCode(t, w))
}

func TestAuthenticate_ValidKey(t *testing.T) {
	decoy := apiKey(t, "pp_01234567_other", models.ScopeRead)
	key := apiKey(t, rawKey, models.ScopeRead, models.ScopeAdmin)
	store := &keyStore{keys: []*models.APIKey{decoy, key}, touched: make(chan uuid.UUID, 1)}

	var got mw.Principal
	var seen bool
	h := mw.NewAuth(store).Authenticate(capture(&got, &seen))

	req := httptest.NewRequest("GET", "/api/v1/runs", nil)
	req.Header.Set("Authorization", "bearer "+rawKey)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, seen)
	assert.Equal(t, key.ID, got.KeyID)
	assert.Equal(t, rawKey[:mw.KeyPrefixLen], got.KeyPrefix)
	assert.Equal(t, []string{models.ScopeRead, models.ScopeAdmin}, got.Scopes)
	assert.Equal(t, []string{rawKey[:mw.KeyPrefixLen]}, store.prefixes)

	select {
	case id := <-store.touched:
		assert.Equal(t, key.ID, id)
	case <-time.After(time.Second):
		t.Fatal("last_used_at was not updated")
	}
}

// --- RequireScope ---

func TestRequireScope(t *testing.T) {
	auth := mw.NewAuth(&keyStore{})

	tests := []struct {
		name   string
		scopes []string
		noAuth bool
		want   int
	}{
		{"has scope", []string{models.ScopeRead, models.ScopeAdmin}, false, http.StatusOK},
		{"missing scope", []string{models.ScopeRead}, false, http.StatusForbidden},
		{"no scopes", nil, false, http.StatusForbidden},
		{"no principal", nil, true, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/admin/keys", nil)
			if !tt.noAuth {
				req = withPrincipal(req, tt.scopes...)
			}
			w := httptest.NewRecorder()
			auth.RequireScope(models.ScopeAdmin)(http.HandlerFunc(ok)).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "FORBIDDEN", errCode(t, w))
			}
		})
	}
}

// --- RateLimit ---

func TestRateLimit_WindowAndHeaders(t *testing.T) {
	c := &counter{}
	h := mw.NewRateLimit(c, 2).Limit(http.HandlerFunc(ok))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		h.ServeHTTP(last, withPrincipal(httptest.NewRequest("GET", "/api/v1/runs", nil), models.ScopeRead))
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", last.Header().Get("Retry-After"))
	assert.NotEmpty(t, last.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errCode(t, last))
	assert.Equal(t, "ratelimit:"+rawKey[:mw.KeyPrefixLen], c.keys[0])
}

func TestRateLimit_DefaultLimit(t *testing.T) {
	h := mw.NewRateLimit(&counter{}, 0).Limit(http.HandlerFunc(ok))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, withPrincipal(httptest.NewRequest("GET", "/", nil)))

	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_CounterError_FailsOpen(t *testing.T) {
	h := mw.NewRateLimit(&counter{err: errors.New("redis down")}, 1).Limit(http.HandlerFunc(ok))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, withPrincipal(httptest.NewRequest("GET", "/", nil)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_Unauthenticated_PassThrough(t *testing.T) {
	c := &counter{}
	h := mw.NewRateLimit(c, 1).Limit(http.HandlerFunc(ok))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Zero(t, c.n)
}

// --- Recovery and Logger ---

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRecovery_CatchesPanic(t *testing.T) {
	logs := captureLogs(t)
	h := chimw.RequestID(mw.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/runs", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errCode(t, w))
	assert.Contains(t, logs.String(), `"error":"nil map write"`)
	assert.Contains(t, logs.String(), `"request_id"`)
}

func TestRecovery_RepanicsOnAbort(t *testing.T) {
	h := mw.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	})
}

func TestLogger_RecordsRequest(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantLevel string
		wantCode  int
	}{
		{"implicit ok", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("hello")) }, "INFO", 200},
		{"not found", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }, "INFO", 404},
		{"server error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) }, "ERROR", 502},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureLogs(t)
			h := chimw.RequestID(mw.Logger(tt.handler))

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/leaderboard", nil))
			assert.Equal(t, tt.wantCode, w.Code)

			var entry map[string]any
			line := strings.TrimSpace(logs.String())
			require.NoError(t, json.Unmarshal([]byte(line), &entry))
			assert.Equal(t, "request", entry["msg"])
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, float64(tt.wantCode), entry["status"])
			assert.Equal(t, "/api/v1/leaderboard", entry["path"])
			assert.NotEmpty(t, entry["request_id"])
		})
	}
}

func TestPrincipalFrom_Empty(t *testing.T) {
	_, ok := mw.PrincipalFrom(context.Background())
	assert.False(t, ok)
}
