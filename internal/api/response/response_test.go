package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/portalpilot/internal/api/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSuccessEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
	}{
		{"json", func(w http.ResponseWriter) { response.JSON(w, map[string]string{"job_id": "job-1"}) }, http.StatusOK},
		{"created", func(w http.ResponseWriter) { response.Created(w, map[string]string{"job_id": "job-1"}) }, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			data := decode(t, w)["data"].(map[string]any)
			assert.Equal(t, "job-1", data["job_id"])
		})
	}
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	response.NoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestCollection(t *testing.T) {
	w := httptest.NewRecorder()
	runs := []map[string]string{{"id": "1"}, {"id": "2"}}

	response.Collection(w, runs, response.Page(2, 2, 5))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["data"].([]any), 2)

	m := body["meta"].(map[string]any)
	assert.Equal(t, float64(2), m["page"])
	assert.Equal(t, float64(2), m["limit"])
	assert.Equal(t, float64(5), m["total"])
	assert.Equal(t, true, m["has_next"])
}

func TestPage(t *testing.T) {
	assert.True(t, response.Page(1, 20, 21).HasNext)
	assert.False(t, response.Page(1, 20, 20).HasNext)
	assert.False(t, response.Page(3, 20, 0).HasNext)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name    string
		write   func(w http.ResponseWriter)
		status  int
		code    string
		details bool
	}{
		{
			name: "error with details",
			write: func(w http.ResponseWriter) {
				response.Error(w, http.StatusServiceUnavailable, response.CodeDegraded, "degraded", map[string]string{"cache": "degraded"})
			},
			status:  http.StatusServiceUnavailable,
			code:    "DEGRADED",
			details: true,
		},
		{
			name:    "bad request",
			write:   func(w http.ResponseWriter) { response.BadRequest(w, "limit must be positive", nil) },
			status:  http.StatusBadRequest,
			code:    "VALIDATION_ERROR",
			details: false,
		},
		{
			name:   "not found",
			write:  func(w http.ResponseWriter) { response.NotFound(w, "Run not found") },
			status: http.StatusNotFound,
			code:   "RESOURCE_NOT_FOUND",
		},
		{
			name:   "internal",
			write:  func(w http.ResponseWriter) { response.Internal(w, "boom") },
			status: http.StatusInternalServerError,
			code:   "INTERNAL_ERROR",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			errObj := decode(t, w)["error"].(map[string]any)
			assert.Equal(t, tt.code, errObj["code"])
			assert.NotEmpty(t, errObj["message"])
			_, hasDetails := errObj["details"]
			assert.Equal(t, tt.details, hasDetails)
		})
	}
}
