//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/jobchat/internal/shared"
	"github.com/ashureev/jobchat/internal/store"
	"gotest.tools/v3/assert"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantFields bool
	}{
		{"validation", shared.FieldError("content", "message content must not be empty"), http.StatusBadRequest, "message content must not be empty", true},
		{"forbidden", shared.Forbidden("nope"), http.StatusForbidden, "nope", false},
		{"not found", shared.NotFound("User not found"), http.StatusNotFound, "User not found", false},
		{"unauthenticated", shared.Unauthenticated("who are you"), http.StatusUnauthorized, "who are you", false},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "internal server error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, w.Code, tt.wantStatus)
			var body struct {
				Error  string            `json:"error"`
				Fields map[string]string `json:"fields"`
			}
			assert.NilError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, body.Error, tt.wantError)
			assert.Equal(t, len(body.Fields) > 0, tt.wantFields)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v sendRequest

	err := decodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &v)
	assert.Check(t, shared.IsKind(err, shared.KindValidation))

	err = decodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")), &v)
	assert.Check(t, shared.IsKind(err, shared.KindValidation))

	err = decodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"receiver_id":3,"content":"hi"}`)), &v)
	assert.NilError(t, err)
	assert.Equal(t, v.ReceiverID, int64(3))
}

// pingRepo fails Ping and panics on anything else.
type pingRepo struct {
	store.Repository
	err error
}

func (p pingRepo) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantState  string
	}{
		{"healthy", nil, http.StatusOK, "healthy"},
		{"degraded", errors.New("unreachable"), http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(pingRepo{err: tt.pingErr})
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			assert.Equal(t, w.Code, tt.wantStatus)
			var body map[string]interface{}
			assert.NilError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, body["status"], tt.wantState)
		})
	}
}
