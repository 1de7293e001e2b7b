// Package api provides HTTP handlers for the job chat API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/jobchat/internal/shared"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// WriteError maps an application error onto the failure envelope.
// Internal errors are logged and reported without detail.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := shared.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		Error(w, status, "internal server error")
		return
	}

	body := map[string]interface{}{"error": shared.MessageOf(err)}
	if fields := shared.FieldsOf(err); len(fields) > 0 {
		body["fields"] = fields
	}
	JSON(w, status, body)
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.Validation("request body is required", nil)
		}
		return shared.Validation("invalid JSON body", nil).Wrap(err)
	}
	return nil
}

// idParam parses a positive int64 URL parameter.
func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.FieldError(name, "invalid "+name)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, shared.FieldError(name, name+" must be an integer")
	}
	return n, nil
}
