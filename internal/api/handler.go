// Package api provides HTTP handlers for the chat store API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/moviepal/chatstore/internal/cache"
	"github.com/moviepal/chatstore/internal/chat"
	"github.com/moviepal/chatstore/internal/store"
)

// Handler provides common handler dependencies.
type Handler struct {
	repo    store.Repository
	cache   *cache.Store
	reader  *chat.Reader
	syncer  *chat.Syncer
	tracker *chat.Tracker
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, c *cache.Store, reader *chat.Reader, syncer *chat.Syncer, tracker *chat.Tracker) *Handler {
	return &Handler{
		repo:    repo,
		cache:   c,
		reader:  reader,
		syncer:  syncer,
		tracker: tracker,
	}
}

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

// decodeJSON decodes a request body into v, rejecting malformed payloads.
func decodeJSON(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}
