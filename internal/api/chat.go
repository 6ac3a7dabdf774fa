package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/moviepal/chatstore/internal/cache"
	"github.com/moviepal/chatstore/internal/domain"
)

// RegisterChatRoutes registers the bot-chat endpoints.
func (h *Handler) RegisterChatRoutes(r chi.Router) {
	r.Get("/", h.HealthCheck)
	r.Route("/botchat", func(r chi.Router) {
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions/{username}", h.GetSessions)
		r.Post("/messages", h.SendMessage)
		r.Get("/messages/{username}/{session_id}", h.GetMessages)
		r.Delete("/delete/{username}/{session_id}", h.DeleteSession)
		r.Get("/search/{username}", h.SearchMessages)
		r.Post("/sync/{username}/{session_id}", h.SyncSession)
		r.Post("/logout/{username}", h.Logout)
		r.Post("/update_session_expiry", h.UpdateSessionExpiry)
	})
}

// HealthCheck reports that the service is up.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "chat store is running"})
}

type createSessionRequest struct {
	Username    string `json:"username"`
	SessionName string `json:"session_name"`
}

// CreateSession creates a new chat session in the hot store.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.SessionName = strings.TrimSpace(req.SessionName)
	if req.Username == "" || req.SessionName == "" {
		Error(w, http.StatusBadRequest, "username and session_name are required")
		return
	}

	ctx := r.Context()
	if _, err := h.repo.ResolveUserID(ctx, req.Username); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			Error(w, http.StatusBadRequest, fmt.Sprintf("user %q does not exist", req.Username))
			return
		}
		slog.Error("failed to resolve user for session create", "user", req.Username, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	if err := h.cache.CreateSession(ctx, req.Username, req.SessionName); err != nil {
		if errors.Is(err, domain.ErrDuplicateSession) {
			Error(w, http.StatusBadRequest, fmt.Sprintf("session %q already exists for user %q", req.SessionName, req.Username))
			return
		}
		slog.Error("failed to create session", "user", req.Username, "session", req.SessionName, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	JSON(w, http.StatusCreated, map[string]string{
		"message": fmt.Sprintf("new session %q created", req.SessionName),
	})
}

// GetSessions returns all session names for a user, cache first with
// archive fallback.
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	sessions, err := h.reader.Sessions(r.Context(), username)
	if err != nil {
		slog.Error("failed to list sessions", "user", username, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

type sendMessageRequest struct {
	Username  string `json:"username"`
	Sender    string `json:"sender"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Time      string `json:"time"`
}

// SendMessage appends a message to a session in the hot store. The sender
// defaults to the owning username; the time defaults to now.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Message = strings.TrimSpace(req.Message)
	req.Sender = strings.TrimSpace(req.Sender)
	req.Time = strings.TrimSpace(req.Time)
	if req.Sender == "" {
		req.Sender = req.Username
	}

	if req.Username == "" || req.SessionID == "" || req.Message == "" {
		Error(w, http.StatusBadRequest, "username, session_id, and message are required")
		return
	}

	stored, err := h.cache.AppendMessage(r.Context(), req.Username, req.SessionID, domain.Message{
		Sender: req.Sender,
		Text:   req.Message,
		Time:   req.Time,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			Error(w, http.StatusBadRequest, fmt.Sprintf("session %q does not exist for user %q", req.SessionID, req.Username))
			return
		}
		slog.Error("failed to store message", "user", req.Username, "session", req.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	JSON(w, http.StatusCreated, map[string]string{
		"message": "message stored successfully",
		"time":    stored.Time,
	})
}

// GetMessages returns all messages for a session, cache first with
// archive fallback and write-back.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	sessionID := chi.URLParam(r, "session_id")

	messages, err := h.reader.Messages(r.Context(), username, sessionID)
	if err != nil {
		slog.Error("failed to list messages", "user", username, "session", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// DeleteSession removes a session and its messages from both tiers.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	sessionID := chi.URLParam(r, "session_id")
	ctx := r.Context()

	if err := h.cache.DeleteSession(ctx, username, sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			Error(w, http.StatusNotFound, fmt.Sprintf("session %q not found for user %q", sessionID, username))
			return
		}
		slog.Error("failed to delete cached session", "user", username, "session", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	// Remove archived rows as well. An unknown user has nothing archived.
	userID, err := h.repo.ResolveUserID(ctx, username)
	if err == nil {
		if _, err := h.repo.DeleteSession(ctx, userID, cache.Normalize(sessionID)); err != nil {
			slog.Error("failed to delete archived session rows", "user", username, "session", sessionID, "error", err)
			Error(w, http.StatusInternalServerError, "failed to delete session")
			return
		}
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		slog.Error("failed to resolve user for session delete", "user", username, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("session %q deleted for user %q", sessionID, username),
	})
}

// SearchMessages does a case-insensitive substring search across all of
// the user's cached sessions.
func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		Error(w, http.StatusBadRequest, "no query provided")
		return
	}

	results, err := h.cache.Search(r.Context(), username, query)
	if err != nil {
		slog.Error("failed to search messages", "user", username, "query", query, "error", err)
		Error(w, http.StatusInternalServerError, "failed to search messages")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"query":   query,
	})
}

// SyncSession forces a single session to be flushed to the archive.
func (h *Handler) SyncSession(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	sessionID := chi.URLParam(r, "session_id")

	if err := h.syncer.Sync(r.Context(), username, sessionID); err != nil {
		slog.Error("failed to sync session", "user", username, "session", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to sync session")
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("session %q synced to archive", sessionID),
	})
}

// Logout flushes every cached session the user owns to the archive. The
// cache is left intact.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := h.syncer.SyncAll(r.Context(), username); err != nil {
		slog.Error("failed to sync sessions on logout", "user", username, "error", err)
		Error(w, http.StatusInternalServerError, "failed to sync sessions")
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("all sessions for user %q synced to archive", username),
	})
}

type updateSessionExpiryRequest struct {
	Username string `json:"username"`
	Exp      *int64 `json:"exp"`
}

// UpdateSessionExpiry records an activity heartbeat for the user. exp is
// the session expiry in seconds since epoch.
func (h *Handler) UpdateSessionExpiry(w http.ResponseWriter, r *http.Request) {
	var req updateSessionExpiryRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Exp == nil {
		Error(w, http.StatusBadRequest, "username and exp are required")
		return
	}

	expiry := time.Unix(*req.Exp, 0)
	if err := h.tracker.Heartbeat(r.Context(), req.Username, &expiry); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			Error(w, http.StatusNotFound, fmt.Sprintf("user %q not found", req.Username))
			return
		}
		slog.Error("failed to record heartbeat", "user", req.Username, "error", err)
		Error(w, http.StatusInternalServerError, "failed to update session expiry")
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"status": "updated",
	})
}
