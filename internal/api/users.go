package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/moviepal/chatstore/internal/auth"
	"github.com/moviepal/chatstore/internal/domain"
)

// RegisterUserRoutes registers the user-directory endpoints.
func (h *Handler) RegisterUserRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.CreateUser)
		r.Post("/verify", h.VerifyUser)
		r.Get("/{username}", h.GetUser)
		r.Delete("/{username}", h.DeleteUser)
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateUser adds a user to the directory.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Password = strings.TrimSpace(req.Password)
	if req.Username == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	if _, err := h.repo.CreateUser(r.Context(), req.Username, hash); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			Error(w, http.StatusBadRequest, "user already exists")
			return
		}
		slog.Error("failed to create user", "user", req.Username, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	JSON(w, http.StatusCreated, map[string]string{"message": "user created successfully"})
}

// VerifyUser checks a username/password pair against the directory.
func (h *Handler) VerifyUser(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		Error(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.repo.GetUser(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			Error(w, http.StatusNotFound, "user not found")
			return
		}
		slog.Error("failed to load user for verification", "user", req.Username, "error", err)
		Error(w, http.StatusInternalServerError, "failed to verify user")
		return
	}

	JSON(w, http.StatusOK, map[string]bool{
		"valid": auth.VerifyPassword(user.PasswordHash, req.Password),
	})
}

// GetUser retrieves a user by username.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	user, err := h.repo.GetUser(r.Context(), username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			Error(w, http.StatusNotFound, "user not found")
			return
		}
		slog.Error("failed to get user", "user", username, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
	})
}

// DeleteUser removes a user from the directory.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := h.repo.DeleteUser(r.Context(), username); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			Error(w, http.StatusNotFound, "user not found")
			return
		}
		slog.Error("failed to delete user", "user", username, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"message": "user deleted successfully"})
}
