// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/moviepal/chatstore/internal/domain"
)

// Repository defines the interface for the durable chat archive and the
// user directory backing it.
type Repository interface {
	// CreateUser adds a user to the directory and returns its ID.
	// Returns ErrUserExists if the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)

	// GetUser retrieves a user by username. Returns ErrUserNotFound if absent.
	GetUser(ctx context.Context, username string) (*domain.User, error)

	// ResolveUserID maps a username to its ID. Returns ErrUserNotFound if absent.
	ResolveUserID(ctx context.Context, username string) (int64, error)

	// DeleteUser removes a user from the directory. Returns ErrUserNotFound if absent.
	DeleteUser(ctx context.Context, username string) error

	// PersistMessages idempotently inserts archived rows in a single
	// transaction. Rows whose full 5-tuple already exists are skipped;
	// any failure rolls back the whole batch.
	PersistMessages(ctx context.Context, records []domain.ChatRecord) error

	// ListSessionIDs returns the distinct session IDs ever archived for a user.
	ListSessionIDs(ctx context.Context, userID int64) ([]string, error)

	// ListMessages returns archived rows for a session, ascending by timestamp.
	ListMessages(ctx context.Context, userID int64, sessionID string) ([]domain.ChatRecord, error)

	// DeleteSession bulk-deletes all archived rows for (userID, sessionID).
	DeleteSession(ctx context.Context, userID int64, sessionID string) (int64, error)

	// UpsertActivity creates or updates the single activity record for a
	// user. A nil SessionExpiry leaves any stored expiry untouched.
	UpsertActivity(ctx context.Context, rec domain.ActiveUser) error

	// SelectIdleUsers returns activity records with last_seen before the
	// cutoff, joined with their usernames.
	SelectIdleUsers(ctx context.Context, cutoff time.Time) ([]domain.IdleUser, error)

	// DeleteActivity removes a user's activity record.
	DeleteActivity(ctx context.Context, userID int64) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
