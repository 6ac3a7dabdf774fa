package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/moviepal/chatstore/internal/cache"
	"github.com/moviepal/chatstore/internal/domain"
	"github.com/moviepal/chatstore/internal/store"
)

// Reader implements cache-first reads: prefer the hot store under a
// bounded time budget, fall back to the archive, and write the fallback
// result back into the cache so the two views converge.
type Reader struct {
	cache        *cache.Store
	repo         store.Repository
	cacheTimeout time.Duration
}

// NewReader creates a Reader. cacheTimeout bounds how long a read waits
// on the hot store before falling through to the archive.
func NewReader(c *cache.Store, repo store.Repository, cacheTimeout time.Duration) *Reader {
	return &Reader{cache: c, repo: repo, cacheTimeout: cacheTimeout}
}

// Sessions returns the user's session names, cache first. An unknown
// user yields an empty list, not an error.
func (r *Reader) Sessions(ctx context.Context, username string) ([]string, error) {
	cacheCtx, cancel := context.WithTimeout(ctx, r.cacheTimeout)
	sessions, cacheErr := r.cache.ListSessions(cacheCtx, username)
	cancel()
	if cacheErr == nil && len(sessions) > 0 {
		return sessions, nil
	}
	if cacheErr != nil {
		slog.Warn("session cache read failed, falling back to archive",
			"user", username, "error", cacheErr)
	}

	// The fallback query runs on the request context; the cache budget
	// does not apply once the archive query has started.
	userID, err := r.repo.ResolveUserID(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	ids, err := r.repo.ListSessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		if err := r.cache.RestoreSessions(ctx, username, ids...); err != nil {
			slog.Warn("failed to repopulate session cache",
				"user", username, "error", err)
		}
	}

	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Messages returns the session's messages, cache first. Archive rows are
// written back into the cache with their own timestamps as ordering keys.
func (r *Reader) Messages(ctx context.Context, username, session string) ([]domain.Message, error) {
	session = cache.Normalize(session)

	cacheCtx, cancel := context.WithTimeout(ctx, r.cacheTimeout)
	messages, cacheErr := r.cache.ListMessages(cacheCtx, username, session)
	cancel()
	if cacheErr == nil && len(messages) > 0 {
		return messages, nil
	}
	if cacheErr != nil {
		slog.Warn("message cache read failed, falling back to archive",
			"user", username, "session", session, "error", cacheErr)
	}

	userID, err := r.repo.ResolveUserID(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return []domain.Message{}, nil
	}
	if err != nil {
		return nil, err
	}

	records, err := r.repo.ListMessages(ctx, userID, session)
	if err != nil {
		return nil, err
	}

	messages = make([]domain.Message, 0, len(records))
	for _, rec := range records {
		msg := domain.Message{
			Sender: rec.Sender,
			Text:   rec.Text,
			Time:   rec.Timestamp.Format(domain.TimeLayout),
		}
		messages = append(messages, msg)

		if err := r.cache.RestoreMessage(ctx, username, session, msg, rec.Timestamp); err != nil {
			slog.Warn("failed to repopulate message cache",
				"user", username, "session", session, "error", err)
		}
	}
	return messages, nil
}
