// Package chat implements the synchronization and read paths between the
// hot store and the durable archive, plus the inactivity reaper that
// drives synchronization for idle users.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moviepal/chatstore/internal/cache"
	"github.com/moviepal/chatstore/internal/domain"
	"github.com/moviepal/chatstore/internal/store"
)

// Syncer flushes cached messages into the durable archive. Sync is
// one-way and repeatable: it never deletes cache state, and the archive
// insert is idempotent, so retrying after a failure is always safe.
type Syncer struct {
	cache *cache.Store
	repo  store.Repository
}

// NewSyncer creates a Syncer over the given stores.
func NewSyncer(c *cache.Store, repo store.Repository) *Syncer {
	return &Syncer{cache: c, repo: repo}
}

// Sync persists every cached message for (username, session) into the
// archive in a single transaction.
//
// An unknown user is not an error: speculative syncs routinely race
// deletions, so they resolve to a no-op. A hot-store read failure
// propagates as ErrCacheUnavailable so the caller can decide to retry;
// an archive write failure rolls back the batch and surfaces as
// ErrSyncFailed.
func (s *Syncer) Sync(ctx context.Context, username, session string) error {
	session = cache.Normalize(session)

	userID, err := s.repo.ResolveUserID(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: resolve user %q: %v", domain.ErrSyncFailed, username, err)
	}

	cached, err := s.cache.ListMessagesWithScores(ctx, username, session)
	if err != nil {
		return err
	}
	if len(cached) == 0 {
		return nil
	}

	records := make([]domain.ChatRecord, 0, len(cached))
	for _, m := range cached {
		records = append(records, domain.ChatRecord{
			UserID:    userID,
			SessionID: session,
			Sender:    m.Sender,
			Text:      m.Text,
			Timestamp: timestampFor(m),
		})
	}

	if err := s.repo.PersistMessages(ctx, records); err != nil {
		return fmt.Errorf("%w: persist %q for %q: %v", domain.ErrSyncFailed, session, username, err)
	}
	return nil
}

// SyncAll flushes every cached session the user owns.
func (s *Syncer) SyncAll(ctx context.Context, username string) error {
	sessions, err := s.cache.ListSessions(ctx, username)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if err := s.Sync(ctx, username, session); err != nil {
			return err
		}
	}
	return nil
}

// timestampFor derives the archive timestamp for a cached message: the
// recorded time field when it parses, otherwise the ordering key.
func timestampFor(m domain.ScoredMessage) time.Time {
	if ts, err := time.ParseInLocation(domain.TimeLayout, m.Time, time.Local); err == nil {
		return ts
	}
	return time.Unix(int64(m.Score), 0)
}
