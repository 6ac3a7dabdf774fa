package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/moviepal/chatstore/internal/cache"
	"github.com/moviepal/chatstore/internal/domain"
	"github.com/moviepal/chatstore/internal/store"
)

// Tracker records user activity heartbeats: one live record per user,
// upserted on every call.
type Tracker struct {
	repo store.Repository
}

// NewTracker creates a Tracker over the archive.
func NewTracker(repo store.Repository) *Tracker {
	return &Tracker{repo: repo}
}

// Heartbeat marks the user as seen now. Returns ErrUserNotFound for an
// unknown username.
func (t *Tracker) Heartbeat(ctx context.Context, username string, sessionExpiry *time.Time) error {
	userID, err := t.repo.ResolveUserID(ctx, username)
	if err != nil {
		return err
	}
	return t.repo.UpsertActivity(ctx, domain.ActiveUser{
		UserID:        userID,
		LastSeen:      time.Now(),
		SessionExpiry: sessionExpiry,
	})
}

// Reaper is the background task that finds users idle past the
// inactivity threshold, flushes all their cached sessions to the archive,
// and clears their activity records.
//
// Archive access goes through the shared database/sql pool, which hands
// each sweep statement its own connection; the reaper never shares a
// transaction with in-flight request handlers.
type Reaper struct {
	repo      store.Repository
	cache     *cache.Store
	syncer    *Syncer
	threshold time.Duration
	interval  time.Duration
}

// NewReaper creates a Reaper. threshold is how long a user may be idle
// before being swept; interval is how often the sweep runs.
func NewReaper(repo store.Repository, c *cache.Store, syncer *Syncer, threshold, interval time.Duration) *Reaper {
	return &Reaper{
		repo:      repo,
		cache:     c,
		syncer:    syncer,
		threshold: threshold,
		interval:  interval,
	}
}

// Start launches the sweep loop in a goroutine. The loop runs until ctx
// is cancelled; sweep errors are logged, never fatal.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		slog.Info("inactivity reaper started",
			"interval", r.interval, "threshold", r.threshold)

		for {
			select {
			case <-ticker.C:
				r.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("inactivity reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep runs a single pass: select idle users and flush each one.
// Failures are isolated per user so one bad sync cannot block
// reclamation of the others; a failed user keeps its activity record and
// is retried on the next sweep.
func (r *Reaper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.threshold)

	idle, err := r.repo.SelectIdleUsers(ctx, cutoff)
	if err != nil {
		slog.Error("reaper failed to select idle users", "error", err)
		return
	}
	if len(idle) == 0 {
		return
	}

	slog.Info("reaper found idle users", "count", len(idle))

	swept := 0
	for _, user := range idle {
		if err := r.reapUser(ctx, user); err != nil {
			slog.Error("reaper failed to flush idle user",
				"user", user.Username, "user_id", user.UserID, "error", err)
			continue
		}
		swept++
	}

	slog.Info("reaper sweep completed", "swept", swept, "failed", len(idle)-swept)
}

func (r *Reaper) reapUser(ctx context.Context, user domain.IdleUser) error {
	sessions, err := r.cache.ListSessions(ctx, user.Username)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if err := r.syncer.Sync(ctx, user.Username, session); err != nil {
			return err
		}
	}
	return r.repo.DeleteActivity(ctx, user.UserID)
}
