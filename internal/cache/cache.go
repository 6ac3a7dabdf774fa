// Package cache wraps the Redis hot store that holds live chat sessions:
// a session-name set per user and a sorted message log per (user, session).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moviepal/chatstore/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ReconnectPolicy bounds how hard the store tries to re-establish a broken
// connection before giving up with ErrCacheUnavailable.
type ReconnectPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultReconnectPolicy pings once and rebuilds the client once more.
var DefaultReconnectPolicy = ReconnectPolicy{MaxAttempts: 2, Backoff: 100 * time.Millisecond}

// Options configure the hot-store client.
type Options struct {
	Addr      string
	DB        int
	Reconnect ReconnectPolicy
}

// Store is the hot-store wrapper. All methods verify connection health
// first and rebuild the client in place when the connection is stale.
type Store struct {
	mu     sync.Mutex
	client *redis.Client
	opts   Options
}

// New creates a hot-store wrapper. The connection is established lazily;
// use Ping to verify it at startup.
func New(opts Options) *Store {
	if opts.Reconnect.MaxAttempts <= 0 {
		opts.Reconnect = DefaultReconnectPolicy
	}
	return &Store{
		client: redis.NewClient(&redis.Options{Addr: opts.Addr, DB: opts.DB}),
		opts:   opts,
	}
}

// Normalize returns the canonical form of a session name: trimmed and
// lower-cased. Session identity is case-insensitive.
func Normalize(session string) string {
	return strings.ToLower(strings.TrimSpace(session))
}

func sessionSetKey(username string) string {
	return "bot-sessions-" + username
}

func conversationKey(username, session string) string {
	return fmt.Sprintf("bot-%s-%s", username, session)
}

// ensureConnection health-checks the client, rebuilding it between
// attempts. Exhausting the policy yields ErrCacheUnavailable.
func (s *Store) ensureConnection(ctx context.Context) (*redis.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < s.opts.Reconnect.MaxAttempts; attempt++ {
		if attempt > 0 {
			slog.Warn("hot store ping failed, rebuilding client",
				"attempt", attempt, "error", lastErr)
			if err := s.client.Close(); err != nil {
				slog.Debug("failed to close stale hot-store client", "error", err)
			}
			s.client = redis.NewClient(&redis.Options{Addr: s.opts.Addr, DB: s.opts.DB})
			if s.opts.Reconnect.Backoff > 0 {
				time.Sleep(s.opts.Reconnect.Backoff)
			}
		}
		if err := s.client.Ping(ctx).Err(); err != nil {
			lastErr = err
			continue
		}
		return s.client, nil
	}

	return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, lastErr)
}

// Ping verifies hot-store connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.ensureConnection(ctx)
	return err
}

// CreateSession adds a session to the user's session set. The add is
// atomic: a normalized name already in the set fails with
// ErrDuplicateSession without a separate existence check.
func (s *Store) CreateSession(ctx context.Context, username, session string) error {
	session = Normalize(session)
	c, err := s.ensureConnection(ctx)
	if err != nil {
		return err
	}

	added, err := c.SAdd(ctx, sessionSetKey(username), session).Result()
	if err != nil {
		return fmt.Errorf("add session %q for %q: %w", session, username, err)
	}
	if added == 0 {
		return domain.ErrDuplicateSession
	}
	return nil
}

// ListSessions returns the user's session names, sorted for deterministic
// output.
func (s *Store) ListSessions(ctx context.Context, username string) ([]string, error) {
	c, err := s.ensureConnection(ctx)
	if err != nil {
		return nil, err
	}

	sessions, err := c.SMembers(ctx, sessionSetKey(username)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions for %q: %w", username, err)
	}
	sort.Strings(sessions)
	return sessions, nil
}

// RestoreSessions re-adds session names to the user's set without the
// duplicate check. Used by the read path to repopulate from the archive.
func (s *Store) RestoreSessions(ctx context.Context, username string, sessions ...string) error {
	if len(sessions) == 0 {
		return nil
	}
	c, err := s.ensureConnection(ctx)
	if err != nil {
		return err
	}

	members := make([]interface{}, len(sessions))
	for i, sess := range sessions {
		members[i] = sess
	}
	if err := c.SAdd(ctx, sessionSetKey(username), members...).Err(); err != nil {
		return fmt.Errorf("restore sessions for %q: %w", username, err)
	}
	return nil
}

// AppendMessage stores a message in the session's ordered log. The session
// must exist for every sender, the bot included. An absent Time defaults
// to the current wall clock. Returns the stored message, Time filled in.
//
// The ordering key is wall-clock seconds plus a small random fraction so
// messages sharing a timestamp still sort in insertion order.
func (s *Store) AppendMessage(ctx context.Context, username, session string, msg domain.Message) (domain.Message, error) {
	session = Normalize(session)
	c, err := s.ensureConnection(ctx)
	if err != nil {
		return domain.Message{}, err
	}

	member, err := c.SIsMember(ctx, sessionSetKey(username), session).Result()
	if err != nil {
		return domain.Message{}, fmt.Errorf("check session %q for %q: %w", session, username, err)
	}
	if !member {
		return domain.Message{}, domain.ErrSessionNotFound
	}

	if msg.Time == "" {
		msg.Time = time.Now().Format(domain.TimeLayout)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode message: %w", err)
	}

	score := float64(time.Now().UnixNano())/float64(time.Second) + rand.Float64()/10000
	if err := c.ZAdd(ctx, conversationKey(username, session), redis.Z{
		Score:  score,
		Member: payload,
	}).Err(); err != nil {
		return domain.Message{}, fmt.Errorf("store message in %q for %q: %w", session, username, err)
	}

	return msg, nil
}

// RestoreMessage writes an archived message back into the session log,
// using the row's own timestamp as the ordering key.
func (s *Store) RestoreMessage(ctx context.Context, username, session string, msg domain.Message, ts time.Time) error {
	c, err := s.ensureConnection(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	if err := c.ZAdd(ctx, conversationKey(username, session), redis.Z{
		Score:  float64(ts.Unix()),
		Member: payload,
	}).Err(); err != nil {
		return fmt.Errorf("restore message in %q for %q: %w", session, username, err)
	}
	return nil
}

// ListMessages returns the session's messages in ascending ordering-key
// order.
func (s *Store) ListMessages(ctx context.Context, username, session string) ([]domain.Message, error) {
	scored, err := s.ListMessagesWithScores(ctx, username, session)
	if err != nil {
		return nil, err
	}
	messages := make([]domain.Message, len(scored))
	for i, m := range scored {
		messages[i] = m.Message
	}
	return messages, nil
}

// ListMessagesWithScores returns the session's messages together with
// their ordering keys, ascending.
func (s *Store) ListMessagesWithScores(ctx context.Context, username, session string) ([]domain.ScoredMessage, error) {
	session = Normalize(session)
	c, err := s.ensureConnection(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := c.ZRangeWithScores(ctx, conversationKey(username, session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list messages in %q for %q: %w", session, username, err)
	}

	messages := make([]domain.ScoredMessage, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Member.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected member type %T in %q", entry.Member, session)
		}
		var msg domain.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("decode message in %q: %w", session, err)
		}
		messages = append(messages, domain.ScoredMessage{Message: msg, Score: entry.Score})
	}
	return messages, nil
}

// DeleteSession removes the session from the user's set and discards its
// message log.
func (s *Store) DeleteSession(ctx context.Context, username, session string) error {
	session = Normalize(session)
	c, err := s.ensureConnection(ctx)
	if err != nil {
		return err
	}

	member, err := c.SIsMember(ctx, sessionSetKey(username), session).Result()
	if err != nil {
		return fmt.Errorf("check session %q for %q: %w", session, username, err)
	}
	if !member {
		return domain.ErrSessionNotFound
	}

	if err := c.SRem(ctx, sessionSetKey(username), session).Err(); err != nil {
		return fmt.Errorf("remove session %q for %q: %w", session, username, err)
	}
	if err := c.Del(ctx, conversationKey(username, session)).Err(); err != nil {
		return fmt.Errorf("delete message log %q for %q: %w", session, username, err)
	}
	return nil
}

// Search does a case-insensitive substring match on message text across
// every session the user owns. Result times are rendered from the
// ordering key.
func (s *Store) Search(ctx context.Context, username, query string) ([]domain.SearchResult, error) {
	query = strings.ToLower(query)
	sessions, err := s.ListSessions(ctx, username)
	if err != nil {
		return nil, err
	}

	results := []domain.SearchResult{}
	for _, session := range sessions {
		scored, err := s.ListMessagesWithScores(ctx, username, session)
		if err != nil {
			return nil, err
		}
		for _, m := range scored {
			if !strings.Contains(strings.ToLower(m.Text), query) {
				continue
			}
			results = append(results, domain.SearchResult{
				SessionID: session,
				Sender:    m.Sender,
				Text:      m.Text,
				Time:      time.Unix(int64(m.Score), 0).Format(domain.TimeLayout),
			})
		}
	}
	return results, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Close()
}
