package chat

import (
	"context"
	"testing"
	"time"

	"github.com/moviepal/chatstore/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestReader(env *testEnv) *Reader {
	return NewReader(env.cache, env.repo, time.Second)
}

func TestSessionsPrefersCache(t *testing.T) {
	env := newTestEnv(t)
	reader := newTestReader(env)
	ctx := context.Background()

	env.createUser(t, "alice")
	require.NoError(t, env.cache.CreateSession(ctx, "alice", "trip"))

	sessions, err := reader.Sessions(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"trip"}, sessions)
}

func TestSessionsFallsBackAndRepopulates(t *testing.T) {
	env := newTestEnv(t)
	reader := newTestReader(env)
	ctx := context.Background()

	userID := env.createUser(t, "alice")
	require.NoError(t, env.repo.PersistMessages(ctx, []domain.ChatRecord{
		{UserID: userID, SessionID: "trip", Sender: "alice", Text: "a", Timestamp: time.Now()},
		{UserID: userID, SessionID: "food", Sender: "alice", Text: "b", Timestamp: time.Now()},
	}))

	// Cache is empty; the read falls through to the archive.
	sessions, err := reader.Sessions(ctx, "alice")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"trip", "food"}, sessions)

	// The fallback repopulated the cache for future fast reads.
	cached, err := env.cache.ListSessions(ctx, "alice")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"trip", "food"}, cached)
}

func TestSessionsUnknownUserIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	reader := newTestReader(env)

	sessions, err := reader.Sessions(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, sessions)
	require.NotNil(t, sessions)
}

func TestMessagesPrefersCache(t *testing.T) {
	env := newTestEnv(t)
	reader := newTestReader(env)
	ctx := context.Background()

	env.createUser(t, "alice")
	require.NoError(t, env.cache.CreateSession(ctx, "alice", "trip"))
	_, err := env.cache.AppendMessage(ctx, "alice", "trip", domain.Message{
		Sender: "alice", Text: "packing list", Time: "2025-03-01 12:00:00",
	})
	require.NoError(t, err)

	messages, err := reader.Messages(ctx, "alice", "trip")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "packing list", messages[0].Text)
	require.Equal(t, "2025-03-01 12:00:00", messages[0].Time)
}

func TestMessagesFallsBackAndRepopulates(t *testing.T) {
	env := newTestEnv(t)
	reader := newTestReader(env)
	ctx := context.Background()

	userID := env.createUser(t, "alice")
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	require.NoError(t, env.repo.PersistMessages(ctx, []domain.ChatRecord{
		{UserID: userID, SessionID: "trip", Sender: "alice", Text: "first", Timestamp: ts},
		{UserID: userID, SessionID: "trip", Sender: "bot", Text: "second", Timestamp: ts.Add(time.Minute)},
	}))

	messages, err := reader.Messages(ctx, "alice", "trip")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "first", messages[0].Text)
	require.Equal(t, "second", messages[1].Text)
	require.Equal(t, ts.Format(domain.TimeLayout), messages[0].Time)

	// A direct cache read now returns the identical set: the two views
	// have converged.
	cached, err := env.cache.ListMessages(ctx, "alice", "trip")
	require.NoError(t, err)
	require.Equal(t, messages, cached)
}

func TestMessagesNormalizesSessionName(t *testing.T) {
	env := newTestEnv(t)
	reader := newTestReader(env)
	ctx := context.Background()

	env.createUser(t, "alice")
	require.NoError(t, env.cache.CreateSession(ctx, "alice", "trip"))
	_, err := env.cache.AppendMessage(ctx, "alice", "trip", domain.Message{Sender: "alice", Text: "hi"})
	require.NoError(t, err)

	messages, err := reader.Messages(ctx, "alice", "TRIP")
	require.NoError(t, err)
	require.Len(t, messages, 1)
}

func TestMessagesUnknownUserIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	reader := newTestReader(env)

	messages, err := reader.Messages(context.Background(), "nobody", "trip")
	require.NoError(t, err)
	require.Empty(t, messages)
	require.NotNil(t, messages)
}
