package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/moviepal/chatstore/internal/cache"
	"github.com/moviepal/chatstore/internal/chat"
	"github.com/moviepal/chatstore/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mr := miniredis.RunT(t)
	c := cache.New(cache.Options{
		Addr:      mr.Addr(),
		Reconnect: cache.ReconnectPolicy{MaxAttempts: 2, Backoff: time.Millisecond},
	})
	t.Cleanup(func() { _ = c.Close() })

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	syncer := chat.NewSyncer(c, repo)
	reader := chat.NewReader(c, repo, time.Second)
	tracker := chat.NewTracker(repo)
	handler := NewHandler(repo, c, reader, syncer, tracker)

	r := chi.NewRouter()
	handler.RegisterChatRoutes(r)
	handler.RegisterUserRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func createUser(t *testing.T, srv *httptest.Server, username string) {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/users/", map[string]string{
		"username": username,
		"password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	createUser(t, srv, "alice")

	// Create.
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/botchat/sessions", map[string]string{
		"username": "alice", "session_name": "Trip",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Case-insensitive duplicate.
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/botchat/sessions", map[string]string{
		"username": "alice", "session_name": "trip",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body["error"], "already exists")

	// Unknown user.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/botchat/sessions", map[string]string{
		"username": "nobody", "session_name": "trip",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Missing fields.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/botchat/sessions", map[string]string{
		"username": "alice",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// List: the stored name is normalized.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/botchat/sessions/alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []interface{}{"trip"}, body["sessions"])

	// Delete.
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/botchat/delete/alice/trip", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/botchat/delete/alice/trip", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMessageFlow(t *testing.T) {
	srv := newTestServer(t)
	createUser(t, srv, "alice")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/botchat/sessions", map[string]string{
		"username": "alice", "session_name": "trip",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	sent := "2025-03-01 12:00:00"
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/botchat/messages", map[string]string{
		"username": "alice", "session_id": "trip", "message": "packing list", "time": sent,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, sent, body["time"])

	// Sender defaults to the owning username.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/botchat/messages/alice/trip", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	messages, ok := body["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 1)
	first, ok := messages[0].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "alice", first["sender"])
	require.Equal(t, "packing list", first["text"])
	require.Equal(t, sent, first["time"])

	// Unknown session.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/botchat/messages", map[string]string{
		"username": "alice", "session_id": "nope", "message": "hi",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Missing fields.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/botchat/messages", map[string]string{
		"username": "alice", "session_id": "trip",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createUser(t, srv, "alice")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/botchat/sessions", map[string]string{
		"username": "alice", "session_name": "trip",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/botchat/messages", map[string]string{
		"username": "alice", "session_id": "trip", "message": "Packing List",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/botchat/search/alice?query=packing", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "packing", body["query"])
	results, ok := body["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/botchat/search/alice", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncAndLogoutEndpoints(t *testing.T) {
	srv := newTestServer(t)
	createUser(t, srv, "alice")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/botchat/sessions", map[string]string{
		"username": "alice", "session_name": "trip",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/botchat/messages", map[string]string{
		"username": "alice", "session_id": "trip", "message": "hello", "time": "2025-03-01 12:00:00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/botchat/sync/alice/trip", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/botchat/logout/alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateSessionExpiry(t *testing.T) {
	srv := newTestServer(t)
	createUser(t, srv, "alice")

	exp := time.Now().Add(time.Hour).Unix()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/botchat/update_session_expiry", map[string]interface{}{
		"username": "alice", "exp": exp,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "updated", body["status"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/botchat/update_session_expiry", map[string]interface{}{
		"username": "nobody", "exp": exp,
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/botchat/update_session_expiry", map[string]interface{}{
		"username": "alice",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUserEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/users/", map[string]string{
		"username": "alice", "password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/users/", map[string]string{
		"username": "alice", "password": "other",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/users/alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "alice", body["username"])
	require.NotContains(t, body, "password_hash")

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/users/verify", map[string]string{
		"username": "alice", "password": "s3cret",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["valid"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/users/verify", map[string]string{
		"username": "alice", "password": "wrong",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["valid"])

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/users/alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/users/alice", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScenarioEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	createUser(t, srv, "alice")

	sent := "2025-03-01 12:00:00"

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/botchat/sessions", map[string]string{
		"username": "alice", "session_name": "trip",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/botchat/messages", map[string]string{
		"username": "alice", "session_id": "trip", "message": "packing list", "time": sent,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/botchat/messages/alice/trip", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []interface{}{
		map[string]interface{}{"sender": "alice", "text": "packing list", "time": sent},
	}, body["messages"])

	// Sync twice; the archive must hold exactly one row either way. The
	// fallback read after a session delete shows what was archived.
	for i := 0; i < 2; i++ {
		resp, _ = doJSON(t, http.MethodPost, srv.URL+"/botchat/sync/alice/trip", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, fmt.Sprintf("sync attempt %d", i+1))
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/botchat/messages/alice/trip", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["messages"], 1)
}
