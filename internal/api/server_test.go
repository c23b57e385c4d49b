package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/hub"
	"chatrelay/internal/session"
	"chatrelay/pkg/types"
)

type fakeDatabase struct {
	healthErr  error
	presence   []*types.PresenceEvent
	presErr    error
	lastRoom   string
	lastLimit  int
	presenceOK bool
}

func (f *fakeDatabase) StorePresence(context.Context, *types.PresenceEvent) error { return nil }

func (f *fakeDatabase) GetRoomPresence(_ context.Context, room string, limit int) ([]*types.PresenceEvent, error) {
	f.lastRoom = room
	f.lastLimit = limit
	f.presenceOK = true
	return f.presence, f.presErr
}

func (f *fakeDatabase) HealthCheck(context.Context) error { return f.healthErr }

func (f *fakeDatabase) Close() error { return nil }

type fakeConnections map[string]int

func (f fakeConnections) GetStats() map[string]int { return f }

type fakePresence hub.Stats

func (f fakePresence) Stats() hub.Stats { return hub.Stats(f) }

func newTestServer(t *testing.T, db *fakeDatabase) (*Server, *session.Registry) {
	t.Helper()
	registry := session.NewRegistry()
	server := NewServer(Dependencies{
		Rooms:       registry,
		Database:    db,
		Connections: fakeConnections{"total_connections": 3, "joined_connections": 2, "active_rooms": 1},
		Presence:    fakePresence{Queued: 1, Stored: 7},
	})
	return server, registry
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestServer_HealthCheck(t *testing.T) {
	server, _ := newTestServer(t, &fakeDatabase{})

	w := do(t, server, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Database)
	assert.Equal(t, 3, body.Connections["total_connections"])
	assert.EqualValues(t, 7, body.Presence.Stored)
	assert.Positive(t, body.System.Goroutines)
	assert.GreaterOrEqual(t, body.System.UptimeSeconds, 0.0)
}

func TestServer_HealthCheckUnhealthyDatabase(t *testing.T) {
	server, _ := newTestServer(t, &fakeDatabase{healthErr: errors.New("disk gone")})

	w := do(t, server, http.MethodGet, "/health")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Contains(t, body.Database, "disk gone")
}

func TestServer_ListRooms(t *testing.T) {
	server, registry := newTestServer(t, &fakeDatabase{})

	w := do(t, server, http.MethodGet, "/api/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rooms":[]}`, w.Body.String())

	_, err := registry.Add("c1", "alice", "Lobby")
	require.NoError(t, err)
	_, err = registry.Add("c2", "bob", "lobby")
	require.NoError(t, err)
	_, err = registry.Add("c3", "carol", "den")
	require.NoError(t, err)

	w = do(t, server, http.MethodGet, "/api/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rooms":[{"name":"den","members":1},{"name":"lobby","members":2}]}`, w.Body.String())
}

func TestServer_GetRoom(t *testing.T) {
	server, registry := newTestServer(t, &fakeDatabase{})
	_, err := registry.Add("c1", "Alice", "lobby")
	require.NoError(t, err)
	_, err = registry.Add("c2", "bob", "lobby")
	require.NoError(t, err)

	w := do(t, server, http.MethodGet, "/api/rooms/LOBBY")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"room":"lobby","users":[{"username":"alice"},{"username":"bob"}]}`, w.Body.String())
}

func TestServer_GetRoomNotFound(t *testing.T) {
	server, _ := newTestServer(t, &fakeDatabase{})

	w := do(t, server, http.MethodGet, "/api/rooms/empty")
	require.Equal(t, http.StatusNotFound, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Code)
	assert.Equal(t, "Room not found", body.Message)
}

func TestServer_GetRoomPresence(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDatabase{presence: []*types.PresenceEvent{
		{ID: "e2", ConnectionID: "c1", Username: "alice", Room: "lobby", Kind: types.PresenceLeft, OccurredAt: at.Add(time.Minute)},
		{ID: "e1", ConnectionID: "c1", Username: "alice", Room: "lobby", Kind: types.PresenceJoined, OccurredAt: at},
	}}
	server, _ := newTestServer(t, db)

	w := do(t, server, http.MethodGet, "/api/rooms/Lobby/presence?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lobby", db.lastRoom)
	assert.Equal(t, 2, db.lastLimit)

	var body PresenceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "lobby", body.Room)
	require.Len(t, body.Events, 2)
	assert.Equal(t, "e2", body.Events[0].ID)
}

func TestServer_GetRoomPresenceDefaults(t *testing.T) {
	db := &fakeDatabase{}
	server, _ := newTestServer(t, db)

	w := do(t, server, http.MethodGet, "/api/rooms/lobby/presence")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, db.lastLimit)
	assert.JSONEq(t, `{"room":"lobby","events":[]}`, w.Body.String())
}

func TestServer_GetRoomPresenceErrors(t *testing.T) {
	db := &fakeDatabase{}
	server, _ := newTestServer(t, db)

	w := do(t, server, http.MethodGet, "/api/rooms/lobby/presence?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, server, http.MethodGet, "/api/rooms/lobby/presence?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, db.presenceOK)

	db.presErr = errors.New("query failed")
	w = do(t, server, http.MethodGet, "/api/rooms/lobby/presence")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	server, _ := newTestServer(t, &fakeDatabase{})

	w := do(t, server, http.MethodOptions, "/api/rooms")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t, &fakeDatabase{})

	w := do(t, server, http.MethodPost, "/api/rooms")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_MountsWebSocketHandler(t *testing.T) {
	called := false
	server := NewServer(Dependencies{
		Rooms:       session.NewRegistry(),
		Database:    &fakeDatabase{},
		Connections: fakeConnections{},
		WebSocket: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusTeapot)
		}),
	})

	w := do(t, server, http.MethodGet, "/ws")
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Empty(t, w.Header().Get("Content-Type"))
}
