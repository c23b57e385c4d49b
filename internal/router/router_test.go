package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/session"
	"chatrelay/internal/testutil"
	"chatrelay/pkg/types"
)

func setupRouter(t *testing.T) (*Router, *session.Registry, *testutil.FakeTransport) {
	t.Helper()
	registry := session.NewRegistry()
	transport := testutil.NewFakeTransport()
	for _, s := range []struct{ id, name, room string }{
		{"a", "alice", "lobby"},
		{"b", "bob", "lobby"},
		{"c", "carol", "lobby"},
		{"d", "dave", "other"},
	} {
		_, err := registry.Add(s.id, s.name, s.room)
		require.NoError(t, err)
	}
	return NewRouter(registry, transport, nil), registry, transport
}

func TestRecipients_Scopes(t *testing.T) {
	router, _, _ := setupRouter(t)

	tests := []struct {
		name  string
		scope Scope
		want  []string
	}{
		{name: "sender only", scope: ScopeSender, want: []string{"a"}},
		{name: "room except sender", scope: ScopeRoomExceptSender, want: []string{"b", "c"}},
		{name: "room including sender", scope: ScopeRoomIncludingSender, want: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := router.Recipients(tt.scope, "a", "Lobby")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecipients_UnknownScope(t *testing.T) {
	router, _, _ := setupRouter(t)
	_, err := router.Recipients(Scope(99), "a", "lobby")
	assert.ErrorIs(t, err, ErrUnknownScope)
	assert.Equal(t, 0, router.Deliver(Scope(99), "a", "lobby", types.TextMessage{}))
}

func TestRecipients_RecomputedEveryCall(t *testing.T) {
	router, registry, _ := setupRouter(t)

	before, _ := router.Recipients(ScopeRoomIncludingSender, "a", "lobby")
	assert.Len(t, before, 3)

	registry.Remove("b")
	_, err := registry.Add("e", "erin", "lobby")
	require.NoError(t, err)

	after, _ := router.Recipients(ScopeRoomIncludingSender, "a", "lobby")
	assert.Equal(t, []string{"a", "c", "e"}, after)
}

func TestDeliver_SendsEnvelopeWithEventName(t *testing.T) {
	router, _, transport := setupRouter(t)
	msg := types.TextMessage{Username: "alice", Text: "hi", CreatedAt: 1}

	n := router.Deliver(ScopeRoomExceptSender, "a", "lobby", msg)
	assert.Equal(t, 2, n)

	emitted := transport.All()
	require.Len(t, emitted, 2)
	for _, e := range emitted {
		assert.Equal(t, types.EventMessage, e.Event)
		assert.Equal(t, msg, e.Payload)
	}
	assert.Empty(t, transport.For("a"))
	assert.Empty(t, transport.For("d"))
}

func TestDeliver_FailureDoesNotStopOthers(t *testing.T) {
	router, _, transport := setupRouter(t)
	transport.FailEmit("b")

	n := router.Deliver(ScopeRoomIncludingSender, "a", "lobby", types.RoomData{Room: "lobby"})
	assert.Equal(t, 2, n)
	assert.Len(t, transport.For("a"), 1)
	assert.Len(t, transport.For("c"), 1)
	assert.Empty(t, transport.For("b"))
}

func TestDeliver_EmptyRoom(t *testing.T) {
	router, _, transport := setupRouter(t)
	assert.Equal(t, 0, router.Deliver(ScopeRoomExceptSender, "x", "nowhere", types.TextMessage{}))
	assert.Empty(t, transport.All())
}

func TestScope_String(t *testing.T) {
	assert.Equal(t, "sender", ScopeSender.String())
	assert.Equal(t, "room_except_sender", ScopeRoomExceptSender.String())
	assert.Equal(t, "room_including_sender", ScopeRoomIncludingSender.String())
	assert.Equal(t, "scope(7)", Scope(7).String())
}
