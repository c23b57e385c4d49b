package websocket

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// Registry tracks live connections and their room tags. It implements
// interfaces.Transport for the chat core.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection            // connection id -> Connection
	rooms       map[string]map[string]*Connection // room -> connection id -> Connection
	logger      *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger discards output.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]*Connection),
		logger:      logger.With("component", "ws_registry"),
	}
}

// Register makes conn addressable by its id.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister removes conn and its room tag. Only the registered instance is
// removed, so repeated calls are harmless.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.connections[conn.ID()]
	if !exists || registered != conn {
		return
	}
	delete(r.connections, conn.ID())
	r.untagLocked(conn.ID(), conn.Room())
}

// Get returns the connection with id.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.connections[id]
	return conn, exists
}

// Emit queues one event frame for connectionID.
func (r *Registry) Emit(connectionID, event string, payload any) error {
	conn, exists := r.Get(connectionID)
	if !exists {
		return interfaces.ErrConnectionNotFound
	}
	return conn.WriteJSON(types.NewEventFrame(event, payload))
}

// JoinRoom tags connectionID with room.
func (r *Registry) JoinRoom(connectionID, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[connectionID]
	if !exists {
		return interfaces.ErrConnectionNotFound
	}

	r.untagLocked(connectionID, conn.Room())
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]*Connection)
	}
	r.rooms[room][connectionID] = conn
	conn.setRoom(room)
	return nil
}

// LeaveRoom drops the room tag. Unknown ids are ignored.
func (r *Registry) LeaveRoom(connectionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.untagLocked(connectionID, room)
	if conn, exists := r.connections[connectionID]; exists && conn.Room() == room {
		conn.setRoom("")
	}
}

func (r *Registry) untagLocked(connectionID, room string) {
	if room == "" {
		return
	}
	if members, exists := r.rooms[room]; exists {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// RoomSize returns the number of connections tagged with room.
func (r *Registry) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// GetStats returns registry counters for the health endpoint.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := 0
	for _, members := range r.rooms {
		joined += len(members)
	}
	return map[string]int{
		"total_connections":  len(r.connections),
		"joined_connections": joined,
		"active_rooms":       len(r.rooms),
	}
}

// CloseAll sends a going-away close frame to every connection. The read
// loops then exit and run their disconnect cleanup.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.CloseGracefully(websocket.CloseGoingAway, "server shutting down"); err != nil {
			r.logger.Debug("close failed", "connection_id", conn.ID(), "error", err)
		}
	}
}
