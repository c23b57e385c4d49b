// Package lifecycle drives a connection through Connected, Joined and
// Disconnected, turning client requests into registry and router calls.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatrelay/internal/admission"
	"chatrelay/internal/message"
	"chatrelay/internal/moderation"
	"chatrelay/internal/router"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// State is the position of a connection in its lifecycle.
type State int

const (
	StateConnected State = iota
	StateJoined
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Handler holds the collaborators shared by every connection.
type Handler struct {
	admission *admission.Controller
	registry  interfaces.SessionRegistry
	transport interfaces.Transport
	router    *router.Router
	factory   *message.Factory
	moderator *moderation.Moderator
	limiter   *RateLimiter
	recorder  interfaces.PresenceRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures optional Handler collaborators.
type Option func(*Handler)

// WithModerator rejects messages that contain censored words.
func WithModerator(m *moderation.Moderator) Option {
	return func(h *Handler) { h.moderator = m }
}

// WithRateLimiter limits how fast one connection may send.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(h *Handler) { h.limiter = rl }
}

// WithPresenceRecorder audits departures. Joins are recorded by admission.
func WithPresenceRecorder(r interfaces.PresenceRecorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a lifecycle handler.
func NewHandler(
	ctrl *admission.Controller,
	registry interfaces.SessionRegistry,
	transport interfaces.Transport,
	rt *router.Router,
	factory *message.Factory,
	opts ...Option,
) *Handler {
	h := &Handler{
		admission: ctrl,
		registry:  registry,
		transport: transport,
		router:    rt,
		factory:   factory,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "lifecycle")
	return h
}

// Open starts tracking a freshly accepted connection.
func (h *Handler) Open(connectionID string) *Conn {
	h.logger.Debug("connection opened", "connection_id", connectionID)
	return &Conn{id: connectionID, handler: h, state: StateConnected}
}

// Conn is the per-connection state machine. Its mutex serializes every
// request so that Disconnect observes the outcome of an in-flight Join.
type Conn struct {
	id      string
	handler *Handler

	mu    sync.Mutex
	state State
}

// ID returns the transport connection id.
func (c *Conn) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Join admits the connection into room under username.
func (c *Conn) Join(ctx context.Context, username, room string) (types.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateDisconnected:
		return types.Session{}, ErrDisconnected
	case StateJoined:
		return types.Session{}, ErrAlreadyJoined
	}

	sess, err := c.handler.admission.Admit(ctx, c.id, username, room)
	if err != nil {
		return types.Session{}, err
	}
	c.state = StateJoined
	return sess, nil
}

// SendMessage relays text to the sender's whole room.
func (c *Conn) SendMessage(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.activeSession()
	if err != nil {
		return err
	}
	if c.handler.moderator.Contains(text) {
		c.handler.logger.Info("message rejected by moderation",
			"connection_id", c.id,
			"room", sess.Room)
		return ErrProfanity
	}

	c.handler.router.Deliver(router.ScopeRoomIncludingSender, c.id, sess.Room,
		c.handler.factory.Text(sess.Username, text))
	return nil
}

// SendLocation relays a map link for the given coordinates to the sender's
// whole room.
func (c *Conn) SendLocation(latitude, longitude float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.activeSession()
	if err != nil {
		return err
	}

	c.handler.router.Deliver(router.ScopeRoomIncludingSender, c.id, sess.Room,
		c.handler.factory.Location(sess.Username, latitude, longitude))
	return nil
}

// activeSession checks state, the registry and the rate limit for a send.
// Callers hold c.mu.
func (c *Conn) activeSession() (types.Session, error) {
	switch c.state {
	case StateDisconnected:
		return types.Session{}, ErrDisconnected
	case StateConnected:
		return types.Session{}, ErrNotJoined
	}

	sess, ok := c.handler.registry.Get(c.id)
	if !ok {
		return types.Session{}, ErrNotJoined
	}
	if !c.handler.limiter.Allow(c.id) {
		return types.Session{}, ErrRateLimited
	}
	return sess, nil
}

// Disconnect releases the connection. Only the first call does any work; if
// the connection had joined, the room is told it left.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisconnected {
		return
	}
	wasJoined := c.state == StateJoined
	c.state = StateDisconnected

	h := c.handler
	h.limiter.Forget(c.id)

	if !wasJoined {
		h.logger.Debug("connection closed before joining", "connection_id", c.id)
		return
	}

	sess, ok := h.registry.Remove(c.id)
	if !ok {
		return
	}
	h.transport.LeaveRoom(c.id, sess.Room)

	system := h.admission.SystemName()
	h.router.Deliver(router.ScopeRoomIncludingSender, c.id, sess.Room,
		h.factory.Text(system, sess.Username+" has left!"))
	h.router.Deliver(router.ScopeRoomIncludingSender, c.id, sess.Room,
		h.factory.RoomData(sess.Room, h.registry.ListInRoom(sess.Room)))

	admission.RecordPresence(h.recorder, h.logger, sess, types.PresenceLeft, h.now())

	h.logger.Info("session departed",
		"connection_id", c.id,
		"username", sess.Username,
		"room", sess.Room)
}
