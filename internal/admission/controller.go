// Package admission turns a join request into a live session and announces
// it to the room.
package admission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatrelay/internal/message"
	"chatrelay/internal/router"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// Defaults for the system identity.
const (
	DefaultSystemName  = "Admin"
	DefaultWelcomeText = "Welcome!"
)

// Config holds the system identity used for welcome and presence lines.
type Config struct {
	SystemName  string
	WelcomeText string
}

// Controller admits sessions.
type Controller struct {
	registry  interfaces.SessionRegistry
	transport interfaces.Transport
	router    *router.Router
	factory   *message.Factory
	recorder  interfaces.PresenceRecorder
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewController wires an admission controller. recorder may be nil.
func NewController(
	registry interfaces.SessionRegistry,
	transport interfaces.Transport,
	rt *router.Router,
	factory *message.Factory,
	recorder interfaces.PresenceRecorder,
	config Config,
	logger *slog.Logger,
) *Controller {
	if config.SystemName == "" {
		config.SystemName = DefaultSystemName
	}
	if config.WelcomeText == "" {
		config.WelcomeText = DefaultWelcomeText
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		registry:  registry,
		transport: transport,
		router:    rt,
		factory:   factory,
		recorder:  recorder,
		config:    config,
		logger:    logger.With("component", "admission"),
		now:       time.Now,
	}
}

// SystemName is the display name used for server-authored lines.
func (c *Controller) SystemName() string {
	return c.config.SystemName
}

// Admit registers the session, tags the connection with its room, welcomes
// the newcomer and tells the rest of the room. Registry errors are returned
// untouched and nothing is emitted for them.
func (c *Controller) Admit(ctx context.Context, connectionID, username, room string) (types.Session, error) {
	if err := ctx.Err(); err != nil {
		return types.Session{}, err
	}

	sess, err := c.registry.Add(connectionID, username, room)
	if err != nil {
		c.logger.Debug("join rejected", "connection_id", connectionID, "error", err)
		return types.Session{}, err
	}

	if err := c.transport.JoinRoom(connectionID, sess.Room); err != nil {
		c.registry.Remove(connectionID)
		return types.Session{}, fmt.Errorf("failed to join transport room: %w", err)
	}

	c.router.Deliver(router.ScopeSender, connectionID, sess.Room,
		c.factory.Text(c.config.SystemName, c.config.WelcomeText))
	c.router.Deliver(router.ScopeRoomExceptSender, connectionID, sess.Room,
		c.factory.Text(c.config.SystemName, sess.Username+" has joined!"))
	c.router.Deliver(router.ScopeRoomIncludingSender, connectionID, sess.Room,
		c.factory.RoomData(sess.Room, c.registry.ListInRoom(sess.Room)))

	RecordPresence(c.recorder, c.logger, sess, types.PresenceJoined, c.now())

	c.logger.Info("session admitted",
		"connection_id", connectionID,
		"username", sess.Username,
		"room", sess.Room)
	return sess, nil
}

// RecordPresence forwards a presence event to recorder. Failures are logged
// only; auditing never fails a join or a departure.
func RecordPresence(recorder interfaces.PresenceRecorder, logger *slog.Logger, sess types.Session, kind string, at time.Time) {
	if recorder == nil {
		return
	}
	event := types.PresenceEvent{
		ConnectionID: sess.ID,
		Username:     sess.Username,
		Room:         sess.Room,
		Kind:         kind,
		OccurredAt:   at.UTC(),
	}
	if err := recorder.Record(event); err != nil {
		logger.Warn("presence event dropped",
			"connection_id", sess.ID,
			"room", sess.Room,
			"kind", kind,
			"error", err)
	}
}
