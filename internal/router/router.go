package router

import (
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// Scope selects who receives a delivery relative to the originating connection.
type Scope int

const (
	// ScopeSender delivers only to the origin connection.
	ScopeSender Scope = iota
	// ScopeRoomExceptSender delivers to every other member of the room.
	ScopeRoomExceptSender
	// ScopeRoomIncludingSender delivers to every member of the room.
	ScopeRoomIncludingSender
)

func (s Scope) String() string {
	switch s {
	case ScopeSender:
		return "sender"
	case ScopeRoomExceptSender:
		return "room_except_sender"
	case ScopeRoomIncludingSender:
		return "room_including_sender"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Router resolves recipients from the registry on every call and hands each
// envelope to the transport. Membership is never cached.
type Router struct {
	registry  interfaces.SessionRegistry
	transport interfaces.Transport
	logger    *slog.Logger
}

// NewRouter creates a router. A nil logger discards output.
func NewRouter(registry interfaces.SessionRegistry, transport interfaces.Transport, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		registry:  registry,
		transport: transport,
		logger:    logger.With("component", "router"),
	}
}

// Recipients returns the connection ids a delivery with scope would reach.
// The origin does not need a session for ScopeSender.
func (r *Router) Recipients(scope Scope, origin, room string) ([]string, error) {
	switch scope {
	case ScopeSender:
		return []string{origin}, nil
	case ScopeRoomExceptSender:
		members := r.registry.ListInRoom(room)
		return lo.FilterMap(members, func(s types.Session, _ int) (string, bool) {
			return s.ID, s.ID != origin
		}), nil
	case ScopeRoomIncludingSender:
		members := r.registry.ListInRoom(room)
		return lo.Map(members, func(s types.Session, _ int) string {
			return s.ID
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}
}

// Deliver sends env to every recipient of scope and returns how many sends
// succeeded. A failed send is logged and does not stop the remaining ones.
func (r *Router) Deliver(scope Scope, origin, room string, env types.Envelope) int {
	recipients, err := r.Recipients(scope, origin, room)
	if err != nil {
		r.logger.Error("delivery dropped", "scope", scope.String(), "room", room, "error", err)
		return 0
	}

	event := env.EventName()
	delivered := 0
	for _, id := range recipients {
		if err := r.transport.Emit(id, event, env); err != nil {
			r.logger.Warn("failed to deliver event",
				"connection_id", id,
				"event", event,
				"room", room,
				"error", err)
			continue
		}
		delivered++
	}

	r.logger.Debug("event delivered",
		"event", event,
		"scope", scope.String(),
		"room", room,
		"recipients", len(recipients),
		"delivered", delivered)
	return delivered
}
