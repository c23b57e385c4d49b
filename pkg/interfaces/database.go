package interfaces

import (
	"context"

	"chatrelay/pkg/types"
)

// DatabaseManager handles presence audit persistence.
type DatabaseManager interface {
	// StorePresence appends one presence event.
	StorePresence(ctx context.Context, event *types.PresenceEvent) error

	// GetRoomPresence returns the latest events for a room, newest first.
	// A limit of zero or less applies the store default.
	GetRoomPresence(ctx context.Context, room string, limit int) ([]*types.PresenceEvent, error)

	// HealthCheck verifies database connectivity.
	HealthCheck(ctx context.Context) error

	// Close waits for pending writes and releases the database.
	Close() error
}
