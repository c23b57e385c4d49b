package interfaces

import "chatrelay/pkg/types"

// SessionRegistry is the single source of truth for who is connected, under
// what name, in what room. Implementations serialize every call.
type SessionRegistry interface {
	// Add normalizes username and room and admits a new session.
	// Fails with types.ErrInvalidInput or types.ErrNameTaken.
	Add(connectionID, username, room string) (types.Session, error)

	// Remove deletes the session for connectionID. A second call is a no-op.
	Remove(connectionID string) (types.Session, bool)

	// Get is a read-only lookup.
	Get(connectionID string) (types.Session, bool)

	// ListInRoom returns a snapshot of the sessions in the normalized room.
	ListInRoom(room string) []types.Session
}
