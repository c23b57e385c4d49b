package interfaces

// Transport is the delivery side of the bidirectional channel. The core never
// touches sockets; it asks the transport to emit an envelope to one
// connection and to tag connections with the room they joined.
type Transport interface {
	// Emit sends one event payload to a single connection. It must be safe
	// for concurrent use and must not block indefinitely.
	Emit(connectionID string, event string, payload any) error

	// JoinRoom associates a connection with a room tag.
	JoinRoom(connectionID, room string) error

	// LeaveRoom removes the association. Unknown ids are ignored.
	LeaveRoom(connectionID, room string)
}
