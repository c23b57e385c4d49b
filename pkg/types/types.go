package types

import (
	"time"
)

// Outbound event names as seen by clients.
const (
	EventMessage         = "message"
	EventLocationMessage = "locationMessage"
	EventRoomData        = "roomData"
	EventAck             = "ack"
)

// Inbound event names a client may send.
const (
	EventJoin         = "join"
	EventSendMessage  = "sendMessage"
	EventSendLocation = "sendLocation"
)

// Presence event kinds recorded in the audit store.
const (
	PresenceJoined = "joined"
	PresenceLeft   = "left"
)

// Session is one admitted participant. Username and Room are stored normalized.
// A Session is a value: the registry hands out copies and never mutates an
// admitted session in place.
type Session struct {
	ID       string `json:"-"`
	Username string `json:"username"`
	Room     string `json:"room"`
}

// Envelope is an immutable outbound payload that knows its wire event name.
type Envelope interface {
	EventName() string
}

// TextMessage is a chat line. CreatedAt is milliseconds since epoch, server assigned.
type TextMessage struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// EventName implements Envelope.
func (TextMessage) EventName() string { return EventMessage }

// LocationMessage carries a map link built from client coordinates.
type LocationMessage struct {
	Username  string `json:"username"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt"`
}

// EventName implements Envelope.
func (LocationMessage) EventName() string { return EventLocationMessage }

// RoomMember is the public view of a session inside a roomData payload.
type RoomMember struct {
	Username string `json:"username"`
}

// RoomData lists the current members of a room.
type RoomData struct {
	Room  string       `json:"room"`
	Users []RoomMember `json:"users"`
}

// EventName implements Envelope.
func (RoomData) EventName() string { return EventRoomData }

// RoomSummary is a derived view of one live room.
type RoomSummary struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// PresenceEvent is an audit record of a join or a departure.
type PresenceEvent struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id"`
	Username     string    `json:"username"`
	Room         string    `json:"room"`
	Kind         string    `json:"kind"`
	OccurredAt   time.Time `json:"occurred_at"`
}
