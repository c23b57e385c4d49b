package types

import "encoding/json"

// InboundFrame is a client-to-server frame. Ack is the client's correlation id;
// when present the server answers with exactly one ack frame.
type InboundFrame struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundFrame is a server-to-client frame carrying either an event payload
// or an acknowledgment.
type OutboundFrame struct {
	Event string `json:"event"`
	Ack   *int64 `json:"ack,omitempty"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// JoinRequest is the payload of a join frame.
type JoinRequest struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// Coordinates is the payload of a sendLocation frame.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewEventFrame wraps payload for delivery under event.
func NewEventFrame(event string, payload any) OutboundFrame {
	return OutboundFrame{Event: event, Data: payload}
}

// NewAckFrame builds the acknowledgment for request id. A nil err means success.
func NewAckFrame(id int64, err error) OutboundFrame {
	frame := OutboundFrame{Event: EventAck, Ack: &id}
	if err != nil {
		frame.Error = PublicMessage(err)
	}
	return frame
}
