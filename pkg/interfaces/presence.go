package interfaces

import "chatrelay/pkg/types"

// PresenceRecorder accepts join/leave audit events. Record must not block the
// caller on storage latency.
type PresenceRecorder interface {
	Record(event types.PresenceEvent) error
}
