package message

import (
	"strconv"
	"strings"
	"time"

	"chatrelay/pkg/types"
)

// DefaultMapBaseURL is the map service location links point at.
const DefaultMapBaseURL = "https://google.com/maps"

// Factory stamps outbound envelopes with the server clock.
type Factory struct {
	mapBaseURL string
	now        func() time.Time
}

// Option configures a Factory.
type Option func(*Factory)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) {
		f.now = now
	}
}

// WithMapBaseURL overrides DefaultMapBaseURL. Trailing slashes are dropped.
func WithMapBaseURL(base string) Option {
	return func(f *Factory) {
		if trimmed := strings.TrimRight(base, "/"); trimmed != "" {
			f.mapBaseURL = trimmed
		}
	}
}

// NewFactory creates a message factory.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		mapBaseURL: DefaultMapBaseURL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Text builds a chat line. The text is carried as given.
func (f *Factory) Text(sender, text string) types.TextMessage {
	return types.TextMessage{
		Username:  sender,
		Text:      text,
		CreatedAt: f.timestamp(),
	}
}

// Location builds a map link for the given coordinates, e.g.
// https://google.com/maps?q=10,20
func (f *Factory) Location(sender string, latitude, longitude float64) types.LocationMessage {
	var b strings.Builder
	b.WriteString(f.mapBaseURL)
	b.WriteString("?q=")
	b.WriteString(formatCoordinate(latitude))
	b.WriteByte(',')
	b.WriteString(formatCoordinate(longitude))

	return types.LocationMessage{
		Username:  sender,
		URL:       b.String(),
		CreatedAt: f.timestamp(),
	}
}

// RoomData lists the usernames of sessions in join order.
func (f *Factory) RoomData(room string, sessions []types.Session) types.RoomData {
	users := make([]types.RoomMember, len(sessions))
	for i, s := range sessions {
		users[i] = types.RoomMember{Username: s.Username}
	}
	return types.RoomData{Room: room, Users: users}
}

func (f *Factory) timestamp() int64 {
	return f.now().UnixMilli()
}

// formatCoordinate uses the shortest representation that round-trips, so
// 10 renders as "10" and 10.5 as "10.5".
func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
