package session

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"chatrelay/pkg/types"
)

// Registry implements interfaces.SessionRegistry. Sessions are kept in
// insertion order with an id index; every call holds the lock only for the
// in-memory work, never across I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions []types.Session
	byID     map[string]int // connection id -> index into sessions
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]int),
	}
}

// Add normalizes username and room and admits a new session.
func (r *Registry) Add(connectionID, username, room string) (types.Session, error) {
	candidate := types.Session{
		ID:       connectionID,
		Username: types.Normalize(username),
		Room:     types.Normalize(room),
	}
	if err := candidate.Validate(); err != nil {
		return types.Session{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[connectionID]; exists {
		return types.Session{}, ErrAlreadyJoined
	}

	taken := lo.ContainsBy(r.sessions, func(s types.Session) bool {
		return s.Room == candidate.Room && s.Username == candidate.Username
	})
	if taken {
		return types.Session{}, ErrNameTaken
	}

	r.byID[connectionID] = len(r.sessions)
	r.sessions = append(r.sessions, candidate)
	return candidate, nil
}

// Remove deletes and returns the session for connectionID.
func (r *Registry) Remove(connectionID string) (types.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, exists := r.byID[connectionID]
	if !exists {
		return types.Session{}, false
	}

	removed := r.sessions[idx]
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)
	delete(r.byID, connectionID)

	// Shift the index of everything that was after the removed entry.
	for i := idx; i < len(r.sessions); i++ {
		r.byID[r.sessions[i].ID] = i
	}

	return removed, true
}

// Get returns the session for connectionID.
func (r *Registry) Get(connectionID string) (types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, exists := r.byID[connectionID]
	if !exists {
		return types.Session{}, false
	}
	return r.sessions[idx], true
}

// ListInRoom returns a snapshot of the sessions in room, in join order.
func (r *Registry) ListInRoom(room string) []types.Session {
	room = types.Normalize(room)

	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Filter(r.sessions, func(s types.Session, _ int) bool {
		return s.Room == room
	})
}

// Rooms summarizes every live room, sorted by name.
func (r *Registry) Rooms() []types.RoomSummary {
	r.mu.RLock()
	counts := lo.CountValuesBy(r.sessions, func(s types.Session) string {
		return s.Room
	})
	r.mu.RUnlock()

	summaries := make([]types.RoomSummary, 0, len(counts))
	for name, members := range counts {
		summaries = append(summaries, types.RoomSummary{Name: name, Members: members})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
