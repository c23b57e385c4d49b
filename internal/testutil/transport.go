// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"errors"
	"sync"

	"chatrelay/pkg/types"
)

// ErrInjected is returned by FakeTransport for ids configured to fail.
var ErrInjected = errors.New("injected transport failure")

// Emitted is one recorded Emit call.
type Emitted struct {
	ConnectionID string
	Event        string
	Payload      any
}

// FakeTransport records every call and can be told to fail per connection.
type FakeTransport struct {
	mu         sync.Mutex
	emitted    []Emitted
	rooms      map[string]string
	failEmit   map[string]bool
	failJoin   map[string]bool
	leaveCalls int
}

// NewFakeTransport creates an empty fake.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		rooms:    make(map[string]string),
		failEmit: make(map[string]bool),
		failJoin: make(map[string]bool),
	}
}

// FailEmit makes Emit to connectionID return ErrInjected.
func (f *FakeTransport) FailEmit(connectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failEmit[connectionID] = true
}

// FailJoin makes JoinRoom for connectionID return ErrInjected.
func (f *FakeTransport) FailJoin(connectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failJoin[connectionID] = true
}

func (f *FakeTransport) Emit(connectionID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEmit[connectionID] {
		return ErrInjected
	}
	f.emitted = append(f.emitted, Emitted{ConnectionID: connectionID, Event: event, Payload: payload})
	return nil
}

func (f *FakeTransport) JoinRoom(connectionID, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failJoin[connectionID] {
		return ErrInjected
	}
	f.rooms[connectionID] = room
	return nil
}

func (f *FakeTransport) LeaveRoom(connectionID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveCalls++
	if f.rooms[connectionID] == room {
		delete(f.rooms, connectionID)
	}
}

// RoomOf returns the room tag of connectionID.
func (f *FakeTransport) RoomOf(connectionID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[connectionID]
	return room, ok
}

// LeaveCalls counts LeaveRoom invocations.
func (f *FakeTransport) LeaveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaveCalls
}

// All returns a copy of every successful emit in call order.
func (f *FakeTransport) All() []Emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Emitted(nil), f.emitted...)
}

// For returns the emits received by connectionID.
func (f *FakeTransport) For(connectionID string) []Emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Emitted
	for _, e := range f.emitted {
		if e.ConnectionID == connectionID {
			out = append(out, e)
		}
	}
	return out
}

// TextsFor returns the text messages received by connectionID.
func (f *FakeTransport) TextsFor(connectionID string) []types.TextMessage {
	var out []types.TextMessage
	for _, e := range f.For(connectionID) {
		if msg, ok := e.Payload.(types.TextMessage); ok {
			out = append(out, msg)
		}
	}
	return out
}

// Reset forgets recorded emits.
func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = nil
}

// FakeRecorder collects presence events in memory.
type FakeRecorder struct {
	mu     sync.Mutex
	events []types.PresenceEvent
	err    error
}

// FailWith makes Record return err.
func (r *FakeRecorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *FakeRecorder) Record(event types.PresenceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *FakeRecorder) Events() []types.PresenceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.PresenceEvent(nil), r.events...)
}
