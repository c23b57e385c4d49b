// Package hub queues presence events and writes them to the audit store from
// a single goroutine, off the connection path.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

const (
	// DefaultBufferSize is the number of events held while the store is busy.
	DefaultBufferSize = 1000

	storeTimeout = 15 * time.Second
)

// Stats are the hub's running counters.
type Stats struct {
	Queued  int   `json:"queued"`
	Stored  int64 `json:"stored"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

// Hub implements interfaces.PresenceRecorder.
type Hub struct {
	events   chan types.PresenceEvent
	shutdown chan struct{}
	done     chan struct{}

	store  interfaces.DatabaseManager
	logger *slog.Logger

	stored  atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub writing to store. A bufferSize of zero or less uses
// DefaultBufferSize.
func NewHub(store interfaces.DatabaseManager, bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		events:   make(chan types.PresenceEvent, bufferSize),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		store:    store,
		logger:   logger.With("component", "hub"),
	}
}

// Start launches the writer goroutine.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	select {
	case <-h.done:
		// A stopped hub cannot be restarted.
		return ErrHubNotRunning
	default:
	}
	h.running = true

	h.logger.Info("starting presence hub", "buffer", cap(h.events))
	go h.run(ctx)
	return nil
}

// Stop refuses new events, writes whatever is already queued and waits for
// the writer to exit.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	h.mu.Unlock()

	<-h.done
	h.logger.Info("presence hub stopped",
		"stored", h.stored.Load(),
		"failed", h.failed.Load(),
		"dropped", h.dropped.Load())
	return nil
}

// Record queues event without blocking. A full queue drops the event.
func (h *Hub) Record(event types.PresenceEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.events <- event:
		return nil
	default:
		h.dropped.Add(1)
		return ErrEventChannelFull
	}
}

// Stats returns a snapshot of the counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Queued:  len(h.events),
		Stored:  h.stored.Load(),
		Failed:  h.failed.Load(),
		Dropped: h.dropped.Load(),
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case event := <-h.events:
			h.handle(event)
		case <-h.shutdown:
			h.drain()
			return
		case <-ctx.Done():
			h.logger.Warn("presence hub context cancelled", "pending", len(h.events))
			return
		}
	}
}

// drain writes events queued before shutdown. Record can no longer add any.
func (h *Hub) drain() {
	for {
		select {
		case event := <-h.events:
			h.handle(event)
		default:
			return
		}
	}
}

func (h *Hub) handle(event types.PresenceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := h.store.StorePresence(ctx, &event); err != nil {
		h.failed.Add(1)
		h.logger.Error("failed to store presence event",
			"connection_id", event.ConnectionID,
			"room", event.Room,
			"kind", event.Kind,
			"error", err)
		return
	}
	h.stored.Add(1)
}
