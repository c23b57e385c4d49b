package lifecycle

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-connection message counter.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	clients map[string]*clientWindow
}

type clientWindow struct {
	count int
	start time.Time
}

// NewRateLimiter allows limit messages per window. A limit of zero or less
// disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*clientWindow),
	}
}

// Allow counts one message for connectionID and reports whether it fits.
func (rl *RateLimiter) Allow(connectionID string) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, exists := rl.clients[connectionID]
	if !exists {
		rl.clients[connectionID] = &clientWindow{count: 1, start: now}
		return true
	}

	if now.Sub(w.start) >= rl.window {
		w.count = 1
		w.start = now
		return true
	}

	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// Forget drops the state kept for connectionID.
func (rl *RateLimiter) Forget(connectionID string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, connectionID)
}

// Tracked returns how many connections currently hold a window.
func (rl *RateLimiter) Tracked() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
