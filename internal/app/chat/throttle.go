/*
Package chat contains the real-time core of the server: the presence registry,
the delivery coordinator, and the per-connection WebSocket client.

This file defines the per-user write throttles that bound write amplification
from activity and heartbeat signals. Calls inside the window are dropped, not
queued: the throttle is a valve, not a scheduler.
*/
package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// ActivityWriteInterval bounds last-activity store writes per user.
	ActivityWriteInterval = 10 * time.Second

	// HeartbeatWriteInterval bounds heartbeat store writes per user. Coarser
	// than the activity interval since heartbeats carry no status change.
	HeartbeatWriteInterval = 20 * time.Second

	// sweep cadence for dropping idle per-user limiters.
	throttleSweepInterval = 3 * time.Minute
)

// userThrottle rate-limits an action per user id using a token bucket of size one.
// The first call for a user passes; further calls inside the interval are dropped.
type userThrottle struct {
	mu       sync.Mutex
	limits   map[string]*rate.Limiter
	interval time.Duration
}

// newUserThrottle creates a throttle allowing one event per interval per user
// and starts a background sweeper that drops limiters whose bucket refilled.
func newUserThrottle(interval time.Duration) *userThrottle {
	t := &userThrottle{
		limits:   make(map[string]*rate.Limiter),
		interval: interval,
	}

	go t.sweep()

	return t
}

// Allow reports whether the user's action may proceed right now.
func (t *userThrottle) Allow(userID string) bool {
	t.mu.Lock()
	limiter, ok := t.limits[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limits[userID] = limiter
	}
	t.mu.Unlock()

	return limiter.Allow()
}

// sweep periodically removes limiters whose token bucket is full again,
// freeing memory for users that went quiet.
func (t *userThrottle) sweep() {
	ticker := time.NewTicker(throttleSweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		t.mu.Lock()
		for userID, limiter := range t.limits {
			if limiter.TokensAt(time.Now()) >= float64(limiter.Burst()) {
				delete(t.limits, userID)
			}
		}
		t.mu.Unlock()
	}
}
