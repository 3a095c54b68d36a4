package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter applies per-connection sliding-window rate limiting.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time // connectionID -> recent message times
	mu          sync.Mutex
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow reports whether a connection may send another message. Timestamps
// outside the window are discarded on every call, so memory stays bounded by
// maxRequests per live connection.
func (r *RateLimiter) Allow(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	timestamps := r.requests[connectionID]
	valid := make([]time.Time, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= r.maxRequests {
		r.requests[connectionID] = valid
		return false
	}

	valid = append(valid, now)
	r.requests[connectionID] = valid
	return true
}

// RemoveConnection drops rate limit data when a websocket disconnects.
func (r *RateLimiter) RemoveConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, connectionID)
}

// ConnectionHealth tracks last activity per connection so the server can
// reap transports that have gone silent.
type ConnectionHealth struct {
	lastActivity map[string]time.Time
	mu           sync.RWMutex
}

func NewConnectionHealth() *ConnectionHealth {
	return &ConnectionHealth{
		lastActivity: make(map[string]time.Time),
	}
}

// UpdateActivity records a message from a connection.
func (h *ConnectionHealth) UpdateActivity(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity[connectionID] = time.Now()
}

// GetInactiveConnections returns connections silent for longer than timeout.
func (h *ConnectionHealth) GetInactiveConnections(timeout time.Duration) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	inactive := make([]string, 0)
	now := time.Now()
	for connID, last := range h.lastActivity {
		if now.Sub(last) > timeout {
			inactive = append(inactive, connID)
		}
	}
	return inactive
}

func (h *ConnectionHealth) RemoveConnection(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastActivity, connectionID)
}

// ValidateMessageType rejects unrecognized inbound types before routing.
func ValidateMessageType(msgType string) error {
	validTypes := map[string]bool{
		"ping":           true,
		"create_room":    true,
		"join_room":      true,
		"leave_room":     true,
		"reconnect":      true,
		"start_session":  true,
		"submit_action":  true,
		"send_chat":      true,
		"override_phase": true,
		"end_session":    true,
	}

	if !validTypes[msgType] {
		return fmt.Errorf("unknown message type %q", msgType)
	}
	return nil
}

// ValidateIdentity checks participant identity requirements.
func ValidateIdentity(identity string) error {
	if len(identity) == 0 {
		return fmt.Errorf("identity cannot be empty")
	}
	if len(identity) > 64 {
		return fmt.Errorf("identity too long (max 64 characters)")
	}
	return nil
}
