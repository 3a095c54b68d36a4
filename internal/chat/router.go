// Package chat routes in-session messages. Delivery is phase-gated by the
// caller (only the communication phase is open) and directed messages are
// mirrored to the controller so the privileged observer sees all traffic.
package chat

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrPhaseClosed      = errors.New("chat is only accepted during the communication phase")
	ErrEmptyContent     = errors.New("message content is empty")
	ErrUnknownRecipient = errors.New("unknown recipient")
)

const maxContentLen = 2000

// Record is one delivered message. Append-only; never mutated after creation.
type Record struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to,omitempty"` // empty = broadcast
	Content string    `json:"content"`
	Round   int       `json:"round"`
	SentAt  time.Time `json:"sent_at"`
}

// Delivery names one connection-level recipient of a routed record.
type Delivery struct {
	To     string
	Record Record
}

// Router owns a session's chat history. Not safe for concurrent use; the
// owning session serializes all calls.
type Router struct {
	cap     int
	nextID  int
	history []Record
	evicted int
}

// NewRouter creates a router whose in-memory history is capped at cap
// records. Truncation is memory-only: records already handed to the archive
// are unaffected by eviction.
func NewRouter(cap int) *Router {
	if cap <= 0 {
		cap = 500
	}
	return &Router{cap: cap}
}

// Route validates a message, appends it to history and returns the
// connection-level deliveries: the recipient plus the controller for a
// directed message, every participant plus the controller for a broadcast.
// open reports whether the session is in its communication phase.
func (r *Router) Route(open bool, from, to, content string, round int, participants []string, controller string) ([]Delivery, error) {
	if !open {
		return nil, ErrPhaseClosed
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > maxContentLen {
		content = content[:maxContentLen]
	}

	if to != "" && !contains(participants, to) && to != controller {
		return nil, ErrUnknownRecipient
	}

	r.nextID++
	rec := Record{
		ID:      recordID(r.nextID),
		From:    from,
		To:      to,
		Content: content,
		Round:   round,
		SentAt:  time.Now(),
	}
	r.append(rec)

	var out []Delivery
	if to != "" {
		out = append(out, Delivery{To: to, Record: rec})
		if controller != "" && controller != to && controller != from {
			out = append(out, Delivery{To: controller, Record: rec})
		}
	} else {
		for _, p := range participants {
			if p == from {
				continue
			}
			out = append(out, Delivery{To: p, Record: rec})
		}
		if controller != "" && controller != from {
			out = append(out, Delivery{To: controller, Record: rec})
		}
	}
	return out, nil
}

// append adds rec to history, evicting oldest-first past the cap.
func (r *Router) append(rec Record) {
	r.history = append(r.history, rec)
	if len(r.history) > r.cap {
		over := len(r.history) - r.cap
		r.history = append([]Record(nil), r.history[over:]...)
		r.evicted += over
	}
}

// History returns the retained records, oldest first.
func (r *Router) History() []Record {
	out := make([]Record, len(r.history))
	copy(out, r.history)
	return out
}

// Evicted reports how many records have been truncated from memory.
func (r *Router) Evicted() int {
	return r.evicted
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Monotonic per-session ids keep archive rows naturally ordered.
func recordID(n int) string {
	return "msg-" + strconv.Itoa(n)
}
