package session

import "sync"

type EventType string

const (
	EventSnapshot     EventType = "state_snapshot"
	EventDelta        EventType = "state_delta"
	EventPhaseChanged EventType = "phase_changed"
	EventChat         EventType = "chat"
	EventSessionEnded EventType = "session_ended"
)

// Event is one publication from a session. Version increases by one per
// mutation; delivery order to a given subscriber matches mutation order.
// To, when set, restricts delivery to subscribers bound to that participant
// identity (used for directed chat and targeted errors).
type Event struct {
	Type    EventType `json:"type"`
	Version uint64    `json:"version"`
	To      string    `json:"-"`
	Payload any       `json:"payload"`
}

// subscriberBuffer bounds a slow consumer. Distinct mutations are never
// coalesced; a subscriber that cannot keep up is dropped instead.
const subscriberBuffer = 256

type subscriber struct {
	id          string
	participant string
	ch          chan Event
}

// Broadcaster fans session events out to subscribed transports. Publish is
// only called from the session's processing path; Subscribe/Unsubscribe may
// be called from any goroutine.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[string]*subscriber
	version uint64
	closed  bool
	last    *Snapshot // terminal snapshot for late subscribers
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]*subscriber)}
}

// Subscribe registers a transport and delivers a full snapshot as the first
// event. participant may be empty for plain observers. Subscribing to a
// closed broadcaster yields the terminal snapshot followed by a closed
// channel rather than silence.
func (b *Broadcaster) Subscribe(id, participant string, snap Snapshot) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event, 1)
		if b.last != nil {
			ch <- Event{Type: EventSnapshot, Version: b.version, Payload: *b.last}
		}
		close(ch)
		return ch
	}

	if old, ok := b.subs[id]; ok {
		close(old.ch)
	}
	sub := &subscriber{id: id, participant: participant, ch: make(chan Event, subscriberBuffer)}
	b.subs[id] = sub
	sub.ch <- Event{Type: EventSnapshot, Version: b.version, Payload: snap}
	return sub.ch
}

func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Publish delivers an event to every matching subscriber and returns the
// event's version.
func (b *Broadcaster) Publish(t EventType, to string, payload any) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return b.version
	}
	b.version++
	evt := Event{Type: t, Version: b.version, To: to, Payload: payload}
	for id, sub := range b.subs {
		if to != "" && sub.participant != to {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Slow consumer: dropping events would reorder its view, so
			// drop the subscriber.
			delete(b.subs, id)
			close(sub.ch)
		}
	}
	return b.version
}

// Close flushes a terminal snapshot to every subscriber and shuts the
// broadcaster down. Late subscribers still receive the terminal snapshot.
func (b *Broadcaster) Close(final Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.version++
	b.last = &final
	evt := Event{Type: EventSnapshot, Version: b.version, Payload: final}
	for id, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
		}
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Version returns the version of the most recent publication.
func (b *Broadcaster) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}
