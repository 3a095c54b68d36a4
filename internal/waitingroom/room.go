// Package waitingroom handles pre-game admission: participants claim seats,
// readiness is derived from the claim count, and the controller hands off to
// a live session.
package waitingroom

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dilemma-server/internal/session"
)

type Role string

const (
	RolePlayer     Role = "player"
	RoleController Role = "controller"
)

type EventType string

const (
	EventJoined  EventType = "joined"
	EventLeft    EventType = "left"
	EventReady   EventType = "ready"
	EventStarted EventType = "started"
	EventClosed  EventType = "closed"
)

// Event is a waiting-room notification, delivered synchronously to the
// notify callback supplied at construction.
type Event struct {
	Type      EventType
	Identity  string
	Seat      int
	SessionID string
	Reason    string
	State     State
}

type SeatView struct {
	Seat     int                     `json:"seat"`
	Identity string                  `json:"identity,omitempty"`
	Kind     session.ParticipantKind `json:"kind"`
	Claimed  bool                    `json:"claimed"`
}

// State is the room's public projection.
type State struct {
	Code          string     `json:"code"`
	ExperimentID  string     `json:"experiment_id"`
	Seats         []SeatView `json:"seats"`
	Controller    string     `json:"controller,omitempty"`
	RequiredSeats int        `json:"required_seats"`
	ClaimedSeats  int        `json:"claimed_seats"`
	Ready         bool       `json:"ready"`
	Started       bool       `json:"started"`
	Closed        bool       `json:"closed"`
}

// Room is one waiting room. Rooms are short-lived and mutex-guarded; only
// sessions get the actor treatment.
type Room struct {
	mu         sync.Mutex
	code       string
	cfg        session.Config
	seats      []string // identity by seat index, "" = free
	controller string
	ready      bool
	started    bool
	closed     bool
	grace      time.Duration
	notify     func(Event)
	closeTimer *time.Timer
	log        zerolog.Logger
}

// New creates a room for one experiment configuration. Non-human seats are
// claimed immediately by generated bot identities; humans claim the rest.
func New(code string, cfg session.Config, grace time.Duration, notify func(Event), log zerolog.Logger) (*Room, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if notify == nil {
		notify = func(Event) {}
	}
	r := &Room{
		code:   code,
		cfg:    cfg,
		seats:  make([]string, cfg.Seats),
		grace:  grace,
		notify: notify,
		log:    log.With().Str("room", code).Logger(),
	}
	for i := range r.seats {
		if cfg.SeatKind(i) != session.KindHuman {
			r.seats[i] = fmt.Sprintf("bot-%d", i)
		}
	}
	r.recomputeReadiness()
	return r, nil
}

func (r *Room) Code() string { return r.code }

func (r *Room) Config() session.Config { return r.cfg }

// Join claims the next free player seat (ascending seat index) or registers
// the single controller.
func (r *Room) Join(identity string, role Role) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return -1, session.Invalid("waiting room is closed")
	}
	if r.started {
		return -1, session.Invalid("session already started")
	}
	if identity == "" {
		return -1, session.Invalid("identity is required")
	}
	if identity == r.controller || r.seatOf(identity) >= 0 {
		return -1, session.Invalid("identity already present in this room")
	}

	switch role {
	case RoleController:
		if r.controller != "" {
			return -1, session.Capacity("a controller is already registered")
		}
		r.controller = identity
		r.emitLocked(Event{Type: EventJoined, Identity: identity, Seat: -1})
		return -1, nil

	case RolePlayer, "":
		seat := -1
		for i, occupant := range r.seats {
			if occupant == "" && r.cfg.SeatKind(i) == session.KindHuman {
				seat = i
				break
			}
		}
		if seat < 0 {
			return -1, session.Capacity("all player seats are claimed")
		}
		r.seats[seat] = identity
		r.emitLocked(Event{Type: EventJoined, Identity: identity, Seat: seat})
		r.updateReadinessLocked()
		return seat, nil

	default:
		return -1, session.Invalid("unknown role " + string(role))
	}
}

// Leave frees the identity's seat. A leaving controller closes the room
// after the grace period, giving in-flight notifications time to deliver.
func (r *Room) Leave(identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return session.Invalid("waiting room is closed")
	}

	if identity == r.controller {
		r.emitLocked(Event{Type: EventClosed, Reason: "controller left"})
		if r.closeTimer == nil {
			r.closeTimer = time.AfterFunc(r.grace, func() { r.Close("controller left") })
		}
		return nil
	}

	seat := r.seatOf(identity)
	if seat < 0 {
		return session.Invalid("identity not present in this room")
	}
	r.seats[seat] = ""
	r.emitLocked(Event{Type: EventLeft, Identity: identity, Seat: seat})
	r.updateReadinessLocked()
	return nil
}

// StartSession is accepted only from the controller and only when the room
// is ready. On success the room hands its seat assignments to a new session
// and disposes itself.
func (r *Room) StartSession(identity string, deps session.Deps) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if identity == "" || identity != r.controller {
		r.log.Warn().Str("identity", identity).Msg("start rejected: not controller")
		return nil, session.Unauthorized("only the controller may start the session")
	}
	if r.closed {
		return nil, session.Invalid("waiting room is closed")
	}
	if r.started {
		return nil, session.Invalid("session already started")
	}
	if !r.ready {
		return nil, session.Invalid("waiting room is not ready")
	}

	assignments := make([]session.SeatAssignment, 0, len(r.seats))
	for i, id := range r.seats {
		assignments = append(assignments, session.SeatAssignment{
			Identity:  id,
			Seat:      i,
			Kind:      r.cfg.SeatKind(i),
			Connected: true,
		})
	}

	s, err := session.New(r.cfg, assignments, r.controller, deps)
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		s.Dispose("failed start")
		return nil, err
	}

	r.started = true
	r.emitLocked(Event{Type: EventStarted, SessionID: s.ID()})
	r.log.Info().Str("session_id", s.ID()).Msg("session started, disposing waiting room")
	if r.closeTimer == nil {
		r.closeTimer = time.AfterFunc(r.grace, func() { r.Close("session started") })
	}
	return s, nil
}

// Close disposes the room. Idempotent.
func (r *Room) Close(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	if r.closeTimer != nil {
		r.closeTimer.Stop()
	}
	r.emitLocked(Event{Type: EventClosed, Reason: reason})
}

// Ready reports whether every seat is claimed. Recomputed after every join
// and leave.
func (r *Room) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Members returns every human identity currently present, controller
// included. Used by the transport layer to fan out room notifications.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for i, id := range r.seats {
		if id != "" && r.cfg.SeatKind(i) == session.KindHuman {
			out = append(out, id)
		}
	}
	if r.controller != "" {
		out = append(out, r.controller)
	}
	return out
}

func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Room) stateLocked() State {
	st := State{
		Code:          r.code,
		ExperimentID:  r.cfg.ExperimentID,
		Controller:    r.controller,
		RequiredSeats: r.cfg.Seats,
		Ready:         r.ready,
		Started:       r.started,
		Closed:        r.closed,
	}
	for i, id := range r.seats {
		st.Seats = append(st.Seats, SeatView{
			Seat:     i,
			Identity: id,
			Kind:     r.cfg.SeatKind(i),
			Claimed:  id != "",
		})
		if id != "" {
			st.ClaimedSeats++
		}
	}
	return st
}

func (r *Room) seatOf(identity string) int {
	for i, id := range r.seats {
		if id == identity {
			return i
		}
	}
	return -1
}

func (r *Room) recomputeReadiness() bool {
	claimed := 0
	for _, id := range r.seats {
		if id != "" {
			claimed++
		}
	}
	r.ready = claimed >= r.cfg.Seats
	return r.ready
}

// updateReadinessLocked recomputes readiness and emits an event when the
// room just became ready. Becoming ready does not auto-start the session.
func (r *Room) updateReadinessLocked() {
	was := r.ready
	if r.recomputeReadiness() && !was {
		r.emitLocked(Event{Type: EventReady})
	}
}

func (r *Room) emitLocked(evt Event) {
	evt.State = r.stateLocked()
	r.notify(evt)
}
