package server

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dilemma-server/internal/session"
	"dilemma-server/internal/waitingroom"
)

// sessionRetention keeps an ended session registered long enough for a final
// reconnect to observe the terminal snapshot.
const sessionRetention = time.Minute

// RoomManager owns the waiting-room and live-session registries. Rooms are
// keyed by their 4-letter code, sessions by their id.
type RoomManager struct {
	mu        sync.RWMutex
	rooms     map[string]*waitingroom.Room
	sessions  map[string]*session.Session
	usedCodes map[string]bool
	log       zerolog.Logger
}

func NewRoomManager(log zerolog.Logger) *RoomManager {
	return &RoomManager{
		rooms:     make(map[string]*waitingroom.Room),
		sessions:  make(map[string]*session.Session),
		usedCodes: make(map[string]bool),
		log:       log,
	}
}

// CreateRoom makes a waiting room for an experiment configuration under a
// fresh code.
func (rm *RoomManager) CreateRoom(cfg session.Config, grace time.Duration, notify func(string, waitingroom.Event)) (*waitingroom.Room, error) {
	rm.mu.Lock()
	code := waitingroom.GenerateCode(rm.usedCodes)
	rm.usedCodes[code] = true
	rm.mu.Unlock()

	room, err := waitingroom.New(code, cfg, grace, func(evt waitingroom.Event) {
		notify(code, evt)
	}, rm.log)
	if err != nil {
		rm.mu.Lock()
		delete(rm.usedCodes, code)
		rm.mu.Unlock()
		return nil, err
	}

	rm.mu.Lock()
	rm.rooms[code] = room
	rm.mu.Unlock()
	return room, nil
}

func (rm *RoomManager) GetRoom(code string) (*waitingroom.Room, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	room, ok := rm.rooms[code]
	return room, ok
}

// RemoveRoom drops a room and frees its code for reuse.
func (rm *RoomManager) RemoveRoom(code string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.rooms, code)
	delete(rm.usedCodes, code)
}

// AddSession registers a started session.
func (rm *RoomManager) AddSession(s *session.Session) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.sessions[s.ID()] = s
}

func (rm *RoomManager) GetSession(id string) (*session.Session, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	s, ok := rm.sessions[id]
	return s, ok
}

// RetireSession schedules removal of an ended session after the retention
// window.
func (rm *RoomManager) RetireSession(id string) {
	time.AfterFunc(sessionRetention, func() {
		rm.mu.Lock()
		delete(rm.sessions, id)
		rm.mu.Unlock()
	})
}

// Sessions returns the currently registered sessions.
func (rm *RoomManager) Sessions() []*session.Session {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	out := make([]*session.Session, 0, len(rm.sessions))
	for _, s := range rm.sessions {
		out = append(out, s)
	}
	return out
}

// Rooms returns the currently open waiting rooms.
func (rm *RoomManager) Rooms() []*waitingroom.Room {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	out := make([]*waitingroom.Room, 0, len(rm.rooms))
	for _, r := range rm.rooms {
		out = append(out, r)
	}
	return out
}
