package server

import (
	"time"

	"dilemma-server/internal/session"
	"dilemma-server/internal/waitingroom"
)

// ============================================================================
// ERROR RESPONSES
// ============================================================================
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ============================================================================
// CREATE ROOM (create_room)
// ============================================================================
type CreateRoomRequest struct {
	ExperimentID string `json:"experimentId"`
	Identity     string `json:"identity"`
}

type CreateRoomResponse struct {
	RoomCode   string            `json:"roomCode"`
	Credential string            `json:"credential"`
	State      waitingroom.State `json:"state"`
}

// ============================================================================
// JOIN ROOM (join_room)
// ============================================================================
type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Identity string `json:"identity"`
}

type JoinRoomResponse struct {
	RoomCode   string            `json:"roomCode"`
	Credential string            `json:"credential"`
	Seat       int               `json:"seat"`
	State      waitingroom.State `json:"state"`
}

// ============================================================================
// LEAVE ROOM (leave_room)
// ============================================================================
type LeaveRoomResponse struct {
	RoomCode string `json:"roomCode"`
}

// ============================================================================
// START SESSION (start_session)
// ============================================================================
type StartSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// ============================================================================
// SUBMIT ACTION (submit_action)
// ============================================================================
type SubmitActionRequest struct {
	Action string `json:"action"`
}

type SubmitActionResponse struct {
	Accepted bool `json:"accepted"`
}

// ============================================================================
// SEND CHAT (send_chat)
// ============================================================================
type SendChatRequest struct {
	To      string `json:"to,omitempty"` // empty = broadcast
	Content string `json:"content"`
}

// ============================================================================
// RECONNECT (reconnect)
// ============================================================================
type ReconnectRequest struct {
	Credential string `json:"credential"`
}

type ReconnectResponse struct {
	Scope    string `json:"scope"` // room code or session id
	Identity string `json:"identity"`
	InRoom   bool   `json:"inRoom"`
}

// ============================================================================
// SESSION EVENTS (phase_changed, state_snapshot, state_delta, chat,
// session_ended)
// ============================================================================
type SessionEvent struct {
	Version uint64 `json:"version"`
	Data    any    `json:"data"`
}

// ============================================================================
// EXPERIMENT HTTP API
// ============================================================================
type CreateExperimentRequest struct {
	Name   string         `json:"name"`
	Config session.Config `json:"config"`
}

type ExperimentResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Config    session.Config `json:"config"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type SessionResultsResponse struct {
	SessionID string                `json:"sessionId"`
	Status    string                `json:"status"`
	Rounds    []session.RoundRecord `json:"rounds"`
}
