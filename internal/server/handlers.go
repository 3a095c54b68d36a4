package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dilemma-server/internal/session"
	"dilemma-server/internal/waitingroom"
)

func (s *Server) sendError(c *clientConn, code session.Code, msg string) {
	c.enqueue(ServerMessage{
		Type:    "error",
		Payload: ErrorMessage{Code: string(code), Message: msg},
	})
}

func (s *Server) sendSessionError(c *clientConn, err error) {
	s.sendError(c, session.CodeOf(err), err.Error())
}

// roomNotify fans waiting-room events out to every live connection holding a
// credential for the room.
func (s *Server) roomNotify(code string, evt waitingroom.Event) {
	var msg ServerMessage
	switch evt.Type {
	case waitingroom.EventReady:
		msg = ServerMessage{Type: "room_ready", Payload: evt.State}
	case waitingroom.EventClosed:
		msg = ServerMessage{Type: "room_closed", Payload: struct {
			Code   string `json:"code"`
			Reason string `json:"reason"`
		}{Code: code, Reason: evt.Reason}}
	default:
		msg = ServerMessage{Type: "room_state", Payload: evt.State}
	}

	for _, cred := range s.creds.ForScope(code) {
		if cred.ConnID == "" {
			continue
		}
		if c := s.conns.Get(cred.ConnID); c != nil {
			c.enqueue(msg)
		}
	}

	if evt.Type == waitingroom.EventClosed {
		s.creds.InvalidateScope(code)
		s.rooms.RemoveRoom(code)
	}
}

// onSessionEnded runs on the session's processing goroutine after the
// terminal state has been published. Credentials die immediately; the
// session stays registered briefly so a racing reconnect still observes the
// terminal snapshot.
func (s *Server) onSessionEnded(sessionID, reason string) {
	s.log.Info().Str("session_id", sessionID).Str("reason", reason).Msg("session ended")
	s.creds.InvalidateScope(sessionID)
	s.rooms.RetireSession(sessionID)
}

// attachSession subscribes a connection to a session's event stream and
// pumps it into the connection's writer. The subscription delivers a full
// snapshot first, then every mutation in order.
func (s *Server) attachSession(c *clientConn, sess *session.Session, identity string) {
	ch := sess.Subscribe(c.id, identity)
	go func() {
		for evt := range ch {
			c.enqueue(ServerMessage{
				Type:    string(evt.Type),
				Payload: SessionEvent{Version: evt.Version, Data: evt.Payload},
			})
		}
		c.log.Debug().Str("session_id", sess.ID()).Msg("session event stream closed")
	}()
}

func (s *Server) handleCreateRoom(ctx context.Context, c *clientConn, payload json.RawMessage) {
	var req CreateRoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(c, session.CodeInvalid, "invalid create_room payload")
		return
	}
	if err := ValidateIdentity(req.Identity); err != nil {
		s.sendError(c, session.CodeInvalid, err.Error())
		return
	}
	if _, bound := s.creds.ByConn(c.id); bound {
		s.sendError(c, session.CodeInvalid, "connection is already in a room or session")
		return
	}

	cfg, err := s.store.LoadConfig(ctx, req.ExperimentID)
	if errors.Is(err, ErrExperimentNotFound) {
		s.sendError(c, session.CodeInvalid, "unknown experiment")
		return
	}
	if err != nil {
		s.sendError(c, session.CodeResource, "could not load experiment")
		s.log.Error().Err(err).Str("experiment_id", req.ExperimentID).Msg("load experiment config")
		return
	}

	room, err := s.rooms.CreateRoom(cfg, s.cfg.RoomGracePeriod, s.roomNotify)
	if err != nil {
		s.sendSessionError(c, err)
		return
	}
	if _, err := room.Join(req.Identity, waitingroom.RoleController); err != nil {
		s.sendSessionError(c, err)
		return
	}
	token := s.creds.Issue(room.Code(), req.Identity, waitingroom.RoleController, c.id)

	c.enqueue(ServerMessage{
		Type: "room_created",
		Payload: CreateRoomResponse{
			RoomCode:   room.Code(),
			Credential: token,
			State:      room.State(),
		},
	})
}

func (s *Server) handleJoinRoom(c *clientConn, payload json.RawMessage) {
	var req JoinRoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(c, session.CodeInvalid, "invalid join_room payload")
		return
	}
	if err := ValidateIdentity(req.Identity); err != nil {
		s.sendError(c, session.CodeInvalid, err.Error())
		return
	}
	if _, bound := s.creds.ByConn(c.id); bound {
		s.sendError(c, session.CodeInvalid, "connection is already in a room or session")
		return
	}

	code := waitingroom.NormalizeCode(req.RoomCode)
	if err := waitingroom.ValidateCode(code); err != nil {
		s.sendError(c, session.CodeInvalid, err.Error())
		return
	}
	room, ok := s.rooms.GetRoom(code)
	if !ok {
		s.sendError(c, session.CodeInvalid, "no such room")
		return
	}

	seat, err := room.Join(req.Identity, waitingroom.RolePlayer)
	if err != nil {
		s.sendSessionError(c, err)
		return
	}
	token := s.creds.Issue(code, req.Identity, waitingroom.RolePlayer, c.id)

	c.enqueue(ServerMessage{
		Type: "room_joined",
		Payload: JoinRoomResponse{
			RoomCode:   code,
			Credential: token,
			Seat:       seat,
			State:      room.State(),
		},
	})
}

func (s *Server) handleLeaveRoom(c *clientConn) {
	cred, ok := s.creds.ByConn(c.id)
	if !ok {
		s.sendError(c, session.CodeInvalid, "no active room membership")
		return
	}
	room, ok := s.rooms.GetRoom(cred.Scope)
	if !ok {
		s.sendError(c, session.CodeInvalid, "no active room membership")
		return
	}

	if err := room.Leave(cred.Identity); err != nil {
		s.sendSessionError(c, err)
		return
	}
	s.creds.Remove(cred.Token)

	c.enqueue(ServerMessage{
		Type:    "room_left",
		Payload: LeaveRoomResponse{RoomCode: cred.Scope},
	})
}

func (s *Server) handleStartSession(ctx context.Context, c *clientConn) {
	cred, ok := s.creds.ByConn(c.id)
	if !ok {
		s.sendError(c, session.CodeUnauthorized, "no active room membership")
		return
	}
	room, ok := s.rooms.GetRoom(cred.Scope)
	if !ok {
		s.sendError(c, session.CodeInvalid, "no active room membership")
		return
	}

	cfg := room.Config()
	providers := make(map[string]session.ActionProvider)
	for seat := 0; seat < cfg.Seats; seat++ {
		if cfg.SeatKind(seat) != session.KindHuman {
			providers[botIdentity(seat)] = &session.ScriptedProvider{
				Script: session.ScriptTitForTat,
				Seed:   int64(seat),
			}
		}
	}

	sess, err := room.StartSession(cred.Identity, session.Deps{
		Archiver:  s.store,
		Providers: providers,
		Logger:    s.log,
		OnEnded:   s.onSessionEnded,
	})
	if err != nil {
		s.sendSessionError(c, err)
		return
	}

	if err := s.store.CreateSession(ctx, sess.ID(), cfg.ExperimentID); err != nil {
		s.log.Error().Err(err).Str("session_id", sess.ID()).Msg("record session start")
	}

	s.rooms.AddSession(sess)
	s.creds.Rebind(cred.Scope, sess.ID())
	s.rooms.RemoveRoom(cred.Scope)

	// Every live room member becomes a session subscriber; the first event
	// each receives is the full snapshot.
	for _, member := range s.creds.ForScope(sess.ID()) {
		if member.ConnID == "" {
			continue
		}
		if mc := s.conns.Get(member.ConnID); mc != nil {
			s.attachSession(mc, sess, member.Identity)
		}
	}

	c.enqueue(ServerMessage{
		Type:    "session_started",
		Payload: StartSessionResponse{SessionID: sess.ID()},
	})
}

// sessionByConn resolves the live session for a connection's credential.
func (s *Server) sessionByConn(c *clientConn) (*session.Session, Credential, bool) {
	cred, ok := s.creds.ByConn(c.id)
	if !ok {
		s.sendError(c, session.CodeUnauthorized, "no active session membership")
		return nil, Credential{}, false
	}
	sess, ok := s.rooms.GetSession(cred.Scope)
	if !ok {
		s.sendError(c, session.CodeInvalid, "no active session membership")
		return nil, Credential{}, false
	}
	return sess, cred, true
}

func (s *Server) handleSubmitAction(c *clientConn, payload json.RawMessage) {
	var req SubmitActionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(c, session.CodeInvalid, "invalid submit_action payload")
		return
	}
	sess, cred, ok := s.sessionByConn(c)
	if !ok {
		return
	}

	if err := sess.SubmitAction(cred.Identity, session.Action(req.Action)); err != nil {
		s.sendSessionError(c, err)
		return
	}
	c.enqueue(ServerMessage{
		Type:    "action_accepted",
		Payload: SubmitActionResponse{Accepted: true},
	})
}

func (s *Server) handleSendChat(c *clientConn, payload json.RawMessage) {
	var req SendChatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(c, session.CodeInvalid, "invalid send_chat payload")
		return
	}
	sess, cred, ok := s.sessionByConn(c)
	if !ok {
		return
	}

	if err := sess.SendChat(cred.Identity, req.To, req.Content); err != nil {
		s.sendSessionError(c, err)
	}
}

func (s *Server) handleOverridePhase(c *clientConn) {
	sess, cred, ok := s.sessionByConn(c)
	if !ok {
		return
	}
	if err := sess.OverridePhase(cred.Identity); err != nil {
		s.sendSessionError(c, err)
	}
}

func (s *Server) handleEndSession(c *clientConn) {
	sess, cred, ok := s.sessionByConn(c)
	if !ok {
		return
	}
	if err := sess.Terminate(cred.Identity); err != nil {
		s.sendSessionError(c, err)
	}
}

func (s *Server) handleReconnect(c *clientConn, payload json.RawMessage) {
	var req ReconnectRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(c, session.CodeInvalid, "invalid reconnect payload")
		return
	}
	s.reconnectWith(c, req.Credential)
}

// reconnectWith reattaches a credential to this connection. Session-scoped
// credentials restore the seat and resume the event stream; room-scoped ones
// return the room state.
func (s *Server) reconnectWith(c *clientConn, token string) {
	cred, err := s.creds.Attach(token, c.id)
	if err != nil {
		s.sendSessionError(c, err)
		return
	}

	if sess, ok := s.rooms.GetSession(cred.Scope); ok {
		if err := sess.SetConnected(cred.Identity, true); err != nil && !errors.Is(err, session.ErrSessionEnded) {
			s.log.Warn().Err(err).Str("session_id", cred.Scope).Msg("mark reconnected")
		}
		s.attachSession(c, sess, cred.Identity)
		c.enqueue(ServerMessage{
			Type:    "reconnected",
			Payload: ReconnectResponse{Scope: cred.Scope, Identity: cred.Identity},
		})
		return
	}

	if room, ok := s.rooms.GetRoom(cred.Scope); ok {
		c.enqueue(ServerMessage{
			Type:    "reconnected",
			Payload: ReconnectResponse{Scope: cred.Scope, Identity: cred.Identity, InRoom: true},
		})
		c.enqueue(ServerMessage{Type: "room_state", Payload: room.State()})
		return
	}

	s.creds.Remove(token)
	s.sendError(c, session.CodeUnauthorized, "credential scope no longer exists")
}

// handleDisconnect runs when a websocket read loop exits. The seat is kept
// and the credential stays valid until its TTL; the session decides whether
// a hold is needed.
func (s *Server) handleDisconnect(connID string) {
	cred, had := s.creds.Detach(connID)
	if !had {
		return
	}
	if sess, ok := s.rooms.GetSession(cred.Scope); ok {
		sess.Unsubscribe(connID)
		if err := sess.SetConnected(cred.Identity, false); err != nil && !errors.Is(err, session.ErrSessionEnded) {
			s.log.Warn().Err(err).Str("session_id", cred.Scope).Msg("mark disconnected")
		}
	}
}

// botIdentity matches the identities the waiting room pre-claims for
// non-human seats.
func botIdentity(seat int) string {
	return fmt.Sprintf("bot-%d", seat)
}
