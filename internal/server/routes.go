package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"dilemma-server/internal/session"
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/websocket", s.websocketHandler)

	mux.HandleFunc("POST /experiments", s.createExperimentHandler)
	mux.HandleFunc("GET /experiments/{id}", s.getExperimentHandler)
	mux.HandleFunc("GET /sessions/{id}/results", s.sessionResultsHandler)

	// Wrap the mux with CORS middleware
	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Replace "*" with specific origins if needed
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.log.Warn().Err(err).Msg("write response")
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.db.Health())
}

func (s *Server) createExperimentHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorMessage{Code: "invalid", Message: "invalid request body"})
		return
	}

	exp, err := s.store.CreateExperiment(r.Context(), req.Name, req.Config)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorMessage{Code: "invalid", Message: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusCreated, ExperimentResponse{
		ID:        exp.ID,
		Name:      exp.Name,
		Config:    exp.Config,
		Status:    exp.Status,
		CreatedAt: exp.CreatedAt,
		UpdatedAt: exp.UpdatedAt,
	})
}

func (s *Server) getExperimentHandler(w http.ResponseWriter, r *http.Request) {
	exp, err := s.store.GetExperiment(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrExperimentNotFound) {
		s.writeJSON(w, http.StatusNotFound, ErrorMessage{Code: "invalid", Message: "experiment not found"})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("load experiment")
		s.writeJSON(w, http.StatusInternalServerError, ErrorMessage{Code: "resource", Message: "failed to load experiment"})
		return
	}

	s.writeJSON(w, http.StatusOK, ExperimentResponse{
		ID:        exp.ID,
		Name:      exp.Name,
		Config:    exp.Config,
		Status:    exp.Status,
		CreatedAt: exp.CreatedAt,
		UpdatedAt: exp.UpdatedAt,
	})
}

func (s *Server) sessionResultsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	status, err := s.store.SessionStatus(r.Context(), sessionID)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, ErrorMessage{Code: "invalid", Message: "session not found"})
		return
	}
	rounds, err := s.store.SessionResults(r.Context(), sessionID)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID).Msg("load session results")
		s.writeJSON(w, http.StatusInternalServerError, ErrorMessage{Code: "resource", Message: "failed to load results"})
		return
	}

	s.writeJSON(w, http.StatusOK, SessionResultsResponse{
		SessionID: sessionID,
		Status:    status,
		Rounds:    rounds,
	})
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // TODO: make environment-specific
	})
	if err != nil {
		http.Error(w, "failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "server closing")

	ctx := r.Context()

	connectionID := uuid.New().String()
	c := s.conns.Add(connectionID, socket)
	s.health.UpdateActivity(connectionID)
	s.log.Info().Str("conn_id", connectionID).Msg("new connection")

	defer func() {
		s.handleDisconnect(connectionID)
		s.conns.Remove(connectionID)
		s.limiter.RemoveConnection(connectionID)
		s.health.RemoveConnection(connectionID)
		s.log.Info().Str("conn_id", connectionID).Msg("connection closed")
	}()

	// A credential on the handshake query string is an immediate reconnect.
	if token := r.URL.Query().Get("credential"); token != "" {
		s.reconnectWith(c, token)
	}

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			s.log.Debug().Err(err).Str("conn_id", connectionID).Msg("read error")
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		s.health.UpdateActivity(connectionID)
		if !s.limiter.Allow(connectionID) {
			s.sendError(c, session.CodeInvalid, "rate limit exceeded")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(c, session.CodeInvalid, "invalid JSON")
			continue
		}
		if err := ValidateMessageType(msg.Type); err != nil {
			s.sendError(c, session.CodeInvalid, err.Error())
			continue
		}

		s.log.Debug().Str("conn_id", connectionID).Str("type", msg.Type).Msg("message")

		switch msg.Type {
		case "ping":
			c.enqueue(ServerMessage{Type: "pong", Payload: struct{}{}})

		case "create_room":
			s.handleCreateRoom(ctx, c, msg.Payload)

		case "join_room":
			s.handleJoinRoom(c, msg.Payload)

		case "leave_room":
			s.handleLeaveRoom(c)

		case "reconnect":
			s.handleReconnect(c, msg.Payload)

		case "start_session":
			s.handleStartSession(ctx, c)

		case "submit_action":
			s.handleSubmitAction(c, msg.Payload)

		case "send_chat":
			s.handleSendChat(c, msg.Payload)

		case "override_phase":
			s.handleOverridePhase(c)

		case "end_session":
			s.handleEndSession(c)
		}
	}
}
