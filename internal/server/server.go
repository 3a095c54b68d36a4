package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	_ "github.com/joho/godotenv/autoload"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dilemma-server/internal/config"
	"dilemma-server/internal/database"
	"dilemma-server/internal/logging"
)

const (
	idleConnTimeout = 5 * time.Minute
	reapInterval    = time.Minute
)

type Server struct {
	port int
	cfg  config.App

	db    database.Service
	store *Store

	conns   *ConnectionManager
	creds   *CredentialManager
	rooms   *RoomManager
	limiter *RateLimiter
	health  *ConnectionHealth

	log zerolog.Logger
}

func NewServer() (*Server, *http.Server) {
	appCfg, err := config.LoadApp()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.Component("server")

	dbService := database.New(appCfg.DatabaseDSN)
	if err := runMigrations(dbService.DB()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	srv := &Server{
		port:    appCfg.Port,
		cfg:     appCfg,
		db:      dbService,
		store:   NewStore(dbService.DB(), logging.Component("store")),
		conns:   NewConnectionManager(logging.Component("conn")),
		creds:   NewCredentialManager(appCfg.CredentialTTL),
		rooms:   NewRoomManager(logging.Component("room")),
		limiter: NewRateLimiter(appCfg.RateLimitMessages, appCfg.RateLimitWindow),
		health:  NewConnectionHealth(),
		log:     logger,
	}

	go srv.reapTask()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", srv.port),
		Handler:      srv.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return srv, httpServer
}

// runMigrations applies database migrations using goose.
func runMigrations(db *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "./db/migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	log.Info().Msg("database migrations applied")
	return nil
}

// reapTask closes websockets that have been silent past the idle timeout.
// Seats and credentials survive the close; the usual disconnect path runs
// when the read loop exits.
func (s *Server) reapTask() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for range ticker.C {
		for _, connID := range s.health.GetInactiveConnections(idleConnTimeout) {
			if c := s.conns.Get(connID); c != nil {
				s.log.Info().Str("conn_id", connID).Msg("closing idle connection")
				c.sock.Close(websocket.StatusPolicyViolation, "idle timeout")
			}
		}
	}
}

// Shutdown disposes live sessions and rooms so every connected client
// observes a terminal state before the transport drops.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, sess := range s.rooms.Sessions() {
		sess.Dispose("shutdown")
	}
	for _, room := range s.rooms.Rooms() {
		room.Close("server shutting down")
	}
	s.conns.CloseAll()
	return s.db.Close()
}
