package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"dilemma-server/internal/config"
	"dilemma-server/internal/logging"
	"dilemma-server/internal/server"
)

func gracefulShutdown(appServer *server.Server, httpServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info().Msg("shutdown signal received, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// Sessions need time to publish terminal state to every client.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := appServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server forced to shut down")
	}

	done <- true
}

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log configuration")
	}
	logging.Init(logCfg)

	appServer, httpServer := server.NewServer()

	done := make(chan bool, 1)

	go gracefulShutdown(appServer, httpServer, done)

	log.Info().Str("addr", httpServer.Addr).Msg("listening")
	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	<-done
	log.Info().Msg("graceful shutdown complete")
}
