package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"signage-server/confs"
	"signage-server/db"
	"signage-server/logging"
	"signage-server/server"
)

func main() {
	// load config
	cfg, err := confs.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	database, err := db.Connect(cfg.Database, logger.With().Str("component", "db").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to DB")
	}

	srv, err := server.NewServer(cfg, database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build server")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("Server stopped")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Shutdown incomplete")
	}
}
