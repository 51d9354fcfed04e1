package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"tvremote/api"
	"tvremote/catalog"
	"tvremote/config"
	"tvremote/logger"
	"tvremote/pairing"
	"tvremote/relay"
	"tvremote/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Init(cfg.Log)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Initialize our modules
	fs := afero.NewOsFs()
	registry := relay.NewRegistry(log.With().Str("component", "registry").Logger())
	keys := pairing.NewManager(cfg.Pairing.CodeTTL, registry, log.With().Str("component", "pairing").Logger())
	go keys.Run(ctx)

	srv := &api.Server{
		Catalog:  catalog.New(fs, cfg.Media.Root),
		Streamer: stream.New(fs, cfg.Stream.OpenRangeWindow),
		Hub:      relay.NewHub(registry, cfg.WebSocket, cfg.CORS.AllowedOrigins, keys, log.With().Str("component", "relay").Logger()),
		Pairing:  keys,
	}

	// 2. Register the HTTP handlers from our modules
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(srv, cfg.CORS.AllowedOrigins, log),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 3. Start the server
	go func() {
		log.Info().Str("addr", server.Addr).Str("media_root", cfg.Media.Root).Msg("server starting")
		log.Info().Msgf("websocket endpoint: ws://%s/ws?role=tv|remote&room=ROOM", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped")
}
