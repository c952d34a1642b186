package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dmaslov/classhub/internal/adapters/http"
	"github.com/dmaslov/classhub/internal/app"
	"github.com/dmaslov/classhub/internal/config"
	"github.com/dmaslov/classhub/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	// The roster store is best-effort: a broken data dir degrades to a
	// session without persistence, never a refused start.
	var recorder app.RosterRecorder
	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		log.Warn().Err(err).Msg("roster store unavailable, running without persistence")
		store = nil
	} else {
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("roster store close")
			}
		}()
		recorder = store
	}

	registry := app.NewRegistry()
	session := app.NewSessionState(cfg.ChatHistory)
	hub := app.NewRouter(registry, session, recorder)

	r := router.SetupRouter(ctx, cfg, hub, store)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Classhub server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
