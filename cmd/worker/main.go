package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"guardiq-worker-go/internal/api"
	"guardiq-worker-go/internal/api/handlers"
	"guardiq-worker-go/internal/config"
	"guardiq-worker-go/internal/logging"
	"guardiq-worker-go/internal/services"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logging.Setup(cfg)

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("video_source", cfg.VideoSource).
		Str("detector", cfg.DetectorGRPCURL).
		Dur("alerts_cooldown", cfg.AlertsCooldown).
		Msg("Starting GuardIQ Worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := services.NewServiceContainer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	checks := map[string]handlers.HealthCheckFunc{
		"detector": container.DetectionSvc.HealthCheck,
	}
	if container.MessagingSvc != nil {
		checks["nats"] = func(context.Context) error {
			if !container.MessagingSvc.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	}

	server := api.NewServer(cfg, api.Deps{
		Pipeline: container.Pipeline,
		Store:    container.Store,
		Streamer: container.Publisher,
		Checks:   checks,
	})
	if err := server.Setup(); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up API server")
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("API server failed")
			stop()
		}
	}()

	// The pipeline ends on input exhaustion or on a shutdown signal
	runErr := make(chan error, 1)
	go func() {
		runErr <- container.Pipeline.Run(ctx, container.Source)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
		<-runErr
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Pipeline stopped with error")
			exitCode = 1
		} else {
			log.Info().Interface("stats", container.Pipeline.Stats()).Msg("Video source finished")
		}
	}

	// Close live streams and flush pending alerts before stopping the API
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := container.Drain(drainCtx); err != nil {
		log.Error().Err(err).Msg("Pending alerts abandoned")
		exitCode = 1
	}
	cancelDrain()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := container.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Services shutdown incomplete")
		exitCode = 1
	} else {
		log.Info().Msg("Shutdown complete")
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
