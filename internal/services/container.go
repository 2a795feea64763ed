package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"guardiq-worker-go/internal/config"
	"guardiq-worker-go/internal/helpers"
	"guardiq-worker-go/internal/logging"
	"guardiq-worker-go/internal/models"
	"guardiq-worker-go/internal/pipeline"
	"guardiq-worker-go/internal/services/alerting"
	"guardiq-worker-go/internal/services/annotator"
	"guardiq-worker-go/internal/services/detection"
	"guardiq-worker-go/internal/services/messaging"
	"guardiq-worker-go/internal/services/notify"
	"guardiq-worker-go/internal/services/publisher/mjpeg"
	"guardiq-worker-go/internal/services/recorder"
	"guardiq-worker-go/internal/services/streamcapture"
	"guardiq-worker-go/internal/services/threat"
	"guardiq-worker-go/internal/services/tracking"
	"guardiq-worker-go/internal/store"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config       *config.Config
	Catalog      *models.ClassCatalog
	Gate         *alerting.Gate
	DetectionSvc *detection.Service
	Source       *streamcapture.Service
	MessagingSvc *messaging.Service
	Telegram     *notify.Telegram
	Store        *store.Store
	Publisher    *mjpeg.Publisher
	Recorder     *recorder.Service
	Annotator    *annotator.Service
	Pipeline     *pipeline.Pipeline

	drained bool
}

// NewServiceContainer creates a new service container. Optional channels
// (Telegram, NATS, recording) are wired only when configured.
func NewServiceContainer(ctx context.Context, cfg *config.Config) (sc *ServiceContainer, err error) {
	sc = &ServiceContainer{
		Config:  cfg,
		Catalog: models.DefaultClassCatalog(),
		Gate:    alerting.NewGate(cfg.AlertsCooldown),
	}
	defer func() {
		if err != nil {
			sc.Shutdown(context.Background())
			sc = nil
		}
	}()

	encoder := helpers.NewJPEGEncoder(cfg.ImageQuality)

	// Initialize detection service
	sc.DetectionSvc, err = detection.NewService(cfg.DetectorGRPCURL, cfg.DetectorTimeout, encoder.Encode)
	if err != nil {
		return sc, err
	}

	sc.Source, err = streamcapture.NewService(cfg.VideoSource, cfg.FrameScale)
	if err != nil {
		return sc, err
	}

	sc.Store, err = store.New(cfg.AlertDBPath)
	if err != nil {
		return sc, fmt.Errorf("failed to open alert store: %w", err)
	}

	dispatcher, err := sc.buildDispatcher(ctx)
	if err != nil {
		return sc, err
	}

	placeholder, err := helpers.PlaceholderJPEG("GuardIQ", "Initializing...", encoder.Quality())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to render stream placeholder")
	}
	sc.Publisher = mjpeg.NewPublisher(encoder, placeholder)
	sinks := []annotator.Sink{sc.Publisher}
	if cfg.RecordPath != "" {
		sc.Recorder, err = recorder.NewService(cfg.RecordPath, sc.Source.FPS())
		if err != nil {
			return sc, err
		}
		sinks = append(sinks, sc.Recorder)
	}
	sc.Annotator = annotator.NewService(cfg.ShowWindow, sinks...)

	rules, err := threat.DefaultRules(sc.Catalog)
	if err != nil {
		return sc, err
	}

	tracker := tracking.NewTracker(tracking.TrackerConfig{
		MinIoU:  cfg.TrackMinIoU,
		MaxAge:  cfg.TrackMaxAge,
		MinHits: cfg.TrackMinHits,
	})

	pipelineLogger := logging.NewServiceLogger(cfg, "pipeline")
	sc.Pipeline, err = pipeline.New(pipeline.Deps{
		Detector:   sc.DetectionSvc,
		Tracker:    tracker,
		Evaluator:  threat.NewEvaluator(sc.Catalog, rules),
		Gate:       sc.Gate,
		Dispatcher: dispatcher,
		Encoder:    encoder,
		Renderer:   sc.Annotator,
		Store:      sc.Store,
		Catalog:    sc.Catalog,
		Logger:     &pipelineLogger,
	}, pipeline.Options{AlertTimeout: cfg.AlertTimeout})
	if err != nil {
		return sc, err
	}

	return sc, nil
}

// buildDispatcher fans alerts out to every enabled channel
func (sc *ServiceContainer) buildDispatcher(ctx context.Context) (alerting.Dispatcher, error) {
	cfg := sc.Config
	multi := alerting.NewMulti()

	if cfg.TelegramEnabled {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:   cfg.TelegramToken,
			ChatID:  cfg.TelegramChatID,
			BaseURL: cfg.TelegramAPIURL,
			Timeout: cfg.AlertTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		if err := tg.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Telegram bot check failed, alerts will still be attempted")
		}
		sc.Telegram = tg
		multi.Add("telegram", tg)
	}

	if cfg.NatsEnabled {
		msg, err := messaging.NewService(cfg)
		if err != nil {
			return nil, err
		}
		sc.MessagingSvc = msg
		multi.Add("nats", messaging.NewAlertDispatcher(msg, cfg.AlertsSubject, cfg.WorkerID))
	}

	if multi.Len() == 0 {
		log.Warn().Msg("No alert channel enabled, alerts are only logged and stored")
		multi.Add("log", alerting.DispatcherFunc(func(_ context.Context, alert alerting.Alert) error {
			log.Warn().Str("alert_id", alert.ID).Str("reason", alert.Reason).Msg("ALERT")
			return nil
		}))
	}

	return multi, nil
}

// Drain closes the live streams and waits for in-flight alerts until ctx is
// done. It runs before the API stops so open viewers cannot hold it up.
func (sc *ServiceContainer) Drain(ctx context.Context) error {
	sc.drained = true

	if sc.Publisher != nil {
		sc.Publisher.Shutdown()
	}

	if sc.Pipeline != nil {
		if err := sc.Pipeline.Shutdown(ctx); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	}
	return nil
}

// Shutdown gracefully shuts down all services. Without a prior Drain,
// in-flight alerts are awaited until ctx is done.
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	var errs []error

	if !sc.drained {
		if err := sc.Drain(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if sc.Annotator != nil {
		if err := sc.Annotator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("annotator: %w", err))
		}
	}

	if sc.Recorder != nil {
		if err := sc.Recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("recorder: %w", err))
		}
	}

	if sc.Source != nil {
		if err := sc.Source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("video source: %w", err))
		}
	}

	if sc.DetectionSvc != nil {
		if err := sc.DetectionSvc.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("detection: %w", err))
		}
	}

	if sc.MessagingSvc != nil {
		if err := sc.MessagingSvc.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("messaging: %w", err))
		}
	}

	if sc.Store != nil {
		if err := sc.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	return errors.Join(errs...)
}
