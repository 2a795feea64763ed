package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"guardiq-worker-go/internal/api/handlers"
	"guardiq-worker-go/internal/config"
)

// Deps are the read-side collaborators exposed over HTTP. Store and Streamer are optional.
type Deps struct {
	Pipeline handlers.PipelineView
	Store    handlers.AlertLister
	Streamer handlers.FrameStreamer
	Checks   map[string]handlers.HealthCheckFunc
}

type Server struct {
	config *config.Config
	router *gin.Engine
	server *http.Server

	healthHandler *handlers.HealthHandler
	statusHandler *handlers.StatusHandler
	alertsHandler *handlers.AlertsHandler
	streamHandler *handlers.StreamHandler
	systemHandler *handlers.SystemHandler
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	health := handlers.NewHealthHandler(cfg.WorkerID, cfg.Version)
	for name, check := range deps.Checks {
		health.AddCheck(name, check)
	}

	s := &Server{
		config:        cfg,
		router:        router,
		healthHandler: health,
		statusHandler: handlers.NewStatusHandler(cfg.WorkerID, cfg.AlertsCooldown, deps.Pipeline),
		systemHandler: handlers.NewSystemHandler(cfg.WorkerID),
	}
	if deps.Store != nil {
		s.alertsHandler = handlers.NewAlertsHandler(deps.Store)
	}
	if deps.Streamer != nil {
		s.streamHandler = handlers.NewStreamHandler(deps.Streamer)
	}
	return s
}

func (s *Server) Setup() error {
	s.setupMiddleware()

	s.setupRoutes()

	s.setupSwagger()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	return nil
}

// Start serves until Stop is called. A graceful stop returns nil.
func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("Starting GuardIQ Worker API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping GuardIQ Worker API")
	return s.server.Shutdown(ctx)
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}
