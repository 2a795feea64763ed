package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"guardiq-worker-go/internal/logging"
)

// HealthCheckFunc reports whether one dependency is usable
type HealthCheckFunc func(ctx context.Context) error

type HealthHandler struct {
	WorkerID string
	Version  string
	checks   map[string]HealthCheckFunc
	timeout  time.Duration
}

func NewHealthHandler(workerID, version string) *HealthHandler {
	return &HealthHandler{
		WorkerID: workerID,
		Version:  version,
		checks:   make(map[string]HealthCheckFunc),
		timeout:  2 * time.Second,
	}
}

// AddCheck registers a dependency check reported by /health
func (h *HealthHandler) AddCheck(name string, check HealthCheckFunc) {
	h.checks[name] = check
}

type HealthResponse struct {
	Status     string            `json:"status" example:"healthy"`
	WorkerID   string            `json:"worker_id" example:"guardiq-1"`
	Components map[string]string `json:"components,omitempty"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id" example:"guardiq-1"`
	Status       string   `json:"status" example:"running"`
	Version      string   `json:"version" example:"1.0.0"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Check if the worker and its dependencies are healthy
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:   "healthy",
		WorkerID: h.WorkerID,
	}

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()

		names := make([]string, 0, len(h.checks))
		for name := range h.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Components = make(map[string]string, len(names))
		for _, name := range names {
			if err := h.checks[name](ctx); err != nil {
				logging.Warn(c).Err(err).Str("component", name).Msg("Health check failed")
				resp.Components[name] = "unhealthy"
				resp.Status = "degraded"
				continue
			}
			resp.Components[name] = "healthy"
		}
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Worker information
// @Description Get basic worker information and capabilities
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  h.Version,
		Capabilities: []string{
			"object_tracking",
			"threat_detection",
			"alerting",
			"mjpeg_streaming",
		},
	})
}
