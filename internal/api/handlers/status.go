package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"guardiq-worker-go/internal/models"
	"guardiq-worker-go/internal/pipeline"
	"guardiq-worker-go/internal/services/tracking"
)

// PipelineView is the read side of the running pipeline
type PipelineView interface {
	Stats() pipeline.Stats
	Tracks() []tracking.Track
	LastResult() (models.FrameResult, bool)
}

type StatusHandler struct {
	WorkerID string
	Cooldown time.Duration
	view     PipelineView
}

func NewStatusHandler(workerID string, cooldown time.Duration, view PipelineView) *StatusHandler {
	return &StatusHandler{WorkerID: workerID, Cooldown: cooldown, view: view}
}

type StatusResponse struct {
	WorkerID        string         `json:"worker_id" example:"guardiq-1"`
	CooldownSeconds float64        `json:"cooldown_seconds" example:"5"`
	Stats           pipeline.Stats `json:"stats"`
}

type TracksResponse struct {
	FrameID    int64                     `json:"frame_id"`
	Tracks     []tracking.Track          `json:"tracks"`
	Detections []models.TrackedDetection `json:"detections"`
	Decision   models.ThreatDecision     `json:"decision"`
}

// @Summary Pipeline status
// @Description Frame, threat and alert counters of the running pipeline
// @Tags pipeline
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /status [get]
func (h *StatusHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		WorkerID:        h.WorkerID,
		CooldownSeconds: h.Cooldown.Seconds(),
		Stats:           h.view.Stats(),
	})
}

// @Summary Live tracks
// @Description Tracker state and confirmed detections of the last processed frame
// @Tags pipeline
// @Produce json
// @Success 200 {object} TracksResponse
// @Router /tracks [get]
func (h *StatusHandler) Tracks(c *gin.Context) {
	resp := TracksResponse{
		Tracks:     h.view.Tracks(),
		Detections: []models.TrackedDetection{},
	}
	if last, ok := h.view.LastResult(); ok {
		resp.FrameID = last.FrameID
		resp.Decision = last.Decision
		if last.Detections != nil {
			resp.Detections = last.Detections
		}
	}
	c.JSON(http.StatusOK, resp)
}
