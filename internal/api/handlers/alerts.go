package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"guardiq-worker-go/internal/logging"
	"guardiq-worker-go/internal/models"
)

const maxAlertsLimit = 1000

// AlertLister reads the alert history
type AlertLister interface {
	List(ctx context.Context, limit int) ([]models.AlertRecord, error)
	CountByStatus(ctx context.Context) (map[models.AlertStatus]int, error)
}

type AlertsHandler struct {
	store AlertLister
}

func NewAlertsHandler(store AlertLister) *AlertsHandler {
	return &AlertsHandler{store: store}
}

type AlertsResponse struct {
	Alerts []models.AlertRecord       `json:"alerts"`
	Counts map[models.AlertStatus]int `json:"counts"`
	Limit  int                        `json:"limit" example:"50"`
}

type ErrorResponse struct {
	Error string `json:"error" example:"limit must be a positive integer"`
}

// @Summary Alert history
// @Description Most recent alert dispatch attempts, newest first
// @Tags alerts
// @Produce json
// @Param limit query int false "Maximum number of records" default(50)
// @Success 200 {object} AlertsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /alerts [get]
func (h *AlertsHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxAlertsLimit)
	}

	ctx := c.Request.Context()
	alerts, err := h.store.List(ctx, limit)
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to list alerts")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list alerts"})
		return
	}

	counts, err := h.store.CountByStatus(ctx)
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to count alerts")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to count alerts"})
		return
	}

	c.JSON(http.StatusOK, AlertsResponse{Alerts: alerts, Counts: counts, Limit: limit})
}
