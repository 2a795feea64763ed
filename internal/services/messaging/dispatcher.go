package messaging

import (
	"context"
	"encoding/base64"
	"fmt"

	"guardiq-worker-go/internal/models"
	"guardiq-worker-go/internal/services/alerting"
)

// Publisher is the subset of Service used to deliver alerts
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// AlertDispatcher publishes alerts as JSON payloads on a NATS subject
type AlertDispatcher struct {
	publisher Publisher
	subject   string
	workerID  string
}

// NewAlertDispatcher creates a dispatcher publishing to subject
func NewAlertDispatcher(publisher Publisher, subject, workerID string) *AlertDispatcher {
	return &AlertDispatcher{
		publisher: publisher,
		subject:   subject,
		workerID:  workerID,
	}
}

// Send implements alerting.Dispatcher
func (d *AlertDispatcher) Send(ctx context.Context, alert alerting.Alert) error {
	payload := models.AlertPayload{
		AlertID:   alert.ID,
		WorkerID:  d.workerID,
		Reason:    alert.Reason,
		Caption:   alert.Caption,
		Timestamp: alert.Timestamp,
		FrameID:   alert.FrameID,
		TrackIDs:  alert.TrackIDs,
	}
	if len(alert.Image) > 0 {
		payload.Image = base64.StdEncoding.EncodeToString(alert.Image)
	}

	if err := d.publisher.Publish(ctx, d.subject, payload); err != nil {
		return fmt.Errorf("publish alert to %s: %w: %w", d.subject, alerting.ErrDispatchFailed, err)
	}
	return nil
}
