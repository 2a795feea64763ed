package pipeline

import (
	"context"
	"errors"
	"time"

	"guardiq-worker-go/internal/models"
)

// ErrInputExhausted ends a run gracefully: the source has no more frames or
// the detector can no longer serve them.
var ErrInputExhausted = errors.New("input exhausted")

// Detector runs model inference on one frame. No objects is an empty slice.
type Detector interface {
	Infer(ctx context.Context, frame models.Frame) ([]models.Detection, error)
}

// Encoder turns a frame into the JPEG attached to alerts
type Encoder interface {
	Encode(frame models.Frame) ([]byte, error)
}

// Renderer draws the frame result and returns the annotated frame
type Renderer interface {
	Render(frame models.Frame, result models.FrameResult) (models.Frame, error)
}

// AlertStore keeps the history of dispatch attempts
type AlertStore interface {
	Insert(ctx context.Context, record models.AlertRecord) error
}

// FrameSource yields frames in order and returns ErrInputExhausted at the end
type FrameSource interface {
	Read(ctx context.Context) (models.Frame, error)
}

// Clock returns the current time
type Clock func() time.Time
