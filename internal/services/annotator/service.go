package annotator

import (
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"guardiq-worker-go/internal/helpers"
	"guardiq-worker-go/internal/models"
)

// WindowTitle is the title of the local preview window
const WindowTitle = "GuardIQ: AI Powered Surveillance System for Banks"

// TimeLayout is the layout of the timestamp footer
const TimeLayout = "2006-01-02 15:04:05"

// Sink receives every annotated frame
type Sink interface {
	WriteFrame(frame models.Frame) error
}

// Service draws tracking results onto frames and forwards them to the preview
// window and sinks. Render is called from the pipeline loop only.
type Service struct {
	mu     sync.Mutex
	window *gocv.Window
	sinks  []Sink
	closed bool
}

// NewService creates an annotator. With showWindow a local preview window is opened.
func NewService(showWindow bool, sinks ...Sink) *Service {
	s := &Service{sinks: sinks}
	if showWindow {
		s.window = gocv.NewWindow(WindowTitle)
		log.Info().Str("title", WindowTitle).Msg("Preview window opened")
	}
	return s
}

// Render draws boxes, labels, the threat banner and the timestamp and returns the annotated frame
func (s *Service) Render(frame models.Frame, result models.FrameResult) (models.Frame, error) {
	src, err := helpers.MatFromFrame(frame)
	if err != nil {
		return frame, err
	}
	defer src.Close()

	mat := src.Clone()
	defer mat.Close()

	for _, d := range result.Detections {
		drawDetection(&mat, d)
	}
	if result.Decision.IsThreat {
		drawBanner(&mat, result.Decision, result.AlertAttempted)
	}
	drawTimestamp(&mat, frame.Timestamp.Format(TimeLayout))

	annotated := helpers.FrameFromMat(mat, frame.ID, frame.Timestamp)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return annotated, nil
	}

	if s.window != nil {
		s.window.IMShow(mat)
		s.window.WaitKey(1)
	}

	for _, sink := range s.sinks {
		if err := sink.WriteFrame(annotated); err != nil {
			log.Warn().Err(err).Int64("frame_id", frame.ID).Msg("Annotated frame sink failed")
		}
	}

	return annotated, nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.window != nil {
		return s.window.Close()
	}
	return nil
}
