package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"guardiq-worker-go/internal/helpers"
	"guardiq-worker-go/internal/models"
)

// Codec is the fourcc used for the annotated recording
const Codec = "MJPG"

const defaultFPS = 25.0

// Service writes annotated frames to a single video file. The writer is
// opened on the first frame, when the frame size is known.
type Service struct {
	mu         sync.Mutex
	path       string
	fps        float64
	writer     *gocv.VideoWriter
	width      int
	height     int
	frameCount int64
	startedAt  time.Time
	closed     bool
}

func NewService(path string, fps float64) (*Service, error) {
	if path == "" {
		return nil, fmt.Errorf("recording path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if fps <= 0 {
		fps = defaultFPS
	}

	log.Info().
		Str("path", path).
		Float64("fps", fps).
		Str("codec", Codec).
		Msg("Recorder service initialized")

	return &Service{path: path, fps: fps}, nil
}

// WriteFrame appends a frame to the recording. Frames whose size differs
// from the first one are skipped.
func (rs *Service) WriteFrame(frame models.Frame) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.closed {
		return fmt.Errorf("recorder is closed")
	}

	if rs.writer == nil {
		writer, err := gocv.VideoWriterFile(rs.path, Codec, rs.fps, frame.Width, frame.Height, true)
		if err != nil {
			return fmt.Errorf("failed to open video writer %s: %w", rs.path, err)
		}
		rs.writer = writer
		rs.width = frame.Width
		rs.height = frame.Height
		rs.startedAt = time.Now()

		log.Info().
			Str("path", rs.path).
			Int("width", frame.Width).
			Int("height", frame.Height).
			Msg("Started recording")
	}

	if frame.Width != rs.width || frame.Height != rs.height {
		log.Debug().
			Int64("frame_id", frame.ID).
			Int("width", frame.Width).
			Int("height", frame.Height).
			Msg("Skipping frame with mismatched size")
		return nil
	}

	mat, err := helpers.MatFromFrame(frame)
	if err != nil {
		return err
	}
	defer mat.Close()

	if err := rs.writer.Write(mat); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", frame.ID, err)
	}
	rs.frameCount++
	return nil
}

// FrameCount returns the number of frames written so far
func (rs *Service) FrameCount() int64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.frameCount
}

func (rs *Service) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.closed {
		return nil
	}
	rs.closed = true

	if rs.writer == nil {
		return nil
	}

	log.Info().
		Str("path", rs.path).
		Int64("frames", rs.frameCount).
		Dur("duration", time.Since(rs.startedAt)).
		Msg("Stopped recording")
	return rs.writer.Close()
}
