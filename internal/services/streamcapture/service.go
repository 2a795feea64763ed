package streamcapture

import (
	"context"
	"fmt"
	"image"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"guardiq-worker-go/internal/helpers"
	"guardiq-worker-go/internal/models"
	"guardiq-worker-go/internal/pipeline"
)

// Service reads frames from a video file, RTSP stream or webcam
type Service struct {
	mu      sync.Mutex
	source  string
	scale   float64
	capture *gocv.VideoCapture
	img     gocv.Mat
	frameID int64
	closed  bool
}

// NewService opens the video source. A numeric source is a webcam index.
func NewService(source string, scale float64) (*Service, error) {
	log.Info().
		Str("source", source).
		Float64("scale", scale).
		Msg("Opening video source")

	var (
		capture *gocv.VideoCapture
		err     error
	)
	switch {
	case isWebcam(source):
		idx, _ := strconv.Atoi(source)
		capture, err = gocv.OpenVideoCapture(idx)
	case strings.HasPrefix(source, "rtsp://"):
		configureFFmpegOptions()
		capture, err = gocv.OpenVideoCaptureWithAPI(source, gocv.VideoCaptureFFmpeg)
		if err == nil {
			// Minimal buffer for low latency
			capture.Set(gocv.VideoCaptureBufferSize, 1)
		}
	default:
		capture, err = gocv.OpenVideoCapture(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open video source %s: %w", source, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("video capture is not opened for source %s", source)
	}

	log.Info().
		Str("source", source).
		Float64("fps", capture.Get(gocv.VideoCaptureFPS)).
		Float64("width", capture.Get(gocv.VideoCaptureFrameWidth)).
		Float64("height", capture.Get(gocv.VideoCaptureFrameHeight)).
		Msg("VideoCapture opened successfully")

	if scale <= 0 {
		scale = 1
	}

	return &Service{
		source:  source,
		scale:   scale,
		capture: capture,
		img:     gocv.NewMat(),
	}, nil
}

// FPS reports the source frame rate, zero when unknown
func (s *Service) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	return s.capture.Get(gocv.VideoCaptureFPS)
}

// Read returns the next frame. A failed read or an empty frame ends the input.
func (s *Service) Read(ctx context.Context) (models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return models.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.Frame{}, pipeline.ErrInputExhausted
	}

	if ok := s.capture.Read(&s.img); !ok {
		log.Info().Str("source", s.source).Int64("frames", s.frameID).Msg("Failed to read frame, input exhausted")
		return models.Frame{}, pipeline.ErrInputExhausted
	}
	if s.img.Empty() {
		log.Info().Str("source", s.source).Int64("frames", s.frameID).Msg("Received empty frame, input exhausted")
		return models.Frame{}, pipeline.ErrInputExhausted
	}

	s.frameID++
	now := time.Now()

	if s.scale == 1 {
		return helpers.FrameFromMat(s.img, s.frameID, now), nil
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(s.img, &resized, image.Point{}, s.scale, s.scale, gocv.InterpolationArea)

	return helpers.FrameFromMat(resized, s.frameID, now), nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.img.Close()
	log.Info().Str("source", s.source).Msg("Closing video source")
	return s.capture.Close()
}

func isWebcam(source string) bool {
	_, err := strconv.Atoi(source)
	return err == nil
}

// configureFFmpegOptions sets the FFmpeg options OpenCV reads for RTSP capture
func configureFFmpegOptions() {
	ffmpegOptions := map[string]string{
		"rtsp_transport":      "tcp",     // Use TCP for more reliable connection
		"buffer_size":         "2097152", // 2MB buffer - smaller for real-time
		"max_delay":           "500000",  // 0.5s max delay
		"stimeout":            "5000000", // 5s timeout
		"rw_timeout":          "5000000", // 5s read/write timeout
		"flags":               "low_delay",
		"fflags":              "nobuffer+flush_packets",
		"analyzeduration":     "500000",  // 0.5s analyze
		"probesize":           "2000000", // 2MB probe
		"allowed_media_types": "video",
	}

	options := make([]string, 0, len(ffmpegOptions))
	for key, value := range ffmpegOptions {
		options = append(options, key+";"+value)
	}
	sort.Strings(options)
	optsStr := strings.Join(options, "|")

	os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", optsStr)

	log.Info().
		Str("ffmpeg_options", optsStr).
		Msg("FFmpeg options configured for OpenCV")
}
