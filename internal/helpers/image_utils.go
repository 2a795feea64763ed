package helpers

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"guardiq-worker-go/internal/models"
)

const (
	// JPEG quality settings
	HighQuality   = 95
	MediumQuality = 75
	LowQuality    = 50
)

// isJPEGData checks if the byte slice contains JPEG data by checking magic bytes
func isJPEGData(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	// JPEG magic bytes: FF D8
	return data[0] == 0xFF && data[1] == 0xD8
}

// JPEGEncoder converts BGR frames to JPEG with a fixed quality
type JPEGEncoder struct {
	quality int
}

func NewJPEGEncoder(quality int) *JPEGEncoder {
	if quality < 1 || quality > 100 {
		log.Warn().Int("quality", quality).Int("fallback", HighQuality).Msg("Invalid JPEG quality, using fallback")
		quality = HighQuality
	}
	return &JPEGEncoder{quality: quality}
}

func (e *JPEGEncoder) Quality() int {
	return e.quality
}

// Encode returns the frame as JPEG; frames that already hold JPEG data pass through
func (e *JPEGEncoder) Encode(frame models.Frame) ([]byte, error) {
	if len(frame.Data) == 0 {
		return nil, fmt.Errorf("empty frame data")
	}

	if isJPEGData(frame.Data) {
		return frame.Data, nil
	}

	mat, err := MatFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	return EncodeMat(mat, e.quality)
}

// MatFromFrame wraps the BGR bytes of a frame in a Mat. Caller closes it.
func MatFromFrame(frame models.Frame) (gocv.Mat, error) {
	if frame.Width <= 0 || frame.Height <= 0 || frame.Width*frame.Height*3 != len(frame.Data) {
		return gocv.Mat{}, fmt.Errorf("frame %d: BGR length %d does not match %dx%d", frame.ID, len(frame.Data), frame.Width, frame.Height)
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create Mat from BGR data: %w", err)
	}
	return mat, nil
}

// FrameFromMat copies a BGR Mat into a frame
func FrameFromMat(mat gocv.Mat, id int64, ts time.Time) models.Frame {
	return models.Frame{
		ID:        id,
		Timestamp: ts,
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Data:      mat.ToBytes(),
	}
}

// EncodeMat encodes a Mat as JPEG and returns an owned copy of the bytes
func EncodeMat(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()

	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// PlaceholderJPEG renders a grey 640x360 card with a title and subtitle
func PlaceholderJPEG(title, subtitle string, quality int) ([]byte, error) {
	placeholder := gocv.NewMatWithSize(360, 640, gocv.MatTypeCV8UC3)
	defer placeholder.Close()

	placeholder.SetTo(gocv.Scalar{Val1: 64, Val2: 64, Val3: 64, Val4: 0})

	textColor := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.PutText(&placeholder, title,
		image.Pt(20, 180), gocv.FontHersheySimplex, 1.0, textColor, 2)
	gocv.PutText(&placeholder, subtitle,
		image.Pt(20, 220), gocv.FontHersheySimplex, 0.8, textColor, 2)

	return EncodeMat(placeholder, quality)
}
