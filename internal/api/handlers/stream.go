package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FrameStreamer serves the annotated live view
type FrameStreamer interface {
	StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request)
	Latest() ([]byte, bool)
}

type StreamHandler struct {
	streamer FrameStreamer
}

func NewStreamHandler(streamer FrameStreamer) *StreamHandler {
	return &StreamHandler{streamer: streamer}
}

// @Summary Live stream
// @Description Annotated frames as multipart/x-mixed-replace MJPEG
// @Tags stream
// @Produce multipart/x-mixed-replace
// @Success 200
// @Router /stream [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	h.streamer.StreamMJPEGHTTP(c.Writer, c.Request)
}

// @Summary Latest frame
// @Description The last annotated frame as JPEG
// @Tags stream
// @Produce image/jpeg
// @Success 200
// @Failure 404 {object} ErrorResponse
// @Router /snapshot [get]
func (h *StreamHandler) Snapshot(c *gin.Context) {
	jpeg, ok := h.streamer.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no frame available yet"})
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/jpeg", jpeg)
}
