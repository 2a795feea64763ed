package mjpeg

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"guardiq-worker-go/internal/models"
)

const (
	boundary          = "frame"
	keepaliveInterval = 2 * time.Second
)

// Encoder turns an annotated frame into JPEG bytes
type Encoder interface {
	Encode(frame models.Frame) ([]byte, error)
}

// Publisher keeps the latest annotated frame as JPEG and streams it to HTTP viewers
type Publisher struct {
	encoder     Encoder
	placeholder []byte
	keepalive   time.Duration

	jpegMutex  sync.RWMutex
	latestJPEG []byte

	notifyMutex sync.Mutex
	viewers     map[chan struct{}]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewPublisher creates a publisher. placeholder is sent to viewers that
// connect before the first frame and may be nil.
func NewPublisher(encoder Encoder, placeholder []byte) *Publisher {
	return &Publisher{
		encoder:     encoder,
		placeholder: placeholder,
		keepalive:   keepaliveInterval,
		viewers:     make(map[chan struct{}]struct{}),
		done:        make(chan struct{}),
	}
}

// WriteFrame encodes the frame and wakes every viewer
func (p *Publisher) WriteFrame(frame models.Frame) error {
	jpeg, err := p.encoder.Encode(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", frame.ID, err)
	}

	p.jpegMutex.Lock()
	p.latestJPEG = jpeg
	p.jpegMutex.Unlock()

	p.notifyViewers()
	return nil
}

// Latest returns the last published JPEG
func (p *Publisher) Latest() ([]byte, bool) {
	p.jpegMutex.RLock()
	defer p.jpegMutex.RUnlock()
	return p.latestJPEG, len(p.latestJPEG) > 0
}

// Viewers returns the number of connected stream clients
func (p *Publisher) Viewers() int {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	return len(p.viewers)
}

func (p *Publisher) notifyViewers() {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()

	for notify := range p.viewers {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
}

func (p *Publisher) subscribe() chan struct{} {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()

	notify := make(chan struct{}, 1)
	p.viewers[notify] = struct{}{}
	return notify
}

func (p *Publisher) unsubscribe(notify chan struct{}) {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	delete(p.viewers, notify)
}

// StreamMJPEGHTTP serves multipart/x-mixed-replace until the client goes
// away or the publisher shuts down
func (p *Publisher) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-p.done:
		http.Error(w, "Stream closed", http.StatusServiceUnavailable)
		return
	default:
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	notify := p.subscribe()
	defer p.unsubscribe(notify)

	writePart := func(jpeg []byte) bool {
		if _, err := io.WriteString(w, "--"+boundary+"\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "Content-Type: image/jpeg\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(jpeg))); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	first, ok := p.Latest()
	if !ok {
		first = p.placeholder
	}
	if len(first) > 0 {
		if !writePart(first) {
			return
		}
	}

	log.Debug().Str("remote", r.RemoteAddr).Msg("MJPEG viewer connected")

	keepaliveTicker := time.NewTicker(p.keepalive)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("remote", r.RemoteAddr).Msg("MJPEG viewer disconnected")
			return
		case <-p.done:
			log.Debug().Str("remote", r.RemoteAddr).Msg("MJPEG stream closed by shutdown")
			return
		case <-notify:
		case <-keepaliveTicker.C:
		}

		if buf, ok := p.Latest(); ok {
			if !writePart(buf) {
				return
			}
		}
	}
}

// Shutdown ends every open stream; later viewers get 503
func (p *Publisher) Shutdown() {
	p.closeOnce.Do(func() {
		log.Info().Int("viewers", p.Viewers()).Msg("MJPEG Publisher shutting down")
		close(p.done)
	})
}
