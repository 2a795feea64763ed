package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrDispatchFailed marks a notification that was not delivered
var ErrDispatchFailed = errors.New("dispatch failed")

// CaptionTimeLayout is the timestamp layout used in alert captions
const CaptionTimeLayout = "2006-01-02 15:04:05"

// Alert is one notification: a JPEG snapshot and its caption
type Alert struct {
	ID        string
	Image     []byte
	Caption   string
	Reason    string
	Timestamp time.Time
	TrackIDs  []int64
	FrameID   int64
}

// Dispatcher delivers alerts to a notification channel. A nil error means delivered.
type Dispatcher interface {
	Send(ctx context.Context, alert Alert) error
}

// FormatCaption builds the alert caption from the threat reason and time
func FormatCaption(reason string, t time.Time) string {
	return fmt.Sprintf("⚠️ ALERT ⚠️\nDetected %s!\nTime: %s", reason, t.Format(CaptionTimeLayout))
}

// Multi fans an alert out to several dispatchers. Delivery to any one of them counts as success.
type Multi struct {
	dispatchers []Dispatcher
	names       []string
}

// NewMulti creates an empty fan-out dispatcher
func NewMulti() *Multi {
	return &Multi{}
}

// Add registers a named dispatcher
func (m *Multi) Add(name string, d Dispatcher) {
	m.dispatchers = append(m.dispatchers, d)
	m.names = append(m.names, name)
}

// Len returns the number of registered dispatchers
func (m *Multi) Len() int {
	return len(m.dispatchers)
}

// Send delivers to every dispatcher and returns nil if at least one succeeded
func (m *Multi) Send(ctx context.Context, alert Alert) error {
	if len(m.dispatchers) == 0 {
		return fmt.Errorf("no dispatchers configured: %w", ErrDispatchFailed)
	}

	var errs []error
	for i, d := range m.dispatchers {
		if err := d.Send(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.names[i], err))
		}
	}
	if len(errs) == len(m.dispatchers) {
		return fmt.Errorf("%w: %w", ErrDispatchFailed, errors.Join(errs...))
	}
	for _, err := range errs {
		log.Warn().Err(err).Str("alert_id", alert.ID).Msg("Alert delivered with partial failures")
	}
	return nil
}

// DispatcherFunc adapts a function to the Dispatcher interface
type DispatcherFunc func(ctx context.Context, alert Alert) error

// Send calls f
func (f DispatcherFunc) Send(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}
