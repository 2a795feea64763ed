package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownClass is returned when a detector produces a class id the catalog has no label for.
var ErrUnknownClass = errors.New("unknown class")

// BBox is an axis-aligned box with a top-left origin, in pixels
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns the box area, zero for degenerate boxes
func (b BBox) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Detection represents one object found by the detector in one frame
type Detection struct {
	BBox       BBox    `json:"bbox"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
}

// TrackedDetection is a detection carrying a confirmed track identity and its catalog label
type TrackedDetection struct {
	Detection
	TrackID int64  `json:"track_id"`
	Label   string `json:"label"`
	Known   bool   `json:"known"`
}

// DisplayLabel is the overlay text for the detection, e.g. "#3-Knife"
func (d TrackedDetection) DisplayLabel() string {
	return fmt.Sprintf("#%d-%s", d.TrackID, d.Label)
}

// ThreatDecision is recomputed every frame and never persisted
type ThreatDecision struct {
	IsThreat bool   `json:"is_threat"`
	Reason   string `json:"reason"`
}

// Frame is a decoded video frame in BGR24 layout
type Frame struct {
	ID        int64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// FrameResult is everything the renderer needs to annotate one frame
type FrameResult struct {
	FrameID        int64              `json:"frame_id"`
	Timestamp      time.Time          `json:"timestamp"`
	Detections     []TrackedDetection `json:"detections"`
	Decision       ThreatDecision     `json:"decision"`
	AlertAttempted bool               `json:"alert_attempted"`
}

// AlertStatus is the outcome of a dispatch attempt
type AlertStatus string

const (
	AlertStatusSent   AlertStatus = "sent"
	AlertStatusFailed AlertStatus = "failed"
)

// AlertRecord is one dispatch attempt as kept in the alert history
type AlertRecord struct {
	ID        string      `json:"id"`
	Reason    string      `json:"reason"`
	Caption   string      `json:"caption"`
	Status    AlertStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	TrackIDs  []int64     `json:"track_ids"`
	FrameID   int64       `json:"frame_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// AlertPayload represents the structure published to NATS
type AlertPayload struct {
	AlertID   string    `json:"alert_id"`
	WorkerID  string    `json:"worker_id"`
	Reason    string    `json:"reason"`
	Caption   string    `json:"caption"`
	Timestamp time.Time `json:"timestamp"`
	FrameID   int64     `json:"frame_id"`
	TrackIDs  []int64   `json:"track_ids,omitempty"`
	Image     string    `json:"image,omitempty"` // base64 JPEG
}

// UnknownClassError carries the offending class id
type UnknownClassError struct {
	ClassID int
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("unknown class id %d", e.ClassID)
}

func (e *UnknownClassError) Unwrap() error { return ErrUnknownClass }
