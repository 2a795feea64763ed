package tracking

import (
	"sort"

	"guardiq-worker-go/internal/models"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackTentative TrackState = "tentative" // Seen, not yet reported
	TrackConfirmed TrackState = "confirmed" // Matched in enough consecutive frames
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	MinIoU  float64 // Minimum overlap for a track/detection pair to be eligible
	MaxAge  int     // Frames without a match before a track is evicted
	MinHits int     // Consecutive matches needed for confirmation
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MinIoU:  0.3,
		MaxAge:  30,
		MinHits: 3,
	}
}

// Track is a persistent identity for one physical object.
type Track struct {
	ID              int64       `json:"track_id"`
	ClassID         int         `json:"class_id"`
	BBox            models.BBox `json:"bbox"`
	Age             int         `json:"age"`               // Frames since first seen
	TimeSinceUpdate int         `json:"time_since_update"` // Frames since last match
	Hits            int         `json:"hits"`              // Consecutive matches
	State           TrackState  `json:"state"`

	last         models.Detection
	confirmedSeq int64
}

// Result pairs a detection with the confirmed track it was assigned to.
type Result struct {
	models.Detection
	TrackID int64
}

// Tracker associates per-frame detections into tracks by IoU. It is not safe
// for concurrent use: Update must be called once per frame, in frame order,
// from a single goroutine.
type Tracker struct {
	cfg        TrackerConfig
	tracks     []*Track // Creation order
	nextID     int64
	confirmSeq int64
}

// NewTracker creates a new tracker with the specified configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.MinHits < 1 {
		cfg.MinHits = 1
	}
	if cfg.MaxAge < 0 {
		cfg.MaxAge = 0
	}
	return &Tracker{cfg: cfg}
}

// Config returns the tracker configuration in effect.
func (t *Tracker) Config() TrackerConfig {
	return t.cfg
}

// Update processes one frame of detections and returns the detections that
// belong to confirmed tracks, ordered by first confirmation. An empty slice
// only ages existing tracks.
func (t *Tracker) Update(detections []models.Detection) []Result {
	assignments := t.associate(detections)

	// Matched tracks
	matched := make([]bool, len(t.tracks))
	for di, ti := range assignments {
		if ti < 0 {
			continue
		}
		track := t.tracks[ti]
		track.BBox = detections[di].BBox
		track.ClassID = detections[di].ClassID
		track.last = detections[di]
		track.TimeSinceUpdate = 0
		track.Age++
		track.Hits++
		matched[ti] = true
		t.maybeConfirm(track)
	}

	// Unmatched tracks
	for ti, track := range t.tracks {
		if matched[ti] {
			continue
		}
		track.TimeSinceUpdate++
		track.Age++
		track.Hits = 0
	}

	// New tentative tracks from unmatched detections
	for di, ti := range assignments {
		if ti >= 0 {
			continue
		}
		t.nextID++
		track := &Track{
			ID:      t.nextID,
			ClassID: detections[di].ClassID,
			BBox:    detections[di].BBox,
			Age:     1,
			Hits:    1,
			State:   TrackTentative,
			last:    detections[di],
		}
		t.maybeConfirm(track)
		t.tracks = append(t.tracks, track)
	}

	t.evict()

	return t.output()
}

// associate greedily pairs tracks and detections by descending IoU. Equal IoU
// prefers the older track. Returns the track index per detection, or -1.
func (t *Tracker) associate(detections []models.Detection) []int {
	assignments := make([]int, len(detections))
	for i := range assignments {
		assignments[i] = -1
	}
	if len(t.tracks) == 0 || len(detections) == 0 {
		return assignments
	}

	type pair struct {
		track, det int
		iou        float64
	}
	pairs := make([]pair, 0, len(t.tracks))
	for ti, track := range t.tracks {
		for di, det := range detections {
			iou := IoU(track.BBox, det.BBox)
			if iou <= 0 || iou < t.cfg.MinIoU {
				continue
			}
			pairs = append(pairs, pair{track: ti, det: di, iou: iou})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.iou != b.iou {
			return a.iou > b.iou
		}
		ta, tb := t.tracks[a.track], t.tracks[b.track]
		if ta.Age != tb.Age {
			return ta.Age > tb.Age
		}
		if ta.ID != tb.ID {
			return ta.ID < tb.ID
		}
		return a.det < b.det
	})

	trackUsed := make([]bool, len(t.tracks))
	for _, p := range pairs {
		if trackUsed[p.track] || assignments[p.det] >= 0 {
			continue
		}
		trackUsed[p.track] = true
		assignments[p.det] = p.track
	}
	return assignments
}

func (t *Tracker) maybeConfirm(track *Track) {
	if track.State == TrackConfirmed || track.Hits < t.cfg.MinHits {
		return
	}
	t.confirmSeq++
	track.State = TrackConfirmed
	track.confirmedSeq = t.confirmSeq
}

// evict drops every track whose miss count exceeds MaxAge.
func (t *Tracker) evict() {
	kept := t.tracks[:0]
	for _, track := range t.tracks {
		if track.TimeSinceUpdate > t.cfg.MaxAge {
			continue
		}
		kept = append(kept, track)
	}
	for i := len(kept); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = kept
}

func (t *Tracker) output() []Result {
	active := make([]*Track, 0, len(t.tracks))
	for _, track := range t.tracks {
		if track.State == TrackConfirmed && track.TimeSinceUpdate == 0 {
			active = append(active, track)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].confirmedSeq < active[j].confirmedSeq
	})

	results := make([]Result, 0, len(active))
	for _, track := range active {
		results = append(results, Result{Detection: track.last, TrackID: track.ID})
	}
	return results
}

// Tracks returns a snapshot of all live tracks, tentative included, in creation order.
func (t *Tracker) Tracks() []Track {
	out := make([]Track, 0, len(t.tracks))
	for _, track := range t.tracks {
		out = append(out, *track)
	}
	return out
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int {
	return len(t.tracks)
}
