package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"guardiq-worker-go/internal/models"
	"guardiq-worker-go/internal/services/alerting"
	"guardiq-worker-go/internal/services/threat"
	"guardiq-worker-go/internal/services/tracking"
)

const (
	defaultAlertTimeout = 10 * time.Second
	storeTimeout        = 5 * time.Second
)

// Deps are the collaborators of a pipeline. Renderer, Store, Clock and Logger are optional.
type Deps struct {
	Detector   Detector
	Tracker    *tracking.Tracker
	Evaluator  *threat.Evaluator
	Gate       *alerting.Gate
	Dispatcher alerting.Dispatcher
	Encoder    Encoder
	Renderer   Renderer
	Store      AlertStore
	Catalog    *models.ClassCatalog
	Clock      Clock
	Logger     *zerolog.Logger
}

type Options struct {
	AlertTimeout time.Duration // Upper bound for one dispatch attempt
}

// Pipeline runs detect, track, evaluate, gate and dispatch for each frame.
// ProcessFrame and Run must be driven from a single goroutine; Stats,
// Tracks and Wait are safe to call from others.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger

	wg sync.WaitGroup

	mu           sync.RWMutex
	stats        Stats
	tracks       []tracking.Track
	seenUnknown  map[int]struct{}
	lastResult   models.FrameResult
	hasLastFrame bool
}

// Stats is a point-in-time view of the pipeline counters
type Stats struct {
	FramesProcessed  int64                 `json:"frames_processed"`
	Threats          int64                 `json:"threats"`
	AlertsAttempted  int64                 `json:"alerts_attempted"`
	AlertsSent       int64                 `json:"alerts_sent"`
	AlertsFailed     int64                 `json:"alerts_failed"`
	AlertsSuppressed int64                 `json:"alerts_suppressed"`
	InFlight         int64                 `json:"alerts_in_flight"`
	ActiveTracks     int                   `json:"active_tracks"`
	ConfirmedTracks  int                   `json:"confirmed_tracks"`
	LastFrameID      int64                 `json:"last_frame_id"`
	LastFrameAt      time.Time             `json:"last_frame_at"`
	LastDecision     models.ThreatDecision `json:"last_decision"`
	LastAlertAt      *time.Time            `json:"last_alert_at,omitempty"`
}

// New validates the dependencies and builds a pipeline
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Detector == nil:
		return nil, errors.New("pipeline: detector is required")
	case deps.Tracker == nil:
		return nil, errors.New("pipeline: tracker is required")
	case deps.Evaluator == nil:
		return nil, errors.New("pipeline: evaluator is required")
	case deps.Gate == nil:
		return nil, errors.New("pipeline: alert gate is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("pipeline: dispatcher is required")
	case deps.Encoder == nil:
		return nil, errors.New("pipeline: encoder is required")
	case deps.Catalog == nil:
		return nil, errors.New("pipeline: class catalog is required")
	}

	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if opts.AlertTimeout <= 0 {
		opts.AlertTimeout = defaultAlertTimeout
	}

	logger := log.With().Str("service", "pipeline").Logger()
	if deps.Logger != nil {
		logger = *deps.Logger
	}

	return &Pipeline{
		deps:        deps,
		opts:        opts,
		logger:      logger,
		seenUnknown: make(map[int]struct{}),
	}, nil
}

// ProcessFrame runs one frame through the pipeline. A detector failure is
// returned wrapped in ErrInputExhausted. Alert dispatch continues in the
// background after ProcessFrame returns.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame models.Frame) (models.FrameResult, error) {
	detections, err := p.deps.Detector.Infer(ctx, frame)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.FrameResult{}, ctxErr
		}
		return models.FrameResult{}, fmt.Errorf("%w: detect frame %d: %w", ErrInputExhausted, frame.ID, err)
	}

	results := p.deps.Tracker.Update(detections)
	classes := threat.ClassSet(results)
	decision := p.deps.Evaluator.Evaluate(classes)

	result := models.FrameResult{
		FrameID:    frame.ID,
		Timestamp:  frame.Timestamp,
		Detections: p.label(frame.ID, results),
		Decision:   decision,
	}

	var permit *alerting.Permit
	if decision.IsThreat {
		var ok bool
		permit, ok = p.deps.Gate.Reserve(p.deps.Clock())
		result.AlertAttempted = ok
		if !ok {
			p.logger.Debug().Int64("frame_id", frame.ID).Str("reason", decision.Reason).Msg("Alert suppressed by cooldown")
		}
	}

	annotated := frame
	if p.deps.Renderer != nil {
		rendered, err := p.deps.Renderer.Render(frame, result)
		if err != nil {
			p.logger.Warn().Err(err).Int64("frame_id", frame.ID).Msg("Failed to render frame")
		} else {
			annotated = rendered
		}
	}

	p.record(frame, result)

	if permit != nil {
		p.startDispatch(ctx, permit, annotated, result)
	}

	return result, nil
}

// label attaches catalog labels to confirmed results. Unknown ids are kept
// and reported once per class id at warn level.
func (p *Pipeline) label(frameID int64, results []tracking.Result) []models.TrackedDetection {
	out := make([]models.TrackedDetection, 0, len(results))
	for _, r := range results {
		td := models.TrackedDetection{Detection: r.Detection, TrackID: r.TrackID}

		label, err := p.deps.Catalog.Label(r.ClassID)
		if err != nil {
			td.Label = fmt.Sprintf("unknown(%d)", r.ClassID)
			p.reportUnknown(frameID, r, err)
		} else {
			td.Label = label
			td.Known = true
		}
		out = append(out, td)
	}
	return out
}

func (p *Pipeline) reportUnknown(frameID int64, r tracking.Result, err error) {
	p.mu.Lock()
	_, seen := p.seenUnknown[r.ClassID]
	p.seenUnknown[r.ClassID] = struct{}{}
	p.mu.Unlock()

	event := p.logger.Debug()
	if !seen {
		event = p.logger.Warn()
	}
	event.Err(err).
		Int64("frame_id", frameID).
		Int64("track_id", r.TrackID).
		Int("class_id", r.ClassID).
		Msg("Detector produced an unknown class")
}

func (p *Pipeline) record(frame models.Frame, result models.FrameResult) {
	tracks := p.deps.Tracker.Tracks()
	confirmed := 0
	for _, t := range tracks {
		if t.State == tracking.TrackConfirmed {
			confirmed++
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.FramesProcessed++
	p.stats.LastFrameID = frame.ID
	p.stats.LastFrameAt = frame.Timestamp
	p.stats.LastDecision = result.Decision
	p.stats.ActiveTracks = len(tracks)
	p.stats.ConfirmedTracks = confirmed
	if result.Decision.IsThreat {
		p.stats.Threats++
		if result.AlertAttempted {
			p.stats.AlertsAttempted++
			p.stats.InFlight++
		} else {
			p.stats.AlertsSuppressed++
		}
	}
	p.tracks = tracks
	p.lastResult = result
	p.hasLastFrame = true
}

// startDispatch encodes the alert image and delivers it in the background.
// The permit is held until the outcome is known.
func (p *Pipeline) startDispatch(ctx context.Context, permit *alerting.Permit, frame models.Frame, result models.FrameResult) {
	now := p.deps.Clock()
	alert := alerting.Alert{
		ID:        uuid.NewString(),
		Caption:   alerting.FormatCaption(result.Decision.Reason, now),
		Reason:    result.Decision.Reason,
		Timestamp: now,
		TrackIDs:  trackIDs(result.Detections),
		FrameID:   result.FrameID,
	}

	img, err := p.deps.Encoder.Encode(frame)
	if err != nil {
		permit.Release()
		p.finish(ctx, alert, fmt.Errorf("encode alert image: %w", err))
		return
	}
	alert.Image = img

	// Outlives the frame so shutdown does not cut an alert in half
	dispatchCtx := context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				permit.Release()
				p.finish(dispatchCtx, alert, fmt.Errorf("%w: panic: %v", alerting.ErrDispatchFailed, r))
			}
		}()

		sendCtx, cancel := context.WithTimeout(dispatchCtx, p.opts.AlertTimeout)
		defer cancel()

		if err := p.deps.Dispatcher.Send(sendCtx, alert); err != nil {
			permit.Release()
			p.finish(dispatchCtx, alert, err)
			return
		}

		permit.Commit(alert.Timestamp)
		p.finish(dispatchCtx, alert, nil)
	}()
}

// finish updates the counters and the alert history for one attempt
func (p *Pipeline) finish(ctx context.Context, alert alerting.Alert, sendErr error) {
	record := models.AlertRecord{
		ID:        alert.ID,
		Reason:    alert.Reason,
		Caption:   alert.Caption,
		Status:    models.AlertStatusSent,
		TrackIDs:  alert.TrackIDs,
		FrameID:   alert.FrameID,
		CreatedAt: alert.Timestamp,
	}

	p.mu.Lock()
	p.stats.InFlight--
	if sendErr != nil {
		p.stats.AlertsFailed++
	} else {
		p.stats.AlertsSent++
	}
	p.mu.Unlock()

	if sendErr != nil {
		record.Status = models.AlertStatusFailed
		record.Error = sendErr.Error()
		p.logger.Error().
			Err(sendErr).
			Str("alert_id", alert.ID).
			Int64("frame_id", alert.FrameID).
			Str("reason", alert.Reason).
			Msg("Alert dispatch failed, cooldown not updated")
	} else {
		p.logger.Info().
			Str("alert_id", alert.ID).
			Int64("frame_id", alert.FrameID).
			Str("reason", alert.Reason).
			Ints64("track_ids", alert.TrackIDs).
			Msg("Alert sent")
	}

	if p.deps.Store == nil {
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := p.deps.Store.Insert(storeCtx, record); err != nil {
		p.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("Failed to store alert record")
	}
}

// Run processes frames from source until it is exhausted or ctx is done.
// Exhaustion is a normal end and returns nil.
func (p *Pipeline) Run(ctx context.Context, source FrameSource) error {
	p.logger.Info().Msg("Pipeline started")

	for {
		if err := ctx.Err(); err != nil {
			p.logger.Info().Msg("Pipeline stopped due to context cancel")
			return err
		}

		frame, err := source.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrInputExhausted) {
				p.logger.Info().Err(err).Msg("Pipeline finished, input exhausted")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}

		if _, err := p.ProcessFrame(ctx, frame); err != nil {
			if errors.Is(err, ErrInputExhausted) {
				p.logger.Warn().Err(err).Int64("frame_id", frame.ID).Msg("Pipeline finished, detector unavailable")
				return nil
			}
			return err
		}
	}
}

// Wait blocks until every in-flight dispatch has finished
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Shutdown waits for in-flight dispatches until ctx is done; the rest are abandoned
func (p *Pipeline) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn().Msg("Abandoning in-flight alert dispatches")
		return ctx.Err()
	}
}

// Stats returns a copy of the current counters
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	stats := p.stats
	p.mu.RUnlock()

	if last, ok := p.deps.Gate.LastAlert(); ok {
		stats.LastAlertAt = &last
	}
	return stats
}

// Tracks returns the tracker state as of the last processed frame
func (p *Pipeline) Tracks() []tracking.Track {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]tracking.Track, len(p.tracks))
	copy(out, p.tracks)
	return out
}

// LastResult returns the result of the last processed frame
func (p *Pipeline) LastResult() (models.FrameResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastResult, p.hasLastFrame
}

func trackIDs(detections []models.TrackedDetection) []int64 {
	ids := make([]int64, 0, len(detections))
	for _, d := range detections {
		ids = append(ids, d.TrackID)
	}
	return ids
}
