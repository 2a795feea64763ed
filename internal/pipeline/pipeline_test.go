package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardiq-worker-go/internal/models"
	"guardiq-worker-go/internal/services/alerting"
	"guardiq-worker-go/internal/services/threat"
	"guardiq-worker-go/internal/services/tracking"
)

const (
	classGun    = 0
	classKnife  = 2
	classMask   = 3
	classNormal = 4
)

type fakeDetector struct {
	mu    sync.Mutex
	calls int
	infer func(frame models.Frame) ([]models.Detection, error)
}

func (d *fakeDetector) Infer(_ context.Context, frame models.Frame) ([]models.Detection, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return d.infer(frame)
}

func detectAlways(dets ...models.Detection) *fakeDetector {
	return &fakeDetector{infer: func(models.Frame) ([]models.Detection, error) {
		return dets, nil
	}}
}

type fakeEncoder struct {
	mu     sync.Mutex
	frames []models.Frame
}

func (e *fakeEncoder) Encode(frame models.Frame) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = append(e.frames, frame)
	return append([]byte("jpeg:"), frame.Data...), nil
}

type fakeStore struct {
	mu      sync.Mutex
	records []models.AlertRecord
}

func (s *fakeStore) Insert(_ context.Context, record models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *fakeStore) all() []models.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AlertRecord(nil), s.records...)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	alerts []alerting.Alert
	err    error
}

func (d *recordingDispatcher) Send(_ context.Context, alert alerting.Alert) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, alert)
	return d.err
}

func (d *recordingDispatcher) sent() []alerting.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]alerting.Alert(nil), d.alerts...)
}

type fixture struct {
	pipeline   *Pipeline
	clock      *manualClock
	gate       *alerting.Gate
	encoder    *fakeEncoder
	store      *fakeStore
	dispatcher alerting.Dispatcher
}

func newFixture(t *testing.T, detector Detector, dispatcher alerting.Dispatcher, minHits int) *fixture {
	t.Helper()

	catalog := models.DefaultClassCatalog()
	rules, err := threat.DefaultRules(catalog)
	require.NoError(t, err)

	cfg := tracking.DefaultTrackerConfig()
	cfg.MinHits = minHits

	f := &fixture{
		clock:      newManualClock(),
		gate:       alerting.NewGate(5 * time.Second),
		encoder:    &fakeEncoder{},
		store:      &fakeStore{},
		dispatcher: dispatcher,
	}

	f.pipeline, err = New(Deps{
		Detector:   detector,
		Tracker:    tracking.NewTracker(cfg),
		Evaluator:  threat.NewEvaluator(catalog, rules),
		Gate:       f.gate,
		Dispatcher: dispatcher,
		Encoder:    f.encoder,
		Store:      f.store,
		Catalog:    catalog,
		Clock:      f.clock.Now,
	}, Options{AlertTimeout: time.Second})
	require.NoError(t, err)
	return f
}

func (f *fixture) frame(id int64) models.Frame {
	return models.Frame{ID: id, Timestamp: f.clock.Now(), Width: 2, Height: 1, Data: []byte{1, 2, 3, 4, 5, 6}}
}

func det(classID int) models.Detection {
	return models.Detection{BBox: models.BBox{X: 10, Y: 10, W: 50, H: 100}, ClassID: classID, Confidence: 0.9}
}

func TestProcessFrame_ThreatDispatchesAlert(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, detectAlways(det(classKnife)), dispatcher, 1)

	result, err := f.pipeline.ProcessFrame(context.Background(), f.frame(1))
	require.NoError(t, err)
	f.pipeline.Wait()

	assert.True(t, result.Decision.IsThreat)
	assert.Equal(t, "person with knife", result.Decision.Reason)
	assert.True(t, result.AlertAttempted)
	require.Len(t, result.Detections, 1)
	assert.Equal(t, int64(1), result.Detections[0].TrackID)
	assert.Equal(t, models.LabelKnife, result.Detections[0].Label)
	assert.True(t, result.Detections[0].Known)

	sent := dispatcher.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "⚠️ ALERT ⚠️\nDetected person with knife!\nTime: 2024-03-01 10:00:00", sent[0].Caption)
	assert.Equal(t, []byte("jpeg:\x01\x02\x03\x04\x05\x06"), sent[0].Image)
	assert.Equal(t, []int64{1}, sent[0].TrackIDs)
	assert.NotEmpty(t, sent[0].ID)

	last, ok := f.gate.LastAlert()
	require.True(t, ok)
	assert.Equal(t, f.clock.Now(), last)

	records := f.store.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.AlertStatusSent, records[0].Status)
	assert.Equal(t, sent[0].ID, records[0].ID)

	stats := f.pipeline.Stats()
	assert.Equal(t, int64(1), stats.FramesProcessed)
	assert.Equal(t, int64(1), stats.Threats)
	assert.Equal(t, int64(1), stats.AlertsSent)
	assert.Equal(t, int64(0), stats.InFlight)
	require.NotNil(t, stats.LastAlertAt)
}

func TestProcessFrame_FailedDispatchKeepsGateOpen(t *testing.T) {
	dispatcher := &recordingDispatcher{err: errors.New("telegram down")}
	f := newFixture(t, detectAlways(det(classKnife)), dispatcher, 1)

	_, err := f.pipeline.ProcessFrame(context.Background(), f.frame(1))
	require.NoError(t, err)
	f.pipeline.Wait()

	_, ok := f.gate.LastAlert()
	assert.False(t, ok)

	f.clock.Advance(time.Second)
	result, err := f.pipeline.ProcessFrame(context.Background(), f.frame(2))
	require.NoError(t, err)
	f.pipeline.Wait()

	assert.True(t, result.AlertAttempted, "next qualifying frame retries")
	assert.Len(t, dispatcher.sent(), 2)

	records := f.store.all()
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, models.AlertStatusFailed, r.Status)
		assert.Contains(t, r.Error, "telegram down")
	}
	assert.Equal(t, int64(2), f.pipeline.Stats().AlertsFailed)
}

func TestProcessFrame_CooldownSuppresses(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, detectAlways(det(classKnife)), dispatcher, 1)
	ctx := context.Background()

	_, err := f.pipeline.ProcessFrame(ctx, f.frame(1))
	require.NoError(t, err)
	f.pipeline.Wait()

	f.clock.Advance(3 * time.Second)
	result, err := f.pipeline.ProcessFrame(ctx, f.frame(2))
	require.NoError(t, err)
	assert.True(t, result.Decision.IsThreat)
	assert.False(t, result.AlertAttempted)

	f.clock.Advance(3 * time.Second)
	result, err = f.pipeline.ProcessFrame(ctx, f.frame(3))
	require.NoError(t, err)
	f.pipeline.Wait()
	assert.True(t, result.AlertAttempted)

	assert.Len(t, dispatcher.sent(), 2)
	stats := f.pipeline.Stats()
	assert.Equal(t, int64(3), stats.Threats)
	assert.Equal(t, int64(1), stats.AlertsSuppressed)
	assert.Equal(t, int64(2), stats.AlertsSent)
}

func TestProcessFrame_InFlightDispatchHoldsGate(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var calls int
	var mu sync.Mutex
	dispatcher := alerting.DispatcherFunc(func(ctx context.Context, _ alerting.Alert) error {
		mu.Lock()
		calls++
		mu.Unlock()
		started <- struct{}{}
		<-release
		return nil
	})
	f := newFixture(t, detectAlways(det(classKnife)), dispatcher, 1)
	ctx := context.Background()

	first, err := f.pipeline.ProcessFrame(ctx, f.frame(1))
	require.NoError(t, err)
	assert.True(t, first.AlertAttempted)
	<-started

	// No success recorded yet, but the permit is still out
	f.clock.Advance(10 * time.Second)
	second, err := f.pipeline.ProcessFrame(ctx, f.frame(2))
	require.NoError(t, err)
	assert.False(t, second.AlertAttempted)
	assert.Equal(t, int64(1), f.pipeline.Stats().InFlight)

	close(release)
	f.pipeline.Wait()

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
	assert.Equal(t, int64(0), f.pipeline.Stats().InFlight)
}

func TestProcessFrame_CooldownStartsAtAttemptTime(t *testing.T) {
	var f *fixture
	dispatcher := alerting.DispatcherFunc(func(context.Context, alerting.Alert) error {
		f.clock.Advance(3 * time.Second)
		return nil
	})
	f = newFixture(t, detectAlways(det(classKnife)), dispatcher, 1)
	start := f.clock.Now()

	_, err := f.pipeline.ProcessFrame(context.Background(), f.frame(1))
	require.NoError(t, err)
	f.pipeline.Wait()

	last, ok := f.gate.LastAlert()
	require.True(t, ok)
	assert.Equal(t, start, last)
	assert.False(t, f.gate.TryAcquire(start.Add(4*time.Second)))
	assert.True(t, f.gate.TryAcquire(start.Add(5*time.Second)))
}

func TestProcessFrame_DispatchTimeoutReleasesPermit(t *testing.T) {
	dispatcher := alerting.DispatcherFunc(func(ctx context.Context, _ alerting.Alert) error {
		<-ctx.Done()
		return ctx.Err()
	})
	f := newFixture(t, detectAlways(det(classKnife)), dispatcher, 1)
	f.pipeline.opts.AlertTimeout = 20 * time.Millisecond

	_, err := f.pipeline.ProcessFrame(context.Background(), f.frame(1))
	require.NoError(t, err)
	f.pipeline.Wait()

	_, ok := f.gate.LastAlert()
	assert.False(t, ok)
	assert.True(t, f.gate.TryAcquire(f.clock.Now()))

	records := f.store.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.AlertStatusFailed, records[0].Status)
}

func TestProcessFrame_NoThreat(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, detectAlways(det(classNormal)), dispatcher, 1)

	result, err := f.pipeline.ProcessFrame(context.Background(), f.frame(1))
	require.NoError(t, err)
	f.pipeline.Wait()

	assert.False(t, result.Decision.IsThreat)
	assert.False(t, result.AlertAttempted)
	assert.Empty(t, dispatcher.sent())
	assert.Empty(t, f.store.all())
}

func TestProcessFrame_RulePriority(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	detector := detectAlways(
		models.Detection{BBox: models.BBox{X: 0, Y: 0, W: 40, H: 40}, ClassID: classGun, Confidence: 0.8},
		models.Detection{BBox: models.BBox{X: 200, Y: 0, W: 40, H: 40}, ClassID: classMask, Confidence: 0.8},
		models.Detection{BBox: models.BBox{X: 400, Y: 0, W: 40, H: 40}, ClassID: classKnife, Confidence: 0.8},
	)
	f := newFixture(t, detector, dispatcher, 1)

	result, err := f.pipeline.ProcessFrame(context.Background(), f.frame(1))
	require.NoError(t, err)
	f.pipeline.Wait()

	assert.Equal(t, "armed person with mask", result.Decision.Reason)
	require.Len(t, dispatcher.sent(), 1)
	assert.True(t, strings.Contains(dispatcher.sent()[0].Caption, "armed person with mask"))
}

func TestProcessFrame_UnknownClass(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, detectAlways(det(99)), dispatcher, 1)

	result, err := f.pipeline.ProcessFrame(context.Background(), f.frame(1))
	require.NoError(t, err)

	require.Len(t, result.Detections, 1)
	assert.False(t, result.Detections[0].Known)
	assert.Equal(t, "unknown(99)", result.Detections[0].Label)
	assert.False(t, result.Decision.IsThreat)
	assert.Len(t, f.pipeline.Tracks(), 1)
}

func TestProcessFrame_TentativeTracksAreNotEvaluated(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, detectAlways(det(classKnife)), dispatcher, 3)
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		result, err := f.pipeline.ProcessFrame(ctx, f.frame(i))
		require.NoError(t, err)
		assert.Empty(t, result.Detections)
		assert.False(t, result.Decision.IsThreat)
	}

	result, err := f.pipeline.ProcessFrame(ctx, f.frame(3))
	require.NoError(t, err)
	f.pipeline.Wait()
	assert.True(t, result.Decision.IsThreat)
	assert.Len(t, dispatcher.sent(), 1)
}

type stampRenderer struct {
	results []models.FrameResult
}

func (r *stampRenderer) Render(frame models.Frame, result models.FrameResult) (models.Frame, error) {
	r.results = append(r.results, result)
	frame.Data = []byte("annotated")
	return frame, nil
}

func TestProcessFrame_RendererFeedsAlertImage(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, detectAlways(det(classKnife)), dispatcher, 1)
	renderer := &stampRenderer{}
	f.pipeline.deps.Renderer = renderer

	_, err := f.pipeline.ProcessFrame(context.Background(), f.frame(1))
	require.NoError(t, err)
	f.pipeline.Wait()

	require.Len(t, renderer.results, 1)
	assert.True(t, renderer.results[0].AlertAttempted)
	require.Len(t, dispatcher.sent(), 1)
	assert.Equal(t, []byte("jpeg:annotated"), dispatcher.sent()[0].Image)
}

func TestProcessFrame_DetectorFailure(t *testing.T) {
	boom := errors.New("model server gone")
	detector := &fakeDetector{infer: func(models.Frame) ([]models.Detection, error) {
		return nil, boom
	}}
	f := newFixture(t, detector, &recordingDispatcher{}, 1)

	_, err := f.pipeline.ProcessFrame(context.Background(), f.frame(1))
	assert.ErrorIs(t, err, ErrInputExhausted)
	assert.ErrorIs(t, err, boom)
}

type sliceSource struct {
	frames []models.Frame
	err    error
}

func (s *sliceSource) Read(context.Context) (models.Frame, error) {
	if len(s.frames) == 0 {
		if s.err != nil {
			return models.Frame{}, s.err
		}
		return models.Frame{}, ErrInputExhausted
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func TestRun_InputExhaustedEndsGracefully(t *testing.T) {
	f := newFixture(t, detectAlways(det(classNormal)), &recordingDispatcher{}, 1)
	source := &sliceSource{frames: []models.Frame{f.frame(1), f.frame(2), f.frame(3)}}

	err := f.pipeline.Run(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.pipeline.Stats().FramesProcessed)
	assert.Equal(t, int64(3), f.pipeline.Stats().LastFrameID)
}

func TestRun_DetectorFailureEndsGracefully(t *testing.T) {
	detector := &fakeDetector{infer: func(frame models.Frame) ([]models.Detection, error) {
		if frame.ID == 2 {
			return nil, errors.New("inference failed")
		}
		return nil, nil
	}}
	f := newFixture(t, detector, &recordingDispatcher{}, 1)
	source := &sliceSource{frames: []models.Frame{f.frame(1), f.frame(2), f.frame(3)}}

	err := f.pipeline.Run(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.pipeline.Stats().FramesProcessed)
	assert.Equal(t, 2, detector.calls)
}

func TestRun_SourceError(t *testing.T) {
	f := newFixture(t, detectAlways(), &recordingDispatcher{}, 1)
	boom := errors.New("decoder broke")

	err := f.pipeline.Run(context.Background(), &sliceSource{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestRun_ContextCancelled(t *testing.T) {
	f := newFixture(t, detectAlways(), &recordingDispatcher{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.pipeline.Run(ctx, &sliceSource{frames: []models.Frame{f.frame(1)}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), f.pipeline.Stats().FramesProcessed)
}

func TestShutdown_AbandonsStuckDispatch(t *testing.T) {
	release := make(chan struct{})
	dispatcher := alerting.DispatcherFunc(func(ctx context.Context, _ alerting.Alert) error {
		<-release
		return nil
	})
	f := newFixture(t, detectAlways(det(classKnife)), dispatcher, 1)
	f.pipeline.opts.AlertTimeout = time.Minute

	_, err := f.pipeline.ProcessFrame(context.Background(), f.frame(1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.pipeline.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, f.pipeline.Shutdown(context.Background()))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}
