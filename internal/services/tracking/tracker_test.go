package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardiq-worker-go/internal/models"
)

func det(x, y float64, classID int) models.Detection {
	return models.Detection{
		BBox:       models.BBox{X: x, Y: y, W: 100, H: 100},
		ClassID:    classID,
		Confidence: 0.9,
	}
}

func trackIDs(results []Result) []int64 {
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.TrackID)
	}
	return ids
}

func TestTracker_IdentityStableForSmoothMotion(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig())

	var seen []int64
	for frame := 0; frame < 50; frame++ {
		out := tr.Update([]models.Detection{det(float64(frame*3), float64(frame*2), 4)})
		if frame < 2 {
			assert.Empty(t, out, "track must stay tentative until MinHits matches (frame %d)", frame)
			continue
		}
		require.Len(t, out, 1, "frame %d", frame)
		seen = append(seen, out[0].TrackID)
	}

	require.NotEmpty(t, seen)
	for _, id := range seen {
		assert.Equal(t, seen[0], id)
	}
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_EvictionNeverResurrectsIdentity(t *testing.T) {
	tr := NewTracker(TrackerConfig{MinIoU: 0.3, MaxAge: 2, MinHits: 1})

	out := tr.Update([]models.Detection{det(50, 50, 0)})
	require.Len(t, out, 1)
	first := out[0].TrackID

	for i := 0; i < 2; i++ {
		assert.Empty(t, tr.Update(nil))
		assert.Equal(t, 1, tr.Len(), "track must survive %d misses", i+1)
	}

	// Third consecutive miss exceeds MaxAge.
	assert.Empty(t, tr.Update(nil))
	assert.Equal(t, 0, tr.Len())

	out = tr.Update([]models.Detection{det(50, 50, 0)})
	require.Len(t, out, 1)
	assert.NotEqual(t, first, out[0].TrackID)
	assert.Greater(t, out[0].TrackID, first)
}

func TestTracker_BriefOcclusionKeepsIdentity(t *testing.T) {
	tr := NewTracker(TrackerConfig{MinIoU: 0.3, MaxAge: 5, MinHits: 1})

	out := tr.Update([]models.Detection{det(0, 0, 2)})
	require.Len(t, out, 1)
	id := out[0].TrackID

	for i := 0; i < 3; i++ {
		tr.Update(nil)
	}

	out = tr.Update([]models.Detection{det(5, 5, 2)})
	require.Len(t, out, 1)
	assert.Equal(t, id, out[0].TrackID)
}

func TestTracker_TentativeTracksAreNotReported(t *testing.T) {
	tr := NewTracker(TrackerConfig{MinIoU: 0.3, MaxAge: 30, MinHits: 3})

	assert.Empty(t, tr.Update([]models.Detection{det(0, 0, 0)}))
	assert.Empty(t, tr.Update([]models.Detection{det(0, 0, 0)}))
	// A miss restarts the consecutive match count.
	assert.Empty(t, tr.Update(nil))
	assert.Empty(t, tr.Update([]models.Detection{det(0, 0, 0)}))
	assert.Empty(t, tr.Update([]models.Detection{det(0, 0, 0)}))

	out := tr.Update([]models.Detection{det(0, 0, 0)})
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].TrackID)

	tracks := tr.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, TrackConfirmed, tracks[0].State)
	assert.Equal(t, 0, tracks[0].TimeSinceUpdate)
	assert.Equal(t, 6, tracks[0].Age)
}

func TestTracker_TieBreakPrefersOlderTrack(t *testing.T) {
	tr := NewTracker(TrackerConfig{MinIoU: 0.3, MaxAge: 30, MinHits: 1})

	left := models.Detection{BBox: models.BBox{X: 0, Y: 0, W: 10, H: 10}, ClassID: 4}
	right := models.Detection{BBox: models.BBox{X: 10, Y: 0, W: 10, H: 10}, ClassID: 4}
	between := models.Detection{BBox: models.BBox{X: 5, Y: 0, W: 10, H: 10}, ClassID: 4}

	tr.Update([]models.Detection{left})
	out := tr.Update([]models.Detection{right, left})
	require.ElementsMatch(t, []int64{1, 2}, trackIDs(out))

	// between overlaps both tracks equally; track 1 has lived longer.
	out = tr.Update([]models.Detection{between})
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].TrackID)
}

func TestTracker_OutputFollowsConfirmationOrder(t *testing.T) {
	tr := NewTracker(TrackerConfig{MinIoU: 0.3, MaxAge: 30, MinHits: 1})

	a := det(0, 0, 0)
	b := det(500, 500, 3)

	tr.Update([]models.Detection{a})
	out := tr.Update([]models.Detection{b, a})

	require.Len(t, out, 2)
	assert.Equal(t, []int64{1, 2}, trackIDs(out))
	assert.Equal(t, 0, out[0].ClassID)
	assert.Equal(t, 3, out[1].ClassID)
}

func TestTracker_OneDetectionPerTrack(t *testing.T) {
	tr := NewTracker(TrackerConfig{MinIoU: 0.3, MaxAge: 30, MinHits: 1})

	tr.Update([]models.Detection{det(0, 0, 0)})
	out := tr.Update([]models.Detection{det(10, 0, 0), det(2, 0, 0)})

	require.Len(t, out, 2)
	// The closer box keeps identity 1, the other starts track 2.
	assert.Equal(t, int64(1), out[0].TrackID)
	assert.Equal(t, 2.0, out[0].BBox.X)
	assert.Equal(t, int64(2), out[1].TrackID)
}

func TestTracker_BelowThresholdIsNotForced(t *testing.T) {
	tr := NewTracker(TrackerConfig{MinIoU: 0.5, MaxAge: 30, MinHits: 1})

	tr.Update([]models.Detection{det(0, 0, 0)})
	// IoU is 50*100 / (20000-5000) = 1/3, below the threshold.
	out := tr.Update([]models.Detection{det(50, 0, 0)})

	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].TrackID)
	assert.Equal(t, 2, tr.Len())
}

func TestTracker_UnknownClassIsTrackedGeometrically(t *testing.T) {
	tr := NewTracker(TrackerConfig{MinIoU: 0.3, MaxAge: 30, MinHits: 1})

	out := tr.Update([]models.Detection{det(0, 0, 99)})
	require.Len(t, out, 1)
	assert.Equal(t, 99, out[0].ClassID)

	out = tr.Update([]models.Detection{det(1, 1, 99)})
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].TrackID)
}

func TestTracker_EmptyFramesAgeOutTracks(t *testing.T) {
	tr := NewTracker(TrackerConfig{MinIoU: 0.3, MaxAge: 3, MinHits: 1})

	assert.Empty(t, tr.Update(nil))
	assert.Empty(t, tr.Update([]models.Detection{}))

	tr.Update([]models.Detection{det(0, 0, 0), det(300, 300, 1)})
	require.Equal(t, 2, tr.Len())

	for i := 0; i < 10; i++ {
		out := tr.Update(nil)
		assert.NotNil(t, out)
		assert.Empty(t, out)
		for _, track := range tr.Tracks() {
			assert.LessOrEqual(t, track.TimeSinceUpdate, 3)
		}
	}
	assert.Equal(t, 0, tr.Len())
}

func TestNewTracker_ClampsConfig(t *testing.T) {
	tr := NewTracker(TrackerConfig{MinIoU: 0.3, MaxAge: -1, MinHits: 0})
	cfg := tr.Config()
	assert.Equal(t, 1, cfg.MinHits)
	assert.Equal(t, 0, cfg.MaxAge)
}
