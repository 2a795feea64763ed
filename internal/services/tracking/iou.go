package tracking

import (
	"math"

	"guardiq-worker-go/internal/models"
)

// IoU returns the intersection-over-union of two boxes in [0, 1]. Degenerate
// or disjoint boxes yield 0.
func IoU(a, b models.BBox) float64 {
	areaA, areaB := a.Area(), b.Area()
	if areaA == 0 || areaB == 0 {
		return 0
	}

	ix := math.Min(a.X+a.W, b.X+b.W) - math.Max(a.X, b.X)
	iy := math.Min(a.Y+a.H, b.Y+b.H) - math.Max(a.Y, b.Y)
	if ix <= 0 || iy <= 0 {
		return 0
	}

	inter := ix * iy
	return inter / (areaA + areaB - inter)
}
