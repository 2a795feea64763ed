package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"guardiq-worker-go/internal/models"
)

func TestIoU(t *testing.T) {
	base := models.BBox{X: 0, Y: 0, W: 10, H: 10}

	tests := []struct {
		name string
		b    models.BBox
		want float64
	}{
		{"identical", base, 1},
		{"disjoint", models.BBox{X: 20, Y: 20, W: 10, H: 10}, 0},
		{"touching edge", models.BBox{X: 10, Y: 0, W: 10, H: 10}, 0},
		{"half shifted", models.BBox{X: 5, Y: 0, W: 10, H: 10}, 50.0 / 150.0},
		{"contained", models.BBox{X: 0, Y: 0, W: 5, H: 10}, 0.5},
		{"degenerate", models.BBox{X: 0, Y: 0, W: 0, H: 10}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IoU(base, tt.b), 1e-9)
			assert.InDelta(t, tt.want, IoU(tt.b, base), 1e-9)
		})
	}
}
