package annotator

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"guardiq-worker-go/internal/models"
)

var (
	threatColor  = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	guardColor   = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	personColor  = color.RGBA{R: 0, G: 128, B: 255, A: 255}
	unknownColor = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	white        = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func boxColor(d models.TrackedDetection) color.RGBA {
	if !d.Known {
		return unknownColor
	}
	switch d.Label {
	case models.LabelGun, models.LabelKnife, models.LabelMask, models.LabelHandsUp:
		return threatColor
	case models.LabelSecurityGuard:
		return guardColor
	default:
		return personColor
	}
}

// drawDetection draws the box and its "#<track>-<label>" tag above it
func drawDetection(mat *gocv.Mat, d models.TrackedDetection) {
	c := boxColor(d)
	x1, y1 := int(d.BBox.X), int(d.BBox.Y)
	x2, y2 := int(d.BBox.X+d.BBox.W), int(d.BBox.Y+d.BBox.H)
	gocv.Rectangle(mat, image.Rect(x1, y1, x2, y2), c, 2)

	text := d.DisplayLabel()
	fontScale := 0.5
	textSize := gocv.GetTextSize(text, gocv.FontHersheySimplex, fontScale, 1)

	ty := y1 - 4
	if ty-textSize.Y < 0 {
		ty = y1 + textSize.Y + 4
	}
	gocv.Rectangle(mat, image.Rect(x1, ty-textSize.Y-4, x1+textSize.X+4, ty+4), c, -1)
	gocv.PutText(mat, text, image.Pt(x1+2, ty), gocv.FontHersheySimplex, fontScale, white, 1)
}

// drawBanner draws a red border and the threat reason at the top of the frame
func drawBanner(mat *gocv.Mat, decision models.ThreatDecision, attempted bool) {
	gocv.Rectangle(mat, image.Rect(0, 0, mat.Cols(), mat.Rows()), threatColor, 5)

	text := "ALERT: " + decision.Reason
	if attempted {
		text += " (notifying)"
	}
	drawText(mat, text, 15, 35, threatColor, 0.7, 2)
}

// drawTimestamp writes "Time: ..." in the bottom left corner
func drawTimestamp(mat *gocv.Mat, text string) {
	gocv.PutText(mat, "Time: "+text, image.Pt(10, mat.Rows()-10), gocv.FontHersheySimplex, 1, white, 2)
}

// drawText draws text on a dark background
func drawText(mat *gocv.Mat, text string, x, y int, textColor color.RGBA, fontScale float64, thickness int) {
	fontFace := gocv.FontHersheySimplex
	textSize := gocv.GetTextSize(text, fontFace, fontScale, thickness)

	padding := 8
	bgRect := image.Rect(x-padding, y-textSize.Y-padding, x+textSize.X+padding, y+padding)
	gocv.Rectangle(mat, bgRect, color.RGBA{R: 0, G: 0, B: 0, A: 200}, -1)
	gocv.Rectangle(mat, bgRect, color.RGBA{R: 40, G: 40, B: 40, A: 255}, 1)

	gocv.PutText(mat, text, image.Pt(x, y), fontFace, fontScale, textColor, thickness)
}
