package capture

import (
	"image"
	"image/color"
	"image/png"
	"io"
)

// Cursor marker: a red ring so the click point survives JPEG-free
// archival without hiding what was under the cursor.
const (
	markerRadius = 8
	markerStroke = 3
)

var markerColor = color.RGBA{R: 255, A: 255}

// drawCursorMarker paints the ring centered on display-local (cx, cy),
// clamped to the image bounds.
func drawCursorMarker(img *image.RGBA, cx, cy int) {
	b := img.Bounds()
	outer := markerRadius
	inner := markerRadius - markerStroke + 1
	for dy := -outer; dy <= outer; dy++ {
		for dx := -outer; dx <= outer; dx++ {
			d2 := dx*dx + dy*dy
			if d2 > outer*outer || d2 < inner*inner {
				continue
			}
			if p := (image.Point{X: cx + dx, Y: cy + dy}); p.In(b) {
				img.SetRGBA(p.X, p.Y, markerColor)
			}
		}
	}
}

func encodePNG(w io.Writer, img *image.RGBA) error {
	return png.Encode(w, img)
}
