package capture

import (
	"image"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"

	"github.com/clicktrail/clicktrail/internal/display"
)

// Screen grabs real display pixels through the OS capture APIs.
type Screen struct{}

// Grab implements Grabber.
func (Screen) Grab(d display.Geometry) (*image.RGBA, error) {
	return screenshot.CaptureRect(image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height))
}

// SystemCursor reports the global cursor position.
func SystemCursor() (int, int) {
	return robotgo.GetMousePos()
}
