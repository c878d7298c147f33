// Package display enumerates attached displays and maps global points
// to the display that contains them.
package display

import "github.com/kbinani/screenshot"

// Geometry describes one display in global virtual-screen coordinates.
type Geometry struct {
	ID     int `json:"id"`
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether the global point lies on this display.
func (g Geometry) Contains(x, y int) bool {
	return x >= g.X && x < g.X+g.Width && y >= g.Y && y < g.Y+g.Height
}

// ToLocal converts a global point to coordinates relative to this
// display's top-left corner.
func (g Geometry) ToLocal(x, y int) (int, int) {
	return x - g.X, y - g.Y
}

// Registry enumerates displays. Implementations must be safe for
// concurrent use.
type Registry interface {
	Displays() []Geometry
}

// Locate returns the display containing the global point. When nothing
// contains it the primary display is returned with ok=false; pointer
// events at virtual-screen edges land there, matching cursor behavior.
func Locate(r Registry, x, y int) (Geometry, bool) {
	ds := r.Displays()
	for _, d := range ds {
		if d.Contains(x, y) {
			return d, true
		}
	}
	if len(ds) > 0 {
		return ds[0], false
	}
	return Geometry{}, false
}

// System reads geometry from the OS on every call, so displays plugged
// in after startup are picked up without a restart.
type System struct{}

// Displays implements Registry.
func (System) Displays() []Geometry {
	n := screenshot.NumActiveDisplays()
	out := make([]Geometry, 0, n)
	for i := 0; i < n; i++ {
		b := screenshot.GetDisplayBounds(i)
		out = append(out, Geometry{ID: i, X: b.Min.X, Y: b.Min.Y, Width: b.Dx(), Height: b.Dy()})
	}
	return out
}

// Static is a fixed display list for tests and headless runs.
type Static []Geometry

// Displays implements Registry.
func (s Static) Displays() []Geometry { return []Geometry(s) }
