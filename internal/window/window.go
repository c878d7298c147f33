// Package window resolves metadata about the currently focused window.
package window

import (
	"github.com/go-vgo/robotgo"
)

// Info describes the focused window at the moment of a click.
type Info struct {
	AppName     string
	WindowTitle string
	ProcessID   int
}

// Resolver reports the focused window. Implementations must never
// block for long; the hook goroutine calls this on every click.
type Resolver interface {
	Active() (Info, error)
}

// System resolves the active window through the OS accessibility APIs.
// Process name and pid are not resolvable on every platform; fields
// that cannot be resolved stay empty, a click with partial metadata
// still beats a dropped click.
type System struct{}

// Active implements Resolver.
func (System) Active() (Info, error) {
	return Info{WindowTitle: robotgo.GetTitle()}, nil
}

// Fixed returns the same Info on every call, for tests and headless runs.
type Fixed struct {
	Info Info
	Err  error
}

// Active implements Resolver.
func (f Fixed) Active() (Info, error) { return f.Info, f.Err }
