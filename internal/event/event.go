// Package event defines the shapes shared by every clicktrail component:
// raw OS clicks, agent-reported external clicks, and the persisted
// activity record they merge into.
package event

import (
	"math"
	"strings"
	"time"
)

// Source tags the origin of an activity record.
type Source string

const (
	SourceOS       Source = "os"
	SourceExternal Source = "external"
	SourceMerged   Source = "merged"
)

// RawClickEvent is a pointer press observed by the OS hook, already
// resolved against window metadata and display geometry. Read-only
// after creation.
type RawClickEvent struct {
	X           int
	Y           int
	WallTime    time.Time
	AppName     string
	ProcessID   int
	WindowTitle string
	DisplayID   int
}

// ExternalEvent is a click reported by the page-inspection agent over
// HTTP or the native-messaging host. X/Y are viewport-relative; the
// agent may additionally supply its own global estimate.
type ExternalEvent struct {
	X                int     `json:"x"`
	Y                int     `json:"y"`
	GlobalX          *int    `json:"global_x,omitempty"`
	GlobalY          *int    `json:"global_y,omitempty"`
	URL              string  `json:"url,omitempty"`
	BrowserURL       string  `json:"browser_url,omitempty"`
	Title            string  `json:"title,omitempty"`
	Text             string  `json:"text,omitempty"`
	DevicePixelRatio float64 `json:"device_pixel_ratio,omitempty"`

	// WallTime is stamped at ingress, not carried on the wire.
	WallTime time.Time `json:"-"`
}

// GlobalPos returns the best-available global screen position: the
// agent's own global coordinates when present, otherwise viewport
// coordinates scaled by device pixel ratio (1.0 when unreported).
func (e ExternalEvent) GlobalPos() (int, int) {
	if e.GlobalX != nil && e.GlobalY != nil {
		return *e.GlobalX, *e.GlobalY
	}
	dpr := e.DevicePixelRatio
	if dpr <= 0 {
		dpr = 1.0
	}
	return int(math.Round(float64(e.X) * dpr)), int(math.Round(float64(e.Y) * dpr))
}

// PageURL prefers the agent's browser_url field over url. Older agent
// builds report only one of the two.
func (e ExternalEvent) PageURL() string {
	if e.BrowserURL != "" {
		return e.BrowserURL
	}
	return e.URL
}

// ActivityRecord is the persisted unit. Timestamps are preformatted
// strings so the exact same value appears in NDJSON, CSV and screenshot
// filenames, and so json.Marshal field order stays deterministic.
type ActivityRecord struct {
	TimestampUTC   string `json:"timestamp_utc"`
	X              int    `json:"x"`
	Y              int    `json:"y"`
	AppName        string `json:"app_name,omitempty"`
	ProcessID      int    `json:"process_id,omitempty"`
	WindowTitle    string `json:"window_title,omitempty"`
	DisplayID      int    `json:"display_id"`
	Source         Source `json:"source"`
	URLOrPath      string `json:"url_or_path,omitempty"`
	DocPath        string `json:"doc_path,omitempty"`
	Text           string `json:"text,omitempty"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
}

// Distance returns the Euclidean distance in pixels between the record
// coordinates of two points.
func Distance(x1, y1, x2, y2 int) float64 {
	dx := float64(x1 - x2)
	dy := float64(y1 - y2)
	return math.Sqrt(dx*dx + dy*dy)
}

// UTCMillis renders t as a filename-safe UTC stamp with millisecond
// precision, e.g. 2026-08-25T14-03-22.123Z. Colons are avoided so the
// same stamp can name screenshot files on every platform.
func UTCMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15-04-05.000Z")
}

// Day renders t as the UTC day-folder name, e.g. 2026-08-25.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DocPathFromURL derives a local filesystem path from a file:// URL so
// clicks inside local PDF/document viewers carry the document location.
// Returns "" for non-file URLs.
func DocPathFromURL(raw string) string {
	const scheme = "file://"
	if !strings.HasPrefix(raw, scheme) {
		return ""
	}
	p := strings.TrimPrefix(raw, scheme)
	// file:///C:/x → C:/x on Windows-style URLs
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return p
}
