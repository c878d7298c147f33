// Package correlate matches OS pointer clicks with click events reported
// by the page-inspection agent. OS events wait in a bounded pending map
// until an external event claims them or their merge timeout expires;
// external events are resolved immediately and are never queued, so a
// process stop can at most delay OS-side flushes, never lose agent data.
package correlate

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clicktrail/clicktrail/internal/event"
)

// Capturer takes the on-demand screenshot for an external event and
// reports which display it captured.
type Capturer interface {
	CaptureOnce(x, y int) (path string, displayID int, err error)
}

// Sink receives every finished record, merged or standalone.
type Sink interface {
	Emit(event.ActivityRecord)
}

// Options bounds the matching engine. Zero values fall back to the
// defaults below.
type Options struct {
	MaxDistancePx float64
	MergeTimeout  time.Duration
	MaxPending    int
}

const (
	defaultMaxDistancePx = 50
	defaultMergeTimeout  = 2 * time.Second
	defaultMaxPending    = 128
)

func (o Options) withDefaults() Options {
	if o.MaxDistancePx <= 0 {
		o.MaxDistancePx = defaultMaxDistancePx
	}
	if o.MergeTimeout <= 0 {
		o.MergeTimeout = defaultMergeTimeout
	}
	if o.MaxPending <= 0 {
		o.MaxPending = defaultMaxPending
	}
	return o
}

// pendingEntry wraps one OS click waiting for a possible external
// match. Owned exclusively by the Correlator; the timer is cancelled
// the moment the entry leaves the map.
type pendingEntry struct {
	id    string
	raw   event.RawClickEvent
	seq   uint64
	timer *time.Timer
}

// Correlator is safe for concurrent use from the hook goroutine, the
// HTTP handlers and the expiry timers. A single mutex linearizes match
// against expiry: whichever acquires it first wins, the loser observes
// the entry already gone and takes its fallback path.
type Correlator struct {
	opts    Options
	capture Capturer
	sink    Sink
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingEntry
	seq     uint64
}

// New builds a Correlator. capture may be nil when no screenshot
// backend exists (headless); external records then carry no path.
func New(opts Options, capture Capturer, sink Sink, logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{
		opts:    opts.withDefaults(),
		capture: capture,
		sink:    sink,
		logger:  logger.Named("correlate"),
		pending: make(map[string]*pendingEntry),
	}
}

// PendingCount reports how many OS clicks are awaiting a match.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// RegisterOSClick parks the click in the pending map with an expiry
// timer. When the map is full the oldest entry is flushed immediately
// as a standalone record to keep memory bounded under agent outage.
func (c *Correlator) RegisterOSClick(raw event.RawClickEvent) {
	var evicted *pendingEntry

	c.mu.Lock()
	if len(c.pending) >= c.opts.MaxPending {
		evicted = c.removeOldestLocked()
	}
	c.seq++
	e := &pendingEntry{
		id:  uuid.NewString(),
		raw: raw,
		seq: c.seq,
	}
	id := e.id
	e.timer = time.AfterFunc(c.opts.MergeTimeout, func() { c.expire(id) })
	c.pending[id] = e
	c.mu.Unlock()

	if evicted != nil {
		c.logger.Warn("pending map full, flushing oldest click unmatched",
			zap.Int("max_pending", c.opts.MaxPending))
		c.sink.Emit(c.osRecord(evicted.raw))
	}
	c.logger.Debug("os click pending",
		zap.String("id", id), zap.Int("x", raw.X), zap.Int("y", raw.Y))
}

// RegisterExternalClick captures a screenshot, then either merges with
// the best in-tolerance pending OS click or emits a standalone external
// record. It reports the outcome for the ingress response.
func (c *Correlator) RegisterExternalClick(ext event.ExternalEvent) (merged bool, screenshotPath string) {
	if ext.WallTime.IsZero() {
		ext.WallTime = time.Now()
	}
	gx, gy := ext.GlobalPos()

	// Exactly one capture attempt per external event, match or not.
	displayID := 0
	if c.capture != nil {
		path, id, err := c.capture.CaptureOnce(gx, gy)
		if err != nil {
			c.logger.Warn("on-demand capture failed", zap.Error(err))
		} else {
			screenshotPath, displayID = path, id
		}
	}

	c.mu.Lock()
	best := c.bestMatchLocked(gx, gy, ext.WallTime)
	if best != nil {
		best.timer.Stop()
		delete(c.pending, best.id)
	}
	c.mu.Unlock()

	if best == nil {
		c.logger.Debug("no pending match", zap.Int("x", gx), zap.Int("y", gy))
		c.sink.Emit(c.extRecord(ext, screenshotPath, displayID))
		return false, screenshotPath
	}

	c.logger.Debug("merged with pending click",
		zap.String("id", best.id),
		zap.Float64("distance_px", event.Distance(gx, gy, best.raw.X, best.raw.Y)))
	c.sink.Emit(c.mergedRecord(best.raw, ext, screenshotPath))
	return true, screenshotPath
}

// Flush drains every pending entry as a standalone record, oldest
// first. Called on stop so queued clicks are persisted, not discarded.
func (c *Correlator) Flush() {
	c.mu.Lock()
	drained := make([]*pendingEntry, 0, len(c.pending))
	for _, e := range c.pending {
		e.timer.Stop()
		drained = append(drained, e)
	}
	c.pending = make(map[string]*pendingEntry)
	c.mu.Unlock()

	sort.Slice(drained, func(i, j int) bool { return drained[i].seq < drained[j].seq })
	for _, e := range drained {
		c.sink.Emit(c.osRecord(e.raw))
	}
	if len(drained) > 0 {
		c.logger.Info("flushed pending clicks", zap.Int("count", len(drained)))
	}
}

// expire runs on the timer goroutine. An entry already removed lost
// the race to a match or flush; nothing to do then.
func (c *Correlator) expire(id string) {
	c.mu.Lock()
	e, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.logger.Debug("pending click expired unmatched", zap.String("id", id))
	c.sink.Emit(c.osRecord(e.raw))
}

// bestMatchLocked scans all pending entries for the closest candidate
// within both tolerances. Ties break on time delta, then on insertion
// order so the choice is deterministic. Caller holds mu.
func (c *Correlator) bestMatchLocked(x, y int, at time.Time) *pendingEntry {
	var best *pendingEntry
	var bestDist float64
	var bestDelta time.Duration

	for _, e := range c.pending {
		dist := event.Distance(x, y, e.raw.X, e.raw.Y)
		if dist > c.opts.MaxDistancePx {
			continue
		}
		delta := at.Sub(e.raw.WallTime)
		if delta < 0 {
			delta = -delta
		}
		if delta > c.opts.MergeTimeout {
			continue
		}
		if best == nil ||
			dist < bestDist ||
			(dist == bestDist && delta < bestDelta) ||
			(dist == bestDist && delta == bestDelta && e.seq < best.seq) {
			best, bestDist, bestDelta = e, dist, delta
		}
	}
	return best
}

func (c *Correlator) removeOldestLocked() *pendingEntry {
	var oldest *pendingEntry
	for _, e := range c.pending {
		if oldest == nil || e.seq < oldest.seq {
			oldest = e
		}
	}
	if oldest != nil {
		oldest.timer.Stop()
		delete(c.pending, oldest.id)
	}
	return oldest
}

func (c *Correlator) osRecord(raw event.RawClickEvent) event.ActivityRecord {
	return event.ActivityRecord{
		TimestampUTC: event.UTCMillis(raw.WallTime),
		X:            raw.X,
		Y:            raw.Y,
		AppName:      raw.AppName,
		ProcessID:    raw.ProcessID,
		WindowTitle:  raw.WindowTitle,
		DisplayID:    raw.DisplayID,
		Source:       event.SourceOS,
	}
}

// extRecord builds the standalone record for an unmatched external
// event. The agent runs in a browser, so the app name is fixed.
func (c *Correlator) extRecord(ext event.ExternalEvent, shot string, displayID int) event.ActivityRecord {
	x, y := ext.GlobalPos()
	url := ext.PageURL()
	return event.ActivityRecord{
		TimestampUTC:   event.UTCMillis(ext.WallTime),
		X:              x,
		Y:              y,
		AppName:        "chrome",
		WindowTitle:    ext.Title,
		DisplayID:      displayID,
		Source:         event.SourceExternal,
		URLOrPath:      url,
		DocPath:        event.DocPathFromURL(url),
		Text:           ext.Text,
		ScreenshotPath: shot,
	}
}

// mergedRecord combines OS metadata with the agent's content fields.
// The OS side owns position, time and display; the agent side owns
// url, text and the fresh screenshot.
func (c *Correlator) mergedRecord(raw event.RawClickEvent, ext event.ExternalEvent, shot string) event.ActivityRecord {
	url := ext.PageURL()
	rec := event.ActivityRecord{
		TimestampUTC:   event.UTCMillis(raw.WallTime),
		X:              raw.X,
		Y:              raw.Y,
		AppName:        raw.AppName,
		ProcessID:      raw.ProcessID,
		WindowTitle:    raw.WindowTitle,
		DisplayID:      raw.DisplayID,
		Source:         event.SourceMerged,
		URLOrPath:      url,
		DocPath:        event.DocPathFromURL(url),
		Text:           ext.Text,
		ScreenshotPath: shot,
	}
	if rec.AppName == "" {
		rec.AppName = "chrome"
	}
	if rec.WindowTitle == "" {
		rec.WindowTitle = ext.Title
	}
	return rec
}
