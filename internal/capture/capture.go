// Package capture grabs display pixels, overlays the cursor marker and
// persists PNG frames. One implementation serves two modes: the
// periodic loop driven by the configured rate, and on-demand captures
// taken synchronously for external events.
package capture

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clicktrail/clicktrail/internal/display"
	"github.com/clicktrail/clicktrail/internal/event"
)

// Settings is the mutable slice of configuration the loop re-reads at
// every tick boundary, so runtime changes land without a restart.
type Settings struct {
	Hz         float64
	OutputRoot string
}

// interval converts Hz into the tick period: hz floors at 0.1, the
// tick interval never drops under 50ms.
func (s Settings) interval() time.Duration {
	hz := s.Hz
	if hz < 0.1 {
		hz = 0.1
	}
	iv := time.Duration(float64(time.Second) / hz)
	if iv < 50*time.Millisecond {
		iv = 50 * time.Millisecond
	}
	return iv
}

// SettingsFunc returns the current settings. Must be safe for
// concurrent use.
type SettingsFunc func() Settings

// Grabber produces the raw pixels of one display.
type Grabber interface {
	Grab(d display.Geometry) (*image.RGBA, error)
}

// CursorFunc reports the global cursor position.
type CursorFunc func() (int, int)

const (
	grabRetryDelay = 20 * time.Millisecond
	saveRetryDelay = 50 * time.Millisecond
	stopTimeout    = 2 * time.Second
)

// Capturer owns the periodic screenshot loop and serves on-demand
// captures. Start/Stop are idempotent; Stop terminates the loop within
// one tick.
type Capturer struct {
	displays display.Registry
	grab     Grabber
	cursor   CursorFunc
	settings SettingsFunc
	logger   *zap.Logger

	// failure warnings are throttled so a wedged display cannot
	// flood the log at tick rate
	warnLimit *rate.Limiter
	nowFn     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a Capturer around a display registry and pixel source.
func New(displays display.Registry, grab Grabber, cursor CursorFunc, settings SettingsFunc, logger *zap.Logger) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{
		displays:  displays,
		grab:      grab,
		cursor:    cursor,
		settings:  settings,
		logger:    logger.Named("capture"),
		warnLimit: rate.NewLimiter(rate.Every(10*time.Second), 3),
		nowFn:     time.Now,
	}
}

// Start launches the periodic loop. The first frame is captured
// immediately, then the loop follows the configured rate. Starting a
// running capturer is a no-op.
func (c *Capturer) Start() {
	c.start(true)
}

// Restart stops a running loop and arms a fresh one whose first tick
// fires after the newly configured interval, with no immediate frame
// and no trailing tick at the old interval.
func (c *Capturer) Restart() {
	c.Stop()
	c.start(false)
}

func (c *Capturer) start(immediate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.running = true
	go c.run(ctx, done, immediate)
	c.logger.Info("capture loop started", zap.Float64("hz", c.settings().Hz))
}

// Stop halts the loop and waits for the in-flight tick to finish.
// Stopping a stopped capturer is a no-op.
func (c *Capturer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.running = false
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		c.logger.Warn("capture loop did not stop within timeout")
	}
	c.logger.Info("capture loop stopped")
}

// Running reports whether the periodic loop is active.
func (c *Capturer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Capturer) run(ctx context.Context, done chan struct{}, immediate bool) {
	defer close(done)

	if immediate {
		c.tick(c.settings())
	}
	for {
		// settings are read fresh at each tick boundary
		s := c.settings()
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval()):
		}
		if ctx.Err() != nil {
			return
		}
		c.tick(c.settings())
	}
}

// tick captures the display under the cursor. Failures are logged and
// skipped; the loop never dies.
func (c *Capturer) tick(s Settings) {
	cx, cy := c.cursor()
	d, _ := display.Locate(c.displays, cx, cy)

	img, err := c.grabWithRetry(d)
	if err != nil {
		c.warnThrottled("periodic grab failed", err)
		return
	}
	lx, ly := d.ToLocal(cx, cy)
	drawCursorMarker(img, lx, ly)

	now := c.nowFn()
	path := filepath.Join(s.OutputRoot, event.Day(now), "screenshots", event.UTCMillis(now)+".png")
	if err := c.saveWithRetry(img, path); err != nil {
		c.warnThrottled("periodic save failed", err)
		return
	}
	c.logger.Debug("saved periodic frame", zap.String("path", path))
}

// CaptureOnce takes a single frame of the display containing the given
// global point, marks that point, and saves it at the day root (distinct
// from the periodic screenshots directory). It returns the saved path
// and the captured display's id.
func (c *Capturer) CaptureOnce(x, y int) (string, int, error) {
	d, _ := display.Locate(c.displays, x, y)

	img, err := c.grabWithRetry(d)
	if err != nil {
		return "", 0, err
	}
	lx, ly := d.ToLocal(x, y)
	drawCursorMarker(img, lx, ly)

	now := c.nowFn()
	path := filepath.Join(c.settings().OutputRoot, event.Day(now), event.UTCMillis(now)+".png")
	if err := c.saveWithRetry(img, path); err != nil {
		return "", 0, err
	}
	c.logger.Debug("saved on-demand frame", zap.String("path", path))
	return path, d.ID, nil
}

func (c *Capturer) grabWithRetry(d display.Geometry) (*image.RGBA, error) {
	img, err := c.grab.Grab(d)
	if err != nil {
		time.Sleep(grabRetryDelay)
		img, err = c.grab.Grab(d)
	}
	if err != nil {
		return nil, fmt.Errorf("capture: grab display %d: %w", d.ID, err)
	}
	return img, nil
}

func (c *Capturer) saveWithRetry(img *image.RGBA, path string) error {
	err := savePNG(img, path)
	if err != nil {
		time.Sleep(saveRetryDelay)
		err = savePNG(img, path)
	}
	if err != nil {
		return fmt.Errorf("capture: save %s: %w", path, err)
	}
	return nil
}

func savePNG(img *image.RGBA, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodePNG(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func (c *Capturer) warnThrottled(msg string, err error) {
	if c.warnLimit.Allow() {
		c.logger.Warn(msg, zap.Error(err))
	}
}
