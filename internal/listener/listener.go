// Package listener turns global OS pointer presses into normalized
// click events for the correlator.
package listener

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clicktrail/clicktrail/internal/display"
	"github.com/clicktrail/clicktrail/internal/event"
	"github.com/clicktrail/clicktrail/internal/window"
)

// leftButton is the only button recorded; wheel and context clicks are
// not activity we track.
const leftButton uint16 = 1

const stopTimeout = time.Second

// Click is one raw pointer press from the OS hook.
type Click struct {
	X, Y   int
	Button uint16
	When   time.Time
}

// HookSource delivers pointer presses. The returned channel closes
// when the hook shuts down.
type HookSource interface {
	Start() (<-chan Click, error)
	Stop()
}

// ClickSink receives normalized clicks; the correlator implements it.
type ClickSink interface {
	RegisterOSClick(event.RawClickEvent)
}

// Listener consumes the hook on its own goroutine for the lifetime of
// the started state. Start and Stop are idempotent.
type Listener struct {
	src      HookSource
	resolver window.Resolver
	displays display.Registry
	sink     ClickSink
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// New builds a Listener.
func New(src HookSource, resolver window.Resolver, displays display.Registry, sink ClickSink, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		src:      src,
		resolver: resolver,
		displays: displays,
		sink:     sink,
		logger:   logger.Named("listener"),
	}
}

// Start subscribes to the OS hook. A hook that cannot be installed is
// logged and leaves the listener stopped; it never takes down the rest
// of the process.
func (l *Listener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}

	ch, err := l.src.Start()
	if err != nil {
		l.logger.Error("pointer hook unavailable, listener stays stopped", zap.Error(err))
		return
	}
	done := make(chan struct{})
	l.done = done
	l.running = true
	go l.consume(ch, done)
	l.logger.Info("pointer listener started")
}

// Stop detaches the hook and waits for the consume loop to drain.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	done := l.done
	l.running = false
	l.done = nil
	l.mu.Unlock()

	l.src.Stop()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		l.logger.Warn("pointer listener did not stop within timeout")
	}
	l.logger.Info("pointer listener stopped")
}

// Running reports whether the hook is attached and consuming.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Listener) consume(ch <-chan Click, done chan struct{}) {
	defer close(done)
	for c := range ch {
		if c.Button != leftButton {
			continue
		}
		l.handle(c)
	}
}

// handle resolves window and display metadata for one press. Failed
// resolution degrades to empty metadata; a click is never dropped.
func (l *Listener) handle(c Click) {
	info, err := l.resolver.Active()
	if err != nil {
		l.logger.Debug("window resolution failed", zap.Error(err))
		info = window.Info{}
	}
	d, _ := display.Locate(l.displays, c.X, c.Y)

	when := c.When
	if when.IsZero() {
		when = time.Now()
	}
	l.sink.RegisterOSClick(event.RawClickEvent{
		X:           c.X,
		Y:           c.Y,
		WallTime:    when,
		AppName:     info.AppName,
		ProcessID:   info.ProcessID,
		WindowTitle: info.WindowTitle,
		DisplayID:   d.ID,
	})
}
