// Package tracker owns the recorder lifecycle. It wires the pointer
// listener and the capture loop into the correlator, applies runtime
// configuration, and fans finished records out to the journal and the
// activity index.
package tracker

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/clicktrail/clicktrail/internal/capture"
	"github.com/clicktrail/clicktrail/internal/config"
	"github.com/clicktrail/clicktrail/internal/correlate"
	"github.com/clicktrail/clicktrail/internal/display"
	"github.com/clicktrail/clicktrail/internal/event"
	"github.com/clicktrail/clicktrail/internal/journal"
	"github.com/clicktrail/clicktrail/internal/listener"
	"github.com/clicktrail/clicktrail/internal/store"
	"github.com/clicktrail/clicktrail/internal/window"
)

// Status is the operational snapshot served to control clients. It
// always reflects true running state, including a listener that failed
// to start.
type Status struct {
	CaptureRunning  bool    `json:"capture_running"`
	ListenerRunning bool    `json:"listener_running"`
	Hz              float64 `json:"hz"`
	OutputRoot      string  `json:"output_root"`
}

// Options assembles a Tracker. Config is required. Platform adapters
// left nil default to the real OS implementations; tests inject fakes.
type Options struct {
	Config   *config.Config
	Displays display.Registry
	Grabber  capture.Grabber
	Cursor   capture.CursorFunc
	Hook     listener.HookSource
	Resolver window.Resolver
	Store    *store.Store // optional activity index
	Logger   *zap.Logger
}

type Tracker struct {
	logger *zap.Logger
	store  *store.Store

	capturer *capture.Capturer
	listen   *listener.Listener
	correl   *correlate.Correlator

	mu      sync.Mutex
	capture config.CaptureSettings
	journal *journal.Journal
}

// New wires the recorder together. The journal is opened immediately so
// a bad output root fails here rather than on the first click.
func New(opts Options) (*Tracker, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("tracker: nil config")
	}
	if opts.Displays == nil {
		opts.Displays = display.System{}
	}
	if opts.Grabber == nil {
		opts.Grabber = capture.Screen{}
	}
	if opts.Cursor == nil {
		opts.Cursor = capture.SystemCursor
	}
	if opts.Hook == nil {
		opts.Hook = listener.GlobalHook{}
	}
	if opts.Resolver == nil {
		opts.Resolver = window.System{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	j, err := journal.Open(opts.Config.Capture.OutputRoot)
	if err != nil {
		return nil, err
	}

	t := &Tracker{
		logger:  logger.Named("tracker"),
		store:   opts.Store,
		capture: opts.Config.Capture,
		journal: j,
	}
	t.capturer = capture.New(opts.Displays, opts.Grabber, opts.Cursor, t.captureSettings, logger)
	t.correl = correlate.New(correlate.Options{
		MaxDistancePx: opts.Config.Correlate.MaxDistancePx,
		MergeTimeout:  opts.Config.Correlate.MergeTimeout(),
		MaxPending:    opts.Config.Correlate.MaxPending,
	}, t.capturer, t, logger)
	t.listen = listener.New(opts.Hook, opts.Resolver, opts.Displays, t.correl, logger)
	return t, nil
}

// captureSettings feeds the loop its per-tick view of the mutable
// capture config.
func (t *Tracker) captureSettings() capture.Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return capture.Settings{Hz: t.capture.Hz, OutputRoot: t.capture.OutputRoot}
}

// Start launches the capture loop and the pointer listener. Idempotent.
// A listener that cannot hook the OS stays stopped and is visible in
// Status; the capture loop runs regardless.
func (t *Tracker) Start() {
	t.capturer.Start()
	t.listen.Start()
}

// Stop halts both loops, then flushes still-pending clicks as
// standalone records so nothing observed is discarded. Idempotent.
func (t *Tracker) Stop() {
	t.listen.Stop()
	t.capturer.Stop()
	t.correl.Flush()
}

// Close stops the recorder and releases the journal. The store belongs
// to the caller.
func (t *Tracker) Close() error {
	t.Stop()
	t.mu.Lock()
	j := t.journal
	t.mu.Unlock()
	return j.Close()
}

// Status reports the live state of both loops and the current capture
// configuration.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	cs := t.capture
	t.mu.Unlock()
	return Status{
		CaptureRunning:  t.capturer.Running(),
		ListenerRunning: t.listen.Running(),
		Hz:              cs.Hz,
		OutputRoot:      cs.OutputRoot,
	}
}

// HandleExternal routes an agent-reported click through the correlator.
// The ingress surface is always on, started or not.
func (t *Tracker) HandleExternal(ev event.ExternalEvent) (merged bool, screenshotPath string) {
	return t.correl.RegisterExternalClick(ev)
}

// PendingClicks reports OS clicks still awaiting a match.
func (t *Tracker) PendingClicks() int {
	return t.correl.PendingCount()
}

// Configure applies runtime capture changes. Nil fields keep their
// current values. Invalid values are rejected synchronously with the
// prior configuration retained in full. When hz changes while the loop
// runs, the loop is restarted onto the new interval with no tick at
// the old one; an output-root change re-targets the journal before the
// next append.
func (t *Tracker) Configure(hz *float64, outputRoot *string) (config.CaptureSettings, error) {
	t.mu.Lock()
	cur := t.capture
	next := cur
	if hz != nil {
		next.Hz = *hz
	}
	if outputRoot != nil {
		next.OutputRoot = *outputRoot
	}
	if next.Hz <= 0 {
		t.mu.Unlock()
		return cur, fmt.Errorf("tracker: capture hz must be > 0, got %v", next.Hz)
	}
	if next.OutputRoot == "" {
		t.mu.Unlock()
		return cur, fmt.Errorf("tracker: output root cannot be empty")
	}

	var retired *journal.Journal
	if next.OutputRoot != cur.OutputRoot {
		j, err := journal.Open(next.OutputRoot)
		if err != nil {
			t.mu.Unlock()
			return cur, fmt.Errorf("tracker: retarget journal: %w", err)
		}
		retired, t.journal = t.journal, j
	}
	t.capture = next
	t.mu.Unlock()

	if retired != nil {
		retired.Close()
	}
	if next.Hz != cur.Hz && t.capturer.Running() {
		t.capturer.Restart()
	}
	t.logger.Info("capture configured",
		zap.Float64("hz", next.Hz),
		zap.String("output_root", next.OutputRoot))
	return next, nil
}

// Emit fans a finished record out to the journal and, best-effort, the
// activity index. Persistence trouble is logged, never propagated: the
// correlator must not stall on disk failures.
func (t *Tracker) Emit(rec event.ActivityRecord) {
	t.mu.Lock()
	j := t.journal
	t.mu.Unlock()

	if err := j.Append(rec); err != nil {
		t.logger.Error("journal append failed", zap.Error(err))
	}
	if t.store != nil {
		if err := t.store.Insert(rec); err != nil {
			t.logger.Warn("index insert failed", zap.Error(err))
		}
	}
}
