package client

import (
	"context"
	"image"
	"net"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/clicktrail/clicktrail/internal/config"
	"github.com/clicktrail/clicktrail/internal/display"
	"github.com/clicktrail/clicktrail/internal/event"
	"github.com/clicktrail/clicktrail/internal/listener"
	"github.com/clicktrail/clicktrail/internal/server"
	"github.com/clicktrail/clicktrail/internal/store"
	"github.com/clicktrail/clicktrail/internal/tracker"
	"github.com/clicktrail/clicktrail/internal/window"
)

type fakeHook struct {
	mu sync.Mutex
	ch chan listener.Click
}

func (h *fakeHook) Start() (<-chan listener.Click, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ch = make(chan listener.Click, 16)
	return h.ch, nil
}

func (h *fakeHook) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ch != nil {
		close(h.ch)
		h.ch = nil
	}
}

type fakeGrab struct{}

func (fakeGrab) Grab(d display.Geometry) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, d.Width, d.Height)), nil
}

// startTestServer runs a real control server on a loopback port and
// returns its address.
func startTestServer(t *testing.T, withStore bool) string {
	t.Helper()

	cfg := config.Default()
	cfg.Capture.Hz = 1.0
	cfg.Capture.OutputRoot = t.TempDir()

	var st *store.Store
	if withStore {
		var err error
		st, err = store.Open(filepath.Join(t.TempDir(), "index.db"))
		if err != nil {
			t.Fatalf("store.Open: %v", err)
		}
		t.Cleanup(func() { st.Close() })
	}

	tr, err := tracker.New(tracker.Options{
		Config:   cfg,
		Displays: display.Static{{ID: 0, Width: 200, Height: 100}},
		Grabber:  fakeGrab{},
		Cursor:   func() (int, int) { return 50, 50 },
		Hook:     &fakeHook{},
		Resolver: window.Fixed{},
		Store:    st,
	})
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	t.Cleanup(func() { tr.Close() })

	srv := server.New(server.Config{Addr: "127.0.0.1:0"}, tr, st, zap.NewNop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.StartOn(ctx, ln)

	return ln.Addr().String()
}

func TestStatusStartStop(t *testing.T) {
	c := New(startTestServer(t, false))

	if err := c.Health(); err != nil {
		t.Fatalf("Health: %v", err)
	}

	st, err := c.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.CaptureRunning || st.ListenerRunning {
		t.Fatalf("fresh daemon running: %+v", st)
	}
	if st.Hz != 1.0 {
		t.Errorf("hz = %v, want 1.0", st.Hz)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st, _ = c.Status()
	if !st.CaptureRunning || !st.ListenerRunning {
		t.Errorf("after Start: %+v", st)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st, _ = c.Status()
	if st.CaptureRunning || st.ListenerRunning {
		t.Errorf("after Stop: %+v", st)
	}
}

func TestConfigureAppliesAndRejects(t *testing.T) {
	c := New(startTestServer(t, false))

	hz := 2.0
	applied, err := c.Configure(&hz, nil)
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if applied.Hz != 2.0 {
		t.Errorf("applied hz = %v, want 2.0", applied.Hz)
	}

	bad := -1.0
	if _, err := c.Configure(&bad, nil); err == nil {
		t.Error("Configure accepted hz = -1")
	}

	st, _ := c.Status()
	if st.Hz != 2.0 {
		t.Errorf("hz = %v after rejected change, want 2.0", st.Hz)
	}
}

func TestSendExternalAndRecords(t *testing.T) {
	c := New(startTestServer(t, true))

	res, err := c.SendExternal(event.ExternalEvent{
		X: 10, Y: 10,
		URL:   "https://example.com/",
		Title: "Example",
	})
	if err != nil {
		t.Fatalf("SendExternal: %v", err)
	}
	if !res.OK {
		t.Error("ok = false")
	}
	if res.Merged {
		t.Error("merged = true with no pending OS click")
	}
	if res.ScreenshotPath == nil || *res.ScreenshotPath == "" {
		t.Error("expected a screenshot path")
	}

	recs, err := c.Records(10, "external", "")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].URLOrPath != "https://example.com/" {
		t.Errorf("record url = %q", recs[0].URLOrPath)
	}
}

func TestDaemonUnreachable(t *testing.T) {
	// Bind and immediately close to get a port nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if err := New(addr).Health(); err == nil {
		t.Fatal("Health succeeded against a dead address")
	}
}
