package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/clicktrail/clicktrail/internal/config"
	"github.com/clicktrail/clicktrail/internal/tracker"
)

// Reloader watches the config file and applies capture changes through
// the tracker without restarting the daemon.
type Reloader struct {
	watcher *fsnotify.Watcher
	tracker *tracker.Tracker
	path    string
	logger  *zap.Logger
}

// NewReloader creates a file watcher for the config path. A missing
// file leaves the reloader inert rather than failing startup.
func NewReloader(tr *tracker.Tracker, path string, logger *zap.Logger) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("server: create file watcher: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := watcher.Add(path); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("server: watch %q: %w", path, err)
		}
	}
	return &Reloader{
		watcher: watcher,
		tracker: tr,
		path:    path,
		logger:  logger.Named("reload"),
	}, nil
}

// Run watches for file changes and reloads capture settings. Blocks
// until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Editors save in bursts; hold 500ms after the last write before
	// applying.
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case ev, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, r.reload)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (r *Reloader) reload() {
	cfg, err := config.Load(r.path)
	if err != nil {
		r.logger.Warn("hot-reload failed", zap.Error(err))
		return
	}
	if _, err := r.tracker.Configure(&cfg.Capture.Hz, &cfg.Capture.OutputRoot); err != nil {
		r.logger.Warn("hot-reload rejected", zap.Error(err))
		return
	}
	r.logger.Info("hot-reload applied",
		zap.Float64("hz", cfg.Capture.Hz),
		zap.String("output_root", cfg.Capture.OutputRoot))
}
