// Package config loads and validates clicktrail configuration.
// Values come from ~/.clicktrail/config.yaml; a missing file means
// defaults, and YAML only overrides the fields it names.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CaptureSettings controls the periodic screenshot loop.
type CaptureSettings struct {
	Hz         float64 `yaml:"hz"`
	OutputRoot string  `yaml:"output_root"`
}

// CorrelateSettings bounds the click-matching engine.
type CorrelateSettings struct {
	MaxDistancePx  float64 `yaml:"max_distance_px"`
	MergeTimeoutMS int     `yaml:"merge_timeout_ms"`
	MaxPending     int     `yaml:"max_pending"`
}

// MergeTimeout returns the pending-entry expiry as a Duration.
func (c CorrelateSettings) MergeTimeout() time.Duration {
	return time.Duration(c.MergeTimeoutMS) * time.Millisecond
}

// ServerSettings controls the local HTTP control surface.
type ServerSettings struct {
	Addr string `yaml:"addr"`
}

// StoreSettings controls the SQLite activity index.
// An empty path resolves to <output_root>/index.db.
type StoreSettings struct {
	Path string `yaml:"path"`
}

// LogSettings controls the zap logger.
type LogSettings struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Config holds all clicktrail settings.
type Config struct {
	Capture   CaptureSettings   `yaml:"capture"`
	Correlate CorrelateSettings `yaml:"correlate"`
	Server    ServerSettings    `yaml:"server"`
	Store     StoreSettings     `yaml:"store"`
	Log       LogSettings       `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Capture: CaptureSettings{
			Hz:         1.0,
			OutputRoot: filepath.Join(baseDir(), "data"),
		},
		Correlate: CorrelateSettings{
			MaxDistancePx:  50,
			MergeTimeoutMS: 2000,
			MaxPending:     128,
		},
		Server: ServerSettings{
			Addr: "127.0.0.1:8000",
		},
		Log: LogSettings{
			File:  filepath.Join(baseDir(), "clicktrail.log"),
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.clicktrail/config.yaml.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clicktrail"
	}
	return filepath.Join(home, ".clicktrail")
}

// Load reads configuration from a YAML file. Empty path falls back to
// DefaultPath. Missing file returns defaults. Invalid YAML or invalid
// values return an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all settings carry usable values.
func (c *Config) Validate() error {
	if c.Capture.Hz <= 0 {
		return fmt.Errorf("config: capture hz must be > 0, got %v", c.Capture.Hz)
	}
	if c.Capture.OutputRoot == "" {
		return fmt.Errorf("config: capture output_root is required")
	}
	if c.Correlate.MaxDistancePx < 0 {
		return fmt.Errorf("config: correlate max_distance_px must be >= 0, got %v", c.Correlate.MaxDistancePx)
	}
	if c.Correlate.MergeTimeoutMS <= 0 {
		return fmt.Errorf("config: correlate merge_timeout_ms must be > 0, got %d", c.Correlate.MergeTimeoutMS)
	}
	if c.Correlate.MaxPending <= 0 {
		return fmt.Errorf("config: correlate max_pending must be > 0, got %d", c.Correlate.MaxPending)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server addr is required")
	}
	return nil
}

// StorePath resolves the SQLite index location against the output root.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.Capture.OutputRoot, "index.db")
}
