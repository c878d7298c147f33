package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ct.log")
	logger, err := New(path, "info")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hello")
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("log file missing entry: %s", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("", "shouting"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewQuietEmptyPathIsNop(t *testing.T) {
	logger, err := NewQuiet("", "info")
	if err != nil {
		t.Fatalf("NewQuiet: %v", err)
	}
	// Must be safe to use without any sink.
	logger.Info("discarded")
}
