package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperengineering/jukebox/internal/config"
)

// logCapture captures slog output for testing
type logCapture struct {
	mu      sync.Mutex
	entries []map[string]any
}

func (c *logCapture) handler() slog.Handler {
	return slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})
}

func (c *logCapture) Write(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err == nil {
		c.entries = append(c.entries, entry)
	}
	return len(p), nil
}

func (c *logCapture) hasEntry(msg, key, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e["msg"] != msg {
			continue
		}
		if v, ok := e[key].(string); ok && v == value {
			return true
		}
	}
	return false
}

func captureDefaultLogger(t *testing.T) *logCapture {
	t.Helper()
	capture := &logCapture{}
	old := slog.Default()
	slog.SetDefault(slog.New(capture.handler()))
	t.Cleanup(func() { slog.SetDefault(old) })
	return capture
}

func TestStartWorker_LogsStartAndStopWithName(t *testing.T) {
	capture := captureDefaultLogger(t)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	ran := atomic.Bool{}
	startWorker(ctx, &wg, "library-watcher", func(ctx context.Context) {
		ran.Store(true)
		<-ctx.Done()
	})

	cancel()
	wg.Wait()

	if !ran.Load() {
		t.Error("worker function was not called")
	}
	if !capture.hasEntry("worker started", "worker", "library-watcher") {
		t.Error("expected 'worker started' entry with worker name")
	}
	if !capture.hasEntry("worker stopped", "worker", "library-watcher") {
		t.Error("expected 'worker stopped' entry with worker name")
	}
}

func TestStartWorker_WaitGroupCoversCleanup(t *testing.T) {
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	cleanedUp := atomic.Bool{}
	startWorker(ctx, &wg, "snapshot", func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		cleanedUp.Store(true)
	})

	cancel()
	wg.Wait()

	if !cleanedUp.Load() {
		t.Error("wg.Wait() returned before worker finished cleanup")
	}
}

func TestStartWorker_ReturnsOnCancellation(t *testing.T) {
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	startWorker(ctx, &wg, "cancel-test", func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not respond to context cancellation")
	}
	wg.Wait()
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "info", Format: "json"}, &buf)

	logger.Info("service initialized", "replay_window", 15)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "service initialized" {
		t.Errorf("msg = %v, want 'service initialized'", entry["msg"])
	}
	if entry["replay_window"] != float64(15) {
		t.Errorf("replay_window = %v, want 15", entry["replay_window"])
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "info", Format: "text"}, &buf)

	logger.Info("router initialized")

	out := buf.String()
	if !strings.Contains(out, "msg=\"router initialized\"") {
		t.Errorf("text output = %q, want msg=\"router initialized\"", out)
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Debug("dropped too")
	if buf.Len() != 0 {
		t.Errorf("expected info/debug to be filtered at warn, got %q", buf.String())
	}

	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected warn entry, got %q", buf.String())
	}
}
