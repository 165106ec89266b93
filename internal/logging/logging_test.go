package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	if filepath.Base(path) != "tutor.log" {
		t.Errorf("DefaultLogPath should end with tutor.log, got: %s", path)
	}
	if !strings.Contains(DefaultLogDir(), ".studytutor") {
		t.Errorf("DefaultLogDir should contain .studytutor, got: %s", DefaultLogDir())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 {
		t.Errorf("unexpected rotation defaults: %d MB, %d files", cfg.MaxSizeMB, cfg.MaxFiles)
	}
	if !cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be true")
	}
	if DebugConfig().Level != "debug" {
		t.Error("expected debug level in DebugConfig")
	}
}

func TestStdioSafeConfig_NeverWritesStderr(t *testing.T) {
	cfg := StdioSafeConfig("warn")
	if cfg.WriteToStderr {
		t.Error("stdio safe config must not write to stderr")
	}
	if cfg.Level != "warn" {
		t.Errorf("expected level 'warn', got: %s", cfg.Level)
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tutor.log")
	logger, cleanup, err := Setup(Config{
		Level:     "debug",
		FilePath:  path,
		MaxSizeMB: 1,
		MaxFiles:  2,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Debug("hello", slog.String("request_id", "abc"))
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) || !strings.Contains(string(data), `"request_id":"abc"`) {
		t.Errorf("unexpected log content: %s", data)
	}
}

func TestSetup_NoOutputs(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()
	logger.Info("dropped")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRotatingWriter_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tutor.log")

	w, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	// Force small max size so every write after the first rotates.
	w.maxSize = 10

	for i := 0; i < 4; i++ {
		if _, err := w.Write([]byte(fmt.Sprintf("line-%d-xxxx\n", i))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	current, _ := os.ReadFile(path)
	if !strings.Contains(string(current), "line-3") {
		t.Errorf("current file should hold the last line, got %q", current)
	}
	first, _ := os.ReadFile(path + ".1")
	if !strings.Contains(string(first), "line-2") {
		t.Errorf(".1 should hold the previous line, got %q", first)
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Errorf(".2 should exist: %v", err)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf(".3 should not exist beyond maxFiles, got err=%v", err)
	}
}

func TestRotatingWriter_CloseThenWrite(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "x.log"), 1, 1)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("expected error writing to closed writer")
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.log")
	w, err := NewRotatingWriter(path, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = w.Write([]byte(fmt.Sprintf("entry %d\n", i)))
		}(i)
	}
	wg.Wait()
	_ = w.Close()

	data, _ := os.ReadFile(path)
	if got := strings.Count(string(data), "entry"); got != 20 {
		t.Errorf("expected 20 entries, got %d", got)
	}
}

func TestNotifier_EmitsOncePerCondition(t *testing.T) {
	var buf bytes.Buffer
	n := NewNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	if !n.Warn("lexical_absent", "lexical ranker unavailable") {
		t.Error("first emission should be logged")
	}
	if n.Warn("lexical_absent", "lexical ranker unavailable") {
		t.Error("second emission of the same condition should be suppressed")
	}
	if !n.Info("expansion_breaker_open", "expansion disabled") {
		t.Error("a different condition should still be logged")
	}
	if !n.Seen("lexical_absent") || n.Seen("never") {
		t.Error("Seen reports the wrong state")
	}

	if got := strings.Count(buf.String(), "lexical ranker unavailable"); got != 1 {
		t.Errorf("expected exactly one lexical notice, got %d", got)
	}
	if !strings.Contains(buf.String(), "condition=lexical_absent") {
		t.Errorf("missing condition attribute: %s", buf.String())
	}
}

func TestNotifier_ConcurrentSingleEmission(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	handler := slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, nil)
	n := NewNotifier(slog.New(handler))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Warn("same", "once only")
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got := strings.Count(buf.String(), "once only"); got != 1 {
		t.Errorf("expected one emission, got %d", got)
	}
}

func TestNotifier_NilSafe(t *testing.T) {
	var n *Notifier
	if n.Warn("x", "y") {
		t.Error("nil notifier must not emit")
	}
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
