package logging

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesToBuffer(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelInfo, io.Discard)

	logger.Info("cache rebuilt", map[string]string{"entries": "12"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != LevelInfo {
		t.Fatalf("expected info level, got %q", entry.Level)
	}
	if entry.Message != "cache rebuilt" {
		t.Fatalf("expected message cache rebuilt, got %q", entry.Message)
	}
	if entry.Context["entries"] != "12" {
		t.Fatalf("expected context entries=12, got %v", entry.Context)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelWarning, io.Discard)

	logger.Info("info", nil)
	logger.Warn("warn", nil)

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning {
		t.Fatalf("expected warning level, got %q", entries[0].Level)
	}
}

func TestLoggerSetLevelIsSharedWithDerivedLoggers(t *testing.T) {
	var out bytes.Buffer
	logger := NewLoggerWithOutput(nil, LevelWarning, &out)
	derived := logger.With(map[string]string{"component": "engine"})

	derived.Debug("hidden", nil)
	logger.SetLevel(LevelDebug)
	derived.Debug("shown", nil)

	text := out.String()
	if strings.Contains(text, "hidden") {
		t.Fatalf("expected debug entry to be filtered before SetLevel, got %q", text)
	}
	if !strings.Contains(text, `msg="shown" component="engine"`) {
		t.Fatalf("expected derived debug entry with context, got %q", text)
	}
}

func TestLoggerFileSinkReceivesEveryLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	logger := NewLoggerWithOutput(nil, LevelError, io.Discard)
	if err := logger.OpenFile(path); err != nil {
		t.Fatalf("open file: %v", err)
	}

	logger.Debug("noisy detail", map[string]string{"wd": "3"})
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(contents), `level=debug msg="noisy detail" wd="3"`) {
		t.Fatalf("expected debug entry in log file, got %q", contents)
	}
	if entries := logger.Buffer().List(); len(entries) != 0 {
		t.Fatalf("expected filtered entry to stay out of the buffer, got %d", len(entries))
	}
}

func TestLoggerStreamDeliversAllEntries(t *testing.T) {
	logger := NewLoggerWithOutput(NewLogBuffer(50), LevelInfo, io.Discard)
	output, cancel := logger.Subscribe()
	defer cancel()

	const total = 50
	for i := 0; i < total; i++ {
		logger.Info("message", nil)
	}

	received := 0
	deadline := time.After(2 * time.Second)
	for received < total {
		select {
		case <-output:
			received++
		case <-deadline:
			t.Fatalf("timed out after receiving %d entries", received)
		}
	}
}

func TestLevelForVerbosity(t *testing.T) {
	cases := []struct {
		verbosity int
		expected  Level
	}{
		{verbosity: 0, expected: LevelWarning},
		{verbosity: 1, expected: LevelInfo},
		{verbosity: 2, expected: LevelDebug},
		{verbosity: 3, expected: LevelDebug},
	}
	for _, testCase := range cases {
		if got := LevelForVerbosity(testCase.verbosity); got != testCase.expected {
			t.Fatalf("verbosity %d: expected %q, got %q", testCase.verbosity, testCase.expected, got)
		}
	}
}

func FuzzParseLevel(f *testing.F) {
	for _, seed := range []string{"info", "warn", "warning", "error", "debug", "", "???", "INFO"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		level, ok := ParseLevel(raw)
		if ok && normalizeLevel(level) != level {
			t.Fatalf("parsed level %q is not canonical", level)
		}
	})
}
