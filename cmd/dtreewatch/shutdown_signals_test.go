package main

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"dtreewatch/internal/logging"
)

func TestWatchShutdownSignalsCancelsOnce(t *testing.T) {
	buffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelInfo, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 3)
	stop := watchShutdownSignals(logger, cancel, signalCh)
	defer stop()

	signalCh <- syscall.SIGTERM
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected context to be cancelled")
	}
	signalCh <- syscall.SIGINT
	signalCh <- syscall.SIGINT

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(buffer.List()) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	entries := buffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Context["signal"] != syscall.SIGTERM.String() {
		t.Fatalf("expected first entry for SIGTERM, got %v", entries[0].Context)
	}
	if entries[1].Level != logging.LevelWarning {
		t.Fatalf("expected repeat warning, got %s", entries[1].Level)
	}
}

func TestWatchShutdownSignalsNilChannel(t *testing.T) {
	stop := watchShutdownSignals(nil, nil, nil)
	stop()
}
