package main

import (
	"context"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"dirwatch/internal/logging"
)

func TestForwardShutdownSignalsLogsRepeatOnce(t *testing.T) {
	buffer := logging.NewLogBuffer(16)
	logger := logging.NewLogger(buffer, logging.LevelInfo)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 4)
	stop := forwardShutdownSignals(logger, cancel, signals)
	defer stop()

	signals <- syscall.SIGINT
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected cancel on first signal")
	}

	signals <- syscall.SIGTERM
	signals <- syscall.SIGTERM
	deadline := time.Now().Add(2 * time.Second)
	for len(buffer.List()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	entries := buffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Message != "shutdown signal received" || entries[0].Context["signal"] != syscall.SIGINT.String() {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if !strings.Contains(entries[1].Message, "already in progress") {
		t.Fatalf("unexpected repeat entry %+v", entries[1])
	}
}

func TestForwardShutdownSignalsNilChannel(t *testing.T) {
	stop := forwardShutdownSignals(nil, nil, nil)
	stop()
	stop()
}
