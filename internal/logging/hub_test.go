package logging

import (
	"testing"
	"time"
)

func receiveEntry(t *testing.T, ch <-chan LogEntry) LogEntry {
	t.Helper()
	select {
	case entry, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return entry
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timed out waiting for log entry")
	}
	return LogEntry{}
}

func TestLogHubBroadcast(t *testing.T) {
	hub := NewLogHub()
	ch, cancel := hub.Subscribe(1, Filter{})
	defer cancel()

	hub.Broadcast(LogEntry{Message: "hello", Level: LevelInfo})

	if got := receiveEntry(t, ch); got.Message != "hello" {
		t.Fatalf("expected message hello, got %q", got.Message)
	}
}

func TestLogHubFiltersByComponent(t *testing.T) {
	hub := NewLogHub()
	ch, cancel := hub.Subscribe(4, Filter{Category: "watcher", Source: "dispatch"})
	defer cancel()

	hub.Broadcast(LogEntry{Message: "api", Level: LevelInfo, Context: ComponentFields("api", "http", nil)})
	hub.Broadcast(LogEntry{Message: "facility", Level: LevelInfo, Context: ComponentFields("watcher", "facility", nil)})
	hub.Broadcast(LogEntry{Message: "dispatch", Level: LevelInfo, Context: ComponentFields("watcher", "dispatch", nil)})

	if got := receiveEntry(t, ch); got.Message != "dispatch" {
		t.Fatalf("expected dispatch entry, got %q", got.Message)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected entry %q", extra.Message)
	default:
	}
}

func TestFilterMatches(t *testing.T) {
	entry := LogEntry{Level: LevelWarning, Context: ComponentFields("watcher", "registry", nil)}
	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty", filter: Filter{}, want: true},
		{name: "level below", filter: Filter{MinLevel: LevelInfo}, want: true},
		{name: "level above", filter: Filter{MinLevel: LevelError}, want: false},
		{name: "category", filter: Filter{Category: "watcher"}, want: true},
		{name: "other category", filter: Filter{Category: "api"}, want: false},
		{name: "other source", filter: Filter{Category: "watcher", Source: "dispatch"}, want: false},
	}
	for _, tc := range cases {
		if got := tc.filter.Matches(entry); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestLogHubDropsForFullSubscriber(t *testing.T) {
	hub := NewLogHub()
	ch, cancel := hub.Subscribe(1, Filter{})
	defer cancel()

	hub.Broadcast(LogEntry{Message: "first"})
	hub.Broadcast(LogEntry{Message: "second"})

	got := <-ch
	if got.Message != "first" {
		t.Fatalf("expected first, got %q", got.Message)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected entry %q", extra.Message)
	default:
	}
	if hub.Dropped() != 1 {
		t.Fatalf("expected 1 dropped entry, got %d", hub.Dropped())
	}
}

func TestLogHubCancelAndClose(t *testing.T) {
	hub := NewLogHub()
	first, cancelFirst := hub.Subscribe(1, Filter{})
	second, _ := hub.Subscribe(1, Filter{})
	if hub.Subscribers() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", hub.Subscribers())
	}

	cancelFirst()
	cancelFirst()
	if _, ok := <-first; ok {
		t.Fatal("expected cancelled channel closed")
	}

	hub.Close()
	select {
	case _, ok := <-second:
		if ok {
			t.Fatalf("expected channel closed")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected closed channel")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers after close, got %d", hub.Subscribers())
	}

	late, _ := hub.Subscribe(1, Filter{})
	if _, ok := <-late; ok {
		t.Fatal("expected closed channel after hub close")
	}
}
