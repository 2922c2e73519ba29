package logging

import (
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 100

// Filter selects entries for a subscriber. Zero fields match everything.
type Filter struct {
	MinLevel Level
	Category string
	Source   string
}

func (f Filter) Matches(entry LogEntry) bool {
	if !LevelAtLeast(entry.Level, f.MinLevel) {
		return false
	}
	if f.Category != "" && entry.Context[FieldCategory] != f.Category {
		return false
	}
	if f.Source != "" && entry.Context[FieldSource] != f.Source {
		return false
	}
	return true
}

type hubSubscriber struct {
	ch     chan LogEntry
	filter Filter
}

// LogHub fans log entries out to live subscribers. A subscriber whose channel
// is full misses the entry and the hub counts it as dropped.
type LogHub struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]hubSubscriber
	closed  bool
	dropped atomic.Uint64
}

func NewLogHub() *LogHub {
	return &LogHub{
		subs: make(map[uint64]hubSubscriber),
	}
}

func closedEntryChannel() <-chan LogEntry {
	ch := make(chan LogEntry)
	close(ch)
	return ch
}

// Subscribe returns a channel of entries matching filter and a cancel func
// that closes it. Cancel is safe to call more than once.
func (h *LogHub) Subscribe(buffer int, filter Filter) (<-chan LogEntry, func()) {
	if h == nil {
		return closedEntryChannel(), func() {}
	}
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return closedEntryChannel(), func() {}
	}
	h.nextID++
	id := h.nextID
	ch := make(chan LogEntry, buffer)
	h.subs[id] = hubSubscriber{ch: ch, filter: filter}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing.ch)
		}
	}
}

func (h *LogHub) Broadcast(entry LogEntry) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if !sub.filter.Matches(entry) {
			continue
		}
		select {
		case sub.ch <- entry:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *LogHub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many entries were skipped for full subscribers.
func (h *LogHub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

func (h *LogHub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
