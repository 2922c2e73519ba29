package logging

import (
	"sync"

	"dirwatch/internal/buffer"
)

// LogBuffer retains the most recent log entries in memory.
type LogBuffer struct {
	mu      sync.Mutex
	entries *buffer.Ring[LogEntry]
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		entries: buffer.NewRing[LogEntry](size),
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries.Add(entry)
}

func (b *LogBuffer) List() []LogEntry {
	return b.Recent(0)
}

// Matching returns up to limit of the newest entries accepted by filter,
// oldest first.
func (b *LogBuffer) Matching(filter Filter, limit int) []LogEntry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries.LastMatching(limit, filter.Matches)
}

// Recent returns up to limit of the newest entries, oldest first.
func (b *LogBuffer) Recent(limit int) []LogEntry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries.Last(limit)
}
