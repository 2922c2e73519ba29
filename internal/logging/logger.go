package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const DefaultBufferSize = 1000

// Logger writes leveled entries with string fields to a buffer, a live hub and
// an optional text output.
type Logger struct {
	buffer      *LogBuffer
	output      *log.Logger
	format      Format
	minLevel    Level
	baseContext map[string]string
	hub         *LogHub
}

// Options configures NewLoggerWithOptions. Zero values mean a fresh buffer,
// info level, no output and text format.
type Options struct {
	Buffer   *LogBuffer
	MinLevel Level
	Output   io.Writer
	Format   Format
}

func NewLogger(buffer *LogBuffer, minLevel Level) *Logger {
	return NewLoggerWithOutput(buffer, minLevel, os.Stderr)
}

func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	return NewLoggerWithOptions(Options{Buffer: buffer, MinLevel: minLevel, Output: output})
}

func NewLoggerWithOptions(options Options) *Logger {
	buffer := options.Buffer
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	output := options.Output
	if output == nil {
		output = io.Discard
	}
	format := options.Format
	flags := log.LstdFlags
	if format == FormatJSON {
		// JSON lines carry their own timestamp.
		flags = 0
	} else {
		format = FormatText
	}
	return &Logger{
		buffer:   buffer,
		output:   log.New(output, "", flags),
		format:   format,
		minLevel: normalizeLevel(options.MinLevel),
		hub:      NewLogHub(),
	}
}

// Discard returns a logger that keeps a small buffer and writes nowhere.
func Discard() *Logger {
	return NewLoggerWithOutput(NewLogBuffer(64), LevelInfo, io.Discard)
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.buffer
}

// Subscribe streams new entries matching filter until cancel is called.
func (l *Logger) Subscribe(filter Filter) (<-chan LogEntry, func()) {
	if l == nil || l.hub == nil {
		return closedEntryChannel(), func() {}
	}
	return l.hub.Subscribe(0, filter)
}

// StreamStats reports live subscribers and entries dropped for slow ones.
func (l *Logger) StreamStats() (int, uint64) {
	if l == nil || l.hub == nil {
		return 0, 0
	}
	return l.hub.Subscribers(), l.hub.Dropped()
}

// With returns a logger that adds fields to every entry. The copy shares the
// buffer, hub and output of its parent.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return l
	}
	return &Logger{
		buffer:      l.buffer,
		output:      l.output,
		format:      l.format,
		minLevel:    l.minLevel,
		baseContext: cloneFields(l.baseContext, fields),
		hub:         l.hub,
	}
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return levelRank(level) >= levelRank(l.minLevel)
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if l == nil || !l.Enabled(level) {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   cloneFields(l.baseContext, fields),
	}
	if l.buffer != nil {
		l.buffer.Add(entry)
	}
	if l.hub != nil {
		l.hub.Broadcast(entry)
	}
	if l.output != nil {
		if l.format == FormatJSON {
			l.output.Print(formatJSONEntry(entry))
		} else {
			l.output.Print(formatEntry(entry))
		}
	}
}

func normalizeLevel(level Level) Level {
	switch level {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return level
	default:
		return LevelInfo
	}
}

func levelRank(level Level) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarning:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warning", "warn":
		return LevelWarning, true
	case "error":
		return LevelError, true
	default:
		return "", false
	}
}

func LevelAtLeast(level, minLevel Level) bool {
	if minLevel == "" {
		return true
	}
	return levelRank(level) >= levelRank(minLevel)
}

func cloneFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	combined := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		combined[key] = value
	}
	for key, value := range extra {
		combined[key] = value
	}
	return combined
}

func formatEntry(entry LogEntry) string {
	builder := strings.Builder{}
	builder.WriteString("level=")
	builder.WriteString(string(entry.Level))
	builder.WriteString(" msg=")
	builder.WriteString(strconv.Quote(entry.Message))
	if len(entry.Context) == 0 {
		return builder.String()
	}
	keys := make([]string, 0, len(entry.Context))
	for key := range entry.Context {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&builder, " %s=%s", key, strconv.Quote(entry.Context[key]))
	}
	return builder.String()
}

func formatJSONEntry(entry LogEntry) string {
	payload, err := json.Marshal(entry)
	if err != nil {
		return formatEntry(entry)
	}
	return string(payload)
}
