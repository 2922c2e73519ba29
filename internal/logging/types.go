package logging

import (
	"fmt"
	"strings"
	"time"
)

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Format selects how entries are written to the text output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat accepts "text" or "json"; empty means text.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(FormatText):
		return FormatText, nil
	case string(FormatJSON):
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown log format %q", value)
	}
}

// Field keys every component sets so entries can be filtered by origin.
const (
	FieldCategory = "dirwatch.category"
	FieldSource   = "dirwatch.source"
)

// ComponentFields returns fields tagged with category and source. Keys in
// fields win over the tags.
func ComponentFields(category, source string, fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+2)
	merged[FieldCategory] = category
	if source != "" {
		merged[FieldSource] = source
	}
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}

// LogEntry is one structured record kept in the buffer and streamed to subscribers.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}
