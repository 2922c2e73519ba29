package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"dirwatch/internal/logging"

	"github.com/gorilla/websocket"
)

const logSnapshotLimit = 100

// LogsHandler streams the server's own log entries. The level, category and
// source query parameters narrow the stream; clients may replace the filter
// by sending {"level":"warning","category":"watcher"}.
type LogsHandler struct {
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

type logFilterMessage struct {
	Level    string `json:"level"`
	Category string `json:"category"`
	Source   string `json:"source"`
}

func (m logFilterMessage) filter() logging.Filter {
	filter := logging.Filter{
		Category: strings.TrimSpace(m.Category),
		Source:   strings.TrimSpace(m.Source),
	}
	if level, ok := logging.ParseLevel(m.Level); ok {
		filter.MinLevel = level
	}
	return filter
}

// streamFilter is the per-connection filter; the read loop replaces it while
// the write loop reads it.
type streamFilter struct {
	mu     sync.RWMutex
	filter logging.Filter
}

func (f *streamFilter) Set(filter logging.Filter) {
	f.mu.Lock()
	f.filter = filter
	f.mu.Unlock()
}

func (f *streamFilter) Get() logging.Filter {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter
}

func (f *streamFilter) Allows(entry logging.LogEntry) bool {
	return f.Get().Matches(entry)
}

func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.Logger == nil {
		writeWSError(w, r, nil, nil, wsError{Status: http.StatusServiceUnavailable, Message: "log stream unavailable"})
		return
	}

	query := r.URL.Query()
	filter := &streamFilter{}
	filter.Set(logFilterMessage{
		Level:    query.Get("level"),
		Category: query.Get("category"),
		Source:   query.Get("source"),
	}.filter())

	output, cancel := h.Logger.Subscribe(logging.Filter{})
	snapshot := h.Logger.Buffer().Matching(filter.Get(), logSnapshotLimit)
	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		cancel()
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}
	defer conn.Close()

	writer, err := startWSWriteLoop(wsStreamConfig[logging.LogEntry]{
		Conn:   conn,
		Output: output,
		PreWrite: func(conn *websocket.Conn) error {
			return writeLogSnapshot(conn, snapshot)
		},
		BuildPayload: func(entry logging.LogEntry) (any, bool) {
			return entry, filter.Allows(entry)
		},
	})
	if err != nil {
		cancel()
		writeWSError(w, r, conn, h.Logger, wsError{
			Status:       http.StatusInternalServerError,
			Message:      "log stream unavailable",
			Err:          err,
			SendEnvelope: true,
		})
		return
	}
	defer cancel()
	defer writer.Stop()

	readUntilClosed(conn, func(msg []byte) {
		var payload logFilterMessage
		if err := json.Unmarshal(msg, &payload); err != nil {
			return
		}
		filter.Set(payload.filter())
	})
}

func writeLogSnapshot(conn *websocket.Conn, entries []logging.LogEntry) error {
	for _, entry := range entries {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		if err := conn.WriteJSON(entry); err != nil {
			return err
		}
	}
	return nil
}
