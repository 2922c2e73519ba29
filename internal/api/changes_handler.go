package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"dirwatch/internal/directory"
	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
	"dirwatch/internal/watcher"

	"github.com/gorilla/websocket"
)

const changesStreamBuffer = 64

// ChangesHandler streams change batches for one directory over a WebSocket.
// Each connection is one listener on the directory's subscription.
type ChangesHandler struct {
	Service        *watcher.Service
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	AuthToken      string
	AllowedOrigins []string
}

type changesMessage struct {
	Type    string           `json:"type"`
	Path    string           `json:"path"`
	Changes []watcher.Change `json:"changes,omitempty"`
}

func (h *ChangesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	rawPath := strings.TrimSpace(r.URL.Query().Get("path"))
	if rawPath == "" {
		writeWSError(w, r, nil, h.Logger, wsError{Status: http.StatusBadRequest, Message: "path is required"})
		return
	}
	dir, err := directory.Open(rawPath, directory.WithService(h.Service))
	if err != nil {
		apiErr := directoryError(rawPath, err)
		writeWSError(w, r, nil, h.Logger, wsError{Status: apiErr.Status, Message: apiErr.Message, Err: err})
		return
	}

	output := make(chan watcher.Batch, changesStreamBuffer)
	listener := watcher.NewListener(func(batch watcher.Batch) error {
		select {
		case output <- batch:
		default:
			h.Metrics.IncStreamDropped()
			h.logDebug("change stream batch dropped", dir.Path(), r)
		}
		return nil
	})
	if err := dir.AddListener(listener); err != nil {
		apiErr := directoryError(dir.Path(), err)
		writeWSError(w, r, nil, h.Logger, wsError{Status: apiErr.Status, Message: apiErr.Message, Err: err})
		return
	}
	defer dir.RemoveListener(listener)

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}
	defer conn.Close()

	h.Metrics.AddStreamClients(1)
	defer h.Metrics.AddStreamClients(-1)

	writer, err := startWSWriteLoop(wsStreamConfig[watcher.Batch]{
		Conn:   conn,
		Output: output,
		PreWrite: func(conn *websocket.Conn) error {
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return err
			}
			return conn.WriteJSON(changesMessage{Type: "subscribed", Path: dir.Path()})
		},
		BuildPayload: func(batch watcher.Batch) (any, bool) {
			if len(batch.Changes) == 0 {
				return nil, false
			}
			return changesMessage{Type: "changes", Path: batch.Path, Changes: batch.Changes}, true
		},
	})
	if err != nil {
		writeWSError(w, r, conn, h.Logger, wsError{
			Status:       http.StatusInternalServerError,
			Message:      "change stream unavailable",
			Err:          err,
			SendEnvelope: true,
		})
		return
	}
	defer writer.Stop()

	h.logDebug("change stream opened", dir.Path(), r)
	readUntilClosed(conn, nil)
	h.logDebug("change stream closed", dir.Path(), r)
}

func (h *ChangesHandler) logDebug(message, path string, r *http.Request) {
	if h.Logger == nil {
		return
	}
	h.Logger.Debug(message, logging.ComponentFields("api", "websocket", map[string]string{
		"path":        path,
		"remote_addr": r.RemoteAddr,
		"buffer":      strconv.Itoa(changesStreamBuffer),
	}))
}
