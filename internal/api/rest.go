package api

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"dirwatch/internal/directory"
	"dirwatch/internal/logging"
	"dirwatch/internal/version"
	"dirwatch/internal/watcher"
)

type RestHandler struct {
	Service *watcher.Service
	Logger  *logging.Logger
	Started time.Time
}

type statusResponse struct {
	Version       string                     `json:"version"`
	GitCommit     string                     `json:"git_commit,omitempty"`
	ServerTime    time.Time                  `json:"server_time"`
	Uptime        string                     `json:"uptime,omitempty"`
	Running       bool                       `json:"running"`
	Error         string                     `json:"error,omitempty"`
	Subscriptions []watcher.SubscriptionInfo `json:"subscriptions"`
	LogStreams    int                        `json:"log_streams"`
	LogDropped    uint64                     `json:"log_dropped"`
}

type childEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type childrenResponse struct {
	Path     string       `json:"path"`
	Children []childEntry `json:"children"`
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}

	versionInfo := version.GetVersionInfo()
	now := time.Now().UTC()
	response := statusResponse{
		Version:       versionInfo.Version,
		GitCommit:     versionInfo.GitCommit,
		ServerTime:    now,
		Running:       h.Service.Running(),
		Subscriptions: h.Service.Subscriptions(),
	}
	if response.Subscriptions == nil {
		response.Subscriptions = []watcher.SubscriptionInfo{}
	}
	if !h.Started.IsZero() {
		response.Uptime = now.Sub(h.Started).Round(time.Second).String()
	}
	if err := h.Service.Err(); err != nil {
		response.Error = err.Error()
	}
	response.LogStreams, response.LogDropped = h.Logger.StreamStats()
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *RestHandler) handleChildren(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	rawPath := strings.TrimSpace(r.URL.Query().Get("path"))
	if rawPath == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "path is required"}
	}

	dir, err := directory.Open(rawPath, directory.WithService(h.Service))
	if err != nil {
		return directoryError(rawPath, err)
	}
	children, err := dir.Children()
	if err != nil {
		return directoryError(dir.Path(), err)
	}

	response := childrenResponse{
		Path:     dir.Path(),
		Children: make([]childEntry, 0, len(children)),
	}
	for _, child := range children {
		response.Children = append(response.Children, childEntry{
			Name: filepath.Base(child),
			Path: child,
		})
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}
