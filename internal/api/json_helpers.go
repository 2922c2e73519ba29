package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"dirwatch/internal/directory"
	"dirwatch/internal/watcher"
)

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Path    string `json:"path,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, err *apiError) {
	if err == nil {
		return
	}
	code := err.Code
	if code == "" {
		code = errorCodeForStatus(err.Status)
	}
	writeJSON(w, err.Status, errorResponse{
		Message: err.Message,
		Error:   err.Message,
		Code:    code,
		Path:    err.Path,
	})
}

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
	}
	return ""
}

// directoryError maps facade and engine errors onto HTTP responses.
func directoryError(path string, err error) *apiError {
	switch {
	case errors.Is(err, directory.ErrNotADirectory):
		return &apiError{Status: http.StatusBadRequest, Message: "not a directory", Code: "not_a_directory", Path: path}
	case errors.Is(err, fs.ErrNotExist):
		return &apiError{Status: http.StatusNotFound, Message: "directory not found", Path: path}
	case errors.Is(err, fs.ErrPermission):
		return &apiError{Status: http.StatusForbidden, Message: "permission denied", Path: path}
	case errors.Is(err, watcher.ErrMaxWatchesExceeded):
		return &apiError{Status: http.StatusServiceUnavailable, Message: "watch limit reached", Code: "watch_limit", Path: path}
	case errors.Is(err, watcher.ErrServiceClosed), errors.Is(err, watcher.ErrFacilityClosed):
		return &apiError{Status: http.StatusServiceUnavailable, Message: "watch service unavailable", Path: path}
	case errors.Is(err, watcher.ErrWatchRegistrationFailed):
		return &apiError{Status: http.StatusInternalServerError, Message: "watch registration failed", Code: "watch_failed", Path: path}
	default:
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error(), Path: path}
	}
}
