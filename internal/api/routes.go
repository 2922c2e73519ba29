package api

import (
	"net/http"
	"time"

	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
	"dirwatch/internal/watcher"
)

type RouteOptions struct {
	Service        *watcher.Service
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	AuthToken      string
	AllowedOrigins []string
}

// RegisterRoutes mounts the REST, WebSocket and metrics endpoints on mux.
func RegisterRoutes(mux *http.ServeMux, options RouteOptions) {
	logger := options.Logger
	rest := &RestHandler{
		Service: options.Service,
		Logger:  logger,
		Started: time.Now().UTC(),
	}

	mux.Handle("/api/status", loggingMiddleware(logger, restHandler(options.AuthToken, rest.handleStatus)))
	mux.Handle("/api/children", loggingMiddleware(logger, restHandler(options.AuthToken, rest.handleChildren)))
	mux.Handle("/ws/changes", loggingMiddleware(logger, &ChangesHandler{
		Service:        options.Service,
		Logger:         logger,
		Metrics:        options.Metrics,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
	}))
	mux.Handle("/ws/logs", loggingMiddleware(logger, &LogsHandler{
		Logger:         logger,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
	}))
	if options.Metrics != nil {
		mux.Handle("/metrics", securityHeadersMiddleware(cacheControlNoCache, requireToken(options.AuthToken, options.Metrics.Handler())))
	}
}
