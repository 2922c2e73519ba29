package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"dirwatch/internal/logging"

	"golang.org/x/sync/errgroup"
)

// Server serves the dirwatch HTTP API on one listener.
type Server struct {
	ln     net.Listener
	closed atomic.Bool

	httpServer *http.Server
	addr       string
	logger     *logging.Logger

	g errgroup.Group
}

func NewServer(addr string, options RouteOptions) *Server {
	mux := http.NewServeMux()
	RegisterRoutes(mux, options)
	return &Server{
		addr:   addr,
		logger: options.Logger,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Open binds the listener and starts serving in the background.
func (s *Server) Open() (err error) {
	if s.ln, err = net.Listen("tcp", s.addr); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("dirwatch listening", logging.ComponentFields("api", "http", map[string]string{
			"addr": s.ln.Addr().String(),
		}))
	}

	s.g.Go(func() error {
		if err := s.httpServer.Serve(s.ln); err != nil && !s.closed.Load() && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return nil
}

// Close stops accepting connections and waits for Serve to return.
func (s *Server) Close() (err error) {
	s.closed.Store(true)
	if s.ln != nil {
		if e := s.httpServer.Close(); e != nil && err == nil {
			err = e
		}
	}
	if e := s.g.Wait(); e != nil && err == nil {
		err = e
	}
	return err
}

// Port returns the bound port, or 0 before Open.
func (s *Server) Port() int {
	if s.ln == nil {
		return 0
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

// URL returns the base URL for the running server.
func (s *Server) URL() string {
	host, _, _ := net.SplitHostPort(s.addr)
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(s.Port())))
}
