package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
)

// Options controls Service construction.
type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry
	// Facility overrides the fsnotify facility. The Service takes ownership
	// and closes it.
	Facility Facility
	// MaxWatches caps live subscriptions; zero means unlimited.
	MaxWatches int
}

// Service is the watch engine: one facility, one registry and one dispatch
// loop. The loop starts on Start or on the first AddListener, whichever comes
// first, and runs until Close or a fatal facility failure.
type Service struct {
	facility   Facility
	registry   *Registry
	dispatcher *dispatcher
	logger     *logging.Logger
	closeOnce  sync.Once
	closeErr   error
}

var (
	defaultOnce    sync.Once
	defaultService *Service
	defaultErr     error
)

// Default returns the process-wide Service, creating it on first use. It is
// never closed by this package.
func Default() (*Service, error) {
	defaultOnce.Do(func() {
		defaultService, defaultErr = New()
	})
	return defaultService, defaultErr
}

// New creates a Service with default options.
func New() (*Service, error) {
	return NewWithOptions(Options{})
}

func NewWithOptions(options Options) (*Service, error) {
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	facility := options.Facility
	if facility == nil {
		notify, err := NewNotifyFacility(FacilityOptions{
			Logger:  logger,
			Metrics: options.Metrics,
		})
		if err != nil {
			return nil, err
		}
		facility = notify
	}

	registry := NewRegistry(facility, RegistryOptions{
		MaxWatches: options.MaxWatches,
		Logger:     logger,
		Metrics:    options.Metrics,
	})
	return &Service{
		facility:   facility,
		registry:   registry,
		dispatcher: newDispatcher(facility, registry, logger, options.Metrics),
		logger:     logger,
	}, nil
}

// Start launches the dispatch loop. Calling it again is a no-op; cancelling
// ctx stops the loop.
func (service *Service) Start(ctx context.Context) {
	if service == nil {
		return
	}
	service.dispatcher.Start(ctx)
}

// AddListener registers listener for the directory at path, which must be an
// absolute directory path. The first listener for a path registers it with the
// facility; a registration failure is returned and the listener is dropped.
// Once the dispatch loop has exited, AddListener fails with ErrServiceClosed.
func (service *Service) AddListener(path string, listener Listener) error {
	if service == nil {
		return ErrServiceClosed
	}
	if !filepath.IsAbs(path) {
		return errors.New("path must be absolute")
	}
	if err := service.dispatcher.closedErr(); err != nil {
		return err
	}
	cleaned := filepath.Clean(path)
	if _, err := service.registry.AddListener(cleaned, listener); err != nil {
		return err
	}
	service.dispatcher.Start(context.Background())
	if err := service.dispatcher.closedErr(); err != nil {
		service.registry.RemoveListener(cleaned, listener)
		return err
	}
	return nil
}

// RemoveListener removes the first registration of listener for path and
// reports whether one was found.
func (service *Service) RemoveListener(path string, listener Listener) bool {
	if service == nil {
		return false
	}
	return service.registry.RemoveListener(filepath.Clean(path), listener)
}

func (service *Service) Listening(path string) bool {
	if service == nil {
		return false
	}
	return service.registry.Listening(filepath.Clean(path))
}

func (service *Service) Subscriptions() []SubscriptionInfo {
	if service == nil {
		return nil
	}
	return service.registry.Subscriptions()
}

// Running reports whether the dispatch loop is active.
func (service *Service) Running() bool {
	if service == nil {
		return false
	}
	return service.dispatcher.Running()
}

// Done is closed when the dispatch loop exits.
func (service *Service) Done() <-chan struct{} {
	return service.dispatcher.Done()
}

// Err returns the failure that ended the dispatch loop, if any.
func (service *Service) Err() error {
	if service == nil {
		return nil
	}
	return service.dispatcher.Err()
}

// Close stops the dispatch loop, cancels every handle and closes the facility.
// It waits for the loop to exit, so it must not be called from a listener.
func (service *Service) Close() error {
	if service == nil {
		return nil
	}
	service.closeOnce.Do(func() {
		service.dispatcher.Stop()
		service.registry.Close()
		service.closeErr = service.facility.Close()
		service.logger.Debug("watch service closed", withDispatchFields(nil))
	})
	return service.closeErr
}
