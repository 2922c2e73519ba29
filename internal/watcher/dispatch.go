package watcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
)

type listenerPanicError struct {
	value any
}

func (err *listenerPanicError) Error() string {
	return fmt.Sprintf("listener panic: %v", err.value)
}

// dispatcher is the single goroutine that drains the facility and fans each
// batch out to the owning subscription's listeners.
type dispatcher struct {
	facility Facility
	registry *Registry
	logger   *logging.Logger
	metrics  *metrics.Registry

	mutex    sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
	err      error
}

func newDispatcher(facility Facility, registry *Registry, logger *logging.Logger, metricsRegistry *metrics.Registry) *dispatcher {
	return &dispatcher{
		facility: facility,
		registry: registry,
		logger:   logger,
		metrics:  metricsRegistry,
		done:     make(chan struct{}),
	}
}

// Start launches the loop once. Later calls, and calls after Stop, do nothing.
func (dispatcher *dispatcher) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	dispatcher.mutex.Lock()
	defer dispatcher.mutex.Unlock()
	if dispatcher.started || dispatcher.stopped {
		return
	}
	dispatcher.started = true
	runCtx, cancel := context.WithCancel(ctx)
	dispatcher.cancel = cancel
	go dispatcher.run(runCtx)
}

// Stop cancels the loop and waits for the in-flight batch to finish. It must
// not be called from a listener.
func (dispatcher *dispatcher) Stop() {
	dispatcher.mutex.Lock()
	dispatcher.stopped = true
	started := dispatcher.started
	cancel := dispatcher.cancel
	dispatcher.mutex.Unlock()

	if !started {
		dispatcher.finish(nil)
		return
	}
	cancel()
	<-dispatcher.done
}

func (dispatcher *dispatcher) Running() bool {
	dispatcher.mutex.Lock()
	started := dispatcher.started
	dispatcher.mutex.Unlock()
	if !started {
		return false
	}
	select {
	case <-dispatcher.done:
		return false
	default:
		return true
	}
}

// closedErr reports why the loop can no longer deliver: nil while it runs or
// has yet to start, otherwise ErrServiceClosed wrapping any fatal error.
func (dispatcher *dispatcher) closedErr() error {
	dispatcher.mutex.Lock()
	defer dispatcher.mutex.Unlock()
	if !dispatcher.started && !dispatcher.stopped {
		return nil
	}
	if dispatcher.started && !dispatcher.stopped {
		select {
		case <-dispatcher.done:
		default:
			return nil
		}
	}
	if dispatcher.err != nil {
		return fmt.Errorf("%w: %w", ErrServiceClosed, dispatcher.err)
	}
	return ErrServiceClosed
}

func (dispatcher *dispatcher) Done() <-chan struct{} {
	return dispatcher.done
}

func (dispatcher *dispatcher) Err() error {
	dispatcher.mutex.Lock()
	defer dispatcher.mutex.Unlock()
	return dispatcher.err
}

func (dispatcher *dispatcher) finish(err error) {
	dispatcher.doneOnce.Do(func() {
		dispatcher.mutex.Lock()
		dispatcher.err = err
		dispatcher.mutex.Unlock()
		close(dispatcher.done)
	})
}

func (dispatcher *dispatcher) run(ctx context.Context) {
	dispatcher.logger.Debug("dispatch loop started", withDispatchFields(nil))
	for {
		ready, err := dispatcher.facility.Take(ctx)
		if err != nil {
			if ctx.Err() != nil {
				dispatcher.logger.Debug("dispatch loop stopped", withDispatchFields(nil))
				dispatcher.finish(nil)
				return
			}
			dispatcher.logger.Error("dispatch loop terminated", withDispatchFields(map[string]string{
				"error": err.Error(),
			}))
			dispatcher.finish(err)
			return
		}
		dispatcher.dispatch(ready)
	}
}

func (dispatcher *dispatcher) dispatch(ready Ready) {
	snapshot, ok := dispatcher.registry.Lookup(ready.Handle)
	if !ok {
		dispatcher.metrics.IncBatchDropped()
		dispatcher.logger.Debug("batch dropped for evicted handle", withDispatchFields(map[string]string{
			"handle":  strconv.FormatUint(uint64(ready.Handle), 10),
			"path":    ready.Path,
			"changes": strconv.Itoa(len(ready.Changes)),
		}))
		return
	}

	if len(ready.Changes) > 0 {
		batch := Batch{Path: snapshot.Path, Handle: snapshot.Handle, Changes: ready.Changes}
		for index, listener := range snapshot.Listeners {
			dispatcher.invoke(index, listener, batch)
		}
		dispatcher.metrics.RecordDelivery(len(ready.Changes))
	}

	if dispatcher.facility.Rearm(ready.Handle) {
		return
	}
	// A listener may have removed the last registration during delivery; the
	// handle was then cancelled on purpose and is no longer in the registry.
	if !dispatcher.registry.Evict(ready.Handle) {
		return
	}
	dispatcher.metrics.IncHandleInvalidated()
	dispatcher.logger.Warn("watch handle evicted", withDispatchFields(map[string]string{
		"handle": strconv.FormatUint(uint64(ready.Handle), 10),
		"path":   snapshot.Path,
		"error":  ErrHandleInvalidated.Error(),
	}))
}

// invoke is the per-listener error boundary.
func (dispatcher *dispatcher) invoke(index int, listener Listener, batch Batch) {
	batch.Changes = slices.Clone(batch.Changes)
	err := callListener(listener, batch)
	if err == nil {
		return
	}
	reason := "error"
	var panicErr *listenerPanicError
	if errors.As(err, &panicErr) {
		reason = "panic"
	}
	dispatcher.metrics.IncListenerFailure(reason)
	dispatcher.logger.Warn("listener failed", withDispatchFields(map[string]string{
		"path":     batch.Path,
		"listener": strconv.Itoa(index),
		"reason":   reason,
		"error":    err.Error(),
	}))
}

func callListener(listener Listener, batch Batch) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &listenerPanicError{value: recovered}
		}
	}()
	return listener.OnChanges(batch)
}

func withDispatchFields(fields map[string]string) map[string]string {
	return logging.ComponentFields("watcher", "dispatch", fields)
}
