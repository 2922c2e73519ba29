package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

const (
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
)

// FacilityOptions configures a NotifyFacility.
type FacilityOptions struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

type handleState struct {
	path      string
	pending   []Change
	signalled bool
	valid     bool
}

// NotifyFacility is the fsnotify-backed Facility. Events are grouped per
// watched directory; a directory is queued for Take once and stays out of the
// queue until Rearm, while further changes accumulate for the next batch.
type NotifyFacility struct {
	mutex    sync.Mutex
	watcher  *fsnotify.Watcher
	nextID   uint64
	handles  map[Handle]*handleState
	byPath   map[string]Handle
	ready    []Handle
	wake     chan struct{}
	done     chan struct{}
	closed   bool
	fatalErr error
	logger   *logging.Logger
	metrics  *metrics.Registry
	now      func() time.Time

	restartMutex    sync.Mutex
	restartTimer    *time.Timer
	restartAttempts int
}

func NewNotifyFacility(options FacilityOptions) (*NotifyFacility, error) {
	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	facility := &NotifyFacility{
		watcher: source,
		handles: make(map[Handle]*handleState),
		byPath:  make(map[string]Handle),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger,
		metrics: options.Metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
	facility.startForwarder(source)
	return facility, nil
}

// Register starts watching path and returns a fresh handle for it.
func (facility *NotifyFacility) Register(path string) (Handle, error) {
	if facility == nil {
		return 0, ErrFacilityClosed
	}
	if path == "" {
		return 0, errors.New("path is required")
	}
	path = filepath.Clean(path)

	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	if facility.closed {
		return 0, facility.closedErrLocked()
	}
	if err := facility.watcher.Add(path); err != nil {
		facility.logWarn("watch add failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return 0, err
	}

	facility.nextID++
	handle := Handle(facility.nextID)
	facility.handles[handle] = &handleState{path: path, valid: true}
	facility.byPath[path] = handle
	facility.logDebug("watch added", path, handle, len(facility.handles))
	return handle, nil
}

// Take returns the next ready handle together with its drained changes.
func (facility *NotifyFacility) Take(ctx context.Context) (Ready, error) {
	if facility == nil {
		return Ready{}, ErrFacilityClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		facility.mutex.Lock()
		if facility.closed {
			err := facility.closedErrLocked()
			facility.mutex.Unlock()
			return Ready{}, err
		}
		for len(facility.ready) > 0 {
			handle := facility.ready[0]
			facility.ready = facility.ready[1:]
			state, ok := facility.handles[handle]
			if !ok {
				continue
			}
			ready := Ready{Handle: handle, Path: state.path, Changes: state.pending}
			state.pending = nil
			facility.mutex.Unlock()
			return ready, nil
		}
		facility.mutex.Unlock()

		select {
		case <-facility.wake:
		case <-facility.done:
		case <-ctx.Done():
			return Ready{}, ctx.Err()
		}
	}
}

func (facility *NotifyFacility) Rearm(handle Handle) bool {
	if facility == nil {
		return false
	}
	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	state, ok := facility.handles[handle]
	if !ok || !state.valid || facility.closed {
		return false
	}
	state.signalled = false
	if len(state.pending) > 0 {
		facility.signalLocked(handle, state)
	}
	return true
}

func (facility *NotifyFacility) Valid(handle Handle) bool {
	if facility == nil {
		return false
	}
	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	state, ok := facility.handles[handle]
	return ok && state.valid && !facility.closed
}

// Cancel stops watching the handle's directory. Cancelling an unknown or
// already cancelled handle is a no-op.
func (facility *NotifyFacility) Cancel(handle Handle) error {
	if facility == nil {
		return nil
	}
	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	state, ok := facility.handles[handle]
	if !ok {
		return nil
	}
	delete(facility.handles, handle)
	if facility.byPath[state.path] != handle {
		return nil
	}
	delete(facility.byPath, state.path)
	if facility.closed {
		return nil
	}
	err := facility.watcher.Remove(state.path)
	if err != nil && state.valid && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		facility.logWarn("watch remove failed", map[string]string{
			"path":  state.path,
			"error": err.Error(),
		})
		return err
	}
	facility.logDebug("watch removed", state.path, handle, len(facility.handles))
	return nil
}

// Close releases the fsnotify watcher. Pending and future Take calls fail
// with ErrFacilityClosed.
func (facility *NotifyFacility) Close() error {
	if facility == nil {
		return nil
	}
	facility.mutex.Lock()
	if facility.closed {
		facility.mutex.Unlock()
		return nil
	}
	facility.closed = true
	source := facility.watcher
	facility.mutex.Unlock()

	facility.stopRestartTimer()
	close(facility.done)
	if source == nil {
		return nil
	}
	return source.Close()
}

// Done is closed when the facility is closed or has failed.
func (facility *NotifyFacility) Done() <-chan struct{} {
	return facility.done
}

func (facility *NotifyFacility) fail(err error) {
	facility.mutex.Lock()
	if facility.closed {
		facility.mutex.Unlock()
		return
	}
	facility.closed = true
	facility.fatalErr = err
	source := facility.watcher
	facility.mutex.Unlock()

	facility.logger.Error("watch facility failed", withFacilityFields(map[string]string{
		"error": err.Error(),
	}))
	close(facility.done)
	if source != nil {
		_ = source.Close()
	}
}

func (facility *NotifyFacility) closedErrLocked() error {
	if facility.fatalErr != nil {
		return fmt.Errorf("%w: %w", ErrFacilityClosed, facility.fatalErr)
	}
	return ErrFacilityClosed
}

func (facility *NotifyFacility) startForwarder(source *fsnotify.Watcher) {
	if source == nil {
		return
	}

	go func() {
		for {
			select {
			case event, ok := <-source.Events:
				if !ok {
					return
				}
				facility.handleEvent(event)
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				facility.handleError(err)
			case <-facility.done:
				return
			}
		}
	}()
}

func (facility *NotifyFacility) handleEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)
	timestamp := facility.now()

	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	if facility.closed {
		return
	}

	// The watched directory itself was deleted or moved away.
	if handle, ok := facility.byPath[name]; ok && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		facility.invalidateLocked(handle)
	}

	parent := filepath.Dir(name)
	if parent == name {
		return
	}
	handle, ok := facility.byPath[parent]
	if !ok {
		return
	}
	kind, ok := kindForOp(event.Op)
	if !ok {
		return
	}
	state := facility.handles[handle]
	if state == nil || !state.valid {
		return
	}
	state.pending = append(state.pending, Change{
		Name:      filepath.Base(name),
		Kind:      kind,
		Timestamp: timestamp,
	})
	facility.signalLocked(handle, state)
}

func (facility *NotifyFacility) signalLocked(handle Handle, state *handleState) {
	if state.signalled {
		return
	}
	state.signalled = true
	facility.ready = append(facility.ready, handle)
	select {
	case facility.wake <- struct{}{}:
	default:
	}
}

// invalidateLocked marks the handle dead and queues it so the dispatcher sees
// the failed Rearm and evicts it.
func (facility *NotifyFacility) invalidateLocked(handle Handle) {
	state := facility.handles[handle]
	if state == nil || !state.valid {
		return
	}
	state.valid = false
	facility.logDebug("watch invalidated", state.path, handle, len(facility.handles))
	facility.signalLocked(handle, state)
}

func kindForOp(op fsnotify.Op) (Kind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return KindCreated, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return KindDeleted, true
	case op.Has(fsnotify.Write), op.Has(fsnotify.Chmod):
		return KindModified, true
	default:
		return 0, false
	}
}

func (facility *NotifyFacility) logWarn(message string, fields map[string]string) {
	if facility == nil || facility.logger == nil {
		return
	}
	facility.logger.Warn(message, withFacilityFields(fields))
}

func (facility *NotifyFacility) logDebug(message, path string, handle Handle, activeCount int) {
	if facility == nil || facility.logger == nil {
		return
	}
	facility.logger.Debug(message, withFacilityFields(map[string]string{
		"path":           path,
		"handle":         strconv.FormatUint(uint64(handle), 10),
		"active_watches": strconv.Itoa(activeCount),
	}))
}

func withFacilityFields(fields map[string]string) map[string]string {
	return logging.ComponentFields("watcher", "facility", fields)
}
