package watcher

import (
	"errors"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
)

func (facility *NotifyFacility) handleError(err error) {
	if err == nil {
		return
	}
	facility.metrics.IncFacilityError()
	fields := map[string]string{
		"error": err.Error(),
	}
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		fields["overflow"] = "true"
	}
	facility.logWarn("watch facility error", fields)
	facility.scheduleRestart(err)
}

func restartDelay(attempt int) time.Duration {
	return restartBaseDelay * time.Duration(1<<attempt)
}

func (facility *NotifyFacility) isClosed() bool {
	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	return facility.closed
}

func (facility *NotifyFacility) scheduleRestart(err error) {
	if facility == nil || facility.isClosed() {
		return
	}
	facility.restartMutex.Lock()
	if facility.restartTimer != nil {
		facility.restartMutex.Unlock()
		return
	}
	if facility.restartAttempts >= maxRestartAttempts {
		facility.restartMutex.Unlock()
		facility.fail(err)
		return
	}
	delay := restartDelay(facility.restartAttempts)
	facility.restartAttempts++
	facility.restartTimer = time.AfterFunc(delay, facility.performRestart)
	facility.restartMutex.Unlock()
}

func (facility *NotifyFacility) performRestart() {
	if facility == nil {
		return
	}
	restartErr := facility.restart()

	facility.restartMutex.Lock()
	facility.restartTimer = nil
	if restartErr == nil {
		facility.restartAttempts = 0
		facility.restartMutex.Unlock()
		return
	}
	facility.restartMutex.Unlock()

	facility.logWarn("watch facility restart failed", map[string]string{
		"error": restartErr.Error(),
	})
	facility.scheduleRestart(restartErr)
}

func (facility *NotifyFacility) stopRestartTimer() {
	facility.restartMutex.Lock()
	defer facility.restartMutex.Unlock()
	if facility.restartTimer != nil {
		facility.restartTimer.Stop()
		facility.restartTimer = nil
	}
}

// restart swaps in a fresh fsnotify watcher and re-adds every live directory.
// Directories that cannot be re-added are invalidated so the dispatcher
// evicts their subscriptions.
func (facility *NotifyFacility) restart() error {
	facility.mutex.Lock()
	if facility.closed {
		facility.mutex.Unlock()
		return nil
	}

	replacement, err := fsnotify.NewWatcher()
	if err != nil {
		facility.mutex.Unlock()
		return err
	}

	for handle, state := range facility.handles {
		if !state.valid {
			continue
		}
		if err := replacement.Add(state.path); err != nil {
			facility.logWarn("watch re-add failed", map[string]string{
				"path":   state.path,
				"handle": strconv.FormatUint(uint64(handle), 10),
				"error":  err.Error(),
			})
			facility.invalidateLocked(handle)
		}
	}

	previous := facility.watcher
	facility.watcher = replacement
	facility.mutex.Unlock()

	facility.metrics.IncFacilityRestart()
	facility.startForwarder(replacement)
	if previous != nil {
		_ = previous.Close()
	}
	return nil
}
