package watcher

import (
	"context"
	"errors"
	"sync"
)

type fakeHandle struct {
	path   string
	valid  bool
	rearms int
}

// fakeFacility is an in-memory Facility whose batches are pushed by tests.
type fakeFacility struct {
	mutex       sync.Mutex
	nextID      uint64
	handles     map[Handle]*fakeHandle
	registered  []string
	cancelled   []Handle
	registerErr error
	ready       chan Ready
	closed      chan struct{}
	closeOnce   sync.Once
	fatal       error
}

func newFakeFacility() *fakeFacility {
	return &fakeFacility{
		handles: make(map[Handle]*fakeHandle),
		ready:   make(chan Ready, 64),
		closed:  make(chan struct{}),
	}
}

func (facility *fakeFacility) Register(path string) (Handle, error) {
	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	if facility.registerErr != nil {
		return 0, facility.registerErr
	}
	facility.nextID++
	handle := Handle(facility.nextID)
	facility.handles[handle] = &fakeHandle{path: path, valid: true}
	facility.registered = append(facility.registered, path)
	return handle, nil
}

func (facility *fakeFacility) Take(ctx context.Context) (Ready, error) {
	select {
	case ready := <-facility.ready:
		return ready, nil
	case <-ctx.Done():
		return Ready{}, ctx.Err()
	case <-facility.closed:
		if facility.fatal != nil {
			return Ready{}, errors.Join(ErrFacilityClosed, facility.fatal)
		}
		return Ready{}, ErrFacilityClosed
	}
}

func (facility *fakeFacility) Rearm(handle Handle) bool {
	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	state, ok := facility.handles[handle]
	if !ok || !state.valid {
		return false
	}
	state.rearms++
	return true
}

func (facility *fakeFacility) Valid(handle Handle) bool {
	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	state, ok := facility.handles[handle]
	return ok && state.valid
}

func (facility *fakeFacility) Cancel(handle Handle) error {
	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	if _, ok := facility.handles[handle]; !ok {
		return nil
	}
	delete(facility.handles, handle)
	facility.cancelled = append(facility.cancelled, handle)
	return nil
}

func (facility *fakeFacility) Close() error {
	facility.closeOnce.Do(func() {
		close(facility.closed)
	})
	return nil
}

func (facility *fakeFacility) failWith(err error) {
	facility.fatal = err
	facility.Close()
}

func (facility *fakeFacility) emit(handle Handle, changes ...Change) {
	facility.mutex.Lock()
	path := ""
	if state, ok := facility.handles[handle]; ok {
		path = state.path
	}
	facility.mutex.Unlock()
	facility.ready <- Ready{Handle: handle, Path: path, Changes: changes}
}

func (facility *fakeFacility) invalidate(handle Handle) {
	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	if state, ok := facility.handles[handle]; ok {
		state.valid = false
	}
}

func (facility *fakeFacility) handleFor(path string) (Handle, bool) {
	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	for handle, state := range facility.handles {
		if state.path == path {
			return handle, true
		}
	}
	return 0, false
}

func (facility *fakeFacility) cancelledHandles() []Handle {
	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	return append([]Handle(nil), facility.cancelled...)
}

func (facility *fakeFacility) registrations() []string {
	facility.mutex.Lock()
	defer facility.mutex.Unlock()
	return append([]string(nil), facility.registered...)
}
