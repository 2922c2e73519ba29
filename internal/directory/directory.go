// Package directory is the caller-facing facade: it validates and creates
// directories, lists their entries and attaches change listeners through the
// shared watch engine.
package directory

import (
	"sync"

	"dirwatch/internal/fsutil"
	"dirwatch/internal/watcher"
)

// Directory is a validated directory path. It does not own its subscription:
// two Directory values for the same path share one watch in the engine.
type Directory struct {
	path string

	mutex   sync.Mutex
	service *watcher.Service
}

// Open validates that path names an existing directory. The stored path is
// absolute with symlinks resolved.
func Open(path string, opts ...Option) (*Directory, error) {
	resolved := buildOptions(opts)
	normalized, err := fsutil.RequireDir(path)
	if err != nil {
		return nil, err
	}
	return &Directory{path: normalized, service: resolved.service}, nil
}

// Create makes the directory and opens it. Without WithParents an existing
// path fails with ErrAlreadyExists.
func Create(path string, opts ...Option) (*Directory, error) {
	resolved := buildOptions(opts)
	if err := fsutil.CreateDir(path, resolved.perm, resolved.parents); err != nil {
		return nil, err
	}
	return Open(path, opts...)
}

func (d *Directory) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

func (d *Directory) String() string {
	return d.Path()
}

// Children lists the immediate entries at call time.
func (d *Directory) Children() ([]string, error) {
	return fsutil.ListChildren(d.path)
}

// AddListener registers listener for changes in this directory. The first
// listener for a path creates the OS watch and starts the dispatch loop.
func (d *Directory) AddListener(listener watcher.Listener) error {
	service, err := d.engine()
	if err != nil {
		return err
	}
	return service.AddListener(d.path, listener)
}

// RemoveListener removes the first registration of listener. Removing a
// listener that is not registered does nothing and reports false.
func (d *Directory) RemoveListener(listener watcher.Listener) bool {
	service, err := d.engine()
	if err != nil {
		return false
	}
	return service.RemoveListener(d.path, listener)
}

// Listening reports whether the path currently has a live watch.
func (d *Directory) Listening() bool {
	service, err := d.engine()
	if err != nil {
		return false
	}
	return service.Listening(d.path)
}

func (d *Directory) engine() (*watcher.Service, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.service != nil {
		return d.service, nil
	}
	service, err := watcher.Default()
	if err != nil {
		return nil, err
	}
	d.service = service
	return service, nil
}
