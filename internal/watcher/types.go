package watcher

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"
)

var (
	ErrWatchRegistrationFailed = errors.New("watch registration failed")
	ErrMaxWatchesExceeded      = errors.New("max watches exceeded")
	ErrHandleInvalidated       = errors.New("watch handle invalidated")
	ErrFacilityClosed          = errors.New("watch facility closed")
	ErrServiceClosed           = errors.New("watch service closed")
)

// Handle identifies one armed directory registration inside a Facility.
type Handle uint64

// Kind classifies a change to a directory entry.
type Kind uint8

const (
	KindCreated Kind = iota + 1
	KindModified
	KindDeleted
)

func (kind Kind) String() string {
	switch kind {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

func (kind Kind) MarshalText() ([]byte, error) {
	return []byte(kind.String()), nil
}

func (kind *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "created":
		*kind = KindCreated
	case "modified":
		*kind = KindModified
	case "deleted":
		*kind = KindDeleted
	default:
		return fmt.Errorf("unknown change kind %q", text)
	}
	return nil
}

// Change is one entry-level event. Name is relative to the watched directory.
type Change struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Batch is what a listener receives: every change drained for one handle.
type Batch struct {
	Path    string   `json:"path"`
	Handle  Handle   `json:"handle"`
	Changes []Change `json:"changes"`
}

// Listener receives change batches. Listeners are matched by identity on
// removal, so register pointer values (NewListener does this for funcs).
type Listener interface {
	OnChanges(batch Batch) error
}

type funcListener struct {
	fn func(Batch) error
}

func (listener *funcListener) OnChanges(batch Batch) error {
	if listener.fn == nil {
		return nil
	}
	return listener.fn(batch)
}

// NewListener wraps fn in a Listener with its own identity. Keep the returned
// value to remove it later.
func NewListener(fn func(Batch) error) Listener {
	return &funcListener{fn: fn}
}

// Ready is a drained batch handed out by Facility.Take.
type Ready struct {
	Handle  Handle
	Path    string
	Changes []Change
}

// Facility is the OS watch facility: it registers directories, reports
// handles with pending changes one at a time, and stops reporting a handle
// until it is re-armed.
type Facility interface {
	Register(path string) (Handle, error)
	// Take blocks until a handle is ready, ctx is done or the facility closes.
	Take(ctx context.Context) (Ready, error)
	// Rearm reports false once the handle is no longer valid.
	Rearm(handle Handle) bool
	Valid(handle Handle) bool
	Cancel(handle Handle) error
	Close() error
}

func sameListener(a, b Listener) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	typeA := reflect.TypeOf(a)
	if typeA != reflect.TypeOf(b) || !typeA.Comparable() {
		return false
	}
	// Comparable structs can still hold uncomparable interface fields.
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
