package watcher

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
)

// Subscription is one watched directory: its handle and its listeners in
// registration order. A subscription exists only while it has listeners.
type Subscription struct {
	path      string
	handle    Handle
	listeners []Listener
}

func (subscription *Subscription) info() SubscriptionInfo {
	return SubscriptionInfo{
		Path:      subscription.path,
		Handle:    subscription.handle,
		Listeners: len(subscription.listeners),
	}
}

// SubscriptionInfo is a read-only view of a subscription.
type SubscriptionInfo struct {
	Path      string `json:"path"`
	Handle    Handle `json:"handle"`
	Listeners int    `json:"listeners"`
}

// Snapshot is a stable copy of a subscription taken for one dispatch.
type Snapshot struct {
	Path      string
	Handle    Handle
	Listeners []Listener
}

type RegistryOptions struct {
	MaxWatches int
	Logger     *logging.Logger
	Metrics    *metrics.Registry
}

// Registry maps facility handles to subscriptions. All mutation, including
// the check-then-register for a new path, happens under one mutex, so one
// path never holds two live handles.
type Registry struct {
	mutex      sync.Mutex
	facility   Facility
	byHandle   map[Handle]*Subscription
	byPath     map[string]*Subscription
	maxWatches int
	closed     bool
	logger     *logging.Logger
	metrics    *metrics.Registry
}

func NewRegistry(facility Facility, options RegistryOptions) *Registry {
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		facility:   facility,
		byHandle:   make(map[Handle]*Subscription),
		byPath:     make(map[string]*Subscription),
		maxWatches: options.MaxWatches,
		logger:     logger,
		metrics:    options.Metrics,
	}
}

// AddListener appends listener to the subscription for path, registering the
// directory with the facility when this is its first listener. On error the
// listener is not added.
func (registry *Registry) AddListener(path string, listener Listener) (SubscriptionInfo, error) {
	if registry == nil {
		return SubscriptionInfo{}, ErrServiceClosed
	}
	if listener == nil {
		return SubscriptionInfo{}, errors.New("listener is required")
	}

	registry.mutex.Lock()
	if registry.closed {
		registry.mutex.Unlock()
		return SubscriptionInfo{}, ErrServiceClosed
	}
	subscription, created, err := registry.registerOrGetLocked(path)
	if err != nil {
		registry.mutex.Unlock()
		registry.logWarn("watch registration failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return SubscriptionInfo{}, err
	}
	subscription.listeners = append(subscription.listeners, listener)
	info := subscription.info()
	registry.publishCountsLocked()
	registry.mutex.Unlock()

	if created {
		registry.logDebug("subscription created", info)
	}
	return info, nil
}

// registerOrGetLocked returns the live subscription for path or registers a
// new one. A subscription whose handle is no longer valid is evicted first:
// cancelled handles are never revived.
func (registry *Registry) registerOrGetLocked(path string) (*Subscription, bool, error) {
	if subscription, ok := registry.byPath[path]; ok {
		if registry.facility.Valid(subscription.handle) {
			return subscription, false, nil
		}
		registry.evictLocked(subscription)
	}
	if registry.maxWatches > 0 && len(registry.byPath) >= registry.maxWatches {
		return nil, false, fmt.Errorf("%w: %s: %w", ErrWatchRegistrationFailed, path, ErrMaxWatchesExceeded)
	}

	handle, err := registry.facility.Register(path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", ErrWatchRegistrationFailed, path, err)
	}
	subscription := &Subscription{path: path, handle: handle}
	registry.byHandle[handle] = subscription
	registry.byPath[path] = subscription
	return subscription, true, nil
}

// RemoveListener drops the first registration of listener for path. When no
// listeners remain, the handle is cancelled and the subscription evicted.
// It reports whether a registration was removed.
func (registry *Registry) RemoveListener(path string, listener Listener) bool {
	if registry == nil || listener == nil {
		return false
	}

	registry.mutex.Lock()
	subscription, ok := registry.byPath[path]
	if !ok {
		registry.mutex.Unlock()
		return false
	}
	index := slices.IndexFunc(subscription.listeners, func(candidate Listener) bool {
		return sameListener(candidate, listener)
	})
	if index < 0 {
		registry.mutex.Unlock()
		return false
	}
	subscription.listeners = slices.Delete(subscription.listeners, index, index+1)
	evicted := len(subscription.listeners) == 0
	if evicted {
		registry.evictLocked(subscription)
	}
	info := subscription.info()
	registry.publishCountsLocked()
	registry.mutex.Unlock()

	if evicted {
		registry.logDebug("subscription removed", info)
	}
	return true
}

// Lookup resolves a handle for dispatch. A miss means the subscription was
// evicted while its events were in flight.
func (registry *Registry) Lookup(handle Handle) (Snapshot, bool) {
	if registry == nil {
		return Snapshot{}, false
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	subscription, ok := registry.byHandle[handle]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Path:      subscription.path,
		Handle:    subscription.handle,
		Listeners: slices.Clone(subscription.listeners),
	}, true
}

// Evict removes the subscription owning handle and cancels the handle.
func (registry *Registry) Evict(handle Handle) bool {
	if registry == nil {
		return false
	}
	registry.mutex.Lock()
	subscription, ok := registry.byHandle[handle]
	if ok {
		registry.evictLocked(subscription)
		registry.publishCountsLocked()
	}
	registry.mutex.Unlock()

	if ok {
		registry.logDebug("subscription evicted", subscription.info())
	}
	return ok
}

func (registry *Registry) evictLocked(subscription *Subscription) {
	if registry.byHandle[subscription.handle] == subscription {
		delete(registry.byHandle, subscription.handle)
	}
	if registry.byPath[subscription.path] == subscription {
		delete(registry.byPath, subscription.path)
	}
	subscription.listeners = nil
	if err := registry.facility.Cancel(subscription.handle); err != nil {
		registry.logWarn("watch cancel failed", map[string]string{
			"path":  subscription.path,
			"error": err.Error(),
		})
	}
}

// Listening reports whether path has a live subscription.
func (registry *Registry) Listening(path string) bool {
	if registry == nil {
		return false
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	_, ok := registry.byPath[path]
	return ok
}

// Subscriptions lists live subscriptions ordered by path.
func (registry *Registry) Subscriptions() []SubscriptionInfo {
	if registry == nil {
		return nil
	}
	registry.mutex.Lock()
	infos := make([]SubscriptionInfo, 0, len(registry.byPath))
	for _, subscription := range registry.byPath {
		infos = append(infos, subscription.info())
	}
	registry.mutex.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path < infos[j].Path
	})
	return infos
}

// Close evicts every subscription and rejects further registrations.
func (registry *Registry) Close() {
	if registry == nil {
		return
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if registry.closed {
		return
	}
	registry.closed = true
	for _, subscription := range registry.byHandle {
		registry.evictLocked(subscription)
	}
	registry.publishCountsLocked()
}

func (registry *Registry) publishCountsLocked() {
	if registry.metrics == nil {
		return
	}
	listeners := 0
	for _, subscription := range registry.byHandle {
		listeners += len(subscription.listeners)
	}
	registry.metrics.SetSubscriptions(len(registry.byHandle), listeners)
}

func (registry *Registry) logWarn(message string, fields map[string]string) {
	registry.logger.Warn(message, withRegistryFields(fields))
}

func (registry *Registry) logDebug(message string, info SubscriptionInfo) {
	registry.logger.Debug(message, withRegistryFields(map[string]string{
		"path":      info.Path,
		"handle":    strconv.FormatUint(uint64(info.Handle), 10),
		"listeners": strconv.Itoa(info.Listeners),
	}))
}

func withRegistryFields(fields map[string]string) map[string]string {
	return logging.ComponentFields("watcher", "registry", fields)
}
