// Package watcher multiplexes OS directory-change notifications across many
// logical subscriptions.
//
// A Service owns one Facility (fsnotify by default), a Registry that maps
// facility handles to subscriptions, and a single dispatch goroutine. The
// dispatch goroutine takes one ready handle at a time, resolves it through the
// registry and calls that subscription's listeners in registration order with
// the whole batch, then re-arms the handle. Handles the facility reports as
// invalid are evicted without stopping delivery for other subscriptions.
//
// Listener bodies run on the dispatch goroutine, so a slow listener delays
// every later delivery. A listener that returns an error or panics is logged
// and skipped; the remaining listeners still receive the batch.
package watcher
