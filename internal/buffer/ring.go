package buffer

import "slices"

// Ring keeps the most recent entries up to a fixed capacity. It is not safe
// for concurrent use; callers hold their own lock.
type Ring[T any] struct {
	entries []T
	start   int
	count   int
}

func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{
		entries: make([]T, size),
	}
}

// Add appends entry, overwriting the oldest entry once the ring is full.
func (r *Ring[T]) Add(entry T) {
	if r == nil || len(r.entries) == 0 {
		return
	}

	if r.count < len(r.entries) {
		r.entries[(r.start+r.count)%len(r.entries)] = entry
		r.count++
		return
	}

	r.entries[r.start] = entry
	r.start = (r.start + 1) % len(r.entries)
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	return r.count
}

// List returns every stored entry, oldest first.
func (r *Ring[T]) List() []T {
	return r.Last(0)
}

// Last returns up to n of the newest entries, oldest first. n <= 0 means all.
func (r *Ring[T]) Last(n int) []T {
	if r == nil || r.count == 0 {
		return nil
	}
	if n <= 0 || n > r.count {
		n = r.count
	}

	out := make([]T, n)
	offset := r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.entries[(r.start+offset+i)%len(r.entries)]
	}
	return out
}

// LastMatching returns up to n of the newest entries for which keep reports
// true, oldest first. n <= 0 means no limit.
func (r *Ring[T]) LastMatching(n int, keep func(T) bool) []T {
	if r == nil || r.count == 0 {
		return nil
	}
	if keep == nil {
		return r.Last(n)
	}

	var out []T
	for i := r.count - 1; i >= 0; i-- {
		entry := r.entries[(r.start+i)%len(r.entries)]
		if !keep(entry) {
			continue
		}
		out = append(out, entry)
		if n > 0 && len(out) == n {
			break
		}
	}
	slices.Reverse(out)
	return out
}
