package core

import "sync"

// JobRegistry maps a logical job identity to its live job. At most one live
// entry exists per identity; a second registration returns the first one.
//
// It has its own lock so duplicate checks never wait behind mutex hand-off.
type JobRegistry[T comparable] struct {
	mu      sync.Mutex
	entries map[string]T
}

func NewJobRegistry[T comparable]() *JobRegistry[T] {
	return &JobRegistry[T]{entries: make(map[string]T)}
}

// RegisterOrReject returns the live entry for identity if there is one, with
// created=false and without calling factory. Otherwise it stores and returns
// factory().
func (r *JobRegistry[T]) RegisterOrReject(identity string, factory func() T) (entry T, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[identity]; ok {
		return existing, false
	}
	entry = factory()
	r.entries[identity] = entry
	return entry, true
}

// Remove deletes identity only while it still maps to expected, so a stale
// cleanup can never drop a newer registration under the same identity.
func (r *JobRegistry[T]) Remove(identity string, expected T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[identity]; ok && cur == expected {
		delete(r.entries, identity)
		return true
	}
	return false
}

func (r *JobRegistry[T]) Lookup(identity string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[identity]
	return v, ok
}

// Snapshot returns the live entries in no particular order.
func (r *JobRegistry[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, 0, len(r.entries))
	for _, v := range r.entries {
		out = append(out, v)
	}
	return out
}

func (r *JobRegistry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
