package core

import (
	"context"
	"fmt"
	"sync"
)

// AdmissionQueue is the mutex of one session: a single owner plus a FIFO of
// values waiting for it.
//
// Every operation is atomic under one internal lock and O(1), except Remove.
// Dispatch decisions are left to the caller: ReleaseOrHandOff returns the next
// owner instead of running it, so no callback ever runs under the lock.
type AdmissionQueue[T comparable] struct {
	mu       sync.Mutex
	owner    T
	hasOwner bool
	waiting  *deque[T]
	queued   map[T]struct{}

	// idle is closed while there is no owner and replaced on the next acquire.
	idle chan struct{}
}

// NewAdmissionQueue returns an idle queue.
func NewAdmissionQueue[T comparable]() *AdmissionQueue[T] {
	idle := make(chan struct{})
	close(idle)
	return &AdmissionQueue[T]{
		waiting: newDeque[T](),
		queued:  make(map[T]struct{}),
		idle:    idle,
	}
}

// TryAcquireOrEnqueueTail makes v the owner if the mutex is free and returns
// true. Otherwise v joins the tail of the waiting sequence and the caller must
// not dispatch it; a later ReleaseOrHandOff will return it.
func (q *AdmissionQueue[T]) TryAcquireOrEnqueueTail(v T) bool {
	return q.tryAcquireOrEnqueue(v, false)
}

// TryAcquireOrEnqueueHead is TryAcquireOrEnqueueTail with head insertion. It is
// used when a job re-acquires the mutex after a blocking condition fell, so it
// runs before anything that arrived while it was suspended.
func (q *AdmissionQueue[T]) TryAcquireOrEnqueueHead(v T) bool {
	return q.tryAcquireOrEnqueue(v, true)
}

func (q *AdmissionQueue[T]) tryAcquireOrEnqueue(v T, head bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.hasOwner && q.owner == v {
		panic(fmt.Sprintf("AdmissionQueue: %v already owns the mutex", v))
	}
	if _, ok := q.queued[v]; ok {
		panic(fmt.Sprintf("AdmissionQueue: %v is already queued", v))
	}

	if !q.hasOwner {
		q.setOwnerLocked(v)
		return true
	}

	q.queued[v] = struct{}{}
	if head {
		q.waiting.PushFront(v)
	} else {
		q.waiting.PushBack(v)
	}
	return false
}

// ReleaseOrHandOff is called when current finishes with the mutex. If values
// are waiting, the head becomes owner and is returned for the caller to
// dispatch. Otherwise the mutex goes idle.
//
// It does nothing when current is not the owner, which makes a second release
// by the same value, or a release after Clear, harmless.
func (q *AdmissionQueue[T]) ReleaseOrHandOff(current T) (next T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.hasOwner || q.owner != current {
		return next, false
	}

	if v, found := q.waiting.PopFront(); found {
		delete(q.queued, v)
		q.owner = v
		return v, true
	}

	var zero T
	q.owner = zero
	q.hasOwner = false
	close(q.idle)
	return next, false
}

// Remove takes v out of the waiting sequence. It returns false if v was not
// waiting (never queued, already handed the mutex, or cleared).
func (q *AdmissionQueue[T]) Remove(v T) bool {
	return q.RemoveIf(v, nil)
}

// RemoveIf is Remove guarded by allow, which is evaluated under the queue
// lock. A nil allow always removes.
func (q *AdmissionQueue[T]) RemoveIf(v T, allow func(T) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[v]; !ok {
		return false
	}
	if allow != nil && !allow(v) {
		return false
	}
	delete(q.queued, v)
	return q.waiting.RemoveFunc(func(w T) bool { return w == v })
}

// Clear drops the owner and returns everything that was waiting, in order.
// No further hand-off happens for the dropped values.
func (q *AdmissionQueue[T]) Clear() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.waiting.Drain()
	clear(q.queued)
	if q.hasOwner {
		var zero T
		q.owner = zero
		q.hasOwner = false
		close(q.idle)
	}
	return dropped
}

// Owner returns the current owner.
func (q *AdmissionQueue[T]) Owner() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.owner, q.hasOwner
}

// IsOwner reports whether v currently owns the mutex.
func (q *AdmissionQueue[T]) IsOwner(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.hasOwner && q.owner == v
}

// IsIdle reports whether the mutex has no owner.
func (q *AdmissionQueue[T]) IsIdle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.hasOwner
}

// Len returns the number of waiting values.
func (q *AdmissionQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting.Len()
}

// WaitForIdle blocks until the mutex has no owner or ctx ends. It must not be
// called by the owner itself, which would wait for its own release.
func (q *AdmissionQueue[T]) WaitForIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.hasOwner {
			q.mu.Unlock()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-idle:
			// Re-check: the mutex may have been re-acquired in between.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *AdmissionQueue[T]) setOwnerLocked(v T) {
	q.owner = v
	q.hasOwner = true
	q.idle = make(chan struct{})
}
