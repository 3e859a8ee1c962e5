package core

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// deque is a slice-backed double-ended queue. It is not safe for concurrent
// use; owners guard it with their own lock.
//
// Items live in items[head:]. PushFront fills the slack before head. When
// there is none the items are moved into a larger array that leaves as much
// free room in front as there are items, so PushFront is amortized O(1) like
// PushBack.
type deque[T any] struct {
	items []T
	head  int
}

func newDeque[T any]() *deque[T] {
	return &deque[T]{items: make([]T, 0, defaultQueueCap)}
}

func (q *deque[T]) Len() int { return len(q.items) - q.head }

func (q *deque[T]) PushBack(v T) {
	q.items = append(q.items, v)
}

func (q *deque[T]) PushFront(v T) {
	if q.head == 0 {
		q.growFront()
	}
	q.head--
	q.items[q.head] = v
}

func (q *deque[T]) growFront() {
	n := q.Len()
	room := max(n, defaultQueueCap)
	grown := make([]T, room+n, 2*room+n)
	copy(grown[room:], q.items[q.head:])
	q.items = grown
	q.head = room
}

func (q *deque[T]) PopFront() (T, bool) {
	var zero T
	if q.Len() == 0 {
		return zero, false
	}
	v := q.items[q.head]
	// Zero out the slot to release the reference
	q.items[q.head] = zero
	q.head++
	q.maybeCompact()
	return v, true
}

func (q *deque[T]) PeekFront() (T, bool) {
	var zero T
	if q.Len() == 0 {
		return zero, false
	}
	return q.items[q.head], true
}

// RemoveFunc deletes the first item matching pred and reports whether one was found.
func (q *deque[T]) RemoveFunc(pred func(T) bool) bool {
	for i := q.head; i < len(q.items); i++ {
		if !pred(q.items[i]) {
			continue
		}
		copy(q.items[i:], q.items[i+1:])
		var zero T
		q.items[len(q.items)-1] = zero
		q.items = q.items[:len(q.items)-1]
		q.maybeCompact()
		return true
	}
	return false
}

// Drain removes and returns all items in order.
func (q *deque[T]) Drain() []T {
	if q.Len() == 0 {
		q.reset()
		return nil
	}
	out := make([]T, q.Len())
	copy(out, q.items[q.head:])
	q.reset()
	return out
}

func (q *deque[T]) reset() {
	q.items = make([]T, 0, defaultQueueCap)
	q.head = 0
}

func (q *deque[T]) maybeCompact() {
	n := q.Len()
	if n == 0 {
		if cap(q.items) >= compactMinCap {
			q.reset()
		} else {
			q.items = q.items[:0]
			q.head = 0
		}
		return
	}

	c := cap(q.items)
	if c < compactMinCap || n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)
	newSlice := make([]T, n, newCap)
	copy(newSlice, q.items[q.head:])
	q.items = newSlice
	q.head = 0
}
