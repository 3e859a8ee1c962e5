package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// delayedAdmission is a job admission scheduled for the future
type delayedAdmission struct {
	runAt time.Time
	fire  func()
	index int // for heap interface
}

// delayedHeap implements heap.Interface
type delayedHeap []*delayedAdmission

func (h delayedHeap) Len() int           { return len(h) }
func (h delayedHeap) Less(i, j int) bool { return h[i].runAt.Before(h[j].runAt) }
func (h delayedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedHeap) Push(x any) {
	n := len(*h)
	item := x.(*delayedAdmission)
	item.index = n
	*h = append(*h, item)
}

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *delayedHeap) Peek() *delayedAdmission {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DelayManager runs callbacks once their delay has elapsed, from a single
// timer goroutine. The callbacks must be short; the manager uses them to admit
// delayed jobs to their session mutex.
type DelayManager struct {
	pq     delayedHeap
	mu     sync.Mutex
	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func NewDelayManager() *DelayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		pq:     make(delayedHeap, 0),
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

// AddDelayed schedules fire to run after delay. It returns false once the
// manager has been stopped.
func (dm *DelayManager) AddDelayed(delay time.Duration, fire func()) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.ctx.Err() != nil {
		return false
	}

	item := &delayedAdmission{
		runAt: time.Now().Add(delay),
		fire:  fire,
	}
	heap.Push(&dm.pq, item)

	if item.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
	return true
}

func (dm *DelayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		nextRun, ok := dm.calculateNextRun()
		if !ok {
			// Nothing scheduled; wait for a wakeup.
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.processExpired()
		case <-dm.wakeup:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun returns how long to wait for the earliest item; ok is false
// when nothing is scheduled.
func (dm *DelayManager) calculateNextRun() (time.Duration, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return 0, false
	}

	d := time.Until(item.runAt)
	if d < 0 {
		d = 0
	}
	return d, true
}

// processExpired pops every expired item and fires it outside the lock.
func (dm *DelayManager) processExpired() {
	dm.mu.Lock()

	now := time.Now()
	var expired []*delayedAdmission

	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.runAt.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		expired = append(expired, item)
	}

	dm.mu.Unlock()

	for _, item := range expired {
		if dm.ctx.Err() != nil {
			return
		}
		item.fire()
	}
}

// Stop ends the timer goroutine and drops everything still scheduled.
func (dm *DelayManager) Stop() {
	dm.mu.Lock()
	dm.cancel()
	dm.pq = make(delayedHeap, 0)
	heap.Init(&dm.pq)
	dm.mu.Unlock()
}

func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
