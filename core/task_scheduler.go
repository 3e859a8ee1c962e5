package core

import (
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const defaultKeepAlive = 30 * time.Second

// TaskSchedulerConfig sizes a TaskScheduler.
type TaskSchedulerConfig struct {
	// MinWorkers are kept alive while idle.
	MinWorkers int
	// MaxWorkers caps the number of workers; 0 means unbounded. Jobs parked on
	// a blocking condition keep their worker, so a cap below the number of
	// simultaneously blocked jobs can stall a manager.
	MaxWorkers int
	// KeepAlive is how long a worker above MinWorkers stays parked before it exits.
	KeepAlive time.Duration
	Logger    Logger
}

// DefaultTaskSchedulerConfig returns an unbounded config with one resident worker.
func DefaultTaskSchedulerConfig() *TaskSchedulerConfig {
	return &TaskSchedulerConfig{
		MinWorkers: 1,
		MaxWorkers: 0,
		KeepAlive:  defaultKeepAlive,
		Logger:     NewNoOpLogger(),
	}
}

// TaskScheduler is the work source behind a growable goroutine pool. Post
// queues an item and either wakes a parked worker or tells the pool to start
// one; workers pull items with GetWork and retire after KeepAlive of idleness.
type TaskScheduler struct {
	mu      sync.Mutex
	pending *deque[WorkItem]
	// parked holds the wake channels of idle workers, most recent last.
	parked []chan struct{}
	workers int

	minWorkers int
	maxWorkers int
	keepAlive  time.Duration
	logger     Logger

	metricActive atomic.Int32

	shuttingDown bool
}

func NewTaskScheduler(config *TaskSchedulerConfig) *TaskScheduler {
	if config == nil {
		config = DefaultTaskSchedulerConfig()
	}
	s := &TaskScheduler{
		pending:    newDeque[WorkItem](),
		minWorkers: max(config.MinWorkers, 0),
		maxWorkers: max(config.MaxWorkers, 0),
		keepAlive:  config.KeepAlive,
		logger:     config.Logger,
	}
	if s.maxWorkers > 0 && s.minWorkers > s.maxWorkers {
		s.minWorkers = s.maxWorkers
	}
	if s.keepAlive <= 0 {
		s.keepAlive = defaultKeepAlive
	}
	if s.logger == nil {
		s.logger = NewNoOpLogger()
	}
	return s
}

// Post queues item. spawn is true when the caller must start one new worker,
// which has already been counted.
func (s *TaskScheduler) Post(item WorkItem) (spawn bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return false, ErrPoolShutdown
	}

	s.pending.PushBack(item)

	if n := len(s.parked); n > 0 {
		wake := s.parked[n-1]
		s.parked = s.parked[:n-1]
		select {
		case wake <- struct{}{}:
		default:
		}
		return false, nil
	}
	if s.maxWorkers == 0 || s.workers < s.maxWorkers {
		s.workers++
		return true, nil
	}
	// At capacity: a busy worker will pick it up.
	return false, nil
}

// Reserve counts n workers the pool is about to start, up to MinWorkers.
func (s *TaskScheduler) Reserve() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := max(s.minWorkers-s.workers, 0)
	s.workers += n
	return n
}

// GetWork is called by a worker. It blocks until an item is available and
// returns false when the worker must exit: on stop, on shutdown with nothing
// left to run, or after KeepAlive of idleness above MinWorkers. wake is the
// worker's own buffered (capacity 1) channel.
func (s *TaskScheduler) GetWork(wake chan struct{}, stopCh <-chan struct{}) (WorkItem, bool) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		s.mu.Lock()
		if item, ok := s.pending.PopFront(); ok {
			s.mu.Unlock()
			return item, true
		}
		if s.shuttingDown {
			s.workers--
			s.mu.Unlock()
			return nil, false
		}
		// A signal left from an earlier wake-up would look like a new one.
		select {
		case <-wake:
		default:
		}
		s.parked = append(s.parked, wake)
		s.mu.Unlock()

		if timer == nil {
			timer = time.NewTimer(s.keepAlive)
		} else {
			timer.Reset(s.keepAlive)
		}

		select {
		case <-wake:
			timer.Stop()
			continue
		case <-timer.C:
			if s.retire(wake) {
				return nil, false
			}
		case <-stopCh:
			s.mu.Lock()
			s.unparkLocked(wake)
			s.workers--
			s.mu.Unlock()
			return nil, false
		}
	}
}

// retire lets a parked worker exit if it is above MinWorkers.
func (s *TaskScheduler) retire(wake chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.unparkLocked(wake) {
		// Post already popped it and sent a wake signal.
		return false
	}
	if s.workers > s.minWorkers {
		s.workers--
		return true
	}
	return false
}

func (s *TaskScheduler) unparkLocked(wake chan struct{}) bool {
	i := slices.Index(s.parked, wake)
	if i < 0 {
		return false
	}
	s.parked = slices.Delete(s.parked, i, i+1)
	return true
}

// RunWork executes run on the calling worker and recovers a panic escaping it.
func (s *TaskScheduler) RunWork(run func()) {
	s.metricActive.Add(1)
	defer func() {
		s.metricActive.Add(-1)
		if r := recover(); r != nil {
			s.logger.Error("work item panicked",
				F("panic", r),
				F("stack", string(debug.Stack())))
		}
	}()
	run()
}

// Shutdown refuses further items, wakes every parked worker and rejects the
// items still queued. Reject runs outside the lock.
func (s *TaskScheduler) Shutdown() {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.shuttingDown = true
	dropped := s.pending.Drain()
	for _, wake := range s.parked {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
	s.parked = nil
	s.mu.Unlock()

	for _, item := range dropped {
		item.Reject(ErrPoolShutdown)
	}
}

func (s *TaskScheduler) IsShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

// Metrics
func (s *TaskScheduler) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workers
}

func (s *TaskScheduler) IdleWorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.parked)
}

func (s *TaskScheduler) QueuedTaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

func (s *TaskScheduler) ActiveTaskCount() int { return int(s.metricActive.Load()) }
func (s *TaskScheduler) MinWorkers() int      { return s.minWorkers }
func (s *TaskScheduler) MaxWorkers() int      { return s.maxWorkers }
