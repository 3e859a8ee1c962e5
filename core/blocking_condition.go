package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// BlockingCondition lets a model job wait for an external state without
// holding its session mutex. While the job waits, other jobs of the session
// run; when the condition falls, the job re-acquires the mutex ahead of jobs
// that queued normally.
//
// Only the goroutine running a job may call ReleaseMutexAndAwait, with the
// context the job body was given.
type BlockingCondition struct {
	name string
	mgr  *ModelJobManager

	mu       sync.Mutex
	blocking bool
	// fallen is closed while the condition is not blocking.
	fallen  chan struct{}
	waiters map[*modelTask]struct{}
}

func newBlockingCondition(m *ModelJobManager, name string, blocking bool) *BlockingCondition {
	c := &BlockingCondition{
		name:    name,
		mgr:     m,
		fallen:  make(chan struct{}),
		waiters: make(map[*modelTask]struct{}),
	}
	if blocking {
		c.blocking = true
	} else {
		close(c.fallen)
	}
	return c
}

func (c *BlockingCondition) Name() string { return c.name }

// SetBlocking raises or lowers the condition. Lowering it wakes every waiter;
// setting the current value again has no effect.
func (c *BlockingCondition) SetBlocking(blocking bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.blocking == blocking {
		return
	}
	c.blocking = blocking
	if blocking {
		c.fallen = make(chan struct{})
	} else {
		close(c.fallen)
	}
}

func (c *BlockingCondition) IsBlocking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocking
}

// SignalAll lowers the condition. It never touches any admission queue:
// woken jobs re-acquire their mutex themselves.
func (c *BlockingCondition) SignalAll() {
	c.SetBlocking(false)
}

// WaiterCount returns the number of jobs currently parked on the condition.
func (c *BlockingCondition) WaiterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// ReleaseMutexAndAwait waits until the condition is not blocking. If it is
// blocking, the calling job's mutex is handed on for the duration of the wait
// and re-acquired before returning.
//
// Cancellation of the job context does not end the wait. Manager shutdown
// does, and the call then returns ErrInterruptedWhileReacquiring. A non-nil
// error other than a usage error means the job has been cancelled and must
// return without touching model state.
func (c *BlockingCondition) ReleaseMutexAndAwait(ctx context.Context) error {
	return c.releaseAndAwait(ctx, 0)
}

// ReleaseMutexAndAwaitTimeout is ReleaseMutexAndAwait bounded by timeout. On
// timeout the mutex is still re-acquired first and ErrTimeout is returned.
func (c *BlockingCondition) ReleaseMutexAndAwaitTimeout(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return usageError("await", "non-positive timeout %v", timeout)
	}
	return c.releaseAndAwait(ctx, timeout)
}

// Await waits for the condition from a goroutine that does not hold a model
// mutex, ending early when ctx does. Called from a job that owns its mutex it
// behaves like ReleaseMutexAndAwait.
func (c *BlockingCondition) Await(ctx context.Context) error {
	if t := jobFromContext(ctx); t != nil && t.sm.mgr == c.mgr && t.ownsMutex() {
		return c.releaseAndAwait(ctx, 0)
	}
	for {
		c.mu.Lock()
		if !c.blocking {
			c.mu.Unlock()
			return nil
		}
		fallen := c.fallen
		c.mu.Unlock()

		select {
		case <-fallen:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *BlockingCondition) releaseAndAwait(ctx context.Context, timeout time.Duration) error {
	t := jobFromContext(ctx)
	if t == nil || t.sm.mgr != c.mgr {
		return usageError("await", "condition %q awaited outside a model job", c.name)
	}
	if !t.ownsMutex() {
		return usageError("await", "job %s does not own the %s mutex", t.name, t.sm.id)
	}

	c.mu.Lock()
	if !c.blocking {
		c.mu.Unlock()
		return nil
	}
	c.waiters[t] = struct{}{}
	c.mu.Unlock()

	m := c.mgr
	sm := t.sm
	t.mutexReleased.Store(true)
	t.future.setStatus(JobStatusBlocked)
	t.blocked.Store(true)
	sm.blocked.Add(1)
	m.metrics.RecordBlocked(c.name, 1)
	m.logger.Debug("model job waiting on condition",
		F("job", t.name),
		F("session", sm.id),
		F("condition", c.name))

	sm.releaseAndDispatch(t)

	waitErr := c.park(timeout)

	c.mu.Lock()
	delete(c.waiters, t)
	c.mu.Unlock()
	t.blocked.Store(false)
	sm.blocked.Add(-1)
	m.metrics.RecordBlocked(c.name, -1)

	if err := t.reacquireMutex(); err != nil {
		if errors.Is(waitErr, ErrInterruptedWhileReacquiring) {
			return &JobError{Op: "await", Job: t.name, Session: sm.id, Err: fmt.Errorf("%w: %w", ErrInterruptedWhileReacquiring, err)}
		}
		return err
	}

	m.logger.Debug("model job resumed after condition",
		F("job", t.name),
		F("session", sm.id),
		F("condition", c.name))

	if waitErr != nil {
		return &JobError{Op: "await", Job: t.name, Session: sm.id, Err: waitErr}
	}
	return nil
}

// park blocks until the condition falls, the manager shuts down or timeout
// (if positive) elapses.
func (c *BlockingCondition) park(timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		c.mu.Lock()
		if !c.blocking {
			c.mu.Unlock()
			return nil
		}
		fallen := c.fallen
		c.mu.Unlock()

		select {
		case <-fallen:
			// Re-check: the condition may have been raised again.
		case <-c.mgr.done:
			return ErrInterruptedWhileReacquiring
		case <-expired:
			return ErrTimeout
		}
	}
}
