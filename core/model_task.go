package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// modelTask is one scheduled model job. It is the value that owns, or waits
// for, its session's AdmissionQueue.
//
// Lifecycle on the pool: Run = execute, after. If the pool drops the task
// instead, Reject = rejected. after and rejected both release the session mutex
// unless a blocking condition already released it.
type modelTask struct {
	id       TaskID
	name     string
	identity string
	regKey   string
	sm       *sessionMutex
	fn       JobFunc
	future   *Future

	// ctx is cancelled together with the Future; job bodies see it.
	ctx    context.Context
	cancel context.CancelFunc

	// mutexReleased is set while the job has given up the mutex through a
	// blocking condition, so after/rejected must not release it again.
	mutexReleased atomic.Bool

	// reacquire is non-nil while the job waits to get the mutex back; a
	// hand-off to the job then dispatches the latch instead of the job.
	reacquire atomic.Pointer[reacquireLatch]

	// pending is set while admission is delayed.
	pending atomic.Bool

	// blocked is set while the job is parked on a blocking condition.
	blocked atomic.Bool

	finalized atomic.Bool
	startedAt time.Time
}

func newModelTask(sm *sessionMutex, id TaskID, regKey string, input JobInput, fn JobFunc) *modelTask {
	name := input.Name
	if name == "" {
		name = "model-job"
	}
	ctx, cancel := context.WithCancel(sm.mgr.rootCtx)
	t := &modelTask{
		id:       id,
		name:     name,
		identity: input.Identity,
		regKey:   regKey,
		sm:       sm,
		fn:       fn,
		ctx:      ctx,
		cancel:   cancel,
	}
	t.future = newFuture(id, name, input.Identity, sm.id)
	t.future.cancelHook = t.onCancel
	return t
}

func (t *modelTask) String() string {
	return fmt.Sprintf("%s[%s]", t.name, t.id)
}

func (t *modelTask) info() JobInfo {
	return t.future.Info()
}

// submit hands the task, or its re-acquisition latch, to the pool.
func (t *modelTask) submit() error {
	if l := t.reacquire.Load(); l != nil {
		return t.sm.mgr.pool.Execute(l)
	}
	return t.sm.mgr.pool.Execute(t)
}

// ownsMutex reports whether the task is the active owner of its session mutex.
func (t *modelTask) ownsMutex() bool {
	return !t.mutexReleased.Load() && t.sm.queue.IsOwner(t)
}

// Run implements WorkItem. The pool context is not passed to the body: the
// job context follows the job's own cancellation instead.
//
// after is deferred so the mutex is passed on even if something outside the
// recovered job chain panics.
func (t *modelTask) Run(_ context.Context) {
	defer t.after()
	if t.future.IsDone() {
		// Cancelled after it was handed the mutex but before it ran.
		return
	}

	result, err, panicked := t.execute()

	switch {
	case err == nil:
		t.future.complete(JobStatusCompleted, result, nil)
	case errors.Is(err, context.Canceled) && t.ctx.Err() != nil:
		t.future.complete(JobStatusCancelled, result, err)
	default:
		t.future.complete(JobStatusFailed, result, err)
	}

	t.record(panicked)
}

// Reject implements WorkItem for tasks dropped from the pool queue.
func (t *modelTask) Reject(err error) {
	t.sm.dispatch(t.rejected(err))
}

// execute runs the body between the BeforeJob and AfterJob hooks. A panic in
// a hook or the body fails the job with a *PanicError.
func (t *modelTask) execute() (result any, err error, panicked bool) {
	m := t.sm.mgr
	t.startedAt = time.Now()
	t.future.setStatus(JobStatusRunning)

	ctx := withJob(t.ctx, t)
	defer func() {
		if r := recover(); r != nil {
			result, err, panicked = nil, t.recovered(ctx, r), true
		}
	}()

	info := t.info()
	for _, mw := range m.middleware {
		ctx = mw.BeforeJob(ctx, info)
	}

	result, err, panicked = t.body(ctx)

	info = t.info()
	for i := len(m.middleware) - 1; i >= 0; i-- {
		m.middleware[i].AfterJob(ctx, info, err)
	}
	return result, err, panicked
}

func (t *modelTask) body(ctx context.Context) (result any, err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			result, err, panicked = nil, t.recovered(ctx, r), true
		}
	}()
	result, err = t.fn(ctx)
	return result, err, false
}

// recovered reports a panic to the metrics and the panic handler. A panicking
// handler is logged and otherwise ignored.
func (t *modelTask) recovered(ctx context.Context, r any) (err error) {
	m := t.sm.mgr
	stack := debug.Stack()
	err = &PanicError{Value: r, Stack: stack}
	defer func() {
		if hr := recover(); hr != nil {
			m.logger.Error("panic handler panicked",
				F("job", t.name),
				F("session", t.sm.id),
				F("panic", hr))
		}
	}()
	m.metrics.RecordJobPanic(t.sm.id, r)
	m.panicHandler.HandlePanic(ctx, t.info(), r, stack)
	return err
}

// after cleans up a task that ran (or was skipped because it was cancelled)
// and passes the mutex on.
func (t *modelTask) after() {
	t.finalize()
	t.cancel()

	if t.mutexReleased.Load() {
		return
	}
	t.sm.releaseAndDispatch(t)
}

// rejected cleans up a task the pool refused and returns the next owner for
// the caller to dispatch, so a draining pool never recurses.
func (t *modelTask) rejected(err error) *modelTask {
	if l := t.reacquire.Load(); l != nil {
		// The suspended goroutine owns the cleanup of a failed re-acquisition.
		l.signal(err)
		return nil
	}

	m := t.sm.mgr
	if t.future.complete(JobStatusRejected, nil, &JobError{Op: "dispatch", Job: t.name, Session: t.sm.id, Err: err}) {
		m.rejectedCount.Add(1)
		m.metrics.RecordJobRejected(t.sm.id, rejectReason(err))
		m.rejectedHandler.HandleRejectedJob(t.info(), err)
	}
	t.finalize()
	t.cancel()

	if t.mutexReleased.Load() {
		return nil
	}
	return t.sm.releaseOrHandOff(t)
}

// onCancel runs once when the Future is cancelled.
func (t *modelTask) onCancel() {
	t.cancel()

	// A delayed job that was never admitted.
	if t.pending.CompareAndSwap(true, false) {
		t.finalize()
		return
	}

	// A queued job leaves the waiting sequence without running. Jobs waiting
	// to re-acquire stay queued: their goroutine is parked on the latch. The
	// latch is stored before the job re-enters the queue, so checking it under
	// the queue lock cannot miss it.
	notReacquiring := func(*modelTask) bool { return t.reacquire.Load() == nil }
	if t.sm.queue.RemoveIf(t, notReacquiring) {
		t.sm.mgr.metrics.RecordQueueDepth(t.sm.id, t.sm.queue.Len())
		t.finalize()
	}
}

// finalize removes the registry entry; only the first call has an effect.
func (t *modelTask) finalize() {
	if t.finalized.CompareAndSwap(false, true) {
		t.sm.registry.Remove(t.regKey, t)
	}
}

func (t *modelTask) record(panicked bool) {
	m := t.sm.mgr
	finishedAt := time.Now()
	duration := finishedAt.Sub(t.startedAt)
	m.completedCount.Add(1)
	m.metrics.RecordJobDuration(t.sm.id, duration)
	m.history.Add(JobExecutionRecord{
		ID:         t.id,
		Name:       t.name,
		SessionID:  t.sm.id,
		Status:     t.future.Status(),
		StartedAt:  t.startedAt,
		FinishedAt: finishedAt,
		Duration:   duration,
		Panicked:   panicked,
	})
}

// reacquireMutex gets the mutex back after a blocking wait, ahead of jobs that
// queued normally. It blocks until the mutex is granted or the re-acquisition
// is rejected.
func (t *modelTask) reacquireMutex() error {
	sm := t.sm
	if sm.mgr.closed.Load() {
		return t.abandonMutex(ErrManagerShutdown)
	}

	latch := newReacquireLatch()
	t.reacquire.Store(latch)

	if !sm.queue.TryAcquireOrEnqueueHead(t) {
		sm.mgr.metrics.RecordQueueDepth(sm.id, sm.queue.Len())
		if err := latch.wait(); err != nil {
			t.reacquire.Store(nil)
			return t.abandonMutex(err)
		}
	}
	t.reacquire.Store(nil)

	if sm.mgr.closed.Load() {
		return t.abandonMutex(ErrManagerShutdown)
	}

	t.mutexReleased.Store(false)
	t.future.setStatus(JobStatusRunning)
	return nil
}

// abandonMutex ends a failed re-acquisition: whatever ownership was handed to
// the task is passed on, and the task's own Future is cancelled.
func (t *modelTask) abandonMutex(cause error) error {
	t.mutexReleased.Store(true)
	t.sm.releaseAndDispatch(t)
	t.future.Cancel()

	t.sm.mgr.logger.Warn("model mutex re-acquisition rejected",
		F("job", t.name),
		F("id", t.id.String()),
		F("session", t.sm.id),
		F("cause", cause))
	return &JobError{Op: "reacquire", Job: t.name, Session: t.sm.id, Err: fmt.Errorf("%w: %w", ErrReacquireRejected, cause)}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrManagerShutdown), errors.Is(err, ErrPoolShutdown):
		return "shutdown"
	case errors.Is(err, ErrRejected):
		return "rejected"
	default:
		return "error"
	}
}

// =============================================================================
// reacquireLatch
// =============================================================================

// reacquireLatch is the work item dispatched when the mutex is handed back to
// a suspended job. Running it only wakes the job's own goroutine.
type reacquireLatch struct {
	once sync.Once
	ch   chan error
}

func newReacquireLatch() *reacquireLatch {
	return &reacquireLatch{ch: make(chan error, 1)}
}

func (l *reacquireLatch) Run(_ context.Context) { l.signal(nil) }

func (l *reacquireLatch) Reject(err error) { l.signal(err) }

func (l *reacquireLatch) signal(err error) {
	l.once.Do(func() { l.ch <- err })
}

func (l *reacquireLatch) wait() error {
	return <-l.ch
}
