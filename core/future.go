package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Future is the completion handle of a scheduled job.
//
// A Future becomes done exactly once: on normal completion, on failure, on
// rejection or on cancellation. Cancelling a running job completes its Future
// immediately with ErrCancelled; the body keeps the session mutex until it
// returns, so awaiting the Future does not imply the session is idle.
type Future struct {
	id          TaskID
	name        string
	identity    string
	sessionID   string
	scheduledAt time.Time

	status atomic.Int32
	done   chan struct{}
	once   sync.Once

	result any
	err    error

	// cancelHook is installed by the owning task; it runs once, outside any lock.
	cancelHook func()
}

func newFuture(id TaskID, name, identity, sessionID string) *Future {
	f := &Future{
		id:          id,
		name:        name,
		identity:    identity,
		sessionID:   sessionID,
		scheduledAt: time.Now(),
		done:        make(chan struct{}),
	}
	f.status.Store(int32(JobStatusPending))
	return f
}

// ID returns the job's TaskID.
func (f *Future) ID() TaskID { return f.id }

// Name returns the job name given at submission.
func (f *Future) Name() string { return f.name }

// Status returns the current lifecycle state of the job.
func (f *Future) Status() JobStatus { return JobStatus(f.status.Load()) }

// Info returns a snapshot of the job.
func (f *Future) Info() JobInfo {
	return JobInfo{
		ID:          f.id,
		Name:        f.name,
		Identity:    f.identity,
		SessionID:   f.sessionID,
		Status:      f.Status(),
		ScheduledAt: f.scheduledAt,
	}
}

// Done is closed once the job reached a terminal state.
func (f *Future) Done() <-chan struct{} { return f.done }

func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *Future) IsCancelled() bool {
	return f.Status() == JobStatusCancelled
}

// Result returns the outcome without blocking; ok is false while the job is live.
func (f *Future) Result() (result any, err error, ok bool) {
	if !f.IsDone() {
		return nil, nil, false
	}
	return f.result, f.err, true
}

// Await blocks until the job is done or ctx ends.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AwaitTimeout blocks until the job is done or timeout elapses (ErrTimeout).
func (f *Future) AwaitTimeout(timeout time.Duration) (any, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.result, f.err
	case <-timer.C:
		return nil, &JobError{Op: "await", Job: f.name, Session: f.sessionID, Err: ErrTimeout}
	}
}

// Cancel cancels the job. It returns false if the job was already done.
func (f *Future) Cancel() bool {
	if !f.complete(JobStatusCancelled, nil, &JobError{Op: "cancel", Job: f.name, Session: f.sessionID, Err: ErrCancelled}) {
		return false
	}
	if f.cancelHook != nil {
		f.cancelHook()
	}
	return true
}

// setStatus moves a live Future to a non-terminal state.
func (f *Future) setStatus(s JobStatus) {
	for {
		cur := f.status.Load()
		if JobStatus(cur).IsTerminal() {
			return
		}
		if f.status.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// complete settles the Future; only the first call wins.
func (f *Future) complete(s JobStatus, result any, err error) bool {
	won := false
	f.once.Do(func() {
		f.result = result
		f.err = err
		f.status.Store(int32(s))
		close(f.done)
		won = true
	})
	return won
}
