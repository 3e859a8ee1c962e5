package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobFunc is the body of a model job. The context is cancelled when the job is
// cancelled and carries the job binding used by RunNow and blocking conditions.
type JobFunc func(ctx context.Context) (any, error)

// TaskID uniquely identifies one scheduled job.
type TaskID uuid.UUID

// GenerateTaskID returns a time-ordered unique id.
func GenerateTaskID() TaskID {
	id, err := uuid.NewV7()
	if err != nil {
		return TaskID(uuid.New())
	}
	return TaskID(id)
}

func (id TaskID) String() string { return uuid.UUID(id).String() }

func (id TaskID) IsZero() bool { return id == (TaskID{}) }

// =============================================================================
// JobStatus
// =============================================================================

type JobStatus int32

const (
	JobStatusPending JobStatus = iota
	JobStatusQueued
	JobStatusRunning
	JobStatusBlocked
	JobStatusCompleted
	JobStatusFailed
	JobStatusCancelled
	JobStatusRejected
)

func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "PENDING"
	case JobStatusQueued:
		return "QUEUED"
	case JobStatusRunning:
		return "RUNNING"
	case JobStatusBlocked:
		return "BLOCKED"
	case JobStatusCompleted:
		return "COMPLETED"
	case JobStatusFailed:
		return "FAILED"
	case JobStatusCancelled:
		return "CANCELLED"
	case JobStatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transition can happen.
func (s JobStatus) IsTerminal() bool {
	return s >= JobStatusCompleted
}

// =============================================================================
// JobInput: what the caller asks for
// =============================================================================

// Session is the mutex partition key. Jobs of one session run one at a time;
// jobs of different sessions run in parallel.
type Session interface {
	SessionID() string
}

type staticSession string

func (s staticSession) SessionID() string { return string(s) }

// NewSession returns a Session identified by id.
func NewSession(id string) Session { return staticSession(id) }

// JobInput describes a job submission.
type JobInput struct {
	Session Session
	// Name is used in logs, metrics and history.
	Name string
	// Identity suppresses duplicate submissions: while a job with the same
	// identity is live in the session, scheduling returns its Future.
	// Empty means no suppression.
	Identity string
	// Delay postpones admission to the session mutex.
	Delay time.Duration
}

// JobInfo is a read-only snapshot of a job.
type JobInfo struct {
	ID          TaskID
	Name        string
	Identity    string
	SessionID   string
	Status      JobStatus
	ScheduledAt time.Time
}

// =============================================================================
// ThreadPool: the execution engine behind the manager
// =============================================================================

// WorkItem is what the manager hands to a ThreadPool.
type WorkItem interface {
	// Run executes the item on a pool goroutine.
	Run(ctx context.Context)
	// Reject is called when an accepted item is dropped before running,
	// e.g. because the pool shut down while it was queued.
	Reject(err error)
}

// ThreadPool runs work items on pooled goroutines. It must not serialize work:
// mutual exclusion is the manager's job.
type ThreadPool interface {
	// Execute accepts item for execution, or returns an error wrapping
	// ErrRejected without calling item.Reject.
	Execute(item WorkItem) error
	// Shutdown stops accepting work and rejects queued items. It does not wait.
	Shutdown()
	// AwaitTermination waits until every worker goroutine has exited.
	AwaitTermination(ctx context.Context) error
	Stats() PoolStats
}

// =============================================================================
// Context Helper
// =============================================================================

type jobKeyType struct{}

var jobKey jobKeyType

func withJob(ctx context.Context, t *modelTask) context.Context {
	return context.WithValue(ctx, jobKey, t)
}

func jobFromContext(ctx context.Context) *modelTask {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(jobKey).(*modelTask); ok {
		return v
	}
	return nil
}

// CurrentJob returns the job bound to ctx, if ctx was handed to a job body.
func CurrentJob(ctx context.Context) (JobInfo, bool) {
	t := jobFromContext(ctx)
	if t == nil {
		return JobInfo{}, false
	}
	return t.info(), true
}

// CurrentFuture returns the Future of the job bound to ctx, or nil.
func CurrentFuture(ctx context.Context) *Future {
	if t := jobFromContext(ctx); t != nil {
		return t.future
	}
	return nil
}
