package modeljobs

import "github.com/Swind/go-model-jobs/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the modeljobs package for most use cases.

// JobFunc is the body of a model job
type JobFunc = core.JobFunc

// JobInput describes a submission (session, name, identity, delay)
type JobInput = core.JobInput

// Session is the mutex partition key
type Session = core.Session

// Future is the completion handle of a scheduled job
type Future = core.Future

// JobInfo is a read-only snapshot of a job
type JobInfo = core.JobInfo

// JobStatus is the lifecycle state of a job
type JobStatus = core.JobStatus

// BlockingCondition releases the session mutex while a job waits
type BlockingCondition = core.BlockingCondition

// ModelJobManager is the scheduler façade
type ModelJobManager = core.ModelJobManager

// ThreadPool is re-exported for type compatibility
type ThreadPool = core.ThreadPool

// JobMiddleware wraps job execution
type JobMiddleware = core.JobMiddleware

// Status constants
const (
	JobStatusPending   = core.JobStatusPending
	JobStatusQueued    = core.JobStatusQueued
	JobStatusRunning   = core.JobStatusRunning
	JobStatusBlocked   = core.JobStatusBlocked
	JobStatusCompleted = core.JobStatusCompleted
	JobStatusFailed    = core.JobStatusFailed
	JobStatusCancelled = core.JobStatusCancelled
	JobStatusRejected  = core.JobStatusRejected
)

// Error kinds
var (
	ErrUsage                       = core.ErrUsage
	ErrRejected                    = core.ErrRejected
	ErrReacquireRejected           = core.ErrReacquireRejected
	ErrInterruptedWhileReacquiring = core.ErrInterruptedWhileReacquiring
	ErrCancelled                   = core.ErrCancelled
	ErrTimeout                     = core.ErrTimeout
	ErrManagerShutdown             = core.ErrManagerShutdown
	ErrPoolShutdown                = core.ErrPoolShutdown
)

// NewSession returns a Session identified by id.
var NewSession = core.NewSession

// CurrentJob returns the job bound to a job context
var CurrentJob = core.CurrentJob
