package core

import (
	"errors"
	"fmt"
)

// Error kinds. Callers branch on them with errors.Is.
var (
	// ErrUsage reports a call made from the wrong context, such as a blocking
	// wait or RunNow outside the goroutine that currently owns the session mutex.
	ErrUsage = errors.New("model job usage error")

	// ErrRejected reports that the worker pool refused to run a job.
	ErrRejected = errors.New("model job rejected")

	// ErrPoolShutdown is returned by a ThreadPool that no longer accepts work.
	ErrPoolShutdown = fmt.Errorf("%w: worker pool shut down", ErrRejected)

	// ErrManagerShutdown is returned when scheduling on a manager that has been shut down.
	ErrManagerShutdown = fmt.Errorf("%w: model job manager shut down", ErrRejected)

	// ErrReacquireRejected is returned from a blocking wait when the mutex could not
	// be re-acquired. The calling job is cancelled and must stop.
	ErrReacquireRejected = fmt.Errorf("%w: mutex re-acquisition rejected", ErrRejected)

	// ErrInterruptedWhileReacquiring is returned from a blocking wait that was
	// aborted by manager shutdown. The calling job is cancelled and must stop.
	ErrInterruptedWhileReacquiring = errors.New("interrupted while re-acquiring model mutex")

	// ErrCancelled is the result of a Future whose job was cancelled.
	ErrCancelled = errors.New("model job cancelled")

	// ErrTimeout reports an elapsed wait timeout.
	ErrTimeout = errors.New("model job wait timed out")
)

// JobError attaches the operation and job identity to an error kind.
type JobError struct {
	Op      string
	Job     string
	Session string
	Err     error
}

func (e *JobError) Error() string {
	switch {
	case e.Job != "" && e.Session != "":
		return fmt.Sprintf("%s %s@%s: %v", e.Op, e.Job, e.Session, e.Err)
	case e.Job != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Job, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *JobError) Unwrap() error { return e.Err }

// PanicError is stored on the Future of a job whose body panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("model job panicked: %v", e.Value)
}

func usageError(op string, format string, args ...any) error {
	return &JobError{Op: op, Err: fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))}
}
