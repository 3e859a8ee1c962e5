package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling job panics
// =============================================================================

// PanicHandler is called when a job body panics. The job's Future fails with a
// *PanicError and the session mutex is handed off as usual.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	HandlePanic(ctx context.Context, job JobInfo, panicInfo any, stackTrace []byte)
}

// LoggingPanicHandler logs panics with their stack trace.
type LoggingPanicHandler struct {
	Logger Logger
}

func (h *LoggingPanicHandler) HandlePanic(ctx context.Context, job JobInfo, panicInfo any, stackTrace []byte) {
	h.Logger.Error("model job panicked",
		F("job", job.Name),
		F("id", job.ID.String()),
		F("session", job.SessionID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting model job metrics.
// Methods should be non-blocking and fast; they run on the hand-off path.
type Metrics interface {
	// RecordJobDuration records how long a job body ran, blocking waits included.
	RecordJobDuration(session string, duration time.Duration)

	// RecordJobPanic records that a job body panicked.
	RecordJobPanic(session string, panicInfo any)

	// RecordQueueDepth records the number of jobs waiting for a session mutex.
	RecordQueueDepth(session string, depth int)

	// RecordJobRejected records that the pool refused a job.
	RecordJobRejected(session string, reason string)

	// RecordMutexHandOff records a direct transfer of the mutex to a waiting job.
	RecordMutexHandOff(session string)

	// RecordBlocked adds delta to the number of jobs parked on a blocking condition.
	RecordBlocked(condition string, delta int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordJobDuration(session string, duration time.Duration) {}
func (m *NilMetrics) RecordJobPanic(session string, panicInfo any)             {}
func (m *NilMetrics) RecordQueueDepth(session string, depth int)               {}
func (m *NilMetrics) RecordJobRejected(session string, reason string)          {}
func (m *NilMetrics) RecordMutexHandOff(session string)                        {}
func (m *NilMetrics) RecordBlocked(condition string, delta int)                {}

// =============================================================================
// RejectedJobHandler: Interface for handling rejected jobs
// =============================================================================

// RejectedJobHandler is called when the worker pool refuses a job, which
// happens while the pool or the manager is shutting down.
type RejectedJobHandler interface {
	HandleRejectedJob(job JobInfo, reason error)
}

// LoggingRejectedJobHandler logs rejected jobs at warn level.
type LoggingRejectedJobHandler struct {
	Logger Logger
}

func (h *LoggingRejectedJobHandler) HandleRejectedJob(job JobInfo, reason error) {
	h.Logger.Warn("model job rejected",
		F("job", job.Name),
		F("id", job.ID.String()),
		F("session", job.SessionID),
		F("reason", reason))
}

// =============================================================================
// JobMiddleware: explicit before/after composition
// =============================================================================

// JobMiddleware wraps job execution. The manager applies BeforeJob hooks in
// order and AfterJob hooks in reverse order, on the dispatching goroutine.
type JobMiddleware interface {
	// BeforeJob may derive a new context for the body.
	BeforeJob(ctx context.Context, job JobInfo) context.Context
	// AfterJob sees the body's error, or the panic converted to *PanicError.
	AfterJob(ctx context.Context, job JobInfo, err error)
}

// MiddlewareFuncs adapts a pair of functions to JobMiddleware. Nil fields are skipped.
type MiddlewareFuncs struct {
	Before func(ctx context.Context, job JobInfo) context.Context
	After  func(ctx context.Context, job JobInfo, err error)
}

func (m MiddlewareFuncs) BeforeJob(ctx context.Context, job JobInfo) context.Context {
	if m.Before == nil {
		return ctx
	}
	return m.Before(ctx, job)
}

func (m MiddlewareFuncs) AfterJob(ctx context.Context, job JobInfo, err error) {
	if m.After != nil {
		m.After(ctx, job, err)
	}
}

// LoggingMiddleware logs job start and end at debug level, failures at warn.
func LoggingMiddleware(logger Logger) JobMiddleware {
	return MiddlewareFuncs{
		Before: func(ctx context.Context, job JobInfo) context.Context {
			logger.Debug("model job started",
				F("job", job.Name),
				F("id", job.ID.String()),
				F("session", job.SessionID))
			return ctx
		},
		After: func(ctx context.Context, job JobInfo, err error) {
			if err != nil {
				logger.Warn("model job failed",
					F("job", job.Name),
					F("id", job.ID.String()),
					F("session", job.SessionID),
					F("error", err))
				return
			}
			logger.Debug("model job finished",
				F("job", job.Name),
				F("id", job.ID.String()),
				F("session", job.SessionID))
		},
	}
}

// =============================================================================
// ManagerConfig: Configuration for ModelJobManager
// =============================================================================

// ManagerConfig holds configuration options for ModelJobManager.
// All handlers are optional; if not provided, default implementations will be used.
type ManagerConfig struct {
	// Name labels the manager in logs and stats. Defaults to "model-jobs".
	Name string

	// Logger defaults to NoOpLogger.
	Logger Logger

	// PanicHandler defaults to LoggingPanicHandler.
	PanicHandler PanicHandler

	// RejectedJobHandler defaults to LoggingRejectedJobHandler.
	RejectedJobHandler RejectedJobHandler

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// Middleware runs around every job body, in order.
	Middleware []JobMiddleware

	// HistoryCapacity bounds RecentJobs. Defaults to 100.
	HistoryCapacity int
}

// DefaultManagerConfig returns a config with default handlers.
func DefaultManagerConfig() *ManagerConfig {
	logger := NewNoOpLogger()
	return &ManagerConfig{
		Name:               "model-jobs",
		Logger:             logger,
		PanicHandler:       &LoggingPanicHandler{Logger: logger},
		RejectedJobHandler: &LoggingRejectedJobHandler{Logger: logger},
		Metrics:            &NilMetrics{},
		HistoryCapacity:    defaultTaskHistoryCapacity,
	}
}
