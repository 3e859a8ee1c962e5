package core

import "time"

// JobExecutionRecord captures one finished model job.
type JobExecutionRecord struct {
	ID         TaskID
	Name       string
	SessionID  string
	Status     JobStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// SessionStats is a point-in-time view of one session's mutex.
type SessionStats struct {
	SessionID string
	Idle      bool
	Owner     string // name of the owning job, empty when idle
	Waiting   int
	Live      int // registry entries
	Blocked   int
}

// ManagerStats is a point-in-time view of a ModelJobManager.
type ManagerStats struct {
	Name      string
	Sessions  int
	Live      int
	Waiting   int
	Blocked   int
	Completed int64
	Rejected  int64
	HandOffs  int64
	Closed    bool
	Pool      PoolStats
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID         string
	Workers    int
	Idle       int
	Queued     int
	Active     int
	MinWorkers int
	MaxWorkers int
	Running    bool
}
