package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// ModelJobManager - per-session mutual exclusion over a shared pool
// =============================================================================

// ModelJobManager schedules model jobs so that at most one job per session
// runs at a time, while jobs of different sessions share one worker pool.
//
// Each session owns an AdmissionQueue (its mutex) and a JobRegistry (duplicate
// suppression and cancellation lookup). A finishing job hands the mutex
// directly to the next queued job; a job waiting on a BlockingCondition gives
// it up for the duration of the wait.
type ModelJobManager struct {
	name string
	pool ThreadPool

	sessionsMu sync.Mutex
	sessions   map[string]*sessionMutex

	delay *DelayManager

	// Handlers and Metrics
	logger          Logger
	panicHandler    PanicHandler
	rejectedHandler RejectedJobHandler
	metrics         Metrics
	middleware      []JobMiddleware
	history         *executionHistory

	// rootCtx is the parent of every job context; Shutdown cancels it.
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// done is closed by Shutdown and wakes blocked jobs.
	done   chan struct{}
	closed atomic.Bool

	completedCount atomic.Int64
	rejectedCount  atomic.Int64
	handOffs       atomic.Int64
}

// NewModelJobManager creates a manager that dispatches onto pool. The manager
// owns the pool from then on: Shutdown shuts it down.
func NewModelJobManager(pool ThreadPool, config *ManagerConfig) *ModelJobManager {
	if config == nil {
		config = DefaultManagerConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &ModelJobManager{
		name:            config.Name,
		pool:            pool,
		sessions:        make(map[string]*sessionMutex),
		delay:           NewDelayManager(),
		logger:          config.Logger,
		panicHandler:    config.PanicHandler,
		rejectedHandler: config.RejectedJobHandler,
		metrics:         config.Metrics,
		middleware:      append([]JobMiddleware(nil), config.Middleware...),
		history:         newExecutionHistory(config.HistoryCapacity),
		rootCtx:         ctx,
		rootCancel:      cancel,
		done:            make(chan struct{}),
	}

	// Use defaults if not provided
	if m.name == "" {
		m.name = "model-jobs"
	}
	if m.logger == nil {
		m.logger = NewNoOpLogger()
	}
	if m.panicHandler == nil {
		m.panicHandler = &LoggingPanicHandler{Logger: m.logger}
	}
	if m.rejectedHandler == nil {
		m.rejectedHandler = &LoggingRejectedJobHandler{Logger: m.logger}
	}
	if m.metrics == nil {
		m.metrics = &NilMetrics{}
	}

	return m
}

func (m *ModelJobManager) Name() string { return m.name }

// session returns the partition for id, creating it on first use.
func (m *ModelJobManager) session(id string) *sessionMutex {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()

	sm, ok := m.sessions[id]
	if !ok {
		sm = newSessionMutex(m, id)
		m.sessions[id] = sm
	}
	return sm
}

func (m *ModelJobManager) lookupSession(id string) (*sessionMutex, bool) {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	sm, ok := m.sessions[id]
	return sm, ok
}

func (m *ModelJobManager) sessionList() []*sessionMutex {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()

	out := make([]*sessionMutex, 0, len(m.sessions))
	for _, sm := range m.sessions {
		out = append(out, sm)
	}
	return out
}

// =============================================================================
// Scheduling
// =============================================================================

// Schedule submits fn to run under the session mutex of input.Session and
// returns its Future right away.
//
// While a job with the same non-empty Identity is live in the session, the
// existing Future is returned and fn is dropped. This is not an error. A
// running job stays live until its body returns, even after Cancel, so
// resubmitting its identity meanwhile returns the cancelled Future. Lookup
// reports whether the identity is still live.
func (m *ModelJobManager) Schedule(input JobInput, fn JobFunc) (*Future, error) {
	if fn == nil {
		return nil, usageError("schedule", "nil job function")
	}
	if input.Session == nil {
		return nil, usageError("schedule", "job %q has no session", input.Name)
	}
	if input.Delay < 0 {
		return nil, usageError("schedule", "negative delay %v", input.Delay)
	}

	sessionID := input.Session.SessionID()
	if m.closed.Load() {
		return nil, &JobError{Op: "schedule", Job: input.Name, Session: sessionID, Err: ErrManagerShutdown}
	}

	sm := m.session(sessionID)
	id := GenerateTaskID()
	key := input.Identity
	if key == "" {
		key = id.String()
	}

	t, created := sm.registry.RegisterOrReject(key, func() *modelTask {
		return newModelTask(sm, id, key, input, fn)
	})
	if !created {
		m.logger.Debug("duplicate model job suppressed",
			F("job", input.Name),
			F("identity", input.Identity),
			F("session", sessionID),
			F("existing", t.id.String()))
		return t.future, nil
	}

	// Shutdown may have taken its registry snapshot before this entry existed.
	if m.closed.Load() {
		t.future.Cancel()
		t.finalize()
		return nil, &JobError{Op: "schedule", Job: t.name, Session: sessionID, Err: ErrManagerShutdown}
	}

	if input.Delay > 0 {
		t.pending.Store(true)
		if !m.delay.AddDelayed(input.Delay, func() { sm.admitDelayed(t) }) {
			t.future.Cancel()
			return nil, &JobError{Op: "schedule", Job: t.name, Session: sessionID, Err: ErrManagerShutdown}
		}
		return t.future, nil
	}

	sm.admit(t)
	return t.future, nil
}

// ScheduleAndWait schedules fn and waits for its result. Waiting ends early
// when ctx does; the job itself keeps running in that case.
//
// A job must not wait for another job of its own session: the inner job could
// never get the mutex, so that call is a usage error.
func (m *ModelJobManager) ScheduleAndWait(ctx context.Context, input JobInput, fn JobFunc) (any, error) {
	if input.Session != nil {
		if t := jobFromContext(ctx); t != nil && t.sm.mgr == m && t.sm.id == input.Session.SessionID() && t.ownsMutex() {
			return nil, usageError("schedule", "job %s would wait for its own session %s", t.name, t.sm.id)
		}
	}
	f, err := m.Schedule(input, fn)
	if err != nil {
		return nil, err
	}
	return f.Await(ctx)
}

// RunNow runs fn synchronously on the calling goroutine, which must be the one
// running the current mutex owner of this manager (ctx is the job context).
func (m *ModelJobManager) RunNow(ctx context.Context, fn JobFunc) (any, error) {
	if fn == nil {
		return nil, usageError("run", "nil job function")
	}
	t := jobFromContext(ctx)
	if t == nil || t.sm.mgr != m {
		return nil, usageError("run", "not called from a job of manager %s", m.name)
	}
	if !t.ownsMutex() {
		return nil, usageError("run", "job %s does not own the %s mutex", t.name, t.sm.id)
	}
	if m.closed.Load() {
		return nil, usageError("run", "manager %s is shut down", m.name)
	}
	return fn(ctx)
}

// =============================================================================
// Queries and control
// =============================================================================

// Lookup returns the Future of the live job with identity in session.
func (m *ModelJobManager) Lookup(session Session, identity string) (*Future, bool) {
	sm, ok := m.lookupSession(session.SessionID())
	if !ok {
		return nil, false
	}
	t, ok := sm.registry.Lookup(identity)
	if !ok {
		return nil, false
	}
	return t.future, true
}

// Cancel cancels the live job with identity in session. A queued job is
// removed without running; a running job sees its context cancelled.
func (m *ModelJobManager) Cancel(session Session, identity string) bool {
	f, ok := m.Lookup(session, identity)
	if !ok {
		return false
	}
	return f.Cancel()
}

// IsBlocked reports whether the live job with identity waits on a blocking
// condition. A cancelled job still parked on its condition counts as blocked.
func (m *ModelJobManager) IsBlocked(session Session, identity string) bool {
	sm, ok := m.lookupSession(session.SessionID())
	if !ok {
		return false
	}
	t, ok := sm.registry.Lookup(identity)
	return ok && t.blocked.Load()
}

// IsIdle reports whether no job owns the session mutex.
func (m *ModelJobManager) IsIdle(session Session) bool {
	sm, ok := m.lookupSession(session.SessionID())
	return !ok || sm.queue.IsIdle()
}

// IsAllIdle reports whether every session mutex is free.
func (m *ModelJobManager) IsAllIdle() bool {
	for _, sm := range m.sessionList() {
		if !sm.queue.IsIdle() {
			return false
		}
	}
	return true
}

// IsModelThread reports whether ctx belongs to a job of this manager that
// currently owns its session mutex.
func (m *ModelJobManager) IsModelThread(ctx context.Context) bool {
	t := jobFromContext(ctx)
	return t != nil && t.sm.mgr == m && t.ownsMutex()
}

// WaitForIdle blocks until the session mutex is free, ctx ends or timeout
// (if positive) elapses, in which case ErrTimeout is returned. The owner of
// the session mutex must not call it.
func (m *ModelJobManager) WaitForIdle(ctx context.Context, session Session, timeout time.Duration) error {
	sessionID := session.SessionID()
	if t := jobFromContext(ctx); t != nil && t.sm.mgr == m && t.sm.id == sessionID && t.ownsMutex() {
		return usageError("wait", "job %s would wait for its own release of %s", t.name, sessionID)
	}

	sm, ok := m.lookupSession(sessionID)
	if !ok {
		return nil
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := sm.queue.WaitForIdle(waitCtx); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return &JobError{Op: "wait", Session: sessionID, Err: ErrTimeout}
		}
		return err
	}
	return nil
}

// NewBlockingCondition creates a condition whose waiters belong to this manager.
func (m *ModelJobManager) NewBlockingCondition(name string, blocking bool) *BlockingCondition {
	return newBlockingCondition(m, name, blocking)
}

// CloseSession cancels every live job of session, waits for its mutex to go
// idle and drops the partition. Jobs scheduled meanwhile keep it alive.
func (m *ModelJobManager) CloseSession(ctx context.Context, session Session) error {
	sessionID := session.SessionID()
	if t := jobFromContext(ctx); t != nil && t.sm.mgr == m && t.sm.id == sessionID {
		return usageError("close", "job %s cannot close its own session %s", t.name, sessionID)
	}

	sm, ok := m.lookupSession(sessionID)
	if !ok {
		return nil
	}

	for _, t := range sm.registry.Snapshot() {
		t.future.Cancel()
	}
	if err := sm.queue.WaitForIdle(ctx); err != nil {
		return err
	}

	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	if m.sessions[sessionID] == sm && sm.queue.IsIdle() && sm.registry.Len() == 0 {
		delete(m.sessions, sessionID)
		m.logger.Debug("model session closed", F("session", sessionID))
	}
	return nil
}

// =============================================================================
// Observability
// =============================================================================

// Stats returns a snapshot of the manager, its sessions and its pool.
func (m *ModelJobManager) Stats() ManagerStats {
	st := ManagerStats{
		Name:      m.name,
		Completed: m.completedCount.Load(),
		Rejected:  m.rejectedCount.Load(),
		HandOffs:  m.handOffs.Load(),
		Closed:    m.closed.Load(),
		Pool:      m.pool.Stats(),
	}
	for _, sm := range m.sessionList() {
		ss := sm.stats()
		st.Sessions++
		st.Live += ss.Live
		st.Waiting += ss.Waiting
		st.Blocked += ss.Blocked
	}
	return st
}

// SessionStats returns one snapshot per known session, ordered by id.
func (m *ModelJobManager) SessionStats() []SessionStats {
	sessions := m.sessionList()
	out := make([]SessionStats, 0, len(sessions))
	for _, sm := range sessions {
		out = append(out, sm.stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// RecentJobs returns up to limit finished jobs, newest first.
func (m *ModelJobManager) RecentJobs(limit int) []JobExecutionRecord {
	return m.history.Recent(limit)
}

// =============================================================================
// Lifecycle Management
// =============================================================================

// Shutdown stops the manager: new submissions are refused, every live Future
// is cancelled, the pool shuts down and every session mutex is cleared so no
// further hand-off happens. Blocked jobs are woken and fail their
// re-acquisition. It then waits for the pool goroutines until ctx ends.
//
// Calling Shutdown again returns nil.
func (m *ModelJobManager) Shutdown(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.logger.Info("shutting down model job manager", F("manager", m.name))

	close(m.done)
	m.delay.Stop()

	// Futures are cancelled before the pool drops its queue, so an owner
	// still waiting in the pool settles as CANCELLED rather than REJECTED.
	sessions := m.sessionList()
	for _, sm := range sessions {
		for _, t := range sm.registry.Snapshot() {
			t.future.Cancel()
		}
	}
	m.pool.Shutdown()

	for _, sm := range sessions {
		for _, t := range sm.queue.Clear() {
			if l := t.reacquire.Load(); l != nil {
				l.signal(ErrInterruptedWhileReacquiring)
				continue
			}
			t.future.Cancel()
			t.finalize()
		}
		m.metrics.RecordQueueDepth(sm.id, 0)
	}

	m.rootCancel()

	if err := m.pool.AwaitTermination(ctx); err != nil {
		return fmt.Errorf("model job manager %s: %w", m.name, err)
	}
	m.logger.Info("model job manager stopped",
		F("manager", m.name),
		F("completed", m.completedCount.Load()),
		F("rejected", m.rejectedCount.Load()))
	return nil
}

// IsClosed reports whether Shutdown has been called.
func (m *ModelJobManager) IsClosed() bool {
	return m.closed.Load()
}
