package core

import "sync/atomic"

// sessionMutex is the per-session partition of a ModelJobManager: one
// admission queue and one registry.
type sessionMutex struct {
	id       string
	mgr      *ModelJobManager
	queue    *AdmissionQueue[*modelTask]
	registry *JobRegistry[*modelTask]

	// blocked counts jobs of this session parked on a blocking condition.
	blocked atomic.Int32
}

func newSessionMutex(m *ModelJobManager, id string) *sessionMutex {
	return &sessionMutex{
		id:       id,
		mgr:      m,
		queue:    NewAdmissionQueue[*modelTask](),
		registry: NewJobRegistry[*modelTask](),
	}
}

// admit puts t through the admission queue, dispatching it if it got the mutex.
func (sm *sessionMutex) admit(t *modelTask) {
	if t.future.IsDone() {
		t.finalize()
		return
	}

	t.future.setStatus(JobStatusQueued)
	if sm.queue.TryAcquireOrEnqueueTail(t) {
		sm.dispatch(t)
		return
	}
	sm.mgr.metrics.RecordQueueDepth(sm.id, sm.queue.Len())
}

// admitDelayed is the delay manager callback for t.
func (sm *sessionMutex) admitDelayed(t *modelTask) {
	if !t.pending.CompareAndSwap(true, false) {
		// Cancelled while pending.
		return
	}
	if sm.mgr.closed.Load() {
		t.future.Cancel()
		t.finalize()
		return
	}
	sm.admit(t)
}

// dispatch submits owners to the pool. A rejected owner hands the mutex to the
// next one, which is retried here instead of recursing.
func (sm *sessionMutex) dispatch(t *modelTask) {
	for t != nil {
		err := t.submit()
		if err == nil {
			return
		}
		t = t.rejected(err)
	}
}

// releaseOrHandOff releases the mutex held by t and returns the next owner,
// or nil if the mutex went idle or t was not the owner.
func (sm *sessionMutex) releaseOrHandOff(t *modelTask) *modelTask {
	next, ok := sm.queue.ReleaseOrHandOff(t)
	if !ok {
		return nil
	}
	sm.mgr.handOffs.Add(1)
	sm.mgr.metrics.RecordMutexHandOff(sm.id)
	sm.mgr.metrics.RecordQueueDepth(sm.id, sm.queue.Len())
	return next
}

func (sm *sessionMutex) releaseAndDispatch(t *modelTask) {
	sm.dispatch(sm.releaseOrHandOff(t))
}

func (sm *sessionMutex) stats() SessionStats {
	st := SessionStats{
		SessionID: sm.id,
		Idle:      sm.queue.IsIdle(),
		Waiting:   sm.queue.Len(),
		Live:      sm.registry.Len(),
		Blocked:   int(sm.blocked.Load()),
	}
	if owner, ok := sm.queue.Owner(); ok {
		st.Owner = owner.name
	}
	return st
}
