// Package modeljobs schedules model jobs under a per-session mutex.
//
// Application state that belongs to a session (a document, a model, a user
// workspace) must only be touched by one job at a time. Instead of locking,
// callers submit jobs; the manager runs at most one job per session and
// hands the session mutex directly from a finishing job to the next queued
// one. Jobs of different sessions run in parallel on one shared, growable
// goroutine pool.
//
// # Quick Start
//
//	mgr := modeljobs.NewManager(modeljobs.Options{Name: "editor"})
//	defer mgr.Shutdown(context.Background())
//
//	doc := modeljobs.NewSession("doc-42")
//	f, err := mgr.Schedule(modeljobs.JobInput{Session: doc, Name: "reindex"},
//		func(ctx context.Context) (any, error) {
//			// Exclusive access to doc-42 state.
//			return nil, nil
//		})
//	if err != nil {
//		return err
//	}
//	_, err = f.Await(ctx)
//
// # Key Concepts
//
// Session: the mutex partition key. Each session lazily gets an admission
// queue (owner plus FIFO of waiters) and a job registry.
//
// Identity: a non-empty JobInput.Identity suppresses duplicates. While a job
// with that identity is live, scheduling it again returns the same Future.
//
// BlockingCondition: a job that must wait for something outside the model
// calls ReleaseMutexAndAwait with its job context. Other jobs of the session
// run meanwhile; the waiter re-acquires the mutex ahead of jobs that queued
// while it was suspended.
//
// RunNow: a running job may run nested work synchronously under the mutex it
// already holds.
//
// # Shutdown
//
// Shutdown refuses new jobs, shuts the pool down, cancels every live Future
// and clears the session mutexes. Jobs parked on a blocking condition are
// woken and fail with ErrInterruptedWhileReacquiring.
package modeljobs
