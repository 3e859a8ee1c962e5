package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testThreadPool is a growable pool over TaskScheduler, like the root
// package's GoroutineThreadPool.
type testThreadPool struct {
	scheduler *TaskScheduler
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// reject makes Execute refuse every item.
	reject atomic.Bool
}

func newTestThreadPool() *testThreadPool {
	ctx, cancel := context.WithCancel(context.Background())
	tp := &testThreadPool{
		scheduler: NewTaskScheduler(&TaskSchedulerConfig{
			MinWorkers: 2,
			KeepAlive:  time.Second,
		}),
		ctx:    ctx,
		cancel: cancel,
	}
	for range tp.scheduler.Reserve() {
		tp.spawn()
	}
	return tp
}

func (tp *testThreadPool) spawn() {
	tp.wg.Add(1)
	go func() {
		defer tp.wg.Done()
		wake := make(chan struct{}, 1)
		for {
			item, ok := tp.scheduler.GetWork(wake, tp.ctx.Done())
			if !ok {
				return
			}
			tp.scheduler.RunWork(func() { item.Run(tp.ctx) })
		}
	}()
}

func (tp *testThreadPool) Execute(item WorkItem) error {
	if tp.reject.Load() {
		return fmt.Errorf("%w: test pool refuses work", ErrRejected)
	}
	spawn, err := tp.scheduler.Post(item)
	if err != nil {
		return err
	}
	if spawn {
		tp.spawn()
	}
	return nil
}

func (tp *testThreadPool) Shutdown() { tp.scheduler.Shutdown() }

func (tp *testThreadPool) AwaitTermination(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		tp.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tp *testThreadPool) Stats() PoolStats {
	return PoolStats{
		ID:      "test-pool",
		Workers: tp.scheduler.WorkerCount(),
		Idle:    tp.scheduler.IdleWorkerCount(),
		Queued:  tp.scheduler.QueuedTaskCount(),
		Active:  tp.scheduler.ActiveTaskCount(),
		Running: !tp.scheduler.IsShuttingDown(),
	}
}

func (tp *testThreadPool) stop() {
	tp.scheduler.Shutdown()
	tp.cancel()
}

// =============================================================================
// Test handlers
// =============================================================================

type recordingPanicHandler struct {
	mu    sync.Mutex
	calls []any
}

func (h *recordingPanicHandler) HandlePanic(ctx context.Context, job JobInfo, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, panicInfo)
}

func (h *recordingPanicHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type recordingRejectedHandler struct {
	mu   sync.Mutex
	jobs []string
}

func (h *recordingRejectedHandler) HandleRejectedJob(job JobInfo, reason error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, job.Name)
}

func (h *recordingRejectedHandler) names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.jobs...)
}

// =============================================================================
// Helpers
// =============================================================================

func newTestManager(t *testing.T) (*ModelJobManager, *testThreadPool) {
	t.Helper()
	return newTestManagerWithConfig(t, DefaultManagerConfig())
}

func newTestManagerWithConfig(t *testing.T, cfg *ManagerConfig) (*ModelJobManager, *testThreadPool) {
	t.Helper()
	pool := newTestThreadPool()
	m := NewModelJobManager(pool, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
		pool.stop()
	})
	return m, pool
}

func awaitFuture(t *testing.T, f *Future) (any, error) {
	t.Helper()
	select {
	case <-f.Done():
		r, err, _ := f.Result()
		return r, err
	case <-time.After(5 * time.Second):
		t.Fatalf("future %s not done within timeout (status %s)", f.Name(), f.Status())
		return nil, nil
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

// orderLog records events from concurrent jobs.
type orderLog struct {
	mu     sync.Mutex
	events []string
}

func (l *orderLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *orderLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
