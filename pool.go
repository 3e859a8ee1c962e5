package modeljobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Swind/go-model-jobs/core"
)

// ErrPoolNotStarted is returned by Execute before Start.
var ErrPoolNotStarted = fmt.Errorf("%w: worker pool not started", core.ErrRejected)

// PoolOptions sizes a GoroutineThreadPool.
type PoolOptions struct {
	MinWorkers int
	// MaxWorkers caps the pool; 0 means unbounded.
	MaxWorkers int
	KeepAlive  time.Duration
	Logger     core.Logger
}

// GoroutineThreadPool manages a growable set of worker goroutines.
// Workers pull items from the scheduler; a new worker is started whenever an
// item arrives and none is parked, and parked workers above MinWorkers exit
// after KeepAlive.
type GoroutineThreadPool struct {
	id        string
	scheduler *core.TaskScheduler
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex
}

// NewGoroutineThreadPool creates a new GoroutineThreadPool
func NewGoroutineThreadPool(id string, opts PoolOptions) *GoroutineThreadPool {
	return &GoroutineThreadPool{
		id: id,
		scheduler: core.NewTaskScheduler(&core.TaskSchedulerConfig{
			MinWorkers: opts.MinWorkers,
			MaxWorkers: opts.MaxWorkers,
			KeepAlive:  opts.KeepAlive,
			Logger:     opts.Logger,
		}),
	}
}

// Start starts the resident workers
func (tg *GoroutineThreadPool) Start(ctx context.Context) {
	tg.runningMu.Lock()
	defer tg.runningMu.Unlock()

	if tg.running || tg.scheduler.IsShuttingDown() {
		return
	}

	tg.ctx, tg.cancel = context.WithCancel(ctx)
	tg.running = true

	for range tg.scheduler.Reserve() {
		tg.spawnLocked()
	}
}

// spawnLocked starts one worker; runningMu must be held.
func (tg *GoroutineThreadPool) spawnLocked() {
	tg.wg.Add(1)
	go tg.workerLoop(tg.ctx)
}

// Execute implements core.ThreadPool.
func (tg *GoroutineThreadPool) Execute(item core.WorkItem) error {
	tg.runningMu.RLock()
	defer tg.runningMu.RUnlock()

	if !tg.running {
		if tg.scheduler.IsShuttingDown() {
			return core.ErrPoolShutdown
		}
		return ErrPoolNotStarted
	}

	spawn, err := tg.scheduler.Post(item)
	if err != nil {
		return err
	}
	if spawn {
		tg.wg.Add(1)
		go tg.workerLoop(tg.ctx)
	}
	return nil
}

// Shutdown implements core.ThreadPool: new items are refused and queued ones
// rejected. Running items are left to finish.
func (tg *GoroutineThreadPool) Shutdown() {
	tg.scheduler.Shutdown()
}

// AwaitTermination waits until every worker has exited or ctx ends.
func (tg *GoroutineThreadPool) AwaitTermination(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		tg.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		tg.runningMu.Lock()
		tg.running = false
		tg.runningMu.Unlock()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool %s: %w", tg.id, ctx.Err())
	}
}

// Stop shuts the pool down and waits for its workers. Parked workers exit at
// once; running items are not interrupted.
func (tg *GoroutineThreadPool) Stop() {
	tg.scheduler.Shutdown()

	tg.runningMu.RLock()
	running := tg.running
	tg.runningMu.RUnlock()
	if !running {
		return
	}

	if tg.cancel != nil {
		tg.cancel()
	}
	tg.Join()

	tg.runningMu.Lock()
	tg.running = false
	tg.runningMu.Unlock()
}

// StopGraceful is Stop bounded by timeout.
func (tg *GoroutineThreadPool) StopGraceful(timeout time.Duration) error {
	tg.scheduler.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := tg.AwaitTermination(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown graceful timeout after %v: %w", timeout, err)
	}
	return err
}

// ID returns the ID of the thread pool
func (tg *GoroutineThreadPool) ID() string {
	return tg.id
}

// IsRunning returns whether the thread pool is running
func (tg *GoroutineThreadPool) IsRunning() bool {
	tg.runningMu.RLock()
	defer tg.runningMu.RUnlock()
	return tg.running
}

// workerLoop is the main loop for each worker
func (tg *GoroutineThreadPool) workerLoop(ctx context.Context) {
	defer tg.wg.Done()
	stopCh := ctx.Done()
	wake := make(chan struct{}, 1)

	for {
		item, ok := tg.scheduler.GetWork(wake, stopCh)
		if !ok {
			return
		}
		tg.scheduler.RunWork(func() { item.Run(ctx) })
	}
}

// Join waits for all worker goroutines to finish
func (tg *GoroutineThreadPool) Join() {
	tg.wg.Wait()
}

// WorkerCount returns the number of live workers
func (tg *GoroutineThreadPool) WorkerCount() int {
	return tg.scheduler.WorkerCount()
}

func (tg *GoroutineThreadPool) QueuedTaskCount() int {
	return tg.scheduler.QueuedTaskCount()
}

func (tg *GoroutineThreadPool) ActiveTaskCount() int {
	return tg.scheduler.ActiveTaskCount()
}

// Stats implements core.ThreadPool.
func (tg *GoroutineThreadPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:         tg.id,
		Workers:    tg.scheduler.WorkerCount(),
		Idle:       tg.scheduler.IdleWorkerCount(),
		Queued:     tg.scheduler.QueuedTaskCount(),
		Active:     tg.scheduler.ActiveTaskCount(),
		MinWorkers: tg.scheduler.MinWorkers(),
		MaxWorkers: tg.scheduler.MaxWorkers(),
		Running:    tg.IsRunning(),
	}
}

// =============================================================================
// Global Manager Helper (Singleton)
// =============================================================================

var (
	globalManager *Manager
	globalMu      sync.Mutex
)

// InitGlobalManager creates and starts the global manager.
// Later calls are no-ops.
func InitGlobalManager(opts Options) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager != nil {
		return // Already initialized
	}
	globalManager = NewManager(opts)
}

// GetGlobalManager returns the global manager instance.
// It panics if InitGlobalManager has not been called.
func GetGlobalManager() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("global model job manager not initialized. Call InitGlobalManager() first.")
	}
	return globalManager
}

// ShutdownGlobalManager shuts the global manager down and forgets it.
func ShutdownGlobalManager(ctx context.Context) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		return nil
	}
	err := globalManager.Shutdown(ctx)
	globalManager = nil
	return err
}
