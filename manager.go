package modeljobs

import (
	"context"
	"time"

	"github.com/Swind/go-model-jobs/config"
	"github.com/Swind/go-model-jobs/core"
)

// Options configures NewManager. Zero values fall back to core defaults.
type Options struct {
	Name            string
	MinWorkers      int
	MaxWorkers      int // 0 = unbounded
	KeepAlive       time.Duration
	HistoryCapacity int

	Logger             core.Logger
	Metrics            core.Metrics
	PanicHandler       core.PanicHandler
	RejectedJobHandler core.RejectedJobHandler
	Middleware         []core.JobMiddleware
}

// OptionsFromConfig maps a loaded config onto Options. Logger and Metrics are
// left for the caller to build.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Name:            cfg.Name,
		MinWorkers:      cfg.Pool.MinWorkers,
		MaxWorkers:      cfg.Pool.MaxWorkers,
		KeepAlive:       cfg.Pool.KeepAlive,
		HistoryCapacity: cfg.HistoryCapacity,
	}
}

// Manager is a ModelJobManager bundled with the pool it owns.
type Manager struct {
	*core.ModelJobManager
	pool *GoroutineThreadPool
}

// NewManager starts a growable pool and a manager dispatching onto it.
// Shutdown stops both.
func NewManager(opts Options) *Manager {
	name := opts.Name
	if name == "" {
		name = "model-jobs"
	}

	pool := NewGoroutineThreadPool(name+"-pool", PoolOptions{
		MinWorkers: opts.MinWorkers,
		MaxWorkers: opts.MaxWorkers,
		KeepAlive:  opts.KeepAlive,
		Logger:     opts.Logger,
	})
	pool.Start(context.Background())

	cfg := core.DefaultManagerConfig()
	cfg.Name = name
	if opts.Logger != nil {
		cfg.Logger = opts.Logger
		cfg.PanicHandler = &core.LoggingPanicHandler{Logger: opts.Logger}
		cfg.RejectedJobHandler = &core.LoggingRejectedJobHandler{Logger: opts.Logger}
	}
	if opts.Metrics != nil {
		cfg.Metrics = opts.Metrics
	}
	if opts.PanicHandler != nil {
		cfg.PanicHandler = opts.PanicHandler
	}
	if opts.RejectedJobHandler != nil {
		cfg.RejectedJobHandler = opts.RejectedJobHandler
	}
	if opts.HistoryCapacity > 0 {
		cfg.HistoryCapacity = opts.HistoryCapacity
	}
	cfg.Middleware = opts.Middleware

	return &Manager{
		ModelJobManager: core.NewModelJobManager(pool, cfg),
		pool:            pool,
	}
}

// Pool returns the pool the manager dispatches onto.
func (m *Manager) Pool() *GoroutineThreadPool {
	return m.pool
}
