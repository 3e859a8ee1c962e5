package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-model-jobs/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ManagerSnapshotProvider provides current manager and per-session snapshots.
// *core.ModelJobManager implements it.
type ManagerSnapshotProvider interface {
	Stats() core.ManagerStats
	SessionStats() []core.SessionStats
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SnapshotPoller periodically exports manager/session/pool Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	managersMu sync.RWMutex
	managers   map[string]ManagerSnapshotProvider

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	managerSessions  *prom.GaugeVec
	managerLive      *prom.GaugeVec
	managerCompleted *prom.GaugeVec
	managerRejected  *prom.GaugeVec
	managerClosed    *prom.GaugeVec

	sessionWaiting *prom.GaugeVec
	sessionLive    *prom.GaugeVec
	sessionBlocked *prom.GaugeVec
	sessionIdle    *prom.GaugeVec

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolIdle    *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolRunning *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "modeljobs",
			Name:      name,
			Help:      help,
		}, labels)
	}

	p := &SnapshotPoller{
		interval: interval,
		managers: make(map[string]ManagerSnapshotProvider),
		pools:    make(map[string]PoolSnapshotProvider),

		managerSessions:  gauge("manager_sessions", "Known sessions per manager.", "manager"),
		managerLive:      gauge("manager_live_jobs", "Live (registered) jobs per manager.", "manager"),
		managerCompleted: gauge("manager_completed_total", "Manager completed job count snapshot.", "manager"),
		managerRejected:  gauge("manager_rejected_total", "Manager rejected job count snapshot.", "manager"),
		managerClosed:    gauge("manager_closed", "Manager closed state (1=closed, 0=open).", "manager"),

		sessionWaiting: gauge("session_waiting", "Jobs waiting for the session mutex.", "manager", "session"),
		sessionLive:    gauge("session_live_jobs", "Live jobs per session.", "manager", "session"),
		sessionBlocked: gauge("session_blocked", "Jobs of the session parked on a blocking condition.", "manager", "session"),
		sessionIdle:    gauge("session_idle", "Session mutex idle state (1=idle, 0=owned).", "manager", "session"),

		poolQueued:  gauge("pool_queued", "Queued work items per pool.", "pool"),
		poolActive:  gauge("pool_active", "Active work items per pool.", "pool"),
		poolIdle:    gauge("pool_idle_workers", "Parked workers per pool.", "pool"),
		poolWorkers: gauge("pool_workers", "Worker count per pool.", "pool"),
		poolRunning: gauge("pool_running", "Pool running state (1=running, 0=stopped).", "pool"),
	}

	for _, vec := range []**prom.GaugeVec{
		&p.managerSessions, &p.managerLive, &p.managerCompleted, &p.managerRejected, &p.managerClosed,
		&p.sessionWaiting, &p.sessionLive, &p.sessionBlocked, &p.sessionIdle,
		&p.poolQueued, &p.poolActive, &p.poolIdle, &p.poolWorkers, &p.poolRunning,
	} {
		registered, err := registerCollector(reg, *vec)
		if err != nil {
			return nil, err
		}
		*vec = registered
	}

	return p, nil
}

// AddManager adds or replaces a manager snapshot provider by name.
func (p *SnapshotPoller) AddManager(name string, provider ManagerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "manager")
	p.managersMu.Lock()
	p.managers[name] = provider
	p.managersMu.Unlock()
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.managersMu.RLock()
	for name, provider := range p.managers {
		stats := provider.Stats()
		p.managerSessions.WithLabelValues(name).Set(float64(stats.Sessions))
		p.managerLive.WithLabelValues(name).Set(float64(stats.Live))
		p.managerCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.managerRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		p.managerClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))

		for _, ss := range provider.SessionStats() {
			session := normalizeLabel(ss.SessionID, "unknown")
			p.sessionWaiting.WithLabelValues(name, session).Set(float64(ss.Waiting))
			p.sessionLive.WithLabelValues(name, session).Set(float64(ss.Live))
			p.sessionBlocked.WithLabelValues(name, session).Set(float64(ss.Blocked))
			p.sessionIdle.WithLabelValues(name, session).Set(boolGauge(ss.Idle))
		}
	}
	p.managersMu.RUnlock()

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolIdle.WithLabelValues(name).Set(float64(stats.Idle))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.poolsMu.RUnlock()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
