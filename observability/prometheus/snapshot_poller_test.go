package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-model-jobs/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type managerStub struct {
	stats    core.ManagerStats
	sessions []core.SessionStats
}

func (s managerStub) Stats() core.ManagerStats          { return s.stats }
func (s managerStub) SessionStats() []core.SessionStats { return s.sessions }

type poolStub struct {
	stats core.PoolStats
}

func (s poolStub) Stats() core.PoolStats { return s.stats }

func TestSnapshotPoller_CollectsManagerSessionAndPoolStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddManager("manager-a", managerStub{
		stats: core.ManagerStats{
			Sessions:  2,
			Live:      5,
			Completed: 11,
			Rejected:  2,
			Closed:    true,
		},
		sessions: []core.SessionStats{
			{SessionID: "s1", Idle: false, Waiting: 3, Live: 4, Blocked: 1},
			{SessionID: "s2", Idle: true},
		},
	})
	poller.AddPool("pool-a", poolStub{stats: core.PoolStats{
		Queued:  4,
		Active:  2,
		Idle:    1,
		Workers: 8,
		Running: true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		live := testutil.ToFloat64(poller.managerLive.WithLabelValues("manager-a"))
		active := testutil.ToFloat64(poller.poolActive.WithLabelValues("pool-a"))
		return live == 5 && active == 2
	})

	if got := testutil.ToFloat64(poller.managerClosed.WithLabelValues("manager-a")); got != 1 {
		t.Fatalf("manager closed gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.sessionWaiting.WithLabelValues("manager-a", "s1")); got != 3 {
		t.Fatalf("session waiting gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(poller.sessionBlocked.WithLabelValues("manager-a", "s1")); got != 1 {
		t.Fatalf("session blocked gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.sessionIdle.WithLabelValues("manager-a", "s2")); got != 1 {
		t.Fatalf("session idle gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.poolRunning.WithLabelValues("pool-a")); got != 1 {
		t.Fatalf("pool running gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func TestSnapshotPoller_SharedRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	if _, err := NewSnapshotPoller(reg, time.Second); err != nil {
		t.Fatalf("first NewSnapshotPoller failed: %v", err)
	}
	if _, err := NewSnapshotPoller(reg, time.Second); err != nil {
		t.Fatalf("second NewSnapshotPoller failed: %v", err)
	}
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
