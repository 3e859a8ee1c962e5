package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/Swind/go-model-jobs/config"
	"github.com/Swind/go-model-jobs/core"
)

type statsStub struct{}

func (statsStub) Stats() core.ManagerStats {
	return core.ManagerStats{Name: "stub", Sessions: 1, Completed: 3}
}

func (statsStub) SessionStats() []core.SessionStats {
	return []core.SessionStats{{SessionID: "s1", Idle: true}}
}

func (statsStub) RecentJobs(limit int) []core.JobExecutionRecord {
	recs := []core.JobExecutionRecord{
		{ID: core.GenerateTaskID(), Name: "a", SessionID: "s1", Status: core.JobStatusCompleted, Duration: time.Millisecond},
		{ID: core.GenerateTaskID(), Name: "b", SessionID: "s1", Status: core.JobStatusFailed},
	}
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}

// TestAdminRouter_Stats verifies /debug/stats serves the manager snapshot
func TestAdminRouter_Stats(t *testing.T) {
	// Arrange
	r := newAdminRouter(statsStub{}, prom.NewRegistry())
	req := httptest.NewRequest(http.MethodGet, "/debug/stats", nil)
	rec := httptest.NewRecorder()

	// Act
	r.ServeHTTP(rec, req)

	// Assert
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got = %d, want = %d", rec.Code, http.StatusOK)
	}
	var body statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Manager.Completed != 3 {
		t.Errorf("Manager.Completed: got = %d, want = 3", body.Manager.Completed)
	}
	if len(body.Sessions) != 1 || body.Sessions[0].SessionID != "s1" {
		t.Errorf("Sessions: got = %+v, want one session s1", body.Sessions)
	}
}

// TestAdminRouter_Jobs verifies /debug/jobs honours and validates limit
func TestAdminRouter_Jobs(t *testing.T) {
	r := newAdminRouter(statsStub{}, prom.NewRegistry())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/jobs?limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got = %d, want = %d", rec.Code, http.StatusOK)
	}
	var jobs []recentJob
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != "COMPLETED" {
		t.Errorf("jobs: got = %+v, want one COMPLETED job", jobs)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/jobs?limit=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid limit status: got = %d, want = %d", rec.Code, http.StatusBadRequest)
	}
}

// TestAdminRouter_Metrics verifies /metrics exposes the registry
func TestAdminRouter_Metrics(t *testing.T) {
	// Arrange
	reg := prom.NewRegistry()
	counter := prom.NewCounter(prom.CounterOpts{Name: "modeljobs_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	r := newAdminRouter(statsStub{}, reg)

	// Act
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// Assert
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got = %d, want = %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "modeljobs_test_total 1") {
		t.Errorf("body does not contain the counter:\n%s", rec.Body.String())
	}
}

// TestRunSoak verifies a small soak run completes without exclusion violations
// Given: 4 sessions with 30 jobs each, every 5th job blocking
// When: runSoak is executed
// Then: Every job completes and no two jobs of a session overlap
func TestRunSoak(t *testing.T) {
	// Arrange
	cfg = config.Default()
	logger = core.NewNoOpLogger()

	// Act
	res, err := runSoak(context.Background(), soakOptions{
		sessions:   4,
		jobs:       30,
		blockEvery: 5,
		blockFor:   time.Millisecond,
		work:       50 * time.Microsecond,
	})

	// Assert
	if err != nil {
		t.Fatalf("runSoak() error = %v", err)
	}
	if res.Violations != 0 {
		t.Errorf("Violations: got = %d, want = 0", res.Violations)
	}
	if res.Completed != 120 {
		t.Errorf("Completed: got = %d, want = 120", res.Completed)
	}
	if res.Blocked != 24 {
		t.Errorf("Blocked: got = %d, want = 24", res.Blocked)
	}
}

// TestConfigCmd verifies the config command prints YAML
func TestConfigCmd(t *testing.T) {
	// Arrange
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "--log-format", "json"})

	// Act
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// Assert
	s := out.String()
	if !strings.Contains(s, "name: model-jobs") {
		t.Errorf("output missing name:\n%s", s)
	}
	if !strings.Contains(s, "format: json") {
		t.Errorf("output missing overridden log format:\n%s", s)
	}
}
