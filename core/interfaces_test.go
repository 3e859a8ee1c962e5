package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordedEntry struct {
	level  string
	msg    string
	fields []Field
}

// recordingLogger keeps every entry for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []recordedEntry
}

func (l *recordingLogger) add(level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, recordedEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields ...Field) { l.add("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...Field)  { l.add("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...Field)  { l.add("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...Field) { l.add("error", msg, fields) }

func (l *recordingLogger) find(msg string) (recordedEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return recordedEntry{}, false
}

// TestMiddlewareFuncs_NilFields verifies missing hooks are skipped
func TestMiddlewareFuncs_NilFields(t *testing.T) {
	var mw MiddlewareFuncs
	ctx := context.Background()

	if got := mw.BeforeJob(ctx, JobInfo{}); got != ctx {
		t.Error("BeforeJob with nil Before did not return the input context")
	}
	mw.AfterJob(ctx, JobInfo{}, errors.New("ignored"))
}

// TestLoggingMiddleware verifies start, finish and failure entries
func TestLoggingMiddleware(t *testing.T) {
	// Arrange
	logger := &recordingLogger{}
	mw := LoggingMiddleware(logger)
	job := JobInfo{ID: GenerateTaskID(), Name: "load", SessionID: "s1"}

	// Act
	ctx := mw.BeforeJob(context.Background(), job)
	mw.AfterJob(ctx, job, nil)
	mw.AfterJob(ctx, job, errors.New("bad weights"))

	// Assert
	if e, ok := logger.find("model job started"); !ok || e.level != "debug" {
		t.Errorf("start entry: got = %+v, %v", e, ok)
	}
	if e, ok := logger.find("model job finished"); !ok || e.level != "debug" {
		t.Errorf("finish entry: got = %+v, %v", e, ok)
	}
	e, ok := logger.find("model job failed")
	if !ok || e.level != "warn" {
		t.Fatalf("failure entry: got = %+v, %v", e, ok)
	}
	if !hasField(e.fields, "session", "s1") {
		t.Errorf("failure entry fields: got = %+v, want session=s1", e.fields)
	}
}

// TestLoggingHandlers verifies the default panic and rejection handlers log
func TestLoggingHandlers(t *testing.T) {
	logger := &recordingLogger{}
	job := JobInfo{ID: GenerateTaskID(), Name: "load", SessionID: "s1"}

	(&LoggingPanicHandler{Logger: logger}).HandlePanic(context.Background(), job, "boom", []byte("stack"))
	(&LoggingRejectedJobHandler{Logger: logger}).HandleRejectedJob(job, ErrPoolShutdown)

	if e, ok := logger.find("model job panicked"); !ok || e.level != "error" || !hasField(e.fields, "panic", "boom") {
		t.Errorf("panic entry: got = %+v, %v", e, ok)
	}
	if e, ok := logger.find("model job rejected"); !ok || e.level != "warn" {
		t.Errorf("rejection entry: got = %+v, %v", e, ok)
	}
}

// TestDefaultManagerConfig verifies every handler is populated
func TestDefaultManagerConfig(t *testing.T) {
	cfg := DefaultManagerConfig()

	if cfg.Name != "model-jobs" {
		t.Errorf("Name: got = %q, want = model-jobs", cfg.Name)
	}
	if cfg.Logger == nil || cfg.PanicHandler == nil || cfg.RejectedJobHandler == nil || cfg.Metrics == nil {
		t.Errorf("handlers: got = %+v, want all non-nil", cfg)
	}
	if cfg.HistoryCapacity != defaultTaskHistoryCapacity {
		t.Errorf("HistoryCapacity: got = %d, want = %d", cfg.HistoryCapacity, defaultTaskHistoryCapacity)
	}
}

// TestNilMetrics verifies the no-op implementation satisfies Metrics
func TestNilMetrics(t *testing.T) {
	var m Metrics = &NilMetrics{}
	m.RecordJobDuration("s", time.Second)
	m.RecordJobPanic("s", "p")
	m.RecordQueueDepth("s", 1)
	m.RecordJobRejected("s", "shutdown")
	m.RecordMutexHandOff("s")
	m.RecordBlocked("c", 1)
}

func hasField(fields []Field, key string, value any) bool {
	for _, f := range fields {
		if f.Key == key && f.Value == value {
			return true
		}
	}
	return false
}
