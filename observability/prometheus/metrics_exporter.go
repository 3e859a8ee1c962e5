package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-model-jobs/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	jobDurationSeconds *prom.HistogramVec
	jobPanicTotal      *prom.CounterVec
	jobRejectedTotal   *prom.CounterVec
	queueDepth         *prom.GaugeVec
	handOffTotal       *prom.CounterVec
	blockedJobs        *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "modeljobs"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Model job execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"session"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "job_panic_total",
		Help:      "Total number of model job panics.",
	}, []string{"session"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "job_rejected_total",
		Help:      "Total number of model jobs refused by the worker pool.",
	}, []string{"session", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "mutex_queue_depth",
		Help:      "Jobs waiting for a session mutex.",
	}, []string{"session"})
	handOffVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "mutex_handoff_total",
		Help:      "Total number of direct session mutex hand-offs.",
	}, []string{"session"})
	blockedVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "blocked_jobs",
		Help:      "Jobs parked on a blocking condition.",
	}, []string{"condition"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if handOffVec, err = registerCollector(reg, handOffVec); err != nil {
		return nil, err
	}
	if blockedVec, err = registerCollector(reg, blockedVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		jobDurationSeconds: durationVec,
		jobPanicTotal:      panicVec,
		jobRejectedTotal:   rejectedVec,
		queueDepth:         queueDepthVec,
		handOffTotal:       handOffVec,
		blockedJobs:        blockedVec,
	}, nil
}

// RecordJobDuration records job execution duration.
func (m *MetricsExporter) RecordJobDuration(session string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDurationSeconds.WithLabelValues(normalizeLabel(session, "unknown")).Observe(duration.Seconds())
}

// RecordJobPanic records job panic events.
func (m *MetricsExporter) RecordJobPanic(session string, panicInfo any) {
	if m == nil {
		return
	}
	m.jobPanicTotal.WithLabelValues(normalizeLabel(session, "unknown")).Inc()
}

// RecordQueueDepth records the waiting sequence length of a session mutex.
func (m *MetricsExporter) RecordQueueDepth(session string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(session, "unknown")).Set(float64(depth))
}

// RecordJobRejected records job rejection events.
func (m *MetricsExporter) RecordJobRejected(session string, reason string) {
	if m == nil {
		return
	}
	m.jobRejectedTotal.WithLabelValues(normalizeLabel(session, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordMutexHandOff records a hand-off to a queued job.
func (m *MetricsExporter) RecordMutexHandOff(session string) {
	if m == nil {
		return
	}
	m.handOffTotal.WithLabelValues(normalizeLabel(session, "unknown")).Inc()
}

// RecordBlocked adjusts the number of jobs parked on condition.
func (m *MetricsExporter) RecordBlocked(condition string, delta int) {
	if m == nil {
		return
	}
	m.blockedJobs.WithLabelValues(normalizeLabel(condition, "unknown")).Add(float64(delta))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
