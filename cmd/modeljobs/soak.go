package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	modeljobs "github.com/Swind/go-model-jobs"
	"github.com/Swind/go-model-jobs/core"
	mjprom "github.com/Swind/go-model-jobs/observability/prometheus"
)

type soakOptions struct {
	sessions    int
	jobs        int
	blockEvery  int
	blockFor    time.Duration
	work        time.Duration
	metricsAddr string
}

type soakResult struct {
	Completed  int64
	Failed     int64
	Violations int64
	Blocked    int64
	HandOffs   int64
	Elapsed    time.Duration
}

func newSoakCmd() *cobra.Command {
	var opts soakOptions

	cmd := &cobra.Command{
		Use:   "soak",
		Short: "Drive concurrent sessions and verify per-session mutual exclusion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.metricsAddr == "" {
				opts.metricsAddr = cfg.Metrics.Addr
			}
			res, err := runSoak(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"completed=%d failed=%d blocked=%d handoffs=%d violations=%d elapsed=%v\n",
				res.Completed, res.Failed, res.Blocked, res.HandOffs, res.Violations, res.Elapsed.Round(time.Millisecond))
			if res.Violations > 0 {
				return fmt.Errorf("%d mutual exclusion violations", res.Violations)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.sessions, "sessions", 8, "Number of concurrent sessions")
	cmd.Flags().IntVar(&opts.jobs, "jobs", 200, "Jobs per session")
	cmd.Flags().IntVar(&opts.blockEvery, "block-every", 10, "Every Nth job waits on a blocking condition (0 = never)")
	cmd.Flags().DurationVar(&opts.blockFor, "block-for", 2*time.Millisecond, "How long a blocking condition stays raised")
	cmd.Flags().DurationVar(&opts.work, "work", 100*time.Microsecond, "Simulated work per job")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /debug on this address while running")

	return cmd
}

func runSoak(ctx context.Context, opts soakOptions) (soakResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.sessions < 1 || opts.jobs < 1 {
		return soakResult{}, errors.New("sessions and jobs must be positive")
	}

	reg := prom.NewRegistry()
	exporter, err := mjprom.NewMetricsExporter(cfg.Metrics.Namespace, reg, mjprom.ExporterOptions{})
	if err != nil {
		return soakResult{}, err
	}

	mopts := modeljobs.OptionsFromConfig(cfg)
	mopts.Logger = logger
	mopts.Metrics = exporter
	mgr := modeljobs.NewManager(mopts)

	poller, err := mjprom.NewSnapshotPoller(reg, cfg.Metrics.PollInterval)
	if err != nil {
		return soakResult{}, err
	}
	poller.AddManager(mgr.Name(), mgr)
	poller.AddPool(mgr.Pool().ID(), mgr.Pool())
	poller.Start(ctx)
	defer poller.Stop()

	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           newAdminRouter(mgr, reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server stopped", core.F("error", err))
			}
		}()
		defer srv.Close()
		logger.Info("admin server listening", core.F("addr", opts.metricsAddr))
	}

	var res soakResult
	start := time.Now()

	var futures []*core.Future
	var futuresMu sync.Mutex
	var wg sync.WaitGroup

	for s := range opts.sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session := modeljobs.NewSession(fmt.Sprintf("session-%d", s))
			var inside atomic.Int32

			for j := range opts.jobs {
				block := opts.blockEvery > 0 && j%opts.blockEvery == opts.blockEvery-1
				f, err := mgr.Schedule(core.JobInput{
					Session: session,
					Name:    fmt.Sprintf("soak-%d", j),
				}, func(ctx context.Context) (any, error) {
					enter := func() {
						if inside.Add(1) != 1 {
							atomic.AddInt64(&res.Violations, 1)
						}
					}
					leave := func() { inside.Add(-1) }

					enter()
					time.Sleep(opts.work)
					if block {
						cond := mgr.NewBlockingCondition("soak-ready", true)
						time.AfterFunc(opts.blockFor, cond.SignalAll)
						atomic.AddInt64(&res.Blocked, 1)
						leave()
						if err := cond.ReleaseMutexAndAwait(ctx); err != nil {
							return nil, err
						}
						enter()
					}
					leave()
					return nil, nil
				})
				if err != nil {
					logger.Warn("soak schedule failed", core.F("error", err))
					continue
				}
				futuresMu.Lock()
				futures = append(futures, f)
				futuresMu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, f := range futures {
		if _, err := f.Await(ctx); err != nil {
			res.Failed++
			continue
		}
		res.Completed++
	}
	res.Elapsed = time.Since(start)
	res.HandOffs = mgr.Stats().HandOffs

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		return res, err
	}
	return res, nil
}
