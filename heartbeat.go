package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/jpalmerr/heartbeat/internal/logger"
	"github.com/jpalmerr/heartbeat/internal/metrics"
	"github.com/jpalmerr/heartbeat/internal/poller"
	"github.com/jpalmerr/heartbeat/internal/server"
)

const (
	defaultInterval       = poller.DefaultInterval
	defaultProbeTimeout   = poller.DefaultProbeTimeout
	defaultWarmupAttempts = poller.DefaultWarmupAttempts
	defaultWarmupDelay    = poller.DefaultWarmupDelay
	defaultMaxConcurrency = poller.DefaultMaxConcurrency
	defaultPort           = 8080
)

// Monitor watches every endpoint registered in a [Store] and records their
// liveness back into it.
//
// Monitor is created using [New] with functional options and started with
// [Monitor.Start]. On start it runs a warm-up pass that retries each
// endpoint until it answers 200 or attempts run out, then enters the
// monitoring loop: every interval it re-reads all users, probes all their
// endpoints concurrently, and writes each user's status and lastPing back.
//
// The typical lifecycle is:
//
//	m, err := heartbeat.New(st)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	m.Start(ctx) // blocks until context cancelled
type Monitor struct {
	store          Store
	interval       time.Duration
	probeTimeout   time.Duration
	warmupAttempts int
	warmupDelay    time.Duration
	skipWarmup     bool
	port           int
	serverDisabled bool
	maxConcurrency int
	logger         *zap.Logger
	registry       *prometheus.Registry
	metrics        *metrics.Metrics
	prober         Prober
	cycleCallbacks []func(CycleReport)
}

// New creates a new [Monitor] reading from and writing to st.
//
// Options have sensible defaults:
//   - Interval: 5 minutes
//   - Probe timeout: 10 seconds
//   - Warm-up: 10 attempts, 5 seconds apart
//   - Port: 8080
//   - Max concurrency: 50
//
// Returns an error if st is nil or if any option is invalid.
func New(st Store, opts ...Option) (*Monitor, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}

	cfg := &monitorConfig{
		interval:       defaultInterval,
		probeTimeout:   defaultProbeTimeout,
		warmupAttempts: defaultWarmupAttempts,
		warmupDelay:    defaultWarmupDelay,
		port:           defaultPort,
		maxConcurrency: defaultMaxConcurrency,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	l := cfg.logger
	if l == nil {
		l = logger.Must(logger.Options{})
	}

	reg := cfg.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &Monitor{
		store:          st,
		interval:       cfg.interval,
		probeTimeout:   cfg.probeTimeout,
		warmupAttempts: cfg.warmupAttempts,
		warmupDelay:    cfg.warmupDelay,
		skipWarmup:     cfg.skipWarmup,
		port:           cfg.port,
		serverDisabled: cfg.serverDisabled,
		maxConcurrency: cfg.maxConcurrency,
		logger:         l,
		registry:       reg,
		metrics:        m,
		prober:         cfg.prober,
		cycleCallbacks: cfg.cycleCallbacks,
	}, nil
}

// Start runs warm-up, the monitoring loop and the HTTP server.
//
// Start is a blocking call that runs until the provided context is cancelled.
// The caller controls the lifecycle via context cancellation. For signal
// handling, use [signal.NotifyContext].
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails to start.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("heartbeat starting",
		zap.Duration("interval", m.interval),
		zap.Duration("probe_timeout", m.probeTimeout),
		zap.Int("max_concurrency", m.maxConcurrency),
		zap.Bool("warmup", !m.skipWarmup),
	)

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	scheduler := poller.NewScheduler(m.store, m.prober, poller.Config{
		Interval:       m.interval,
		ProbeTimeout:   m.probeTimeout,
		WarmupAttempts: m.warmupAttempts,
		WarmupDelay:    m.schedulerWarmupDelay(),
		MaxConcurrency: m.maxConcurrency,
		SkipWarmup:     m.skipWarmup,
		OnCycle:        m.dispatchCycle,
	}, m.logger.Named("scheduler"), m.metrics)

	if !m.serverDisabled {
		httpServer := server.NewServer(m.store, m.port, m.registry, scheduler, m.logger.Named("server"))
		if err := httpServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		m.logger.Info("status available", zap.String("url", fmt.Sprintf("http://localhost:%d/api/status", m.port)))
	}

	scheduler.Start(ctx)

	<-ctx.Done()
	scheduler.Stop()
	m.logger.Info("heartbeat stopped")
	return nil
}

// schedulerWarmupDelay maps a zero delay to the scheduler's no-wait value.
func (m *Monitor) schedulerWarmupDelay() time.Duration {
	if m.warmupDelay == 0 {
		return -1
	}
	return m.warmupDelay
}

func (m *Monitor) dispatchCycle(r CycleReport) {
	for _, cb := range m.cycleCallbacks {
		invokeCallbackSafe(cb, r, m.logger)
	}
}

// Port returns the configured HTTP port.
func (m *Monitor) Port() int {
	return m.port
}

// Interval returns the configured sleep between cycles.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Registry returns the Prometheus registry holding the monitor's collectors.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// invokeCallbackSafe calls a cycle callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(CycleReport), r CycleReport, logger *zap.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("cycle callback panicked",
				zap.Any("panic", p),
				zap.String("cycle_id", r.ID),
			)
		}
	}()
	cb(r)
}
