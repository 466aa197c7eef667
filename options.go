package heartbeat

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// monitorConfig holds mutable state during Monitor construction.
type monitorConfig struct {
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
	prober         Prober
	cycleCallbacks []func(CycleReport)
}

// Option is a function that configures a [Monitor] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*monitorConfig) error

// WithInterval sets the sleep between monitoring cycles.
//
// The sleep starts once every probe and write of the previous cycle has
// settled. Defaults to 5 minutes if not specified.
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithProbeTimeout bounds every individual probe. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithProbeTimeout(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("probe timeout must be positive")
		}
		cfg.probeTimeout = d
		return nil
	}
}

// WithWarmup configures the warm-up pass that runs once before the first
// cycle: each endpoint is probed up to attempts times, delay apart, until it
// answers 200. Defaults to 10 attempts, 5 seconds apart.
//
// Example:
//
//	m, err := heartbeat.New(st,
//	    heartbeat.WithWarmup(3, time.Second),
//	)
//
// Returns an error if attempts is below 1 or delay is negative.
func WithWarmup(attempts int, delay time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if attempts < 1 {
			return errors.New("warm-up attempts must be at least 1")
		}
		if delay < 0 {
			return errors.New("warm-up delay cannot be negative")
		}
		cfg.warmupAttempts = attempts
		cfg.warmupDelay = delay
		cfg.skipWarmup = false
		return nil
	}
}

// WithoutWarmup starts the monitoring loop straight away.
func WithoutWarmup() Option {
	return func(cfg *monitorConfig) error {
		cfg.skipWarmup = true
		return nil
	}
}

// WithPort sets the HTTP server port.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *monitorConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithoutServer runs the monitor without the HTTP server.
func WithoutServer() Option {
	return func(cfg *monitorConfig) error {
		cfg.serverDisabled = true
		return nil
	}
}

// WithMaxConcurrency caps the probes, and separately the store writes, in
// flight during a cycle. Defaults to 50 if not specified.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *monitorConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithLogger sets a custom [zap.Logger] for the Monitor instance.
//
// If not specified, a production JSON logger writing to stdout is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *monitorConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithRegistry registers the monitor's Prometheus collectors on reg instead
// of a private registry. The same registry is served at /metrics.
//
// Returns an error if the registry is nil.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(cfg *monitorConfig) error {
		if reg == nil {
			return errors.New("registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithProber replaces the HTTP prober, for example to route probes through
// a custom transport.
//
// Returns an error if the prober is nil.
func WithProber(p Prober) Option {
	return func(cfg *monitorConfig) error {
		if p == nil {
			return errors.New("prober cannot be nil")
		}
		cfg.prober = p
		return nil
	}
}

// WithCycleCallback registers a function to be called after every cycle.
//
// Multiple callbacks may be registered; they execute in registration order
// on the scheduling goroutine, so the next cycle's sleep starts only after
// they return. Callbacks must be non-blocking. Panics within callbacks are
// recovered and logged; they do not stop the loop.
//
// Example:
//
//	m, err := heartbeat.New(st,
//	    heartbeat.WithCycleCallback(func(r heartbeat.CycleReport) {
//	        log.Printf("cycle %s: %d/%d endpoints down", r.ID, r.Down, r.Probes)
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithCycleCallback(cb func(CycleReport)) Option {
	return func(cfg *monitorConfig) error {
		if cb == nil {
			return nil // no-op for nil callback (safe to call)
		}
		cfg.cycleCallbacks = append(cfg.cycleCallbacks, cb)
		return nil
	}
}
