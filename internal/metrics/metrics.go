// Package metrics holds the Prometheus collectors for the monitor.
//
// Collectors are registered on a caller-supplied registry so that several
// monitors (and tests) can live in one process. All methods are safe on a nil
// *Metrics, which records nothing.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Probe phases.
const (
	PhaseWarmup = "warmup"
	PhaseCycle  = "cycle"
)

// Result label values for cycles and store writes.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultSkipped  = "skipped"
	ResultConflict = "conflict"
)

// Metrics groups the monitor's collectors.
type Metrics struct {
	ProbesTotal        *prometheus.CounterVec
	ProbeDuration      *prometheus.HistogramVec
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	StoreWritesTotal   *prometheus.CounterVec
	MonitoredEndpoints prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves them
// unregistered. Collectors already registered on reg by an earlier call are
// reused, so monitors sharing a registry report into the same series.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_probes_total",
				Help: "Number of endpoint probes by phase and outcome",
			},
			[]string{"phase", "outcome"},
		),
		ProbeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "heartbeat_probe_duration_seconds",
				Help:    "Duration of endpoint probes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_cycles_total",
				Help: "Number of monitoring cycles by result",
			},
			[]string{"result"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "heartbeat_cycle_duration_seconds",
				Help:    "Duration of monitoring cycles",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		StoreWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heartbeat_store_writes_total",
				Help: "Number of endpoint collection writes by result",
			},
			[]string{"result"},
		),
		MonitoredEndpoints: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "heartbeat_monitored_endpoints",
				Help: "Endpoints enumerated by the most recent cycle",
			},
		),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.ProbesTotal, err = register(reg, m.ProbesTotal); err != nil {
		return nil, err
	}
	if m.ProbeDuration, err = register(reg, m.ProbeDuration); err != nil {
		return nil, err
	}
	if m.CyclesTotal, err = register(reg, m.CyclesTotal); err != nil {
		return nil, err
	}
	if m.CycleDuration, err = register(reg, m.CycleDuration); err != nil {
		return nil, err
	}
	if m.StoreWritesTotal, err = register(reg, m.StoreWritesTotal); err != nil {
		return nil, err
	}
	if m.MonitoredEndpoints, err = register(reg, m.MonitoredEndpoints); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg or returns the equivalent collector reg already
// holds. A different collector under the same name is an error.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("register %T: %w", c, err)
}

// ObserveProbe records one probe.
func (m *Metrics) ObserveProbe(phase, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(phase, outcome).Inc()
	m.ProbeDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveCycle records one cycle.
func (m *Metrics) ObserveCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// StoreWrite records one write attempt.
func (m *Metrics) StoreWrite(result string) {
	if m == nil {
		return
	}
	m.StoreWritesTotal.WithLabelValues(result).Inc()
}

// SetMonitoredEndpoints sets the endpoint gauge.
func (m *Metrics) SetMonitoredEndpoints(n int) {
	if m == nil {
		return
	}
	m.MonitoredEndpoints.Set(float64(n))
}
