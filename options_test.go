package heartbeat

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestNew_Valid(t *testing.T) {
	m, err := New(NewMemoryStore())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m == nil {
		t.Fatal("New() returned nil monitor")
	}
}

func TestNew_NilStore(t *testing.T) {
	_, err := New(nil)
	if err == nil {
		t.Fatal("New(nil) expected error, got nil")
	}
	if !strings.Contains(err.Error(), "store is required") {
		t.Errorf("New(nil) error = %v, want error containing 'store is required'", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	m, err := New(NewMemoryStore())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if m.Port() != 8080 {
		t.Errorf("Port() = %v, want %v", m.Port(), 8080)
	}
	if m.Interval() != 300*time.Second {
		t.Errorf("Interval() = %v, want %v", m.Interval(), 300*time.Second)
	}
	if m.probeTimeout != 10*time.Second {
		t.Errorf("probeTimeout = %v, want %v", m.probeTimeout, 10*time.Second)
	}
	if m.warmupAttempts != 10 || m.warmupDelay != 5*time.Second {
		t.Errorf("warm-up = %d x %v, want 10 x 5s", m.warmupAttempts, m.warmupDelay)
	}
	if m.maxConcurrency != 50 {
		t.Errorf("maxConcurrency = %v, want %v", m.maxConcurrency, 50)
	}
	if m.skipWarmup {
		t.Error("warm-up disabled by default")
	}
}

func TestWithInterval(t *testing.T) {
	m, err := New(NewMemoryStore(), WithInterval(30*time.Second))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.Interval() != 30*time.Second {
		t.Errorf("Interval() = %v, want %v", m.Interval(), 30*time.Second)
	}
}

func TestDurationOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero interval", WithInterval(0)},
		{"negative interval", WithInterval(-time.Second)},
		{"zero probe timeout", WithProbeTimeout(0)},
		{"negative probe timeout", WithProbeTimeout(-time.Second)},
		{"zero warm-up attempts", WithWarmup(0, time.Second)},
		{"negative warm-up delay", WithWarmup(3, -time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(NewMemoryStore(), tt.opt); err == nil {
				t.Error("New() expected error, got nil")
			}
		})
	}
}

func TestWithWarmup(t *testing.T) {
	m, err := New(NewMemoryStore(), WithoutWarmup(), WithWarmup(3, 0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.skipWarmup {
		t.Error("WithWarmup after WithoutWarmup should re-enable warm-up")
	}
	if m.warmupAttempts != 3 {
		t.Errorf("warmupAttempts = %d, want 3", m.warmupAttempts)
	}
	if got := m.schedulerWarmupDelay(); got >= 0 {
		t.Errorf("schedulerWarmupDelay() = %v, want negative (no wait)", got)
	}
}

func TestWithoutWarmup(t *testing.T) {
	m, err := New(NewMemoryStore(), WithoutWarmup())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !m.skipWarmup {
		t.Error("WithoutWarmup() did not disable warm-up")
	}
}

func TestWithPort(t *testing.T) {
	m, err := New(NewMemoryStore(), WithPort(9090))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.Port() != 9090 {
		t.Errorf("Port() = %v, want %v", m.Port(), 9090)
	}
}

func TestWithPort_Invalid(t *testing.T) {
	for _, port := range []int{-1, 0, 65536, 100000} {
		if _, err := New(NewMemoryStore(), WithPort(port)); err == nil {
			t.Errorf("WithPort(%d) expected error, got nil", port)
		}
	}
}

func TestWithPort_ValidEdgeCases(t *testing.T) {
	for _, port := range []int{1, 65535} {
		if _, err := New(NewMemoryStore(), WithPort(port)); err != nil {
			t.Errorf("WithPort(%d) error = %v", port, err)
		}
	}
}

func TestWithMaxConcurrency(t *testing.T) {
	m, err := New(NewMemoryStore(), WithMaxConcurrency(5))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.maxConcurrency != 5 {
		t.Errorf("maxConcurrency = %v, want %v", m.maxConcurrency, 5)
	}
}

func TestWithMaxConcurrency_Invalid(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := New(NewMemoryStore(), WithMaxConcurrency(n)); err == nil {
			t.Errorf("WithMaxConcurrency(%d) expected error, got nil", n)
		}
	}
}

func TestWithLogger(t *testing.T) {
	logger := zap.NewNop()
	m, err := New(NewMemoryStore(), WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.logger != logger {
		t.Error("WithLogger() did not set the logger")
	}
}

func TestWithLogger_Nil(t *testing.T) {
	if _, err := New(NewMemoryStore(), WithLogger(nil)); err == nil {
		t.Error("WithLogger(nil) expected error, got nil")
	}
}

func TestWithLogger_DefaultsToProductionLogger(t *testing.T) {
	m, err := New(NewMemoryStore())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.logger == nil {
		t.Error("logger is nil without WithLogger")
	}
}

func TestWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(NewMemoryStore(), WithRegistry(reg))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m.Registry() != reg {
		t.Error("Registry() did not return the supplied registry")
	}

	m.metrics.StoreWrite("ok")
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "heartbeat_store_writes_total" {
			found = true
		}
	}
	if !found {
		t.Error("monitor collectors not registered on supplied registry")
	}
}

func TestWithRegistry_Nil(t *testing.T) {
	if _, err := New(NewMemoryStore(), WithRegistry(nil)); err == nil {
		t.Error("WithRegistry(nil) expected error, got nil")
	}
}

// TestNew_PrivateRegistries verifies two monitors in one process do not
// collide on collector registration.
func TestNew_PrivateRegistries(t *testing.T) {
	if _, err := New(NewMemoryStore()); err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	if _, err := New(NewMemoryStore()); err != nil {
		t.Fatalf("second New() error = %v", err)
	}
}

func TestWithProber_Nil(t *testing.T) {
	if _, err := New(NewMemoryStore(), WithProber(nil)); err == nil {
		t.Error("WithProber(nil) expected error, got nil")
	}
}

func TestWithCycleCallback_NilIsSafe(t *testing.T) {
	m, err := New(NewMemoryStore(), WithCycleCallback(nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(m.cycleCallbacks) != 0 {
		t.Errorf("len(cycleCallbacks) = %d, want 0", len(m.cycleCallbacks))
	}
}

// TestNew_SharedRegistry verifies monitors sharing one registry report into
// the same collectors instead of failing registration.
func TestNew_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := New(NewMemoryStore(), WithRegistry(reg))
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	second, err := New(NewMemoryStore(), WithRegistry(reg))
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}

	first.metrics.StoreWrite("ok")
	second.metrics.StoreWrite("ok")
	if got := testutil.ToFloat64(first.metrics.StoreWritesTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("shared store writes = %v, want 2", got)
	}
}

// TestNew_RegistryConflict verifies a foreign collector under a monitor
// metric name is reported as an error.
func TestNew_RegistryConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "heartbeat_store_writes_total",
		Help: "unrelated gauge",
	}))

	_, err := New(NewMemoryStore(), WithRegistry(reg))
	if err == nil {
		t.Fatal("New() with conflicting registry expected error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to register metrics") {
		t.Errorf("error = %v", err)
	}
}
