package poller

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/heartbeat/internal/metrics"
	"github.com/jpalmerr/heartbeat/internal/store"
)

// Loop defaults.
const (
	DefaultInterval       = 300 * time.Second
	DefaultMaxConcurrency = 50
)

// Target is one endpoint to monitor together with its owning user.
type Target struct {
	UserID   string
	Endpoint store.Endpoint
}

// CycleReport summarises one pass of the monitoring loop.
type CycleReport struct {
	// ID correlates the cycle's log lines.
	ID string

	StartedAt time.Time
	Duration  time.Duration

	// Users is the number of users with at least one endpoint.
	Users int

	// Probes is the number of endpoints probed.
	Probes int

	// Down is the number of probes that did not come back up.
	Down int

	// Writes is the number of user documents written.
	Writes int

	// Failures counts tasks that ended in a store error or a panic.
	Failures int
}

// Config holds the [Scheduler] settings. Zero values select the defaults.
type Config struct {
	// Interval is the sleep between the end of one cycle and the next.
	Interval time.Duration

	// ProbeTimeout bounds every probe.
	ProbeTimeout time.Duration

	// WarmupAttempts and WarmupDelay drive the retry of each endpoint
	// during warm-up. A negative WarmupDelay retries without waiting.
	WarmupAttempts int
	WarmupDelay    time.Duration

	// MaxConcurrency caps probes, and separately writes, in flight.
	MaxConcurrency int

	// SkipWarmup starts the loop without the warm-up pass.
	SkipWarmup bool

	// OnCycle, if set, is called from the scheduling goroutine after every
	// cycle that enumerated successfully.
	OnCycle func(CycleReport)

	// Now overrides the clock used for lastPing stamps.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.WarmupAttempts <= 0 {
		c.WarmupAttempts = DefaultWarmupAttempts
	}
	if c.WarmupDelay < 0 {
		c.WarmupDelay = 0
	} else if c.WarmupDelay == 0 {
		c.WarmupDelay = DefaultWarmupDelay
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Scheduler runs the warm-up pass once and then the monitoring loop.
//
// The warm-up enumerates every endpoint and retries each one sequentially
// until it is up or attempts run out; nothing is persisted. The loop then
// re-enumerates the store on every cycle, probes all endpoints concurrently,
// writes each user's document once, and sleeps for the interval once every
// task has settled.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	store   store.Store
	prober  Prober
	client  *Client // owned, closed on Stop
	cfg     Config
	retrier *Retrier
	updater *Updater
	logger  *zap.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	lastCycle *CycleReport
}

// NewScheduler creates a [Scheduler] reading from st.
//
// If prober is nil the scheduler uses its own [Client] and releases its
// connections on [Scheduler.Stop]. m may be nil.
func NewScheduler(st store.Store, prober Prober, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		store:   st,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
	if prober == nil {
		s.client = NewClient()
		prober = s.client
	}
	s.prober = prober

	s.retrier = NewRetrier(prober, cfg.WarmupAttempts, cfg.WarmupDelay, cfg.ProbeTimeout, logger.Named("warmup"), m)
	s.updater = NewUpdater(st, prober, cfg.ProbeTimeout, logger.Named("updater"), m)
	s.updater.now = cfg.Now
	return s
}

// Inventory enumerates every (user, endpoint) pair in store order.
func (s *Scheduler) Inventory(ctx context.Context) ([]Target, error) {
	var targets []Target
	for user, err := range s.store.ListUsers(ctx) {
		if err != nil {
			return nil, err
		}
		for _, ep := range user.Endpoints {
			targets = append(targets, Target{UserID: user.ID, Endpoint: ep})
		}
	}
	return targets, nil
}

// Initialize runs the warm-up pass.
//
// Every endpoint is retried in enumeration order; a failing endpoint never
// blocks the ones after it. Only an enumeration error is returned.
func (s *Scheduler) Initialize(ctx context.Context) error {
	s.logger.Info("initializing endpoint monitoring")

	targets, err := s.Inventory(ctx)
	if err != nil {
		return fmt.Errorf("enumerate users: %w", err)
	}
	s.logInventory(targets)

	up := 0
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		if s.retrier.RetryUntilSuccess(ctx, t.Endpoint.URL) {
			up++
		}
	}

	s.logger.Info("warm-up complete, starting regular monitoring",
		zap.Int("endpoints", len(targets)),
		zap.Int("up", up),
	)
	return nil
}

func (s *Scheduler) logInventory(targets []Target) {
	for _, g := range groupTargets(targets) {
		urls := make([]string, len(g.targets))
		for i, t := range g.targets {
			urls[i] = t.Endpoint.URL
		}
		s.logger.Info("user endpoints",
			zap.String("user_id", g.userID),
			zap.Int("count", len(urls)),
			zap.Strings("urls", urls),
		)
	}
	s.logger.Info("inventory", zap.Int("endpoints", len(targets)))
}

// RunCycle performs one pass of the monitoring loop.
//
// Per-task store errors and panics are logged and counted in the report; only
// an enumeration error (or cancellation before any write) is returned.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{ID: uuid.NewString(), StartedAt: time.Now()}
	log := s.logger.With(zap.String("cycle_id", report.ID))

	targets, err := s.Inventory(ctx)
	if err != nil {
		report.Duration = time.Since(report.StartedAt)
		s.metrics.ObserveCycle(metrics.ResultError, report.Duration)
		return report, fmt.Errorf("enumerate users: %w", err)
	}
	s.metrics.SetMonitoredEndpoints(len(targets))

	groups := groupTargets(targets)
	report.Users = len(groups)
	report.Probes = len(targets)
	log.Info("monitoring cycle started",
		zap.Int("users", report.Users),
		zap.Int("endpoints", report.Probes),
	)

	var failures atomic.Int64

	outcomes := make([]Outcome, len(targets))
	var probes errgroup.Group
	probes.SetLimit(s.cfg.MaxConcurrency)
	for i, t := range targets {
		probes.Go(func() error {
			o, ok := s.safeProbe(ctx, log, t)
			if !ok {
				failures.Add(1)
			}
			outcomes[i] = o
			return nil
		})
	}
	_ = probes.Wait()

	if err := ctx.Err(); err != nil {
		report.Duration = time.Since(report.StartedAt)
		s.metrics.ObserveCycle(metrics.ResultError, report.Duration)
		return report, fmt.Errorf("cycle interrupted: %w", err)
	}

	for _, o := range outcomes {
		if !o.IsUp() {
			report.Down++
		}
	}

	var writes atomic.Int64
	var updates errgroup.Group
	updates.SetLimit(s.cfg.MaxConcurrency)
	for _, g := range groups {
		results := make([]Result, len(g.targets))
		for i, t := range g.targets {
			results[i] = Result{
				EndpointID: t.Endpoint.ID,
				URL:        t.Endpoint.URL,
				Outcome:    outcomes[g.index[i]],
			}
		}
		updates.Go(func() error {
			wrote, err := s.safeApply(ctx, log, g.userID, results)
			if err != nil {
				failures.Add(1)
				log.Error("failed to update endpoints",
					zap.String("user_id", g.userID),
					zap.Strings("urls", resultURLs(results)),
					zap.Error(err),
				)
			}
			if wrote {
				writes.Add(1)
			}
			return nil
		})
	}
	_ = updates.Wait()

	report.Writes = int(writes.Load())
	report.Failures = int(failures.Load())
	report.Duration = time.Since(report.StartedAt)

	result := metrics.ResultOK
	if report.Failures > 0 {
		result = metrics.ResultError
	}
	s.metrics.ObserveCycle(result, report.Duration)

	log.Info("monitoring cycle finished",
		zap.Int("probes", report.Probes),
		zap.Int("down", report.Down),
		zap.Int("writes", report.Writes),
		zap.Int("failures", report.Failures),
		zap.Duration("duration", report.Duration),
	)

	s.mu.Lock()
	last := report
	s.lastCycle = &last
	s.mu.Unlock()

	return report, nil
}

// LastCycle returns the report of the most recent completed cycle.
func (s *Scheduler) LastCycle() (CycleReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCycle == nil {
		return CycleReport{}, false
	}
	return *s.lastCycle, true
}

// Start begins warm-up and the monitoring loop in a background goroutine.
//
// Start is non-blocking. If ctx is nil, context.Background() is used as the
// parent context. Start is idempotent; subsequent calls after the first are
// no-ops. If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.run(runCtx)
	}()
}

func (s *Scheduler) run(ctx context.Context) {
	if s.cfg.SkipWarmup {
		s.logger.Info("warm-up disabled")
	} else if err := s.Initialize(ctx); err != nil {
		// the loop still starts; the next cycle re-enumerates
		s.logger.Error("warm-up skipped", zap.Error(err))
	}

	timer := time.NewTimer(s.cfg.Interval)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		report, err := s.RunCycle(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			s.logger.Error("monitoring cycle failed",
				zap.String("cycle_id", report.ID),
				zap.Error(err),
			)
		case s.cfg.OnCycle != nil:
			s.cfg.OnCycle(report)
		}

		timer.Reset(s.cfg.Interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// Stop halts the scheduler and waits for the loop and in-flight tasks.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// clean up client connections after all goroutines complete
	s.client.Close()
}

// safeProbe probes t with panic recovery.
// A panicking prober yields a failure outcome carrying a correlation ID; the
// full stack is logged under the same ID. ok is false on panic.
func (s *Scheduler) safeProbe(ctx context.Context, log *zap.Logger, t Target) (o Outcome, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			log.Error("probe panic",
				zap.String("correlation_id", correlationID),
				zap.String("user_id", t.UserID),
				zap.String("url", t.Endpoint.URL),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.ByteString("stack", debug.Stack()),
			)
			o = Outcome{
				Kind:   OutcomeFailure,
				Reason: fmt.Sprintf("probe panic (correlation_id: %s)", correlationID),
			}
			ok = false
		}
	}()

	o = s.prober.Probe(ctx, t.Endpoint.URL, s.cfg.ProbeTimeout)
	s.metrics.ObserveProbe(metrics.PhaseCycle, o.Kind.String(), o.Latency)
	return o, true
}

// safeApply writes results with panic recovery.
func (s *Scheduler) safeApply(ctx context.Context, log *zap.Logger, userID string, results []Result) (wrote bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			log.Error("update panic",
				zap.String("correlation_id", correlationID),
				zap.String("user_id", userID),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.ByteString("stack", debug.Stack()),
			)
			wrote = false
			err = fmt.Errorf("update panic (correlation_id: %s)", correlationID)
		}
	}()
	return s.updater.apply(ctx, userID, results)
}

// targetGroup is one user's targets with their positions in the inventory.
type targetGroup struct {
	userID  string
	targets []Target
	index   []int
}

// groupTargets groups targets by user, keeping first-seen user order.
func groupTargets(targets []Target) []targetGroup {
	var groups []targetGroup
	pos := make(map[string]int)
	for i, t := range targets {
		gi, ok := pos[t.UserID]
		if !ok {
			gi = len(groups)
			pos[t.UserID] = gi
			groups = append(groups, targetGroup{userID: t.UserID})
		}
		groups[gi].targets = append(groups[gi].targets, t)
		groups[gi].index = append(groups[gi].index, i)
	}
	return groups
}

func resultURLs(results []Result) []string {
	urls := make([]string, len(results))
	for i, r := range results {
		urls[i] = r.URL
	}
	return urls
}
