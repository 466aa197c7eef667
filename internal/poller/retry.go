package poller

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/jpalmerr/heartbeat/internal/metrics"
)

// Warm-up defaults.
const (
	DefaultWarmupAttempts = 10
	DefaultWarmupDelay    = 5 * time.Second
)

var errNotUp = errors.New("endpoint not up")

// Retrier probes a single URL until it answers 200 or attempts run out.
//
// Attempts are separated by a constant delay; no delay follows a success or
// the final attempt. Outcomes are only logged, never persisted.
type Retrier struct {
	prober      Prober
	maxAttempts int
	delay       time.Duration
	timeout     time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics

	// newTimer overrides the backoff timer; nil uses a real timer.
	newTimer func() backoff.Timer
}

// NewRetrier creates a [Retrier]. maxAttempts below 1 is treated as 1 and a
// negative delay as zero. timeout bounds each individual probe.
func NewRetrier(prober Prober, maxAttempts int, delay, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		prober:      prober,
		maxAttempts: maxAttempts,
		delay:       delay,
		timeout:     timeout,
		logger:      logger,
		metrics:     m,
	}
}

// RetryUntilSuccess probes url up to maxAttempts times and reports whether
// any attempt came back up. Cancelling ctx ends the wait early and returns
// false.
func (r *Retrier) RetryUntilSuccess(ctx context.Context, url string) bool {
	attempt := 0
	operation := func() error {
		attempt++
		o := r.prober.Probe(ctx, url, r.timeout)
		r.metrics.ObserveProbe(metrics.PhaseWarmup, o.Kind.String(), o.Latency)

		if o.IsUp() {
			r.logger.Info("endpoint is up",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("latency", o.Latency),
			)
			return nil
		}

		r.logger.Warn("probe attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.maxAttempts),
			zap.String("outcome", o.String()),
		)
		return errNotUp
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(r.delay)
	b = backoff.WithMaxRetries(b, uint64(r.maxAttempts-1))
	b = backoff.WithContext(b, ctx)

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, b, nil, timer)
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		r.logger.Info("warm-up interrupted",
			zap.String("url", url),
			zap.Int("attempts", attempt),
		)
		return false
	}

	r.logger.Error("endpoint did not come up",
		zap.String("url", url),
		zap.Int("attempts", attempt),
	)
	return false
}
