package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jpalmerr/heartbeat/internal/metrics"
	"github.com/jpalmerr/heartbeat/internal/store"
)

// maxWriteAttempts bounds read-modify-write rounds lost to concurrent writers.
const maxWriteAttempts = 3

// Result pairs a probed endpoint with its outcome.
type Result struct {
	EndpointID string
	URL        string
	Outcome    Outcome
}

// Updater stamps probe outcomes onto a user's endpoint collection.
//
// Every write rewrites the user's full collection: entries are copied in
// order and only the status and lastPing of matching entries change. If the
// store implements [store.ConditionalUpdater] the write is conditional on the
// revision that was read and is retried on conflict.
type Updater struct {
	store   store.Store
	prober  Prober
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewUpdater creates an [Updater]. timeout bounds the probe made by
// [Updater.UpdateOne].
func NewUpdater(st store.Store, prober Prober, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		store:   st,
		prober:  prober,
		timeout: timeout,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// UpdateOne probes endpoint once and records the outcome on userID's document.
func (u *Updater) UpdateOne(ctx context.Context, userID string, endpoint store.Endpoint) error {
	o := u.prober.Probe(ctx, endpoint.URL, u.timeout)
	u.metrics.ObserveProbe(metrics.PhaseCycle, o.Kind.String(), o.Latency)

	return u.Apply(ctx, userID, []Result{{EndpointID: endpoint.ID, URL: endpoint.URL, Outcome: o}})
}

// Apply records results on userID's document with a single write.
//
// A missing user, an empty collection or a collection with none of the
// result ids is a no-op.
func (u *Updater) Apply(ctx context.Context, userID string, results []Result) error {
	_, err := u.apply(ctx, userID, results)
	return err
}

// apply reports whether a write reached the store.
func (u *Updater) apply(ctx context.Context, userID string, results []Result) (bool, error) {
	if len(results) == 0 {
		return false, nil
	}
	cond, conditional := u.store.(store.ConditionalUpdater)

	for attempt := 1; ; attempt++ {
		user, err := u.store.GetUser(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			u.logger.Debug("user vanished before update", zap.String("user_id", userID))
			u.metrics.StoreWrite(metrics.ResultSkipped)
			return false, nil
		}
		if err != nil {
			u.metrics.StoreWrite(metrics.ResultError)
			return false, fmt.Errorf("fetch user %q: %w", userID, err)
		}

		updated, matched := stampEndpoints(user.Endpoints, results, u.now())
		if matched == 0 {
			u.logger.Debug("no endpoints left to update", zap.String("user_id", userID))
			u.metrics.StoreWrite(metrics.ResultSkipped)
			return false, nil
		}

		if conditional {
			err = cond.UpdateUserEndpointsAt(ctx, userID, user.Revision, updated)
		} else {
			err = u.store.UpdateUserEndpoints(ctx, userID, updated)
		}

		switch {
		case err == nil:
			u.metrics.StoreWrite(metrics.ResultOK)
			for _, r := range results {
				u.logger.Info("endpoint status updated",
					zap.String("user_id", userID),
					zap.String("endpoint_id", r.EndpointID),
					zap.String("url", r.URL),
					zap.String("status", r.Outcome.String()),
				)
			}
			return true, nil

		case errors.Is(err, store.ErrConflict) && attempt < maxWriteAttempts:
			u.metrics.StoreWrite(metrics.ResultConflict)
			u.logger.Debug("concurrent update, retrying",
				zap.String("user_id", userID),
				zap.Int("attempt", attempt),
			)
			continue

		case errors.Is(err, store.ErrNotFound):
			u.metrics.StoreWrite(metrics.ResultSkipped)
			return false, nil

		default:
			u.metrics.StoreWrite(metrics.ResultError)
			return false, fmt.Errorf("update endpoints of user %q: %w", userID, err)
		}
	}
}

// stampEndpoints copies endpoints, setting status and lastPing on entries
// with a result. It returns the copy and the number of entries stamped.
func stampEndpoints(endpoints []store.Endpoint, results []Result, now time.Time) ([]store.Endpoint, int) {
	byID := make(map[string]Outcome, len(results))
	for _, r := range results {
		byID[r.EndpointID] = r.Outcome
	}

	lastPing := now.Format(store.LastPingLayout)
	out := make([]store.Endpoint, len(endpoints))
	matched := 0
	for i, ep := range endpoints {
		out[i] = ep
		if o, ok := byID[ep.ID]; ok {
			out[i].Status = o.String()
			out[i].LastPing = lastPing
			matched++
		}
	}
	return out, matched
}
